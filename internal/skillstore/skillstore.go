// Package skillstore installs and removes SKILL.md files: global
// skills under <home>/skills/<id>/SKILL.md, and agent-scoped skills
// under each agent's workspace skill directories (as declared by its
// provider's RuntimeProfile.SkillDirs — one agent's provider can name
// more than one, e.g. OpenClaw's "skills" alongside a model-only
// provider's ".agents/skills").
package skillstore

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"opengoat/internal/agentstore"
	"opengoat/internal/domain"
	"opengoat/internal/ports"
	"opengoat/internal/provider"
)

// Scope selects where InstallSkill/RemoveSkill operate.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeAgent  Scope = "agent"
)

// InstallOptions mirrors the service contract's installSkill shape.
// Exactly one of SourcePath, SourceURL, Content must be set.
type InstallOptions struct {
	Scope             Scope
	AgentID           string
	SkillName         string
	SourcePath        string
	SourceURL         string
	Content           string
	Description       string
	AssignToAllAgents bool
}

// RemoveOptions mirrors the service contract's removeSkill shape.
type RemoveOptions struct {
	Scope   Scope
	AgentID string
	SkillID string
}

// SkillInfo describes one installed skill directory.
type SkillInfo struct {
	ID          string
	Description string
	Path        string
}

var slugPattern = regexp.MustCompile(`[^a-z0-9-]+`)

func slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "-")
	s = slugPattern.ReplaceAllString(s, "")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "skill"
	}
	return s
}

// Store installs/removes/lists SKILL.md files for agents and the
// global skill pool.
type Store struct {
	fs        ports.FilesystemPort
	paths     ports.PathPort
	agents    *agentstore.Store
	providers *provider.Registry

	httpClient *http.Client
}

func New(fs ports.FilesystemPort, paths ports.PathPort, agents *agentstore.Store, providers *provider.Registry) *Store {
	return &Store{fs: fs, paths: paths, agents: agents, providers: providers, httpClient: &http.Client{Timeout: 15 * time.Second}}
}

// InstallSkill resolves opts.Content (from SourcePath, SourceURL, or
// the literal Content field) and writes SKILL.md to every directory
// the scope implies.
func (s *Store) InstallSkill(opts InstallOptions) (string, error) {
	set := 0
	for _, v := range []string{opts.SourcePath, opts.SourceURL, opts.Content} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return "", domain.Validationf("installSkill requires exactly one of sourcePath, sourceUrl, content")
	}
	if strings.TrimSpace(opts.SkillName) == "" {
		return "", domain.Validationf("installSkill requires a skillName")
	}

	content, err := s.resolveContent(opts)
	if err != nil {
		return "", err
	}

	skillID := slugify(opts.SkillName)
	doc := buildSkillDoc(opts.SkillName, opts.Description, content)

	dirs, err := s.targetDirs(opts.Scope, opts.AgentID, opts.AssignToAllAgents)
	if err != nil {
		return "", err
	}
	for _, dir := range dirs {
		path := s.paths.Join(dir, skillID, "SKILL.md")
		if err := s.fs.MkdirAll(s.paths.Join(dir, skillID), 0o755); err != nil {
			return "", domain.WrapError(domain.KindFatal, "create skill directory", err)
		}
		if err := s.fs.WriteFile(path, []byte(doc), 0o644); err != nil {
			return "", domain.WrapError(domain.KindFatal, "write skill file", err)
		}
	}
	return skillID, nil
}

// RemoveSkill deletes a skill's directory from every location the
// scope implies.
func (s *Store) RemoveSkill(opts RemoveOptions) error {
	if strings.TrimSpace(opts.SkillID) == "" {
		return domain.Validationf("removeSkill requires a skillId")
	}
	dirs, err := s.targetDirs(opts.Scope, opts.AgentID, false)
	if err != nil {
		return err
	}
	removed := false
	for _, dir := range dirs {
		path := s.paths.Join(dir, opts.SkillID)
		if !s.fs.Exists(path) {
			continue
		}
		if err := s.fs.RemoveAll(path); err != nil {
			return domain.WrapError(domain.KindFatal, "remove skill directory", err)
		}
		removed = true
	}
	if !removed {
		return domain.NotFoundf("skill %q not found", opts.SkillID)
	}
	return nil
}

// ListSkills lists the skills installed for a single agent, across
// every skill directory its provider's profile declares.
func (s *Store) ListSkills(agentID string) ([]SkillInfo, error) {
	agent, err := s.agents.Get(agentID)
	if err != nil {
		return nil, err
	}
	p, ok := s.providers.Get(agent.ProviderID)
	if !ok {
		return nil, domain.Validationf("unknown provider %q for agent %q", agent.ProviderID, agentID)
	}
	var out []SkillInfo
	for _, rel := range p.Descriptor().Profile.SkillDirs {
		dir := s.paths.Join("workspaces", agentID, rel)
		out = append(out, s.listDir(dir)...)
	}
	return out, nil
}

// ListGlobalSkills lists every skill under <home>/skills.
func (s *Store) ListGlobalSkills() []SkillInfo {
	return s.listDir(s.paths.Join("skills"))
}

func (s *Store) listDir(dir string) []SkillInfo {
	entries, err := s.fs.Glob(filepath.Join(dir, "*", "SKILL.md"))
	if err != nil {
		return nil
	}
	var out []SkillInfo
	for _, entryPath := range entries {
		data, err := s.fs.ReadFile(entryPath)
		if err != nil {
			continue
		}
		id := skillIDFromPath(entryPath)
		out = append(out, SkillInfo{ID: id, Description: extractDescription(string(data)), Path: entryPath})
	}
	return out
}

func skillIDFromPath(path string) string {
	path = strings.TrimSuffix(path, "/SKILL.md")
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}

func extractDescription(doc string) string {
	lines := strings.Split(doc, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			return line
		}
	}
	return ""
}

func (s *Store) targetDirs(scope Scope, agentID string, assignToAllAgents bool) ([]string, error) {
	switch scope {
	case ScopeGlobal:
		return []string{"skills"}, nil
	case ScopeAgent:
		if assignToAllAgents {
			agents, err := s.agents.List("")
			if err != nil {
				return nil, err
			}
			var dirs []string
			for _, a := range agents {
				dirs = append(dirs, s.agentSkillDirs(a)...)
			}
			return dirs, nil
		}
		if strings.TrimSpace(agentID) == "" {
			return nil, domain.Validationf("agent-scoped skill operations require an agentId")
		}
		agent, err := s.agents.Get(agentID)
		if err != nil {
			return nil, err
		}
		return s.agentSkillDirs(agent), nil
	default:
		return nil, domain.Validationf("unknown skill scope %q", scope)
	}
}

func (s *Store) agentSkillDirs(agent domain.Agent) []string {
	p, ok := s.providers.Get(agent.ProviderID)
	if !ok {
		return nil
	}
	var dirs []string
	for _, rel := range p.Descriptor().Profile.SkillDirs {
		dirs = append(dirs, filepath.Join("workspaces", agent.ID, rel))
	}
	return dirs
}

func (s *Store) resolveContent(opts InstallOptions) (string, error) {
	switch {
	case opts.Content != "":
		return opts.Content, nil
	case opts.SourcePath != "":
		data, err := s.fs.ReadFile(opts.SourcePath)
		if err != nil {
			return "", domain.WrapError(domain.KindValidation, "read skill source file", err)
		}
		return string(data), nil
	case opts.SourceURL != "":
		resp, err := s.httpClient.Get(opts.SourceURL)
		if err != nil {
			return "", domain.WrapError(domain.KindTransient, "fetch skill source url", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", domain.Validationf("fetch skill source url: status %d", resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", domain.WrapError(domain.KindTransient, "read skill source url body", err)
		}
		return string(data), nil
	}
	return "", domain.Validationf("no skill content source provided")
}

func buildSkillDoc(name, description, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", name)
	if description != "" {
		fmt.Fprintf(&b, "%s\n\n", description)
	}
	b.WriteString(strings.TrimSpace(body))
	b.WriteString("\n")
	return b.String()
}
