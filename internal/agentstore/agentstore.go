// Package agentstore owns
// <home>/agents/<id>/config.json and <home>/workspaces/<id>/**,
// creates/deletes/reads agents, and maintains reports-to edges and
// reportee symlinks.
package agentstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"

	"opengoat/internal/database"
	"opengoat/internal/domain"
	"opengoat/internal/logger"
	"opengoat/internal/ports"
	"opengoat/internal/provider"
	"opengoat/internal/roleskill"
)

var agentsMDTemplate = template.Must(template.New("AGENTS.md").Parse(`# {{.DisplayName}}

Agent id: {{.ID}}
Type: {{.Type}}

This workspace is owned by OpenGoat. Organization state is mirrored
read-only at ./organization; edit it only through the control plane.
`))

var roleMDTemplate = template.Must(template.New("ROLE.md").Parse(`# Role

{{if .Role}}{{.Role}}{{else}}No role assigned.{{end}}

{{.Description}}
`))

var soulMDTemplate = template.Must(template.New("SOUL.md").Parse(`# {{.DisplayName}}

{{.DisplayName}} is a {{.Type}} agent in the OpenGoat fleet.
`))

// CreateOptions mirrors the optional fields accepted by create().
type CreateOptions struct {
	Role         string
	Description  string
	Type         domain.AgentType
	ReportsTo    *string
	ProviderID   string
	Discoverable bool
	Tags         []string
	Priority     int
	Skills       []string
}

// CreateResult is the shape create() returns.
type CreateResult struct {
	Agent          domain.Agent
	CreatedPaths   []string
	SkippedPaths   []string
	AlreadyExisted bool
	RuntimeSynced  bool
}

// DeleteResult is the shape delete() returns.
type DeleteResult struct {
	Existed       bool
	RemovedPaths  []string
	SkippedPaths  []string
	RuntimeSynced bool
}

// Store implements the AgentStore component. Every mutating operation
// is serialized through a per-agent-id mutex.
type Store struct {
	fs        ports.FilesystemPort
	paths     ports.PathPort
	providers *provider.Registry
	roleSync  *roleskill.Syncer
	activity  *database.ActivityRepo

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	configMu sync.Mutex // serializes config.json root read/update
}

func New(fs ports.FilesystemPort, paths ports.PathPort, providers *provider.Registry, roleSync *roleskill.Syncer, activity *database.ActivityRepo) *Store {
	return &Store{
		fs:        fs,
		paths:     paths,
		providers: providers,
		roleSync:  roleSync,
		activity:  activity,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (s *Store) lockFor(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// DeriveID converts a display name into a lowercase-kebab id.
func DeriveID(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	prevDash := false
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash && b.Len() > 0 {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func (s *Store) readAgent(id string) (domain.Agent, bool) {
	path := s.paths.AgentConfigPath(id)
	if !s.fs.Exists(path) {
		return domain.Agent{}, false
	}
	data, err := s.fs.ReadFile(path)
	if err != nil {
		return domain.Agent{}, false
	}
	var a domain.Agent
	if err := json.Unmarshal(data, &a); err != nil {
		return domain.Agent{}, false
	}
	return a, true
}

func (s *Store) writeAgent(a domain.Agent) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	return s.fs.WriteFile(s.paths.AgentConfigPath(a.ID), data, 0o644)
}

// Get returns an agent by id.
func (s *Store) Get(id string) (domain.Agent, error) {
	a, ok := s.readAgent(id)
	if !ok {
		return domain.Agent{}, domain.NotFoundf("agent %q not found", id)
	}
	return a, nil
}

// List returns agents in deterministic order: default
// agent first, then the rest case-insensitively by display name.
func (s *Store) List(defaultAgentID string) ([]domain.Agent, error) {
	pattern := s.paths.Join("agents", "*", "config.json")
	paths, err := s.fs.Glob(pattern)
	if err != nil {
		return nil, err
	}

	var agents []domain.Agent
	for _, p := range paths {
		data, err := s.fs.ReadFile(p)
		if err != nil {
			continue
		}
		var a domain.Agent
		if err := json.Unmarshal(data, &a); err != nil {
			continue
		}
		agents = append(agents, a)
	}

	sort.SliceStable(agents, func(i, j int) bool {
		iDefault := agents[i].ID == defaultAgentID
		jDefault := agents[j].ID == defaultAgentID
		if iDefault != jDefault {
			return iDefault
		}
		return strings.ToLower(agents[i].DisplayName) < strings.ToLower(agents[j].DisplayName)
	})
	return agents, nil
}

// Create scaffolds a new agent's workspace and config, or adopts an
// already-existing one, then syncs it into the active runtime provider.
func (s *Store) Create(ctx context.Context, name string, opts CreateOptions) (CreateResult, error) {
	id := DeriveID(name)
	if id == "" {
		return CreateResult{}, domain.Validationf("display name %q does not derive a valid agent id", name)
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	existing, alreadyExisted := s.readAgent(id)
	result := CreateResult{AlreadyExisted: alreadyExisted}

	agent := existing
	if !alreadyExisted {
		agentType := opts.Type
		if agentType == "" {
			agentType = domain.AgentTypeIndividual
		}
		agent = domain.Agent{
			ID:           id,
			DisplayName:  name,
			Role:         opts.Role,
			Description:  opts.Description,
			Type:         agentType,
			ReportsTo:    opts.ReportsTo,
			ProviderID:   opts.ProviderID,
			Discoverable: opts.Discoverable,
			Tags:         opts.Tags,
			Priority:     opts.Priority,
			Skills:       opts.Skills,
		}

		if agent.ReportsTo != nil {
			if _, ok := s.readAgent(*agent.ReportsTo); !ok {
				return CreateResult{}, domain.Validationf("reportsTo agent %q does not exist", *agent.ReportsTo)
			}
		}

		if err := s.fs.MkdirAll(s.paths.WorkspacePath(id), 0o755); err != nil {
			return CreateResult{}, domain.WrapError(domain.KindFatal, "create workspace dir", err)
		}
		created, err := s.scaffoldWorkspace(agent, s.providerProfile(agent.ProviderID))
		if err != nil {
			s.fs.RemoveAll(s.paths.WorkspacePath(id))
			return CreateResult{}, domain.WrapError(domain.KindFatal, "scaffold workspace", err)
		}
		result.CreatedPaths = append(result.CreatedPaths, created...)

		if err := s.writeAgent(agent); err != nil {
			s.fs.RemoveAll(s.paths.WorkspacePath(id))
			return CreateResult{}, domain.WrapError(domain.KindFatal, "write agent config", err)
		}
		result.CreatedPaths = append(result.CreatedPaths, s.paths.AgentConfigPath(id))

		if agent.ReportsTo != nil {
			if err := s.linkReportee(*agent.ReportsTo, id); err != nil {
				logger.Core.Warn().Err(err).Str("agent_id", id).Msg("failed linking reportee symlink")
			}
		}
	}

	if p, ok := s.providers.Get(agent.ProviderID); ok {
		desc := p.Descriptor()
		if desc.Capabilities.AgentCreate {
			err := p.CreateAgent(ctx, provider.CreateAgentOptions{
				Agent:         agent,
				WorkspacePath: s.paths.WorkspacePath(id),
			})
			if err != nil {
				if !alreadyExisted {
					s.fs.RemoveAll(s.paths.WorkspacePath(id))
					s.fs.Remove(s.paths.AgentConfigPath(id))
					return CreateResult{}, domain.WrapError(domain.KindRuntimeSync, fmt.Sprintf("runtime create failed for new agent %q, rolled back", id), err)
				}
				return CreateResult{}, domain.WrapError(domain.KindRuntimeSync, fmt.Sprintf("runtime create failed for existing agent %q, local state preserved", id), err)
			}
			result.RuntimeSynced = true
		}
	}

	if s.roleSync != nil {
		if err := s.roleSync.Sync(agent, s.providerProfile(agent.ProviderID)); err != nil {
			logger.Core.Warn().Err(err).Str("agent_id", id).Msg("role-skill sync failed after create")
		}
	}

	result.Agent = agent
	action := "adopted"
	if !alreadyExisted {
		action = "created"
	}
	s.activity.Log("agentstore", action, id, "", fmt.Sprintf("agent %q %s", id, action))

	return result, nil
}

// scaffoldWorkspace creates the standard subdirectories and
// provider-visible files of a freshly created agent's workspace and
// returns the paths it created: sessions/tasks/reportees, a skills
// root per the provider profile, AGENTS.md/ROLE.md/SOUL.md, and an
// organization symlink to <home>/organization/.
func (s *Store) scaffoldWorkspace(agent domain.Agent, profile domain.RuntimeProfile) ([]string, error) {
	workspace := s.paths.WorkspacePath(agent.ID)
	dirs := []string{
		filepath.Join(workspace, "sessions"),
		filepath.Join(workspace, "tasks"),
		filepath.Join(workspace, "reportees"),
	}
	skillDirs := profile.SkillDirs
	if len(skillDirs) == 0 {
		skillDirs = []string{"skills"}
	}
	for _, d := range skillDirs {
		dirs = append(dirs, filepath.Join(workspace, d))
	}

	var created []string
	for _, d := range dirs {
		if err := s.fs.MkdirAll(d, 0o755); err != nil {
			return created, err
		}
		created = append(created, d)
	}

	files := []struct {
		name string
		tmpl *template.Template
	}{
		{"AGENTS.md", agentsMDTemplate},
		{"ROLE.md", roleMDTemplate},
		{"SOUL.md", soulMDTemplate},
	}
	for _, f := range files {
		var buf bytes.Buffer
		if err := f.tmpl.Execute(&buf, agent); err != nil {
			return created, err
		}
		path := filepath.Join(workspace, f.name)
		if err := s.fs.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return created, err
		}
		created = append(created, path)
	}

	orgLink := filepath.Join(workspace, "organization")
	if err := s.fs.Symlink(filepath.Join("..", "..", "organization"), orgLink); err != nil {
		return created, err
	}
	created = append(created, orgLink)

	return created, nil
}

func (s *Store) providerProfile(providerID string) domain.RuntimeProfile {
	if p, ok := s.providers.Get(providerID); ok {
		return p.Descriptor().Profile
	}
	return domain.RuntimeProfile{}
}

// Delete removes an agent's workspace and config, best-effort when
// force is set, after first tearing it down in the runtime provider.
func (s *Store) Delete(ctx context.Context, id string, defaultAgentID string, force bool) (DeleteResult, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	agent, exists := s.readAgent(id)
	if !exists {
		return DeleteResult{Existed: false}, nil
	}

	if id == defaultAgentID && !force {
		return DeleteResult{}, domain.Validationf("refusing to delete the default agent %q without force", id)
	}

	result := DeleteResult{Existed: true}

	if p, ok := s.providers.Get(agent.ProviderID); ok && p.Descriptor().Capabilities.AgentDelete {
		if err := p.DeleteAgent(ctx, id, force); err != nil && !force {
			return DeleteResult{}, domain.WrapError(domain.KindRuntimeSync, fmt.Sprintf("runtime delete failed for %q, local state preserved", id), err)
		}
		result.RuntimeSynced = true
	}

	if agent.ReportsTo != nil {
		s.unlinkReportee(*agent.ReportsTo, id)
	}

	workspacePath := s.paths.WorkspacePath(id)
	if err := s.fs.RemoveAll(workspacePath); err != nil {
		result.SkippedPaths = append(result.SkippedPaths, workspacePath)
	} else {
		result.RemovedPaths = append(result.RemovedPaths, workspacePath)
	}

	configPath := s.paths.AgentConfigPath(id)
	if err := s.fs.Remove(configPath); err != nil {
		result.SkippedPaths = append(result.SkippedPaths, configPath)
	} else {
		result.RemovedPaths = append(result.RemovedPaths, configPath)
	}

	s.activity.Log("agentstore", "deleted", id, "", fmt.Sprintf("agent %q deleted", id))
	return result, nil
}

// SetManager reassigns an agent's manager, refusing to introduce a
// reporting cycle or point at a provider that can't hold reportees.
func (s *Store) SetManager(id, newManager string) (domain.Agent, error) {
	if id == newManager {
		return domain.Agent{}, domain.Validationf("agent %q cannot report to itself", id)
	}
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	agent, ok := s.readAgent(id)
	if !ok {
		return domain.Agent{}, domain.NotFoundf("agent %q not found", id)
	}
	manager, ok := s.readAgent(newManager)
	if !ok {
		return domain.Agent{}, domain.NotFoundf("manager %q not found", newManager)
	}

	if p, ok := s.providers.Get(manager.ProviderID); !ok || !p.Descriptor().Capabilities.Reportees {
		return domain.Agent{}, domain.Validationf("provider %q does not support reportees, cannot assign %q as manager", manager.ProviderID, newManager)
	}
	managerProfile := s.providerProfile(manager.ProviderID)

	if s.wouldCycle(id, newManager) {
		return domain.Agent{}, domain.Validationf("assigning %q as manager of %q would create a cycle", newManager, id)
	}

	oldManager := agent.ReportsTo
	agent.ReportsTo = &newManager
	if err := s.writeAgent(agent); err != nil {
		return domain.Agent{}, domain.WrapError(domain.KindFatal, "write agent config", err)
	}

	if oldManager != nil {
		s.unlinkReportee(*oldManager, id)
	}
	if err := s.linkReportee(newManager, id); err != nil {
		logger.Core.Warn().Err(err).Msg("failed linking reportee symlink after setManager")
	}

	if s.roleSync != nil {
		_ = s.roleSync.Sync(agent, s.providerProfile(agent.ProviderID))
		_ = s.roleSync.Sync(manager, managerProfile)
		if oldManager != nil {
			if old, ok := s.readAgent(*oldManager); ok {
				_ = s.roleSync.Sync(old, s.providerProfile(old.ProviderID))
			}
		}
	}

	return agent, nil
}

func (s *Store) wouldCycle(id, candidateManager string) bool {
	cur := candidateManager
	seen := map[string]bool{id: true}
	for cur != "" {
		if seen[cur] {
			return true
		}
		seen[cur] = true
		a, ok := s.readAgent(cur)
		if !ok || a.ReportsTo == nil {
			return false
		}
		cur = *a.ReportsTo
	}
	return false
}

// SetProvider migrates an agent to a different runtime provider and
// relocates its role-skill files accordingly.
func (s *Store) SetProvider(id, providerID string) (domain.Agent, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	agent, ok := s.readAgent(id)
	if !ok {
		return domain.Agent{}, domain.NotFoundf("agent %q not found", id)
	}
	if _, ok := s.providers.Get(providerID); !ok {
		return domain.Agent{}, domain.Validationf("unknown provider id %q", providerID)
	}

	oldProfile := s.providerProfile(agent.ProviderID)
	agent.ProviderID = providerID
	if err := s.writeAgent(agent); err != nil {
		return domain.Agent{}, domain.WrapError(domain.KindFatal, "write agent config", err)
	}

	if s.roleSync != nil {
		if err := s.roleSync.Relocate(agent, oldProfile, s.providerProfile(providerID)); err != nil {
			logger.Core.Warn().Err(err).Msg("role-skill relocate failed after setProvider")
		}
	}
	return agent, nil
}

// Update applies patch's non-nil fields to agent id. ProviderID
// changes go through SetProvider (role-skill relocate); a Type change
// re-syncs the role skill in place. ReportsTo changes are rejected
// with a validation error pointing at SetManager.
func (s *Store) Update(id string, patch domain.AgentPatch) (domain.Agent, error) {
	if patch.ReportsTo != nil {
		return domain.Agent{}, domain.Validationf("update agent: use setManager to change reportsTo")
	}
	if patch.ProviderID != nil {
		if _, err := s.SetProvider(id, *patch.ProviderID); err != nil {
			return domain.Agent{}, err
		}
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	agent, ok := s.readAgent(id)
	if !ok {
		return domain.Agent{}, domain.NotFoundf("agent %q not found", id)
	}

	typeChanged := false
	if patch.DisplayName != nil {
		agent.DisplayName = *patch.DisplayName
	}
	if patch.Role != nil {
		agent.Role = *patch.Role
	}
	if patch.Description != nil {
		agent.Description = *patch.Description
	}
	if patch.Type != nil && *patch.Type != agent.Type {
		agent.Type = *patch.Type
		typeChanged = true
	}
	if patch.Discoverable != nil {
		agent.Discoverable = *patch.Discoverable
	}
	if patch.Tags != nil {
		agent.Tags = *patch.Tags
	}
	if patch.Priority != nil {
		agent.Priority = *patch.Priority
	}
	if patch.Skills != nil {
		agent.Skills = *patch.Skills
	}

	if err := s.writeAgent(agent); err != nil {
		return domain.Agent{}, domain.WrapError(domain.KindFatal, "write agent config", err)
	}

	if typeChanged && s.roleSync != nil {
		if err := s.roleSync.Sync(agent, s.providerProfile(agent.ProviderID)); err != nil {
			logger.Core.Warn().Err(err).Msg("role-skill sync failed after update")
		}
	}

	s.activity.Log("agentstore", "updated", id, "", fmt.Sprintf("agent %q updated", id))
	return agent, nil
}

// ListDirectReportees returns the direct children of id.
func (s *Store) ListDirectReportees(id string) ([]domain.Agent, error) {
	if _, ok := s.readAgent(id); !ok {
		return nil, domain.NotFoundf("agent %q not found", id)
	}
	all, err := s.List("")
	if err != nil {
		return nil, err
	}
	var out []domain.Agent
	for _, a := range all {
		if a.ReportsTo != nil && *a.ReportsTo == id {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListAllReportees BFS-walks the subtree rooted at id (exclusive).
func (s *Store) ListAllReportees(id string) ([]domain.Agent, error) {
	if _, ok := s.readAgent(id); !ok {
		return nil, domain.NotFoundf("agent %q not found", id)
	}
	all, err := s.List("")
	if err != nil {
		return nil, err
	}
	childrenOf := make(map[string][]domain.Agent)
	for _, a := range all {
		if a.ReportsTo != nil {
			childrenOf[*a.ReportsTo] = append(childrenOf[*a.ReportsTo], a)
		}
	}

	var out []domain.Agent
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		children := childrenOf[cur]
		sort.Slice(children, func(i, j int) bool { return children[i].ID < children[j].ID })
		for _, c := range children {
			out = append(out, c)
			queue = append(queue, c.ID)
		}
	}
	return out, nil
}

// GetInfo summarizes an agent along with its reportee counts.
func (s *Store) GetInfo(id string) (domain.AgentInfo, error) {
	agent, ok := s.readAgent(id)
	if !ok {
		return domain.AgentInfo{}, domain.NotFoundf("agent %q not found", id)
	}
	direct, err := s.ListDirectReportees(id)
	if err != nil {
		return domain.AgentInfo{}, err
	}
	all, err := s.ListAllReportees(id)
	if err != nil {
		return domain.AgentInfo{}, err
	}
	directIDs := make([]string, len(direct))
	for i, a := range direct {
		directIDs[i] = a.ID
	}
	return domain.AgentInfo{
		ID:              agent.ID,
		Name:            agent.DisplayName,
		Role:            agent.Role,
		TotalReportees:  len(all),
		DirectReportees: directIDs,
	}, nil
}

func (s *Store) linkReportee(managerID, reporteeID string) error {
	linkPath := filepath.Join(s.paths.WorkspacePath(managerID), "reportees", reporteeID)
	if err := s.fs.MkdirAll(filepath.Dir(linkPath), 0o755); err != nil {
		return err
	}
	target := filepath.Join("..", "..", reporteeID)
	return s.fs.Symlink(target, linkPath)
}

func (s *Store) unlinkReportee(managerID, reporteeID string) {
	linkPath := filepath.Join(s.paths.WorkspacePath(managerID), "reportees", reporteeID)
	_ = s.fs.Remove(linkPath)
}
