// Package roleskill writes and removes the per-agent role-skill
// markdown files that tell a provider whether an agent is operating as
// a manager or an individual contributor.
package roleskill

import (
	"bytes"
	"path/filepath"
	"text/template"

	"opengoat/internal/domain"
	"opengoat/internal/ports"
)

var skillTemplate = template.Must(template.New("role-skill").Parse(`# {{.Title}}

Agent: {{.AgentID}}

{{.Body}}
`))

type templateData struct {
	Title   string
	AgentID string
	Body    string
}

var bodies = map[domain.AgentType]string{
	domain.AgentTypeManager: "You manage a team of reportees. Delegate tasks with createTask, " +
		"review incoming status updates, and escalate blockers to your own manager when one exists.",
	domain.AgentTypeIndividual: "You work tasks assigned to you directly. Update task status as you " +
		"progress and report completion or blockers back to the agent that assigned the task.",
}

var titles = map[domain.AgentType]string{
	domain.AgentTypeManager:    "Manager Role",
	domain.AgentTypeIndividual: "Individual Contributor Role",
}

// Syncer writes the SKILL.md for an agent's current type into its
// provider's skill directory and removes any other role-skill id's
// directory, so exactly one remains.
type Syncer struct {
	fs    ports.FilesystemPort
	paths ports.PathPort
}

func New(fs ports.FilesystemPort, paths ports.PathPort) *Syncer {
	return &Syncer{fs: fs, paths: paths}
}

// Sync writes the role skill matching agent.Type and removes every
// other role-skill id known to the profile (manager and individual).
func (s *Syncer) Sync(agent domain.Agent, profile domain.RuntimeProfile) error {
	chosenID, ok := profile.RoleSkillIDs[agent.Type]
	if !ok || len(profile.SkillDirs) == 0 {
		return nil
	}

	body, ok := bodies[agent.Type]
	if !ok {
		body = "Operate according to your assigned role."
	}
	title := titles[agent.Type]

	var buf bytes.Buffer
	if err := skillTemplate.Execute(&buf, templateData{Title: title, AgentID: agent.ID, Body: body}); err != nil {
		return err
	}

	workspace := s.paths.WorkspacePath(agent.ID)
	var firstErr error
	for _, skillDir := range profile.SkillDirs {
		skillRoot := filepath.Join(workspace, skillDir)

		chosenPath := filepath.Join(skillRoot, chosenID, "SKILL.md")
		if err := s.fs.MkdirAll(filepath.Dir(chosenPath), 0o755); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := s.fs.WriteFile(chosenPath, buf.Bytes(), 0o644); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}

		for otherType, otherID := range profile.RoleSkillIDs {
			if otherType == agent.Type {
				continue
			}
			stalePath := filepath.Join(skillRoot, otherID)
			if s.fs.Exists(stalePath) {
				_ = s.fs.RemoveAll(stalePath)
			}
		}
	}
	return firstErr
}

// Relocate removes the role skill from the old profile's skill
// directories and writes it under the new profile's, used by
// setProvider.
func (s *Syncer) Relocate(agent domain.Agent, oldProfile, newProfile domain.RuntimeProfile) error {
	workspace := s.paths.WorkspacePath(agent.ID)
	for _, skillDir := range oldProfile.SkillDirs {
		for _, id := range oldProfile.RoleSkillIDs {
			stalePath := filepath.Join(workspace, skillDir, id)
			if s.fs.Exists(stalePath) {
				_ = s.fs.RemoveAll(stalePath)
			}
		}
	}
	return s.Sync(agent, newProfile)
}
