package ports

import (
	"os"
	"path/filepath"
)

// HomePaths is the production PathPort, rooted at OPENGOAT_HOME (or the
// platform default ~/.opengoat), matching the env-override chain the
// OpenClaw adapter itself uses for its own state directory.
type HomePaths struct {
	home string
}

// NewHomePaths resolves the OpenGoat home directory: OPENGOAT_HOME env
// var first, else ~/.opengoat.
func NewHomePaths() HomePaths {
	if dir := os.Getenv("OPENGOAT_HOME"); dir != "" {
		return HomePaths{home: dir}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return HomePaths{home: ".opengoat"}
	}
	return HomePaths{home: filepath.Join(home, ".opengoat")}
}

func NewHomePathsAt(dir string) HomePaths {
	return HomePaths{home: dir}
}

func (p HomePaths) Home() string { return p.home }

func (p HomePaths) Join(elem ...string) string {
	return filepath.Join(append([]string{p.home}, elem...)...)
}

func (p HomePaths) AgentConfigPath(agentID string) string {
	return p.Join("agents", agentID, "config.json")
}

func (p HomePaths) WorkspacePath(agentID string) string {
	return p.Join("workspaces", agentID)
}

func (p HomePaths) SessionDir(agentID, slug string) string {
	return p.Join("sessions", agentID, slug)
}

func (p HomePaths) TaskDir() string {
	return p.Join("tasks")
}

func (p HomePaths) GlobalSkillDir(skillID string) string {
	return p.Join("skills", skillID)
}
