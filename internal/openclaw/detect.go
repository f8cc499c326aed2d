// Package openclaw implements the OpenClaw provider adapter (CLI and
// gateway transports) and the reconciler that drives OpenClaw's agent,
// skill, and plugin inventory toward the OpenGoat home layout.
package openclaw

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ResolveBinary returns the openclaw binary to invoke: OPENCLAW_CMD env
// override first, else "openclaw" on PATH, else "openclaw-cn", else "".
func ResolveBinary() string {
	if cmd := strings.TrimSpace(os.Getenv("OPENCLAW_CMD")); cmd != "" {
		return cmd
	}
	if _, err := exec.LookPath("openclaw"); err == nil {
		return "openclaw"
	}
	if _, err := exec.LookPath("openclaw-cn"); err == nil {
		return "openclaw-cn"
	}
	return ""
}

func IsInstalled() bool {
	return ResolveBinary() != ""
}

// ResolvePluginPath resolves the OpenClaw plugin directory: the
// OPENGOAT_OPENCLAW_PLUGIN_PATH env override, else the directory the
// resolved binary actually lives in (openclaw.plugin.json sits next to
// the installed binary).
func ResolvePluginPath() string {
	if dir := strings.TrimSpace(os.Getenv("OPENGOAT_OPENCLAW_PLUGIN_PATH")); dir != "" {
		return dir
	}
	bin := ResolveBinary()
	if bin == "" {
		return ""
	}
	resolved, err := exec.LookPath(bin)
	if err != nil {
		return ""
	}
	actual, err := filepath.EvalSymlinks(resolved)
	if err != nil {
		actual = resolved
	}
	return filepath.Dir(actual)
}

// ResolveStateDir returns OpenClaw's own state directory, independent
// of OpenGoat's home: OPENCLAW_STATE_DIR, then the legacy
// CLAWDBOT_STATE_DIR, then ~/.openclaw.
func ResolveStateDir() string {
	if dir := strings.TrimSpace(os.Getenv("OPENCLAW_STATE_DIR")); dir != "" {
		return dir
	}
	if dir := strings.TrimSpace(os.Getenv("CLAWDBOT_STATE_DIR")); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".openclaw")
}

func ResolveConfigPath() string {
	stateDir := ResolveStateDir()
	if stateDir == "" {
		return ""
	}
	return filepath.Join(stateDir, "openclaw.json")
}

func ConfigFileExists() bool {
	path := ResolveConfigPath()
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func ModelConfigured() bool {
	cfg := readOpenClawConfig()
	if cfg == nil {
		return false
	}
	models, ok := cfg["models"]
	if !ok {
		return false
	}
	switch v := models.(type) {
	case map[string]interface{}:
		return len(v) > 0
	case []interface{}:
		return len(v) > 0
	}
	return false
}

func readOpenClawConfig() map[string]interface{} {
	path := ResolveConfigPath()
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var cfg map[string]interface{}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil
	}
	return cfg
}
