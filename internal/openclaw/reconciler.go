package openclaw

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"opengoat/internal/database"
	"opengoat/internal/logger"
	"opengoat/internal/ports"
)

// legacyRoleSkillIDs are managed-skills entries that must never survive
// a sync, regardless of the active provider profile.
var legacyRoleSkillIDs = []string{"og-board-manager", "og-board-individual", "og-boards", "manager"}

// pluginEnableCandidates is the ordered list of plugin ids the
// reconciler tries to enable; success on any one is sufficient.
var pluginEnableCandidates = []string{"openclaw-plugin", "opengoat-plugin", "openclaw-plugin-pack", "workspace"}

type skillsListResult struct {
	WorkspaceDir     string `json:"workspaceDir"`
	ManagedSkillsDir string `json:"managedSkillsDir"`
}

type openclawAgentEntry struct {
	ID        string `json:"id"`
	Workspace string `json:"workspace"`
}

type agentsListResult struct {
	Agents []openclawAgentEntry `json:"agents"`
}

// SyncResult is returned by SyncRuntimeDefaults.
type SyncResult struct {
	CeoSynced bool     `json:"ceoSynced"`
	Warnings  []string `json:"warnings"`
}

// LocalAgentView is the minimal view of an OpenGoat agent the
// reconciler needs: id, default-agent flag, and workspace path.
type LocalAgentView struct {
	ID            string
	IsDefault     bool
	WorkspacePath string
	ProviderID    string
}

// Reconciler drives OpenClaw's agent/skill/plugin inventory toward the
// OpenGoat home layout. A single reconciler mutex ensures sync never
// runs twice concurrently.
type Reconciler struct {
	fs         ports.FilesystemPort
	paths      ports.PathPort
	providerID string // "openclaw" — the provider id this reconciler serves
	activity   *database.ActivityRepo
	mu         sync.Mutex
}

func NewReconciler(fs ports.FilesystemPort, paths ports.PathPort, activity *database.ActivityRepo) *Reconciler {
	return &Reconciler{fs: fs, paths: paths, providerID: "openclaw", activity: activity}
}

// SyncRuntimeDefaults runs the ordered sync routine. Partial step
// failures become warnings on the returned SyncResult rather than
// aborting the remaining steps.
func (r *Reconciler) SyncRuntimeDefaults(ctx context.Context, locals []LocalAgentView) (SyncResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := SyncResult{}

	// Step 1: skills list --json
	var managedSkillsDir string
	raw, err := RunCLIJSON(ctx, "skills", "list", "--json")
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("skills list failed: %v", err))
	} else {
		var skills skillsListResult
		if err := json.Unmarshal(raw, &skills); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("skills list parse failed: %v", err))
		} else {
			managedSkillsDir = skills.ManagedSkillsDir
		}
	}

	// Step 2: agents list --json, repair stale mappings.
	remoteByID := make(map[string]openclawAgentEntry)
	raw, err = RunCLIJSON(ctx, "agents", "list", "--json")
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("agents list unavailable, skipping repair: %v", err))
	} else {
		var list agentsListResult
		if uerr := json.Unmarshal(raw, &list); uerr != nil {
			// fall back: maybe the payload is a bare array.
			var direct []openclawAgentEntry
			if uerr2 := json.Unmarshal(raw, &direct); uerr2 == nil {
				list.Agents = direct
			} else {
				result.Warnings = append(result.Warnings, fmt.Sprintf("agents list parse failed, skipping repair: %v", uerr))
			}
		}
		for _, a := range list.Agents {
			remoteByID[a.ID] = a
		}

		localByID := make(map[string]LocalAgentView, len(locals))
		for _, l := range locals {
			localByID[l.ID] = l
		}
		for id, remote := range remoteByID {
			local, ok := localByID[id]
			if !ok {
				continue
			}
			if remote.Workspace != local.WorkspacePath {
				logger.OpenClaw.Warn().Str("agent_id", id).Str("remote_workspace", remote.Workspace).Str("expected", local.WorkspacePath).Msg("repairing stale openclaw workspace mapping")
				if _, err := RunCLI(ctx, "agents", "delete", id, "--json"); err != nil {
					result.Warnings = append(result.Warnings, fmt.Sprintf("repair delete %s failed: %v", id, err))
					continue
				}
				if err := r.createRemote(ctx, local); err != nil {
					result.Warnings = append(result.Warnings, fmt.Sprintf("repair recreate %s failed: %v", id, err))
				}
			}
		}
	}

	// Step 3: ensure creation for local openclaw agents; delete orphans.
	localIDs := make(map[string]bool, len(locals))
	for _, l := range locals {
		if l.ProviderID != r.providerID {
			continue
		}
		localIDs[l.ID] = true
		if _, exists := remoteByID[l.ID]; !exists {
			if err := r.createRemote(ctx, l); err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("create %s failed: %v", l.ID, err))
			}
		}
		if l.IsDefault {
			result.CeoSynced = true
		}
	}
	for id := range remoteByID {
		if !localIDs[id] {
			if _, err := RunCLI(ctx, "agents", "delete", id, "--json"); err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("delete orphan %s failed: %v", id, err))
			}
		}
	}

	// Step 4: enforce per-agent policy.
	for id := range localIDs {
		policies := map[string]string{
			fmt.Sprintf("agents.%s.sandbox.mode", id): `"off"`,
			fmt.Sprintf("agents.%s.tools.allow", id):   `["*"]`,
			fmt.Sprintf("agents.%s.skipBootstrap", id):  `true`,
		}
		for key, value := range policies {
			if err := ConfigSet(ctx, key, value); err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("policy %s failed: %v", key, err))
			}
		}
	}

	// Step 5: configure plugin source.
	if warn := r.ensurePluginConfigured(ctx); warn != "" {
		result.Warnings = append(result.Warnings, warn)
	}

	// Step 6: remove stale managed-skills role directories.
	if managedSkillsDir != "" {
		for _, id := range legacyRoleSkillIDs {
			stale := r.paths.Join(managedSkillsDir, id)
			if r.fs.Exists(stale) {
				if err := r.fs.RemoveAll(stale); err != nil {
					result.Warnings = append(result.Warnings, fmt.Sprintf("remove stale managed skill %s failed: %v", id, err))
				}
			}
		}
	}

	r.activity.Log("reconciler", "sync", "", "", fmt.Sprintf("runtime sync completed, ceoSynced=%v warnings=%d", result.CeoSynced, len(result.Warnings)))
	return result, nil
}

func (r *Reconciler) createRemote(ctx context.Context, local LocalAgentView) error {
	_, err := RunCLI(ctx, "agents", "create", local.ID, "--workspace", local.WorkspacePath, "--json")
	return err
}

// ensurePluginConfigured resolves the plugin directory, ensures it is
// present in plugins.load.paths (prepended, deduped, order preserved),
// and attempts to enable the plugin under each candidate id in turn.
func (r *Reconciler) ensurePluginConfigured(ctx context.Context) string {
	pluginPath := ResolvePluginPath()
	if pluginPath == "" {
		return "could not resolve openclaw plugin path, skipping plugin configuration"
	}

	raw, err := RunCLIJSON(ctx, "config", "get", "plugins.load.paths", "--json")
	var paths []string
	if err == nil {
		_ = json.Unmarshal(raw, &paths)
	}

	if !containsString(paths, pluginPath) {
		paths = dedupePreserveOrder(append([]string{pluginPath}, paths...))
		encoded, _ := json.Marshal(paths)
		if err := ConfigSet(ctx, "plugins.load.paths", string(encoded)); err != nil {
			return fmt.Sprintf("failed to update plugins.load.paths: %v", err)
		}
	}

	var enabled bool
	for _, id := range pluginEnableCandidates {
		if _, err := RunCLI(ctx, "plugins", "enable", id, "--json"); err == nil {
			enabled = true
			break
		}
	}
	if !enabled {
		return fmt.Sprintf("failed to enable plugin under any of %v", pluginEnableCandidates)
	}
	return ""
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func dedupePreserveOrder(list []string) []string {
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, v := range list {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
