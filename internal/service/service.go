// Package service is OpenGoat's composition root and the service
// contract (§6 in the design notes): every namespace an HTTP router or
// CLI would consume — Agents, Sessions, Tasks, Skills, Providers,
// Runtime, Settings — backed by the components this package wires
// together. The package itself never touches net/http; an external
// router is assumed to translate requests into calls on Service.
package service

import (
	"context"
	"encoding/json"
	"os"

	"opengoat/internal/agentstore"
	"opengoat/internal/authsession"
	"opengoat/internal/config"
	"opengoat/internal/database"
	"opengoat/internal/dispatcher"
	"opengoat/internal/diagnostics"
	"opengoat/internal/domain"
	"opengoat/internal/monitor"
	"opengoat/internal/notify"
	"opengoat/internal/openclaw"
	"opengoat/internal/ports"
	"opengoat/internal/provider"
	"opengoat/internal/roleskill"
	"opengoat/internal/sessionstore"
	"opengoat/internal/skillstore"
	"opengoat/internal/taskcron"
	"opengoat/internal/taskstore"
)

// Service bundles every component and exposes the namespaced
// operations a consumer (HTTP router, CLI, test) calls.
type Service struct {
	FS    ports.FilesystemPort
	Paths ports.PathPort
	Clock ports.Clock

	Providers  *provider.Registry
	RoleSync   *roleskill.Syncer
	Agents     *agentstore.Store
	Sessions   *sessionstore.Store
	Tasks      *taskstore.Store
	Skills     *skillstore.Store
	Dispatcher *dispatcher.Dispatcher
	Cron       *taskcron.Cron
	Reconciler *openclaw.Reconciler
	Collector  *monitor.Collector
	GWClient   *openclaw.GWClient
	GatewayProfiles *database.GatewayProfileRepo
	Activity   *database.ActivityRepo
	Auth       *authsession.Manager
	Notify     *notify.Manager
}

// Deps carries every already-constructed component Service wraps. cmd
// entrypoints build these and hand them to New; tests build a minimal
// subset with fakes.
type Deps struct {
	FS         ports.FilesystemPort
	Paths      ports.PathPort
	Clock      ports.Clock
	Providers  *provider.Registry
	RoleSync   *roleskill.Syncer
	Agents     *agentstore.Store
	Sessions   *sessionstore.Store
	Tasks      *taskstore.Store
	Skills     *skillstore.Store
	Dispatcher *dispatcher.Dispatcher
	Cron       *taskcron.Cron
	Reconciler *openclaw.Reconciler
	Collector  *monitor.Collector
	GWClient   *openclaw.GWClient
	GatewayProfiles *database.GatewayProfileRepo
	Activity   *database.ActivityRepo
	Auth       *authsession.Manager
	Notify     *notify.Manager
}

func New(d Deps) *Service {
	return &Service{
		FS: d.FS, Paths: d.Paths, Clock: d.Clock,
		Providers: d.Providers, RoleSync: d.RoleSync,
		Agents: d.Agents, Sessions: d.Sessions, Tasks: d.Tasks, Skills: d.Skills,
		Dispatcher: d.Dispatcher, Cron: d.Cron, Reconciler: d.Reconciler,
		Collector: d.Collector, GWClient: d.GWClient,
		GatewayProfiles: d.GatewayProfiles, Activity: d.Activity,
		Auth: d.Auth, Notify: d.Notify,
	}
}

// ---- Agents ----

func (s *Service) ListAgents() ([]domain.Agent, error) {
	defaultID, _ := s.defaultAgentID()
	return s.Agents.List(defaultID)
}

func (s *Service) GetAgent(id string) (domain.Agent, error) { return s.Agents.Get(id) }

func (s *Service) CreateAgent(ctx context.Context, name string, opts agentstore.CreateOptions) (agentstore.CreateResult, error) {
	return s.Agents.Create(ctx, name, opts)
}

func (s *Service) DeleteAgent(ctx context.Context, id string, force bool) (agentstore.DeleteResult, error) {
	defaultID, _ := s.defaultAgentID()
	return s.Agents.Delete(ctx, id, defaultID, force)
}

func (s *Service) UpdateAgent(id string, patch domain.AgentPatch) (domain.Agent, error) {
	return s.Agents.Update(id, patch)
}

func (s *Service) SetAgentProvider(id, providerID string) (domain.Agent, error) {
	return s.Agents.SetProvider(id, providerID)
}

func (s *Service) SetAgentManager(id, newManager string) (domain.Agent, error) {
	return s.Agents.SetManager(id, newManager)
}

func (s *Service) ListDirectReportees(id string) ([]domain.Agent, error) {
	return s.Agents.ListDirectReportees(id)
}

func (s *Service) ListAllReportees(id string) ([]domain.Agent, error) {
	return s.Agents.ListAllReportees(id)
}

func (s *Service) GetAgentInfo(id string) (domain.AgentInfo, error) { return s.Agents.GetInfo(id) }

// GetLastAction returns the epoch-ms timestamp of the agent's most
// recent session activity, the closest the service contract's
// getLastAction has to a single authoritative signal.
func (s *Service) GetLastAction(id string) (int64, bool) {
	return s.Sessions.LastActivityMs(id)
}

// ---- Sessions ----

func (s *Service) ListSessions(agentID string) ([]domain.Session, error) {
	return s.Sessions.List(agentID)
}

func (s *Service) PrepareSession(agent domain.Agent, opts sessionstore.PrepareOptions) (domain.SessionRunInfo, error) {
	profile := s.profileFor(agent.ProviderID)
	return s.Sessions.PrepareSession(agent, profile, opts)
}

func (s *Service) SessionHistory(agentID, sessionKey string, limit int, includeCompaction bool) ([]domain.TranscriptEntry, error) {
	return s.Sessions.History(agentID, sessionKey, limit, includeCompaction)
}

func (s *Service) RenameSession(agentID, sessionKey, title string) error {
	return s.Sessions.Rename(agentID, sessionKey, title)
}

func (s *Service) RemoveSession(agentID, sessionKey string) error {
	return s.Sessions.Remove(agentID, sessionKey)
}

// RunAgent is the service contract's `run`: invoke agent's provider
// once within its prepared session.
func (s *Service) RunAgent(ctx context.Context, agent domain.Agent, opts dispatcher.RunOptions) (provider.InvokeResult, error) {
	return s.Dispatcher.RunAgent(ctx, agent, opts)
}

// RunAgentStream is the service contract's `runStream`: identical to
// RunAgent, with stdout/stderr callbacks wired through opts so a
// caller can stream incremental output itself.
func (s *Service) RunAgentStream(ctx context.Context, agent domain.Agent, opts dispatcher.RunOptions) (provider.InvokeResult, error) {
	return s.Dispatcher.RunAgent(ctx, agent, opts)
}

func (s *Service) profileFor(providerID string) domain.RuntimeProfile {
	p, ok := s.Providers.Get(providerID)
	if !ok {
		return domain.RuntimeProfile{}
	}
	return p.Descriptor().Profile
}

// ---- Tasks ----

func (s *Service) ListTasks(assignee string, limit int) ([]domain.Task, error) {
	return s.Tasks.List(assignee, limit)
}

func (s *Service) GetTask(id string) (domain.Task, error) { return s.Tasks.Get(id) }

func (s *Service) CreateTask(actor string, opts domain.CreateTaskOptions) (domain.Task, error) {
	return s.Tasks.Create(actor, opts)
}

func (s *Service) DeleteTasks(actor string, ids []string) ([]string, error) {
	return s.Tasks.Delete(actor, ids)
}

func (s *Service) UpdateTaskStatus(actor, id string, status domain.TaskStatus, reason string) (domain.Task, error) {
	return s.Tasks.UpdateStatus(actor, id, status, reason)
}

func (s *Service) AddTaskBlocker(actor, id, content string) (domain.Task, error) {
	return s.Tasks.AddBlocker(actor, id, content)
}

func (s *Service) AddTaskArtifact(actor, id, content string) (domain.Task, error) {
	return s.Tasks.AddArtifact(actor, id, content)
}

func (s *Service) AddTaskWorklog(actor, id, content string) (domain.Task, error) {
	return s.Tasks.AddWorklog(actor, id, content)
}

// ---- Skills ----

func (s *Service) InstallSkill(opts skillstore.InstallOptions) (string, error) {
	return s.Skills.InstallSkill(opts)
}

func (s *Service) RemoveSkill(opts skillstore.RemoveOptions) error {
	return s.Skills.RemoveSkill(opts)
}

func (s *Service) ListSkills(agentID string) ([]skillstore.SkillInfo, error) {
	return s.Skills.ListSkills(agentID)
}

func (s *Service) ListGlobalSkills() []skillstore.SkillInfo { return s.Skills.ListGlobalSkills() }

// ---- Providers ----

func (s *Service) ListProviders() []domain.ProviderDescriptor { return s.Providers.List() }

func (s *Service) GetOpenClawGatewayConfig() (database.GatewayProfile, error) {
	p, err := s.GatewayProfiles.GetActive()
	if err != nil {
		return database.GatewayProfile{}, err
	}
	return *p, nil
}

func (s *Service) SetOpenClawGatewayConfig(profile database.GatewayProfile) (database.GatewayProfile, error) {
	if profile.ID == 0 {
		if err := s.GatewayProfiles.Create(&profile); err != nil {
			return database.GatewayProfile{}, err
		}
	} else if err := s.GatewayProfiles.Update(&profile); err != nil {
		return database.GatewayProfile{}, err
	}
	if err := s.GatewayProfiles.SetActive(profile.ID); err != nil {
		return database.GatewayProfile{}, err
	}
	s.Activity.Log("providers", "gateway-config-set", "", "", "openclaw gateway profile updated: "+profile.Name)
	return profile, nil
}

// ---- Runtime ----

// Initialize runs the one-time-per-process setup: reloading the
// notification channels and, on a fresh home with no default agent
// configured yet, bootstrapping the root manager agent and recording
// it as <home>/config.json's defaultAgent.
func (s *Service) Initialize(ctx context.Context) error {
	s.Notify.Reload()

	if _, ok := s.defaultAgentID(); ok {
		return nil
	}

	result, err := s.Agents.Create(ctx, "Root", agentstore.CreateOptions{
		Type: domain.AgentTypeManager,
	})
	if err != nil {
		return err
	}

	return s.setDefaultAgentID(result.Agent.ID)
}

func (s *Service) SyncRuntimeDefaults(ctx context.Context) (openclaw.SyncResult, error) {
	agents, err := s.Agents.List("")
	if err != nil {
		return openclaw.SyncResult{}, err
	}
	defaultID, _ := s.defaultAgentID()
	views := make([]openclaw.LocalAgentView, 0, len(agents))
	for _, a := range agents {
		views = append(views, openclaw.LocalAgentView{
			ID:            a.ID,
			IsDefault:     a.ID == defaultID,
			WorkspacePath: s.Paths.WorkspacePath(a.ID),
			ProviderID:    a.ProviderID,
		})
	}
	return s.Reconciler.SyncRuntimeDefaults(ctx, views)
}

func (s *Service) RunTaskCronCycle(ctx context.Context) (taskcron.CycleResult, error) {
	return s.Cron.RunCycle(ctx)
}

// HardReset stops the cron and collector, matching the tear-down a
// full reset performs before the caller deletes or replaces home.
func (s *Service) HardReset() {
	s.Cron.Stop()
	if s.Collector != nil {
		s.Collector.Stop()
	}
}

func (s *Service) Diagnose(ctx context.Context, gatewayHostPort string) *openclaw.Report {
	return openclaw.Diagnose(ctx, s.FS, gatewayHostPort)
}

func (s *Service) RunDiagnostics(checkers ...diagnostics.Checker) diagnostics.Report {
	return diagnostics.Run(checkers...)
}

// ---- Settings ----

func (s *Service) GetSettings() (config.Settings, error) {
	return config.Load(s.FS, s.Paths)
}

func (s *Service) UpdateSettings(next config.Settings) error {
	return config.Save(s.FS, s.Paths, next)
}

// ---- shared helpers ----

type rootConfig struct {
	DefaultAgent string `json:"defaultAgent"`
}

func (s *Service) defaultAgentID() (string, bool) {
	path := s.Paths.Join("config.json")
	if s.FS.Exists(path) {
		data, err := s.FS.ReadFile(path)
		if err == nil {
			var cfg rootConfig
			if err := json.Unmarshal(data, &cfg); err == nil && cfg.DefaultAgent != "" {
				return cfg.DefaultAgent, true
			}
		}
	}
	if env := os.Getenv("OPENGOAT_DEFAULT_AGENT"); env != "" {
		return env, true
	}
	return "", false
}

func (s *Service) setDefaultAgentID(id string) error {
	data, err := json.MarshalIndent(rootConfig{DefaultAgent: id}, "", "  ")
	if err != nil {
		return err
	}
	return s.FS.WriteFile(s.Paths.Join("config.json"), data, 0o644)
}

// Run starts the cron loop and (if attached) the activity collector,
// blocking until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	if s.Collector != nil {
		go s.Collector.Start()
	}
	s.Cron.Start(ctx)
}
