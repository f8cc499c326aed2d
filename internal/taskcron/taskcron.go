// Package taskcron periodically scans tasks and agents, classifies
// what needs attention, and dispatches messages to the relevant
// agents through the dispatcher, gated by a two-level concurrency
// limiter so a slow agent never starves the rest of the fleet.
package taskcron

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"opengoat/internal/agentstore"
	"opengoat/internal/config"
	"opengoat/internal/database"
	"opengoat/internal/dispatcher"
	"opengoat/internal/domain"
	"opengoat/internal/i18n"
	"opengoat/internal/logger"
	"opengoat/internal/notify"
	"opengoat/internal/ports"
	"opengoat/internal/provider"
	"opengoat/internal/taskstore"
)

// DispatchKind tags the six dispatch variants; adding one requires
// touching the classify, format, and execute steps together.
type DispatchKind string

const (
	DispatchTodo     DispatchKind = "todo"
	DispatchDoing    DispatchKind = "doing"
	DispatchPending  DispatchKind = "pending"
	DispatchBlocked  DispatchKind = "blocked"
	DispatchInactive DispatchKind = "inactive"
	DispatchTopDown  DispatchKind = "topdown"
)

// Dispatch is a single cron-produced message bound to one agent and
// one session.
type Dispatch struct {
	Kind            DispatchKind
	TargetAgentID   string
	SessionRef      string
	TaskID          string
	SubjectAgentID  string
	Message         string
}

// CycleResult is returned by RunCycle.
type CycleResult struct {
	RanAt          string
	ScannedTasks   int
	TodoTasks      int
	DoingTasks     int
	BlockedTasks   int
	InactiveAgents int
	Sent           int
	Failed         int
	Dispatches     []Dispatch
}

// LastActivity reports the most recent session activity timestamp
// (epoch ms) for an agent, used to detect inactivity.
type LastActivity interface {
	LastActivityMs(agentID string) (int64, bool)
}

// Cron drives the 60-second (by default) task scan/dispatch loop.
type Cron struct {
	agents      *agentstore.Store
	tasks       *taskstore.Store
	dispatcher  *dispatcher.Dispatcher
	providers   *provider.Registry
	activity    LastActivity
	fs          ports.FilesystemPort
	paths       ports.PathPort
	clock       ports.Clock
	settingsGet func() config.Settings
	notifier    *notify.Manager
	ledger      *database.ActivityRepo

	interval time.Duration
	stopCh   chan struct{}
	running  bool

	agentLocksMu sync.Mutex
	agentLocks   map[string]*sync.Mutex

	remindersMu sync.Mutex
	reminders   map[string]int64 // taskId -> last-reminded-at ms, to avoid re-nagging every tick on failure-free ticks
}

func New(
	agents *agentstore.Store,
	tasks *taskstore.Store,
	disp *dispatcher.Dispatcher,
	providers *provider.Registry,
	activity LastActivity,
	fs ports.FilesystemPort,
	paths ports.PathPort,
	clock ports.Clock,
	settingsGet func() config.Settings,
	interval time.Duration,
	notifier *notify.Manager,
	ledger *database.ActivityRepo,
) *Cron {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Cron{
		agents:      agents,
		tasks:       tasks,
		dispatcher:  disp,
		providers:   providers,
		activity:    activity,
		fs:          fs,
		paths:       paths,
		clock:       clock,
		settingsGet: settingsGet,
		notifier:    notifier,
		ledger:      ledger,
		interval:    interval,
		stopCh:      make(chan struct{}),
		agentLocks:  make(map[string]*sync.Mutex),
		reminders:   make(map[string]int64),
	}
}

func (c *Cron) IsRunning() bool { return c.running }

// Start runs the cycle loop until Stop is called.
func (c *Cron) Start(ctx context.Context) {
	c.running = true
	logger.Cron.Info().Dur("interval", c.interval).Msg(i18n.T(i18n.MsgCronStarted))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := c.RunCycle(ctx); err != nil {
				logger.Cron.Warn().Err(err).Msg(i18n.T(i18n.MsgCronDispatchFailed))
			}
		case <-c.stopCh:
			c.running = false
			logger.Cron.Info().Msg(i18n.T(i18n.MsgCronStopped))
			return
		case <-ctx.Done():
			c.running = false
			return
		}
	}
}

func (c *Cron) Stop() {
	if c.running {
		close(c.stopCh)
		c.stopCh = make(chan struct{})
	}
}

func (c *Cron) bootstrapPending(defaultAgentID string) bool {
	return c.fs.Exists(c.paths.Join("workspaces", defaultAgentID, "BOOTSTRAP.md"))
}

// RunCycle executes one classify-then-dispatch pass.
func (c *Cron) RunCycle(ctx context.Context) (CycleResult, error) {
	settings := c.settingsGet()
	defaultAgentID := c.defaultAgentID()

	if !settings.TaskCronEnabled || c.bootstrapPending(defaultAgentID) {
		logger.Cron.Debug().Msg(i18n.T(i18n.MsgCronCycleSkipped))
		return CycleResult{RanAt: c.clock.NowISO()}, nil
	}

	logger.Cron.Debug().Msg(i18n.T(i18n.MsgCronCycleStarted))

	allTasks, err := c.tasks.List("", 0)
	if err != nil {
		return CycleResult{}, err
	}
	allAgents, err := c.agents.List(defaultAgentID)
	if err != nil {
		return CycleResult{}, err
	}
	agentByID := make(map[string]domain.Agent, len(allAgents))
	for _, a := range allAgents {
		agentByID[a.ID] = a
	}

	result := CycleResult{RanAt: c.clock.NowISO(), ScannedTasks: len(allTasks)}

	nowMs := c.clock.Now().UnixMilli()
	inactiveMinutes := settings.TaskDelegationStrategies.BottomUp.MaxInactivityMinutes
	if inactiveMinutes <= 0 {
		inactiveMinutes = 30
	}
	inProgressMinutes := settings.MaxInProgressMinutes
	if inProgressMinutes <= 0 {
		inProgressMinutes = 240
	}

	var dispatches []Dispatch

	todoByAssignee := classifyTodo(allTasks)
	for _, assignee := range sortedKeys(todoByAssignee) {
		for _, t := range todoByAssignee[assignee] {
			result.TodoTasks++
			dispatches = append(dispatches, Dispatch{
				Kind:          DispatchTodo,
				TargetAgentID: assignee,
				SessionRef:    stableTaskSession(assignee),
				TaskID:        t.TaskID,
				Message:       formatTaskHashMessage(t, "You have a new task assigned."),
			})
		}
	}

	for _, t := range classifyTimeout(allTasks, domain.StatusDoing, inProgressMinutes, nowMs) {
		result.DoingTasks++
		dispatches = append(dispatches, Dispatch{
			Kind:          DispatchDoing,
			TargetAgentID: t.AssignedTo,
			SessionRef:    stableTaskSession(t.AssignedTo),
			TaskID:        t.TaskID,
			Message:       formatTaskHashMessage(t, fmt.Sprintf("This task has been in progress for over %d minutes. Please provide a status update.", inProgressMinutes)),
		})
	}

	for _, t := range classifyTimeout(allTasks, domain.StatusPending, inactiveMinutes, nowMs) {
		dispatches = append(dispatches, Dispatch{
			Kind:          DispatchPending,
			TargetAgentID: t.AssignedTo,
			SessionRef:    stableTaskSession(t.AssignedTo),
			TaskID:        t.TaskID,
			Message:       formatTaskHashMessage(t, fmt.Sprintf("This task has been pending for over %d minutes. Please resume or update its status.", inactiveMinutes)),
		})
	}

	for _, t := range classifyBlocked(allTasks) {
		result.BlockedTasks++
		assignee, ok := agentByID[t.AssignedTo]
		if !ok || assignee.ReportsTo == nil {
			continue
		}
		manager := *assignee.ReportsTo
		dispatches = append(dispatches, Dispatch{
			Kind:           DispatchBlocked,
			TargetAgentID:  manager,
			SessionRef:     stableNotificationSession(manager),
			TaskID:         t.TaskID,
			SubjectAgentID: t.AssignedTo,
			Message:        formatTaskIDMessage(t, fmt.Sprintf("Task is blocked and assigned to your reportee %s. Please review.", t.AssignedTo)),
		})
	}

	if settings.TaskDelegationStrategies.BottomUp.Enabled && c.activity != nil {
		inactiveAgents := classifyInactive(allAgents, c.activity, inactiveMinutes, nowMs)
		result.InactiveAgents = len(inactiveAgents)
		dispatches = append(dispatches, c.buildInactiveDispatches(inactiveAgents, agentByID, settings.TaskDelegationStrategies.BottomUp.InactiveAgentNotificationTarget, defaultAgentID)...)
	}

	if settings.TaskDelegationStrategies.TopDown.Enabled {
		threshold := settings.TaskDelegationStrategies.TopDown.OpenTasksThreshold
		if threshold <= 0 {
			threshold = 5
		}
		openRootTasks := countOpenAssignedTo(allTasks, defaultAgentID)
		if openRootTasks < threshold {
			dispatches = append(dispatches, Dispatch{
				Kind:          DispatchTopDown,
				TargetAgentID: defaultAgentID,
				SessionRef:    stableNotificationSession(defaultAgentID),
				Message:       formatTaskIDMessage(domain.Task{TaskID: "-"}, "Open task count is low. Consider creating new work or delegating to reportees."),
			})
		}
	}

	result.Dispatches = dispatches
	sent, failed := c.execute(ctx, dispatches, settings.MaxParallelFlows)
	result.Sent = sent
	result.Failed = failed

	logger.Cron.Info().Int("sent", sent).Int("failed", failed).Msg(i18n.T(i18n.MsgCronCycleCompleted))
	c.ledger.Log("taskcron", "cycle", "", "", fmt.Sprintf("cycle scanned=%d sent=%d failed=%d", result.ScannedTasks, sent, failed))
	return result, nil
}

func (c *Cron) defaultAgentID() string {
	path := c.paths.Join("config.json")
	if !c.fs.Exists(path) {
		return ""
	}
	data, err := c.fs.ReadFile(path)
	if err != nil {
		return ""
	}
	var cfg struct {
		DefaultAgent string `json:"defaultAgent"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return ""
	}
	return cfg.DefaultAgent
}

func parseISOMs(s string) int64 {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}

func (c *Cron) agentLock(id string) *sync.Mutex {
	c.agentLocksMu.Lock()
	defer c.agentLocksMu.Unlock()
	l, ok := c.agentLocks[id]
	if !ok {
		l = &sync.Mutex{}
		c.agentLocks[id] = l
	}
	return l
}

// execute runs dispatches through a global semaphore of maxParallel
// and a per-target-agent semaphore of 1, so dispatches to the same
// agent are serialized while different agents may overlap.
func (c *Cron) execute(ctx context.Context, dispatches []Dispatch, maxParallel int) (sent, failed int) {
	if maxParallel <= 0 {
		maxParallel = 3
	}
	globalSem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, d := range dispatches {
		d := d
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Take the per-agent lock before a global slot, so dispatches
			// queued behind a busy agent do not hold slots other agents
			// could use.
			lock := c.agentLock(d.TargetAgentID)
			lock.Lock()
			defer lock.Unlock()

			globalSem <- struct{}{}
			defer func() { <-globalSem }()

			ok := c.runDispatch(ctx, d)
			mu.Lock()
			if ok {
				sent++
				c.clearReminder(d.TaskID)
			} else {
				failed++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	return sent, failed
}

func (c *Cron) runDispatch(ctx context.Context, d Dispatch) bool {
	agent, err := c.agents.Get(d.TargetAgentID)
	if err != nil {
		logger.Cron.Warn().Str("agent_id", d.TargetAgentID).Err(err).Msg(i18n.T(i18n.MsgCronDispatchFailed))
		return false
	}
	_, err = c.dispatcher.RunAgent(ctx, agent, dispatcher.RunOptions{
		Message:    d.Message,
		SessionRef: d.SessionRef,
	})
	if err != nil {
		logger.Cron.Warn().Str("agent_id", d.TargetAgentID).Str("dispatch_kind", string(d.Kind)).Err(err).Msg(i18n.T(i18n.MsgCronDispatchFailed))
		return false
	}

	if d.Kind == DispatchBlocked || d.Kind == DispatchInactive {
		c.notifier.SendAlert(string(d.Kind), d.SubjectAgentID, d.Message)
	}
	return true
}

func (c *Cron) clearReminder(taskID string) {
	if taskID == "" {
		return
	}
	c.remindersMu.Lock()
	delete(c.reminders, taskID)
	c.remindersMu.Unlock()
}

func stableTaskSession(agentID string) string {
	return fmt.Sprintf("agent:%s:main", agentID)
}

func stableNotificationSession(agentID string) string {
	return fmt.Sprintf("agent:%s:agent_%s_notifications", agentID, agentID)
}

func classifyTodo(tasks []domain.Task) map[string][]domain.Task {
	out := make(map[string][]domain.Task)
	var todo []domain.Task
	for _, t := range tasks {
		if t.Status == domain.StatusTodo {
			todo = append(todo, t)
		}
	}
	sort.Slice(todo, func(i, j int) bool { return todo[i].CreatedAt < todo[j].CreatedAt })
	for _, t := range todo {
		out[t.AssignedTo] = append(out[t.AssignedTo], t)
	}
	return out
}

func classifyTimeout(tasks []domain.Task, status domain.TaskStatus, minutes int, nowMs int64) []domain.Task {
	cutoff := nowMs - int64(minutes)*60_000
	var out []domain.Task
	for _, t := range tasks {
		if t.Status != status {
			continue
		}
		if parseISOMs(t.UpdatedAt) < cutoff {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt < out[j].UpdatedAt })
	return out
}

func classifyBlocked(tasks []domain.Task) []domain.Task {
	var out []domain.Task
	for _, t := range tasks {
		if t.Status == domain.StatusBlocked {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

func classifyInactive(agents []domain.Agent, activity LastActivity, minutes int, nowMs int64) []domain.Agent {
	cutoff := nowMs - int64(minutes)*60_000
	var out []domain.Agent
	for _, a := range agents {
		last, ok := activity.LastActivityMs(a.ID)
		if !ok || last < cutoff {
			out = append(out, a)
		}
	}
	return out
}

func countOpenAssignedTo(tasks []domain.Task, agentID string) int {
	n := 0
	for _, t := range tasks {
		if t.AssignedTo != agentID {
			continue
		}
		if t.Status == domain.StatusDone || t.Status == domain.StatusCancelled || t.Status == domain.StatusBlocked {
			continue
		}
		n++
	}
	return n
}

// buildInactiveDispatches batches inactive reportees per manager into
// one notification each, honoring the configured notification target.
func (c *Cron) buildInactiveDispatches(inactive []domain.Agent, byID map[string]domain.Agent, target config.NotificationTarget, defaultAgentID string) []Dispatch {
	byManager := make(map[string][]string)
	for _, a := range inactive {
		manager := defaultAgentID
		if target != config.NotifyRootOnly && a.ReportsTo != nil {
			manager = *a.ReportsTo
		}
		byManager[manager] = append(byManager[manager], a.ID)
	}

	var out []Dispatch
	for _, manager := range sortedKeys(byManager) {
		ids := byManager[manager]
		sort.Strings(ids)
		msg := fmt.Sprintf("The following reportees have had no recent session activity: %v.", ids)
		out = append(out, Dispatch{
			Kind:          DispatchInactive,
			TargetAgentID: manager,
			SessionRef:    stableNotificationSession(manager),
			Message:       msg,
		})
	}
	return out
}

// formatTaskHashMessage is the "Task #<id>: ..." template used for
// dispatches addressed to the assignee themself.
func formatTaskHashMessage(t domain.Task, body string) string {
	return fmt.Sprintf("Task #%s: %s — %s", t.TaskID, t.Title, body)
}

// formatTaskIDMessage is the "Task ID: <id> ..." template used for
// escalation and top-down guidance messages addressed to a manager.
func formatTaskIDMessage(t domain.Task, body string) string {
	if t.Title == "" {
		return fmt.Sprintf("Task ID: %s %s", t.TaskID, body)
	}
	return fmt.Sprintf("Task ID: %s (%s) %s", t.TaskID, t.Title, body)
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
