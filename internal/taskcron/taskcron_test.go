package taskcron

import (
	"context"
	"testing"

	"opengoat/internal/agentstore"
	"opengoat/internal/config"
	"opengoat/internal/database"
	"opengoat/internal/dispatcher"
	"opengoat/internal/domain"
	"opengoat/internal/notify"
	"opengoat/internal/ports"
	"opengoat/internal/provider"
	"opengoat/internal/roleskill"
	"opengoat/internal/sessionstore"
	"opengoat/internal/taskstore"
)

func TestClassifyTodoGroupsByAssigneeInCreationOrder(t *testing.T) {
	tasks := []domain.Task{
		{TaskID: "1", AssignedTo: "bob", Status: domain.StatusTodo, CreatedAt: "2026-01-01T00:00:02Z"},
		{TaskID: "2", AssignedTo: "alice", Status: domain.StatusTodo, CreatedAt: "2026-01-01T00:00:01Z"},
		{TaskID: "3", AssignedTo: "bob", Status: domain.StatusDoing, CreatedAt: "2026-01-01T00:00:03Z"},
	}
	got := classifyTodo(tasks)
	if len(got) != 2 {
		t.Fatalf("classifyTodo() returned %d assignees, want 2", len(got))
	}
	if len(got["bob"]) != 1 || got["bob"][0].TaskID != "1" {
		t.Errorf("bob's todo tasks = %+v, want [task 1]", got["bob"])
	}
}

func TestClassifyTimeoutFiltersByStatusAndAge(t *testing.T) {
	nowMs := int64(1_000_000_000_000)
	tasks := []domain.Task{
		{TaskID: "stale", Status: domain.StatusDoing, UpdatedAt: "2001-01-01T00:00:00Z"},
		{TaskID: "fresh", Status: domain.StatusDoing, UpdatedAt: "2033-01-01T00:00:00Z"},
		{TaskID: "wrong-status", Status: domain.StatusTodo, UpdatedAt: "2001-01-01T00:00:00Z"},
	}
	got := classifyTimeout(tasks, domain.StatusDoing, 60, nowMs)
	if len(got) != 1 || got[0].TaskID != "stale" {
		t.Errorf("classifyTimeout() = %+v, want only [stale]", got)
	}
}

func TestClassifyInactiveUsesLastActivity(t *testing.T) {
	activity := fakeActivity{"alice": 0, "bob": 2_000_000}
	agents := []domain.Agent{{ID: "alice"}, {ID: "bob"}, {ID: "carol"}}
	nowMs := int64(2_000_000)
	got := classifyInactive(agents, activity, 1, nowMs)
	ids := map[string]bool{}
	for _, a := range got {
		ids[a.ID] = true
	}
	if !ids["alice"] || !ids["carol"] {
		t.Errorf("classifyInactive() = %+v, want alice and carol (unknown)", got)
	}
	if ids["bob"] {
		t.Errorf("classifyInactive() wrongly included bob, who was recently active")
	}
}

type fakeActivity map[string]int64

func (f fakeActivity) LastActivityMs(agentID string) (int64, bool) {
	v, ok := f[agentID]
	return v, ok
}

func TestCountOpenAssignedToExcludesTerminalStatuses(t *testing.T) {
	tasks := []domain.Task{
		{AssignedTo: "root", Status: domain.StatusTodo},
		{AssignedTo: "root", Status: domain.StatusDone},
		{AssignedTo: "root", Status: domain.StatusCancelled},
		{AssignedTo: "root", Status: domain.StatusBlocked},
		{AssignedTo: "root", Status: domain.StatusDoing},
		{AssignedTo: "other", Status: domain.StatusTodo},
	}
	if got := countOpenAssignedTo(tasks, "root"); got != 2 {
		t.Errorf("countOpenAssignedTo() = %d, want 2", got)
	}
}

func TestFormatMessageTemplates(t *testing.T) {
	task := domain.Task{TaskID: "42", Title: "ship it"}
	if got := formatTaskHashMessage(task, "go go go"); got != "Task #42: ship it — go go go" {
		t.Errorf("formatTaskHashMessage() = %q", got)
	}
	if got := formatTaskIDMessage(task, "review"); got != "Task ID: 42 (ship it) review" {
		t.Errorf("formatTaskIDMessage() = %q", got)
	}
	if got := formatTaskIDMessage(domain.Task{TaskID: "-"}, "low count"); got != "Task ID: - low count" {
		t.Errorf("formatTaskIDMessage(no title) = %q", got)
	}
}

type recordingProvider struct {
	id       string
	messages []string
}

func (p *recordingProvider) Descriptor() domain.ProviderDescriptor {
	return domain.ProviderDescriptor{ID: p.id}
}
func (p *recordingProvider) Invoke(ctx context.Context, opts provider.InvokeOptions) (provider.InvokeResult, error) {
	p.messages = append(p.messages, opts.Message)
	return provider.InvokeResult{Stdout: "ack"}, nil
}
func (p *recordingProvider) CreateAgent(ctx context.Context, opts provider.CreateAgentOptions) error {
	return nil
}
func (p *recordingProvider) DeleteAgent(ctx context.Context, agentID string, force bool) error {
	return nil
}

func TestRunCycleDispatchesTodoTaskToAssignee(t *testing.T) {
	paths := ports.NewHomePathsAt(t.TempDir())
	fs := ports.OSFilesystem{}
	clock := ports.SystemClock{}

	providers := provider.NewRegistry()
	p := &recordingProvider{id: "stub"}
	providers.Register(p)

	roleSync := roleskill.New(fs, paths)
	agents := agentstore.New(fs, paths, providers, roleSync, database.NewActivityRepo())
	if _, err := agents.Create(context.Background(), "Alice", agentstore.CreateOptions{ProviderID: "stub"}); err != nil {
		t.Fatalf("Create(alice) = %v", err)
	}

	if err := fs.MkdirAll(paths.TaskDir(), 0o755); err != nil {
		t.Fatalf("MkdirAll(tasks) = %v", err)
	}
	tasks := taskstore.New(fs, paths, clock, taskstore.NewAgentStoreReporteeChecker(agents), database.NewActivityRepo())
	if _, err := tasks.Create("alice", domain.CreateTaskOptions{Title: "write the report"}); err != nil {
		t.Fatalf("Create(task) = %v", err)
	}

	sessions := sessionstore.New(fs, paths, clock)
	disp := dispatcher.New(fs, paths, providers, sessions, clock)

	settings := config.Defaults()
	settings.TaskDelegationStrategies.TopDown.Enabled = false
	settingsGet := func() config.Settings { return settings }

	cron := New(agents, tasks, disp, providers, nil, fs, paths, clock, settingsGet, 0, notify.NewManager(), database.NewActivityRepo())

	result, err := cron.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() = %v, want nil", err)
	}
	if result.TodoTasks != 1 {
		t.Errorf("TodoTasks = %d, want 1", result.TodoTasks)
	}
	if result.Sent != 1 || result.Failed != 0 {
		t.Errorf("Sent=%d Failed=%d, want Sent=1 Failed=0", result.Sent, result.Failed)
	}
	if len(p.messages) != 1 {
		t.Fatalf("provider received %d messages, want 1", len(p.messages))
	}
}

func TestRunCycleSkipsWhenTaskCronDisabled(t *testing.T) {
	paths := ports.NewHomePathsAt(t.TempDir())
	fs := ports.OSFilesystem{}
	clock := ports.SystemClock{}

	providers := provider.NewRegistry()
	roleSync := roleskill.New(fs, paths)
	agents := agentstore.New(fs, paths, providers, roleSync, database.NewActivityRepo())
	if err := fs.MkdirAll(paths.TaskDir(), 0o755); err != nil {
		t.Fatalf("MkdirAll(tasks) = %v", err)
	}
	tasks := taskstore.New(fs, paths, clock, taskstore.NewAgentStoreReporteeChecker(agents), database.NewActivityRepo())
	sessions := sessionstore.New(fs, paths, clock)
	disp := dispatcher.New(fs, paths, providers, sessions, clock)

	settings := config.Defaults()
	settings.TaskCronEnabled = false
	settingsGet := func() config.Settings { return settings }

	cron := New(agents, tasks, disp, providers, nil, fs, paths, clock, settingsGet, 0, notify.NewManager(), database.NewActivityRepo())

	result, err := cron.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle() = %v, want nil", err)
	}
	if result.ScannedTasks != 0 {
		t.Errorf("ScannedTasks = %d, want 0 (cycle should have been skipped)", result.ScannedTasks)
	}
}
