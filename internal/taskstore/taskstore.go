// Package taskstore persists OpenGoat's units of work: create, status
// transitions, blocker/artifact/worklog appends, and authorized
// deletion, each task written via write-temp-then-rename for
// crash-safe single-task writes.
package taskstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"opengoat/internal/agentstore"
	"opengoat/internal/database"
	"opengoat/internal/domain"
	"opengoat/internal/ports"
)

// ReporteeChecker answers whether target is a recursive reportee of
// owner, used to enforce assignment authority without taskstore
// importing agentstore's full surface.
type ReporteeChecker interface {
	IsRecursiveReportee(owner, target string) (bool, error)
}

// Store implements TaskStore.
type Store struct {
	fs        ports.FilesystemPort
	paths     ports.PathPort
	clock     ports.Clock
	reportees ReporteeChecker
	activity  *database.ActivityRepo

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(fs ports.FilesystemPort, paths ports.PathPort, clock ports.Clock, reportees ReporteeChecker, activity *database.ActivityRepo) *Store {
	return &Store{fs: fs, paths: paths, clock: clock, reportees: reportees, activity: activity, locks: make(map[string]*sync.Mutex)}
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

func (s *Store) taskPath(id string) string {
	return s.paths.Join("tasks", id+".json")
}

func (s *Store) readTask(id string) (domain.Task, bool) {
	path := s.taskPath(id)
	if !s.fs.Exists(path) {
		return domain.Task{}, false
	}
	data, err := s.fs.ReadFile(path)
	if err != nil {
		return domain.Task{}, false
	}
	var t domain.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return domain.Task{}, false
	}
	return t, true
}

func (s *Store) writeTask(t domain.Task) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	return s.fs.WriteFile(s.taskPath(t.TaskID), data, 0o644)
}

func (s *Store) nextID() string {
	return "task-" + uuid.NewString()
}

// canAssign enforces T1: the creator must equal the target, or the
// target must be a recursive reportee of the creator.
func (s *Store) canAssign(owner, target string) (bool, error) {
	if owner == target {
		return true, nil
	}
	if s.reportees == nil {
		return false, nil
	}
	return s.reportees.IsRecursiveReportee(owner, target)
}

// Create implements create(actor, opts) enforcing T1.
func (s *Store) Create(actor string, opts domain.CreateTaskOptions) (domain.Task, error) {
	assignedTo := opts.AssignedTo
	if assignedTo == "" {
		assignedTo = actor
	}
	status := opts.Status
	if status == "" {
		status = domain.StatusTodo
	}

	ok, err := s.canAssign(actor, assignedTo)
	if err != nil {
		return domain.Task{}, err
	}
	if !ok {
		return domain.Task{}, domain.AuthorityDeniedf("actor %q cannot assign tasks to %q", actor, assignedTo)
	}

	now := s.clock.NowISO()
	t := domain.Task{
		TaskID:      s.nextID(),
		CreatedAt:   now,
		UpdatedAt:   now,
		Owner:       actor,
		AssignedTo:  assignedTo,
		Title:       opts.Title,
		Description: opts.Description,
		Status:      status,
		Project:     opts.Project,
	}
	if status == domain.StatusBlocked {
		return domain.Task{}, domain.Validationf("a task cannot be created directly in blocked status without a blocker")
	}

	if err := s.writeTask(t); err != nil {
		return domain.Task{}, domain.WrapError(domain.KindFatal, "write task", err)
	}
	s.activity.Log("taskstore", "created", assignedTo, t.TaskID, fmt.Sprintf("task %q created by %q for %q", t.TaskID, actor, assignedTo))
	return t, nil
}

// Get returns a task by id.
func (s *Store) Get(id string) (domain.Task, error) {
	t, ok := s.readTask(id)
	if !ok {
		return domain.Task{}, domain.NotFoundf("task %q not found", id)
	}
	return t, nil
}

// List filters by assignee and caps at limit (0 = unlimited), ordered
// oldest-first by createdAt.
func (s *Store) List(assignee string, limit int) ([]domain.Task, error) {
	pattern := s.paths.Join("tasks", "*.json")
	paths, err := s.fs.Glob(pattern)
	if err != nil {
		return nil, err
	}
	var tasks []domain.Task
	for _, p := range paths {
		data, err := s.fs.ReadFile(p)
		if err != nil {
			continue
		}
		var t domain.Task
		if err := json.Unmarshal(data, &t); err != nil {
			continue
		}
		if assignee != "" && t.AssignedTo != assignee {
			continue
		}
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt < tasks[j].CreatedAt })
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

func canTransitionOutOfTodo(actor string, t domain.Task) bool {
	return actor == t.AssignedTo
}

func canMarkTerminal(actor string, t domain.Task) bool {
	return actor == t.Owner || actor == t.AssignedTo
}

// UpdateStatus enforces T3 (only the assignee may leave todo; only
// owner or assignee may mark done/cancelled) and T4 (doing→pending
// requires a reason).
func (s *Store) UpdateStatus(actor, id string, status domain.TaskStatus, reason string) (domain.Task, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	t, ok := s.readTask(id)
	if !ok {
		return domain.Task{}, domain.NotFoundf("task %q not found", id)
	}

	if t.Status == domain.StatusTodo && status != domain.StatusTodo && !canTransitionOutOfTodo(actor, t) {
		return domain.Task{}, domain.AuthorityDeniedf("only the assignee may transition task %q out of todo", id)
	}
	if (status == domain.StatusDone || status == domain.StatusCancelled) && !canMarkTerminal(actor, t) {
		return domain.Task{}, domain.AuthorityDeniedf("only owner or assignee may mark task %q as %s", id, status)
	}
	if t.Status == domain.StatusDoing && status == domain.StatusPending && reason == "" {
		return domain.Task{}, domain.Validationf("doing to pending transition for task %q requires a reason", id)
	}
	if status == domain.StatusBlocked && len(t.Blockers) == 0 {
		return domain.Task{}, domain.Validationf("task %q cannot enter blocked status without a blocker entry", id)
	}

	t.Status = status
	if reason != "" {
		t.StatusReason = reason
	}
	t.UpdatedAt = s.clock.NowISO()
	if err := s.writeTask(t); err != nil {
		return domain.Task{}, domain.WrapError(domain.KindFatal, "write task", err)
	}
	s.activity.Log("taskstore", "status-changed", t.AssignedTo, t.TaskID, fmt.Sprintf("task %q moved to %s by %q", id, status, actor))
	return t, nil
}

func (s *Store) appendEntry(actor, id, content string, pick func(*domain.Task) *[]domain.LogEntry) (domain.Task, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	t, ok := s.readTask(id)
	if !ok {
		return domain.Task{}, domain.NotFoundf("task %q not found", id)
	}
	entry := domain.LogEntry{CreatedAt: s.clock.NowISO(), CreatedBy: actor, Content: content}
	list := pick(&t)
	*list = append(*list, entry)
	t.UpdatedAt = s.clock.NowISO()
	if err := s.writeTask(t); err != nil {
		return domain.Task{}, domain.WrapError(domain.KindFatal, "write task", err)
	}
	return t, nil
}

// AddBlocker appends a blocker entry. A task with ≥1 blocker satisfies
// T2; it does not itself transition status.
func (s *Store) AddBlocker(actor, id, content string) (domain.Task, error) {
	return s.appendEntry(actor, id, content, func(t *domain.Task) *[]domain.LogEntry { return &t.Blockers })
}

func (s *Store) AddArtifact(actor, id, content string) (domain.Task, error) {
	return s.appendEntry(actor, id, content, func(t *domain.Task) *[]domain.LogEntry { return &t.Artifacts })
}

func (s *Store) AddWorklog(actor, id, content string) (domain.Task, error) {
	return s.appendEntry(actor, id, content, func(t *domain.Task) *[]domain.LogEntry { return &t.Worklog })
}

// Delete removes the subset of ids the actor is authorized to delete
// (owner or assignee), returning exactly those that were removed.
func (s *Store) Delete(actor string, ids []string) ([]string, error) {
	var removed []string
	for _, id := range ids {
		lock := s.lockFor(id)
		lock.Lock()
		t, ok := s.readTask(id)
		if !ok {
			lock.Unlock()
			continue
		}
		if actor != t.Owner && actor != t.AssignedTo {
			lock.Unlock()
			continue
		}
		if err := s.fs.Remove(s.taskPath(id)); err == nil {
			removed = append(removed, id)
		}
		lock.Unlock()
	}
	return removed, nil
}

// agentStoreReporteeChecker adapts *agentstore.Store to ReporteeChecker.
type agentStoreReporteeChecker struct {
	store *agentstore.Store
}

func NewAgentStoreReporteeChecker(store *agentstore.Store) ReporteeChecker {
	return agentStoreReporteeChecker{store: store}
}

func (c agentStoreReporteeChecker) IsRecursiveReportee(owner, target string) (bool, error) {
	all, err := c.store.ListAllReportees(owner)
	if err != nil {
		return false, err
	}
	for _, a := range all {
		if a.ID == target {
			return true, nil
		}
	}
	return false, nil
}
