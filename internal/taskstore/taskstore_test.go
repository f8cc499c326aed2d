package taskstore

import (
	"fmt"
	"testing"
	"time"

	"opengoat/internal/database"
	"opengoat/internal/domain"
	"opengoat/internal/ports"
)

// fakeClock returns a strictly increasing ISO timestamp on every call,
// so tests asserting creation order don't race against wall-clock
// resolution.
type fakeClock struct{ tick int }

func (c *fakeClock) Now() time.Time { return time.Unix(int64(c.tick), 0).UTC() }

func (c *fakeClock) NowISO() string {
	c.tick++
	return fmt.Sprintf("2026-01-01T00:00:%02dZ", c.tick)
}

type fakeReportees struct {
	reportsTo map[string]string
}

func (f fakeReportees) IsRecursiveReportee(owner, target string) (bool, error) {
	cur := target
	for cur != "" {
		mgr, ok := f.reportsTo[cur]
		if !ok {
			return false, nil
		}
		if mgr == owner {
			return true, nil
		}
		cur = mgr
	}
	return false, nil
}

func newTestStore(t *testing.T, reportees ReporteeChecker) *Store {
	t.Helper()
	paths := ports.NewHomePathsAt(t.TempDir())
	fs := ports.OSFilesystem{}
	if err := fs.MkdirAll(paths.TaskDir(), 0o755); err != nil {
		t.Fatalf("MkdirAll(tasks) = %v", err)
	}
	return New(fs, paths, &fakeClock{}, reportees, database.NewActivityRepo())
}

func TestCreateDefaultsAssigneeToActor(t *testing.T) {
	store := newTestStore(t, fakeReportees{})
	task, err := store.Create("alice", domain.CreateTaskOptions{Title: "write tests"})
	if err != nil {
		t.Fatalf("Create() = %v, want nil", err)
	}
	if task.AssignedTo != "alice" {
		t.Errorf("AssignedTo = %q, want %q", task.AssignedTo, "alice")
	}
	if task.Status != domain.StatusTodo {
		t.Errorf("Status = %q, want %q", task.Status, domain.StatusTodo)
	}
}

func TestCreateDeniesAssigningOutsideAuthority(t *testing.T) {
	store := newTestStore(t, fakeReportees{reportsTo: map[string]string{}})
	_, err := store.Create("alice", domain.CreateTaskOptions{Title: "x", AssignedTo: "bob"})
	if !domain.Is(err, domain.KindAuthorityDenied) {
		t.Errorf("error kind = %v, want %v", err, domain.KindAuthorityDenied)
	}
}

func TestCreateAllowsAssigningToReportee(t *testing.T) {
	store := newTestStore(t, fakeReportees{reportsTo: map[string]string{"bob": "alice"}})
	task, err := store.Create("alice", domain.CreateTaskOptions{Title: "x", AssignedTo: "bob"})
	if err != nil {
		t.Fatalf("Create() = %v, want nil", err)
	}
	if task.AssignedTo != "bob" {
		t.Errorf("AssignedTo = %q, want %q", task.AssignedTo, "bob")
	}
}

func TestUpdateStatusRejectsNonAssigneeLeavingTodo(t *testing.T) {
	store := newTestStore(t, fakeReportees{reportsTo: map[string]string{"bob": "alice"}})
	task, err := store.Create("alice", domain.CreateTaskOptions{Title: "x", AssignedTo: "bob"})
	if err != nil {
		t.Fatalf("Create() = %v", err)
	}

	if _, err := store.UpdateStatus("alice", task.TaskID, domain.StatusDoing, ""); !domain.Is(err, domain.KindAuthorityDenied) {
		t.Errorf("error kind = %v, want %v", err, domain.KindAuthorityDenied)
	}

	if _, err := store.UpdateStatus("bob", task.TaskID, domain.StatusDoing, ""); err != nil {
		t.Errorf("UpdateStatus(assignee) = %v, want nil", err)
	}
}

func TestUpdateStatusRequiresReasonForDoingToPending(t *testing.T) {
	store := newTestStore(t, fakeReportees{})
	task, err := store.Create("alice", domain.CreateTaskOptions{Title: "x"})
	if err != nil {
		t.Fatalf("Create() = %v", err)
	}
	if _, err := store.UpdateStatus("alice", task.TaskID, domain.StatusDoing, ""); err != nil {
		t.Fatalf("UpdateStatus(doing) = %v", err)
	}

	if _, err := store.UpdateStatus("alice", task.TaskID, domain.StatusPending, ""); !domain.Is(err, domain.KindValidation) {
		t.Errorf("error kind = %v, want %v", err, domain.KindValidation)
	}
	if _, err := store.UpdateStatus("alice", task.TaskID, domain.StatusPending, "waiting on review"); err != nil {
		t.Errorf("UpdateStatus(pending, with reason) = %v, want nil", err)
	}
}

func TestAddBlockerThenTransitionToBlocked(t *testing.T) {
	store := newTestStore(t, fakeReportees{})
	task, err := store.Create("alice", domain.CreateTaskOptions{Title: "x"})
	if err != nil {
		t.Fatalf("Create() = %v", err)
	}

	if _, err := store.UpdateStatus("alice", task.TaskID, domain.StatusBlocked, ""); !domain.Is(err, domain.KindValidation) {
		t.Errorf("error kind (no blocker yet) = %v, want %v", err, domain.KindValidation)
	}

	if _, err := store.AddBlocker("alice", task.TaskID, "waiting on API key"); err != nil {
		t.Fatalf("AddBlocker() = %v, want nil", err)
	}
	if _, err := store.UpdateStatus("alice", task.TaskID, domain.StatusBlocked, ""); err != nil {
		t.Errorf("UpdateStatus(blocked, with blocker) = %v, want nil", err)
	}
}

func TestListFiltersByAssigneeAndOrdersByCreatedAt(t *testing.T) {
	store := newTestStore(t, fakeReportees{})
	for _, title := range []string{"first", "second", "third"} {
		if _, err := store.Create("alice", domain.CreateTaskOptions{Title: title}); err != nil {
			t.Fatalf("Create(%s) = %v", title, err)
		}
	}

	tasks, err := store.List("alice", 0)
	if err != nil {
		t.Fatalf("List() = %v, want nil", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("List() returned %d tasks, want 3", len(tasks))
	}
	if tasks[0].Title != "first" || tasks[2].Title != "third" {
		t.Errorf("order = [%s, %s, %s], want [first, second, third]", tasks[0].Title, tasks[1].Title, tasks[2].Title)
	}

	limited, err := store.List("alice", 2)
	if err != nil {
		t.Fatalf("List(limit=2) = %v, want nil", err)
	}
	if len(limited) != 2 {
		t.Errorf("List(limit=2) returned %d tasks, want 2", len(limited))
	}
}

func TestDeleteOnlyRemovesAuthorizedTasks(t *testing.T) {
	store := newTestStore(t, fakeReportees{})
	mine, err := store.Create("alice", domain.CreateTaskOptions{Title: "mine"})
	if err != nil {
		t.Fatalf("Create() = %v", err)
	}
	other, err := store.Create("bob", domain.CreateTaskOptions{Title: "not mine"})
	if err != nil {
		t.Fatalf("Create() = %v", err)
	}

	removed, err := store.Delete("alice", []string{mine.TaskID, other.TaskID})
	if err != nil {
		t.Fatalf("Delete() = %v, want nil", err)
	}
	if len(removed) != 1 || removed[0] != mine.TaskID {
		t.Errorf("removed = %v, want [%s]", removed, mine.TaskID)
	}
	if _, err := store.Get(other.TaskID); err != nil {
		t.Errorf("Get(other) = %v, want nil (should survive unauthorized delete)", err)
	}
}
