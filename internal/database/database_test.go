package database

import (
	"testing"
	"time"
)

func openTestDB(t *testing.T) {
	t.Helper()
	if err := Open(t.TempDir()); err != nil {
		t.Fatalf("Open() = %v, want nil", err)
	}
}

func TestActivityRepoLogAndCount(t *testing.T) {
	openTestDB(t)
	repo := NewActivityRepo()

	repo.Log("agentstore", "create", "alice", "", "created agent alice")
	repo.Log("taskstore", "create", "", "task-1", "created task task-1")

	count, err := repo.Count()
	if err != nil {
		t.Fatalf("Count() = %v, want nil", err)
	}
	if count != 2 {
		t.Errorf("Count() = %d, want 2", count)
	}

	byComponent, err := repo.CountByComponent(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountByComponent() = %v, want nil", err)
	}
	if byComponent["agentstore"] != 1 || byComponent["taskstore"] != 1 {
		t.Errorf("CountByComponent() = %+v, want 1 each for agentstore/taskstore", byComponent)
	}
}

func TestActivityRepoLogIsNilSafe(t *testing.T) {
	var repo *ActivityRepo
	repo.Log("x", "y", "", "", "should not panic")
}

func TestActivityRepoListFiltersByAgentID(t *testing.T) {
	openTestDB(t)
	repo := NewActivityRepo()
	repo.Log("agentstore", "create", "alice", "", "created agent alice")
	repo.Log("agentstore", "create", "bob", "", "created agent bob")

	results, total, err := repo.List(ActivityFilter{AgentID: "alice", PageSize: 10})
	if err != nil {
		t.Fatalf("List() = %v, want nil", err)
	}
	if total != 1 || len(results) != 1 {
		t.Fatalf("List() returned total=%d len=%d, want 1 and 1", total, len(results))
	}
	if results[0].AgentID != "alice" {
		t.Errorf("AgentID = %q, want %q", results[0].AgentID, "alice")
	}
}

func TestActivityFilterOffsetDefaults(t *testing.T) {
	f := &ActivityFilter{}
	if got := f.Offset(); got != 0 {
		t.Errorf("Offset() = %d, want 0", got)
	}
	if f.PageSize != 20 {
		t.Errorf("PageSize defaulted to %d, want 20", f.PageSize)
	}

	f2 := &ActivityFilter{Page: 3, PageSize: 10}
	if got := f2.Offset(); got != 20 {
		t.Errorf("Offset() = %d, want 20", got)
	}
}

func TestGatewayProfileSetActiveIsExclusive(t *testing.T) {
	openTestDB(t)
	repo := NewGatewayProfileRepo()

	a := &GatewayProfile{Name: "home", Host: "127.0.0.1", Port: 18789}
	b := &GatewayProfile{Name: "office", Host: "10.0.0.5", Port: 18789}
	if err := repo.Create(a); err != nil {
		t.Fatalf("Create(a) = %v", err)
	}
	if err := repo.Create(b); err != nil {
		t.Fatalf("Create(b) = %v", err)
	}

	if err := repo.SetActive(a.ID); err != nil {
		t.Fatalf("SetActive(a) = %v", err)
	}
	active, err := repo.GetActive()
	if err != nil {
		t.Fatalf("GetActive() = %v, want nil", err)
	}
	if active.ID != a.ID {
		t.Errorf("GetActive().ID = %d, want %d", active.ID, a.ID)
	}

	if err := repo.SetActive(b.ID); err != nil {
		t.Fatalf("SetActive(b) = %v", err)
	}
	active, err = repo.GetActive()
	if err != nil {
		t.Fatalf("GetActive() = %v, want nil", err)
	}
	if active.ID != b.ID {
		t.Errorf("GetActive().ID = %d, want %d (should be exclusively active)", active.ID, b.ID)
	}
}
