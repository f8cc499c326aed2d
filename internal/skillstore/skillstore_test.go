package skillstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"opengoat/internal/agentstore"
	"opengoat/internal/database"
	"opengoat/internal/domain"
	"opengoat/internal/ports"
	"opengoat/internal/provider"
	"opengoat/internal/roleskill"
)

type fakeProvider struct {
	id      string
	profile domain.RuntimeProfile
}

func (f *fakeProvider) Descriptor() domain.ProviderDescriptor {
	return domain.ProviderDescriptor{ID: f.id, Profile: f.profile}
}
func (f *fakeProvider) Invoke(ctx context.Context, opts provider.InvokeOptions) (provider.InvokeResult, error) {
	return provider.InvokeResult{}, nil
}
func (f *fakeProvider) CreateAgent(ctx context.Context, opts provider.CreateAgentOptions) error {
	return nil
}
func (f *fakeProvider) DeleteAgent(ctx context.Context, agentID string, force bool) error { return nil }

func newTestStore(t *testing.T) (*Store, *agentstore.Store) {
	t.Helper()
	paths := ports.NewHomePathsAt(t.TempDir())
	fs := ports.OSFilesystem{}
	providers := provider.NewRegistry()
	providers.Register(&fakeProvider{id: "openclaw", profile: domain.RuntimeProfile{SkillDirs: []string{"skills"}}})
	roleSync := roleskill.New(fs, paths)
	agents := agentstore.New(fs, paths, providers, roleSync, database.NewActivityRepo())

	if _, err := agents.Create(context.Background(), "Alice", agentstore.CreateOptions{ProviderID: "openclaw"}); err != nil {
		t.Fatalf("Create(alice) = %v", err)
	}

	return New(fs, paths, agents, providers), agents
}

func TestInstallSkillRequiresExactlyOneSource(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.InstallSkill(InstallOptions{Scope: ScopeGlobal, SkillName: "git-helper"})
	if !domain.Is(err, domain.KindValidation) {
		t.Errorf("error kind = %v, want %v", err, domain.KindValidation)
	}

	_, err = store.InstallSkill(InstallOptions{
		Scope: ScopeGlobal, SkillName: "git-helper",
		Content: "use git rebase carefully", SourcePath: "/tmp/whatever",
	})
	if !domain.Is(err, domain.KindValidation) {
		t.Errorf("error kind (both sources set) = %v, want %v", err, domain.KindValidation)
	}
}

func TestInstallAndListGlobalSkill(t *testing.T) {
	store, _ := newTestStore(t)
	id, err := store.InstallSkill(InstallOptions{
		Scope:       ScopeGlobal,
		SkillName:   "Git Helper",
		Content:     "use git rebase carefully",
		Description: "git workflow tips",
	})
	if err != nil {
		t.Fatalf("InstallSkill() = %v, want nil", err)
	}
	if id != "git-helper" {
		t.Errorf("skill id = %q, want %q", id, "git-helper")
	}

	skills := store.ListGlobalSkills()
	if len(skills) != 1 {
		t.Fatalf("ListGlobalSkills() returned %d skills, want 1", len(skills))
	}
	if skills[0].Description != "git workflow tips" {
		t.Errorf("Description = %q, want %q", skills[0].Description, "git workflow tips")
	}
}

func TestInstallAgentScopedSkillUsesProviderSkillDirs(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.InstallSkill(InstallOptions{
		Scope: ScopeAgent, AgentID: "alice", SkillName: "onboarding", Content: "read the wiki",
	})
	if err != nil {
		t.Fatalf("InstallSkill() = %v, want nil", err)
	}

	skills, err := store.ListSkills("alice")
	if err != nil {
		t.Fatalf("ListSkills() = %v, want nil", err)
	}
	if len(skills) != 1 || skills[0].ID != "onboarding" {
		t.Errorf("ListSkills() = %+v, want one skill with id onboarding", skills)
	}
}

func TestRemoveSkillNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.RemoveSkill(RemoveOptions{Scope: ScopeGlobal, SkillID: "nonexistent"})
	if !domain.Is(err, domain.KindNotFound) {
		t.Errorf("error kind = %v, want %v", err, domain.KindNotFound)
	}
}

func TestInstallSkillFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fetched skill body"))
	}))
	defer srv.Close()

	store, _ := newTestStore(t)
	id, err := store.InstallSkill(InstallOptions{
		Scope: ScopeGlobal, SkillName: "remote-skill", SourceURL: srv.URL,
	})
	if err != nil {
		t.Fatalf("InstallSkill() = %v, want nil", err)
	}
	skills := store.ListGlobalSkills()
	found := false
	for _, s := range skills {
		if s.ID == id {
			found = true
		}
	}
	if !found {
		t.Errorf("installed skill %q not found in ListGlobalSkills()", id)
	}
}
