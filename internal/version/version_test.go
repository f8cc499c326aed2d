package version

import "testing"

func TestResolvedFallsBackToCompiledVersion(t *testing.T) {
	t.Setenv("OPENGOAT_VERSION", "")
	if got := Resolved(); got != Version {
		t.Errorf("Resolved() = %q, want compiled Version %q", got, Version)
	}
}

func TestResolvedHonorsEnvOverride(t *testing.T) {
	t.Setenv("OPENGOAT_VERSION", "9.9.9")
	if got := Resolved(); got != "9.9.9" {
		t.Errorf("Resolved() = %q, want %q", got, "9.9.9")
	}
}
