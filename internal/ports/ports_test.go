package ports

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOSFilesystemWriteFileReadFileRoundTrip(t *testing.T) {
	fs := OSFilesystem{}
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "file.txt")

	if err := fs.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}
	data, err := fs.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() = %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("ReadFile() = %q, want hello", data)
	}
	if !fs.Exists(path) {
		t.Error("Exists() = false, want true after WriteFile")
	}
}

func TestOSFilesystemWriteFileLeavesNoTempFileOnSuccess(t *testing.T) {
	fs := OSFilesystem{}
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	if err := fs.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() = %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "file.txt" {
		t.Errorf("dir entries = %v, want only file.txt (no leftover temp file)", entries)
	}
}

func TestOSFilesystemRemoveAndExists(t *testing.T) {
	fs := OSFilesystem{}
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	if err := fs.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}
	if err := fs.Remove(path); err != nil {
		t.Fatalf("Remove() = %v", err)
	}
	if fs.Exists(path) {
		t.Error("Exists() = true, want false after Remove")
	}
}

func TestOSFilesystemSymlinkAndReadlink(t *testing.T) {
	fs := OSFilesystem{}
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	link := filepath.Join(dir, "link.txt")
	if err := fs.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}
	if err := fs.Symlink(target, link); err != nil {
		t.Fatalf("Symlink() = %v", err)
	}
	got, err := fs.Readlink(link)
	if err != nil {
		t.Fatalf("Readlink() = %v", err)
	}
	if got != target {
		t.Errorf("Readlink() = %q, want %q", got, target)
	}
}

func TestOSFilesystemGlob(t *testing.T) {
	fs := OSFilesystem{}
	dir := t.TempDir()
	for _, name := range []string{"a.json", "b.json", "c.txt"} {
		if err := fs.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644); err != nil {
			t.Fatalf("WriteFile(%s) = %v", name, err)
		}
	}
	matches, err := fs.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		t.Fatalf("Glob() = %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("Glob() = %v, want 2 matches", matches)
	}
}

func TestHomePathsJoinsUnderHome(t *testing.T) {
	p := NewHomePathsAt("/state")
	if p.Home() != "/state" {
		t.Errorf("Home() = %q, want /state", p.Home())
	}
	if got := p.AgentConfigPath("agent-1"); got != filepath.Join("/state", "agents", "agent-1", "config.json") {
		t.Errorf("AgentConfigPath() = %q", got)
	}
	if got := p.WorkspacePath("agent-1"); got != filepath.Join("/state", "workspaces", "agent-1") {
		t.Errorf("WorkspacePath() = %q", got)
	}
	if got := p.SessionDir("agent-1", "main"); got != filepath.Join("/state", "sessions", "agent-1", "main") {
		t.Errorf("SessionDir() = %q", got)
	}
	if got := p.TaskDir(); got != filepath.Join("/state", "tasks") {
		t.Errorf("TaskDir() = %q", got)
	}
	if got := p.GlobalSkillDir("skill-1"); got != filepath.Join("/state", "skills", "skill-1") {
		t.Errorf("GlobalSkillDir() = %q", got)
	}
}

func TestNewHomePathsHonorsEnvOverride(t *testing.T) {
	t.Setenv("OPENGOAT_HOME", "/custom")
	if got := NewHomePaths().Home(); got != "/custom" {
		t.Errorf("NewHomePaths().Home() = %q, want /custom", got)
	}
}

func TestOSCommandRunnerRunCapturesOutputAndStreams(t *testing.T) {
	runner := OSCommandRunner{}
	var stdoutLines []string
	result, err := runner.Run(context.Background(), RunOptions{
		Binary:   "sh",
		Args:     []string{"-c", "echo hello; echo world 1>&2"},
		OnStdout: func(line string) { stdoutLines = append(stdoutLines, line) },
	})
	if err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}
	if result.Code != 0 {
		t.Errorf("Code = %d, want 0", result.Code)
	}
	if result.Stdout != "hello" {
		t.Errorf("Stdout = %q, want hello", result.Stdout)
	}
	if result.Stderr != "world" {
		t.Errorf("Stderr = %q, want world", result.Stderr)
	}
	if len(stdoutLines) != 1 || stdoutLines[0] != "hello" {
		t.Errorf("stdoutLines = %v, want [hello]", stdoutLines)
	}
}

func TestOSCommandRunnerRunReportsNonZeroExitCode(t *testing.T) {
	runner := OSCommandRunner{}
	result, err := runner.Run(context.Background(), RunOptions{
		Binary: "sh",
		Args:   []string{"-c", "exit 3"},
	})
	if err == nil {
		t.Fatal("Run() = nil, want an error for a non-zero exit")
	}
	if result.Code != 3 {
		t.Errorf("Code = %d, want 3", result.Code)
	}
}

func TestSystemClockNowAndNowISO(t *testing.T) {
	clock := SystemClock{}
	before := time.Now().Add(-time.Second)
	now := clock.Now()
	if now.Before(before) {
		t.Errorf("Now() = %v, want roughly current time", now)
	}
	iso := clock.NowISO()
	if _, err := time.Parse(time.RFC3339, iso); err != nil {
		t.Errorf("NowISO() = %q is not valid RFC3339: %v", iso, err)
	}
}
