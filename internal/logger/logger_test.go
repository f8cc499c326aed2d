package logger

import (
	"path/filepath"
	"testing"
)

func TestLogDirDefaultsUnderHomeDotOpengoat(t *testing.T) {
	t.Setenv("OPENGOAT_HOME", "")
	dir := LogDir()
	if filepath.Base(dir) != "logs" {
		t.Errorf("LogDir() = %q, want a path ending in logs", dir)
	}
}

func TestLogDirHonorsOpengoatHome(t *testing.T) {
	t.Setenv("OPENGOAT_HOME", "/custom/home")
	want := filepath.Join("/custom/home", "logs")
	if got := LogDir(); got != want {
		t.Errorf("LogDir() = %q, want %q", got, want)
	}
}

func TestConfigureProducesUsableLoggers(t *testing.T) {
	dir := t.TempDir()
	Configure(dir)

	Core.Info().Msg("core logger smoke test")
	OpenClaw.Info().Msg("openclaw logger smoke test")
	Cron.Info().Msg("cron logger smoke test")
}
