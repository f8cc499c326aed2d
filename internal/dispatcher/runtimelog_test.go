package dispatcher

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEmbeddedRunStartID(t *testing.T) {
	id, ok := embeddedRunStartID("embedded run start: runId=abc123 extra stuff")
	if !ok || id != "abc123" {
		t.Errorf("embeddedRunStartID() = (%q, %v), want (abc123, true)", id, ok)
	}
	if _, ok := embeddedRunStartID("unrelated message"); ok {
		t.Errorf("embeddedRunStartID() = ok, want not found")
	}
}

func TestTranslateRuntimeMessage(t *testing.T) {
	cases := map[string]string{
		"embedded run start: runId=abc":                                 "Run accepted by OpenClaw.",
		"embedded run tool start: runId=abc tool=bash":                  "Running tool: bash.",
		"embedded run tool end: runId=abc tool=bash durationMs=120":     "Finished tool: bash (120 ms).",
		"embedded run tool end: runId=abc tool=bash":                    "Finished tool: bash.",
		"some other message runId=xyz rest":                             "some other message rest",
	}
	for input, want := range cases {
		if got := translateRuntimeMessage(input); got != want {
			t.Errorf("translateRuntimeMessage(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestExtractField(t *testing.T) {
	val, ok := extractField("tool=bash durationMs=42", "durationMs")
	if !ok || val != "42" {
		t.Errorf("extractField() = (%q, %v), want (42, true)", val, ok)
	}
	if _, ok := extractField("no fields here", "tool"); ok {
		t.Errorf("extractField() = ok, want not found")
	}
}

func TestStripRunIDNoise(t *testing.T) {
	if got := stripRunIDNoise("message runId=abc trailing"); got != "message trailing" {
		t.Errorf("stripRunIDNoise() = %q, want %q", got, "message trailing")
	}
	if got := stripRunIDNoise("message runId=abc"); got != "message" {
		t.Errorf("stripRunIDNoise() = %q, want %q", got, "message")
	}
	if got := stripRunIDNoise("no run id here"); got != "no run id here" {
		t.Errorf("stripRunIDNoise() = %q, want unchanged", got)
	}
}

func TestRuntimeLogTailerPollIncremental(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runtime.ndjson")

	line1 := `{"ts":1000,"runId":"run-1","message":"embedded run start: runId=run-1"}` + "\n"
	if err := os.WriteFile(path, []byte(line1), 0o644); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}

	tailer := NewRuntimeLogTailer(path)
	activities, fallback, err := tailer.Poll("run-1", "", 0)
	if err != nil {
		t.Fatalf("Poll() = %v, want nil", err)
	}
	if len(activities) != 1 || activities[0].Text != "Run accepted by OpenClaw." {
		t.Fatalf("Poll() = %+v, want one accepted-run activity", activities)
	}
	if fallback != "" {
		t.Errorf("fallback = %q, want empty (primary run id matched directly)", fallback)
	}

	line2 := `{"ts":2000,"runId":"run-1","message":"embedded run tool start: runId=run-1 tool=bash"}` + "\n"
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("OpenFile() = %v", err)
	}
	if _, err := f.WriteString(line2); err != nil {
		t.Fatalf("WriteString() = %v", err)
	}
	f.Close()

	activities, _, err = tailer.Poll("run-1", fallback, 0)
	if err != nil {
		t.Fatalf("Poll() (incremental) = %v, want nil", err)
	}
	if len(activities) != 1 || activities[0].Text != "Running tool: bash." {
		t.Fatalf("Poll() (incremental) = %+v, want one tool-start activity", activities)
	}
}

func TestRuntimeLogTailerPollMissingFileIsNotError(t *testing.T) {
	tailer := NewRuntimeLogTailer(filepath.Join(t.TempDir(), "missing.ndjson"))
	activities, _, err := tailer.Poll("run-1", "", 0)
	if err != nil {
		t.Fatalf("Poll() = %v, want nil for a missing file", err)
	}
	if len(activities) != 0 {
		t.Errorf("Poll() = %+v, want no activities", activities)
	}
}

func TestRuntimeLogPathJoinsLogsDir(t *testing.T) {
	want := filepath.Join("/state", "logs", "runtime.ndjson")
	if got := runtimeLogPath("/state"); got != want {
		t.Errorf("runtimeLogPath() = %q, want %q", got, want)
	}
}
