// Package monitor tails OpenClaw's session transcript files and the
// live gateway event stream, classifies what happened, and feeds the
// audit ledger. Nothing here renders to a UI: Collector exposes an
// optional OnActivity callback so the service facade can forward
// events to whatever consumes them next.
package monitor

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"opengoat/internal/logger"
)

const (
	CategoryShell   = "shell"
	CategoryFile    = "file"
	CategoryNetwork = "network"
	CategoryBrowser = "browser"
	CategoryMessage = "message"
	CategoryMemory  = "memory"
	CategorySystem  = "system"

	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// RawEvent is one line of an OpenClaw session .jsonl transcript.
type RawEvent struct {
	Type      string                 `json:"type"`
	Timestamp string                 `json:"timestamp"`
	Tool      string                 `json:"tool"`
	Input     map[string]interface{} `json:"input"`
	SessionID string                 `json:"session_id"`
}

// NormalizedEvent is a RawEvent classified for the audit ledger.
type NormalizedEvent struct {
	EventID   string
	Timestamp time.Time
	Category  string
	Risk      string
	Summary   string
	Detail    string
	Source    string
	SessionID string
}

// SessionParser incrementally tails every *.jsonl file under
// <openclawDir>/sessions, remembering a read offset per file so
// repeated calls only return newly appended lines.
type SessionParser struct {
	sessionsDir string
	offsets     map[string]int64
}

func NewSessionParser(openclawDir string) *SessionParser {
	return &SessionParser{
		sessionsDir: filepath.Join(openclawDir, "sessions"),
		offsets:     make(map[string]int64),
	}
}

func (p *SessionParser) ReadNewEvents() ([]NormalizedEvent, error) {
	var all []NormalizedEvent

	files, err := filepath.Glob(filepath.Join(p.sessionsDir, "*.jsonl"))
	if err != nil {
		return nil, err
	}

	for _, path := range files {
		events, err := p.readFile(path)
		if err != nil {
			logger.Core.Warn().Str("file", path).Err(err).Msg("monitor: session file read failed")
			continue
		}
		all = append(all, events...)
	}

	return all, nil
}

func (p *SessionParser) readFile(path string) ([]NormalizedEvent, error) {
	name := filepath.Base(path)
	offset := p.offsets[name]

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if offset > 0 {
		if _, err := f.Seek(offset, 0); err != nil {
			return nil, err
		}
	}

	var events []NormalizedEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 256*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var raw RawEvent
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			continue
		}
		if evt := normalizeEvent(raw); evt != nil {
			events = append(events, *evt)
		}
	}

	if pos, err := f.Seek(0, 1); err == nil {
		p.offsets[name] = pos
	}

	return events, scanner.Err()
}

func normalizeEvent(raw RawEvent) *NormalizedEvent {
	ts := parseTimestamp(raw.Timestamp)
	category := classifyCategory(raw.Tool)
	risk := assessRisk(raw.Tool, raw.Input)
	detail, _ := json.Marshal(raw)

	return &NormalizedEvent{
		EventID:   "evt_" + ts.Format("20060102150405") + "_" + sanitize(raw.Tool),
		Timestamp: ts,
		Category:  category,
		Risk:      risk,
		Summary:   buildSummary(raw),
		Detail:    string(detail),
		Source:    raw.Tool,
		SessionID: raw.SessionID,
	}
}

func classifyCategory(tool string) string {
	tool = strings.ToLower(tool)
	switch {
	case strings.Contains(tool, "bash"), strings.Contains(tool, "shell"), strings.Contains(tool, "command"):
		return CategoryShell
	case strings.Contains(tool, "file"), strings.Contains(tool, "read"), strings.Contains(tool, "write"), strings.Contains(tool, "edit"):
		return CategoryFile
	case strings.Contains(tool, "http"), strings.Contains(tool, "fetch"), strings.Contains(tool, "curl"), strings.Contains(tool, "network"):
		return CategoryNetwork
	case strings.Contains(tool, "browser"), strings.Contains(tool, "chrome"):
		return CategoryBrowser
	case strings.Contains(tool, "message"), strings.Contains(tool, "chat"), strings.Contains(tool, "telegram"), strings.Contains(tool, "slack"):
		return CategoryMessage
	case strings.Contains(tool, "memory"), strings.Contains(tool, "remember"):
		return CategoryMemory
	default:
		return CategorySystem
	}
}

func assessRisk(tool string, input map[string]interface{}) string {
	tool = strings.ToLower(tool)

	if strings.Contains(tool, "bash") || strings.Contains(tool, "shell") {
		cmd := strings.ToLower(extractCommand(input))
		for _, p := range []string{"rm -rf", "rm -r /", "mkfs", "dd if=", "chmod 777", "curl | sh", "wget | sh", "ssh ", "scp ", "rsync ", "> /dev/", "shutdown", "reboot", "passwd", "useradd", "userdel"} {
			if strings.Contains(cmd, p) {
				return RiskHigh
			}
		}
		for _, p := range []string{"sudo ", "pip install", "npm install", "apt install", "yum install", "brew install", "chmod ", "chown ", "kill "} {
			if strings.Contains(cmd, p) {
				return RiskMedium
			}
		}
	}

	if strings.Contains(tool, "http") || strings.Contains(tool, "fetch") {
		return RiskMedium
	}

	return RiskLow
}

func buildSummary(raw RawEvent) string {
	tool := raw.Tool
	if tool == "" {
		tool = raw.Type
	}
	if cmd := extractCommand(raw.Input); cmd != "" {
		if len(cmd) > 120 {
			cmd = cmd[:120] + "..."
		}
		return "ran " + cmd
	}
	if path, ok := raw.Input["path"].(string); ok {
		return tool + " -> " + path
	}
	if url, ok := raw.Input["url"].(string); ok {
		return tool + " -> " + url
	}
	return tool
}

func extractCommand(input map[string]interface{}) string {
	for _, key := range []string{"command", "cmd", "script", "code"} {
		if v, ok := input[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func parseTimestamp(s string) time.Time {
	formats := []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05Z", "2006-01-02T15:04:05", "2006-01-02 15:04:05"}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, ".", "_")
	s = strings.ReplaceAll(s, " ", "_")
	if len(s) > 20 {
		s = s[:20]
	}
	return s
}
