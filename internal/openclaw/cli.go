package openclaw

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"opengoat/internal/logger"
)

// RunCLI invokes the resolved openclaw binary with args and returns its
// trimmed combined output. Errors are wrapped with the binary, args,
// and output for context.
func RunCLI(ctx context.Context, args ...string) (string, error) {
	cmd := ResolveBinary()
	if cmd == "" {
		return "", fmt.Errorf("openclaw binary not found (set OPENCLAW_CMD or install openclaw)")
	}
	c := exec.CommandContext(ctx, cmd, args...)
	out, err := c.CombinedOutput()
	trimmed := strings.TrimSpace(string(out))
	if err != nil {
		return trimmed, fmt.Errorf("%s %s: %s", cmd, strings.Join(args, " "), trimmed)
	}
	return trimmed, nil
}

// RunCLIJSON runs args and defensively extracts the first balanced JSON
// value from the output, scanning linewise past any noisy prefix lines
// ("Config warnings: ...") the CLI may emit before the payload, per
// convention.
func RunCLIJSON(ctx context.Context, args ...string) (json.RawMessage, error) {
	out, err := RunCLI(ctx, args...)
	if err != nil && out == "" {
		return nil, err
	}
	raw, perr := ExtractJSON(out)
	if perr != nil {
		if err != nil {
			return nil, err
		}
		return nil, perr
	}
	return raw, nil
}

// ExtractJSON scans text linewise for the first value that parses as a
// balanced JSON object or array, ignoring any preceding noise lines.
// It never leaks the noise prefix into the returned value.
func ExtractJSON(text string) (json.RawMessage, error) {
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var rest strings.Builder
	started := false
	for scanner.Scan() {
		line := scanner.Text()
		if !started {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
				logger.OpenClaw.Debug().Str("line", trimmed).Msg("ignoring non-JSON prefix line from openclaw output")
				continue
			}
			started = true
		}
		rest.WriteString(line)
		rest.WriteByte('\n')
	}

	candidate := strings.TrimSpace(rest.String())
	if candidate == "" {
		return nil, fmt.Errorf("no JSON payload found in openclaw output")
	}

	end := balancedJSONEnd(candidate)
	if end < 0 {
		return nil, fmt.Errorf("unbalanced JSON payload in openclaw output")
	}
	value := candidate[:end]

	var probe interface{}
	if err := json.Unmarshal([]byte(value), &probe); err != nil {
		return nil, fmt.Errorf("invalid JSON payload from openclaw: %w", err)
	}
	return json.RawMessage(value), nil
}

// balancedJSONEnd returns the index one past the end of the first
// balanced {...} or [...] value in s, or -1 if none closes.
func balancedJSONEnd(s string) int {
	if len(s) == 0 {
		return -1
	}
	open := s[0]
	if open != '{' && open != '[' {
		return -1
	}
	close := byte('}')
	if open == '[' {
		close = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

func ConfigSet(ctx context.Context, key, jsonValue string) error {
	_, err := RunCLI(ctx, "config", "set", key, jsonValue, "--json")
	return err
}

func DefaultTimeout() time.Duration {
	return 30 * time.Second
}
