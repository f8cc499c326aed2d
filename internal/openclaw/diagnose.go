package openclaw

import (
	"context"
	"net"
	"time"

	"opengoat/internal/ports"
)

// CheckStatus grades a single diagnostic as pass/warn/fail.
type CheckStatus string

const (
	CheckPass CheckStatus = "pass"
	CheckWarn CheckStatus = "warn"
	CheckFail CheckStatus = "fail"
)

// Check is a single named diagnostic result; Diagnose (reached through
// Service.Diagnose) runs a sequence of these and never aborts the
// sequence on one failure; each check is independent.
type Check struct {
	Name   string      `json:"name"`
	Status CheckStatus `json:"status"`
	Detail string      `json:"detail"`
}

// Report is the aggregate Diagnose result.
type Report struct {
	Items   []Check     `json:"items"`
	Summary CheckStatus `json:"summary"`
}

func worsen(current, candidate CheckStatus) CheckStatus {
	rank := map[CheckStatus]int{CheckPass: 0, CheckWarn: 1, CheckFail: 2}
	if rank[candidate] > rank[current] {
		return candidate
	}
	return current
}

// Diagnose runs the OpenClaw-facing health checks: binary resolvable,
// config file present, (if a gateway host:port is configured) the
// gateway port reachable over TCP, and the plugin directory resolvable.
func Diagnose(ctx context.Context, fs ports.FilesystemPort, gatewayHostPort string) *Report {
	report := &Report{Summary: CheckPass}

	add := func(c Check) {
		report.Items = append(report.Items, c)
		report.Summary = worsen(report.Summary, c.Status)
	}

	if bin := ResolveBinary(); bin != "" {
		add(Check{Name: "openclaw_binary", Status: CheckPass, Detail: "resolved: " + bin})
	} else {
		add(Check{Name: "openclaw_binary", Status: CheckFail, Detail: "no openclaw binary found on PATH or OPENCLAW_CMD"})
	}

	if ConfigFileExists() {
		add(Check{Name: "openclaw_config", Status: CheckPass, Detail: ResolveConfigPath()})
	} else {
		add(Check{Name: "openclaw_config", Status: CheckWarn, Detail: "no openclaw.json found at " + ResolveConfigPath()})
	}

	if gatewayHostPort != "" {
		d := net.Dialer{Timeout: 3 * time.Second}
		conn, err := d.DialContext(ctx, "tcp", gatewayHostPort)
		if err != nil {
			add(Check{Name: "gateway_port", Status: CheckFail, Detail: err.Error()})
		} else {
			conn.Close()
			add(Check{Name: "gateway_port", Status: CheckPass, Detail: "reachable: " + gatewayHostPort})
		}
	}

	if pluginPath := ResolvePluginPath(); pluginPath != "" {
		add(Check{Name: "plugin_path", Status: CheckPass, Detail: pluginPath})
	} else {
		add(Check{Name: "plugin_path", Status: CheckWarn, Detail: "could not resolve openclaw plugin directory"})
	}

	return report
}
