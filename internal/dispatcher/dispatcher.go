// Package dispatcher runs an agent turn end to end: resolving its
// session, invoking its provider, tailing OpenClaw's own runtime log
// for progress commentary, and recording the transcript.
package dispatcher

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"opengoat/internal/domain"
	"opengoat/internal/logger"
	"opengoat/internal/openclaw"
	"opengoat/internal/ports"
	"opengoat/internal/provider"
	"opengoat/internal/sessionstore"
)

// Hooks are the lifecycle callbacks runAgent emits. Any may be nil.
type Hooks struct {
	OnRunStarted                func(agent domain.Agent, sessionKey string)
	OnProviderInvocationComplete func(agent domain.Agent, result provider.InvokeResult)
	OnRunCompleted               func(agent domain.Agent, sessionKey string, result provider.InvokeResult)
	OnActivity                   func(agent domain.Agent, activity RuntimeActivity)
}

// RunOptions carries the optional fields accepted by RunAgent.
type RunOptions struct {
	Message     string
	SessionRef  string
	Cwd         string
	Images      []string
	Env         map[string]string
	AbortSignal <-chan struct{}
	Hooks       Hooks
	OnStdout    func(line string)
	OnStderr    func(line string)
}

// Dispatcher implements the SessionStore+Dispatcher component's
// runAgent pipeline.
type Dispatcher struct {
	fs        ports.FilesystemPort
	paths     ports.PathPort
	providers *provider.Registry
	sessions  *sessionstore.Store
	clock     ports.Clock
}

func New(fs ports.FilesystemPort, paths ports.PathPort, providers *provider.Registry, sessions *sessionstore.Store, clock ports.Clock) *Dispatcher {
	return &Dispatcher{fs: fs, paths: paths, providers: providers, sessions: sessions, clock: clock}
}

var ansiPattern = regexp.MustCompile("\x1b\\[[0-9;]*[a-zA-Z]")

func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

var runtimeNoisePrefixes = []string{
	"[openclaw]",
	"[embedded]",
	"DEBUG:",
}

func stripRuntimeNoise(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		noisy := false
		for _, prefix := range runtimeNoisePrefixes {
			if strings.HasPrefix(trimmed, prefix) {
				noisy = true
				break
			}
		}
		if !noisy {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

type gatewayEnvelope struct {
	RunID  string `json:"runId"`
	Status string `json:"status"`
	Result struct {
		Payloads []struct {
			Text string `json:"text"`
		} `json:"payloads"`
	} `json:"result"`
}

// finalizeOutput implements the gateway-envelope-or-plain-text
// resolution: if stdout parses as {runId,status,result.payloads[]},
// the joined payload text wins; otherwise the cleaned plain text wins.
func finalizeOutput(stdout string) string {
	var env gatewayEnvelope
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &env); err == nil && len(env.Result.Payloads) > 0 {
		parts := make([]string, 0, len(env.Result.Payloads))
		for _, p := range env.Result.Payloads {
			if p.Text != "" {
				parts = append(parts, p.Text)
			}
		}
		return strings.Join(parts, "\n\n")
	}
	return stripRuntimeNoise(stripANSI(stdout))
}

// RunAgent resolves the agent's provider and session, invokes the
// provider with merged environment, and records the exchange in the
// session transcript.
func (d *Dispatcher) RunAgent(ctx context.Context, agent domain.Agent, opts RunOptions) (provider.InvokeResult, error) {
	p, ok := d.providers.Get(agent.ProviderID)
	if !ok {
		return provider.InvokeResult{}, domain.Validationf("agent %q has unknown provider %q", agent.ID, agent.ProviderID)
	}
	profile := p.Descriptor().Profile

	sessionInfo, err := d.sessions.PrepareSession(agent, profile, sessionstore.PrepareOptions{
		SessionRef: opts.SessionRef,
	})
	if err != nil {
		return provider.InvokeResult{}, err
	}
	sessionKey := sessionInfo.Session.SessionKey

	if opts.Hooks.OnRunStarted != nil {
		opts.Hooks.OnRunStarted(agent, sessionKey)
	}

	_ = d.sessions.AppendTranscript(agent.ID, sessionKey, domain.TranscriptEntry{
		Type:      domain.EntryMessage,
		Role:      "user",
		Content:   opts.Message,
		Timestamp: d.clock.Now().UnixMilli(),
	})

	var tailer *RuntimeLogTailer
	var stopTail chan struct{}
	if p.Descriptor().ID == "openclaw" && opts.Hooks.OnActivity != nil {
		stateDir := openclaw.ResolveStateDir()
		if stateDir != "" {
			tailer = NewRuntimeLogTailer(runtimeLogPath(stateDir))
			stopTail = make(chan struct{})
			startedAtMs := d.clock.Now().UnixMilli()
			go d.tailRuntimeLog(agent, sessionInfo.Session.SessionID, tailer, startedAtMs, opts.Hooks.OnActivity, stopTail)
		}
	}

	cwd := opts.Cwd
	if cwd == "" {
		cwd = sessionInfo.Cwd
	}

	result, err := p.Invoke(ctx, provider.InvokeOptions{
		Agent:       agent,
		Message:     opts.Message,
		SessionRef:  sessionInfo.Session.SessionID,
		Cwd:         cwd,
		Env:         opts.Env,
		Images:      opts.Images,
		OnStdout:    opts.OnStdout,
		OnStderr:    opts.OnStderr,
		AbortSignal: opts.AbortSignal,
	})
	if stopTail != nil {
		close(stopTail)
	}
	if err != nil {
		logger.Core.Warn().Err(err).Str("agent_id", agent.ID).Msg("provider invocation failed")
		return provider.InvokeResult{}, err
	}

	if opts.Hooks.OnProviderInvocationComplete != nil {
		opts.Hooks.OnProviderInvocationComplete(agent, result)
	}

	finalText := finalizeOutput(result.Stdout)
	_ = d.sessions.AppendTranscript(agent.ID, sessionKey, domain.TranscriptEntry{
		Type:      domain.EntryMessage,
		Role:      "assistant",
		Content:   finalText,
		Timestamp: d.clock.Now().UnixMilli(),
	})

	if opts.Hooks.OnRunCompleted != nil {
		opts.Hooks.OnRunCompleted(agent, sessionKey, result)
	}

	result.Stdout = finalText
	return result, nil
}

func (d *Dispatcher) tailRuntimeLog(agent domain.Agent, runID string, tailer *RuntimeLogTailer, startedAtMs int64, onActivity func(domain.Agent, RuntimeActivity), stop <-chan struct{}) {
	fallback := ""
	ticker := time.NewTicker(750 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			activities, next, err := tailer.Poll(runID, fallback, startedAtMs)
			if err != nil {
				return
			}
			fallback = next
			for _, a := range activities {
				onActivity(agent, a)
			}
		}
	}
}
