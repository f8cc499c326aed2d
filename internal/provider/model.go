package provider

import (
	"context"
	"fmt"

	"opengoat/internal/domain"
	"opengoat/internal/ports"
)

// ModelProvider adapts a plain CLI binary (Codex, Claude-Code, ...)
// that has no agent-inventory concept of its own: no reportees
// capability, no createAgent/deleteAgent. Invocation runs the binary
// with the message as a --message argument and streams stdout/stderr.
type ModelProvider struct {
	id      string
	binary  string
	runner  ports.CommandRunner
	profile domain.RuntimeProfile
}

func NewModelProvider(id, binary string, runner ports.CommandRunner) *ModelProvider {
	return &ModelProvider{
		id:     id,
		binary: binary,
		runner: runner,
		profile: domain.RuntimeProfile{
			WorkingDirPolicy: domain.WorkingDirAgentWorkspace,
			SkillDirs:        []string{".agents/skills"},
			RoleSkillIDs: map[domain.AgentType]string{
				domain.AgentTypeManager:    "og-board-manager",
				domain.AgentTypeIndividual: "og-board-individual",
			},
		},
	}
}

func (p *ModelProvider) Descriptor() domain.ProviderDescriptor {
	return domain.ProviderDescriptor{
		ID:          p.id,
		DisplayName: p.id,
		Kind:        domain.ProviderKindModel,
		Capabilities: domain.Capabilities{
			Model:       true,
			Passthrough: true,
		},
		Profile: p.profile,
	}
}

func (p *ModelProvider) Invoke(ctx context.Context, opts InvokeOptions) (InvokeResult, error) {
	env := make([]string, 0, len(opts.Env))
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}

	if opts.AbortSignal != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-opts.AbortSignal:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	result, err := p.runner.Run(ctx, ports.RunOptions{
		Binary:   p.binary,
		Args:     []string{"--message", opts.Message},
		Dir:      opts.Cwd,
		Env:      env,
		OnStdout: opts.OnStdout,
		OnStderr: opts.OnStderr,
	})

	res := InvokeResult{
		Code:       result.Code,
		Stdout:     result.Stdout,
		Stderr:     result.Stderr,
		ProviderID: p.id,
	}
	if err != nil && ctx.Err() != nil {
		res.Stderr = res.Stderr + " aborted"
		return res, nil
	}
	return res, err
}

func (p *ModelProvider) CreateAgent(ctx context.Context, opts CreateAgentOptions) error {
	return fmt.Errorf("provider %s does not support agent creation", p.id)
}

func (p *ModelProvider) DeleteAgent(ctx context.Context, agentID string, force bool) error {
	return fmt.Errorf("provider %s does not support agent deletion", p.id)
}
