package openclaw

import (
	"context"
	"encoding/json"
	"fmt"

	"opengoat/internal/domain"
	"opengoat/internal/provider"
)

// GatewayProvider invokes OpenClaw over its HTTP/WebSocket gateway
// used when OpenGoat is configured to reach OpenClaw over its
// WebSocket gateway rather than by shelling out to a local binary.
type GatewayProvider struct {
	client  *GWClient
	profile domain.RuntimeProfile
}

func NewGatewayProvider(client *GWClient) *GatewayProvider {
	return &GatewayProvider{
		client: client,
		profile: domain.RuntimeProfile{
			WorkingDirPolicy: domain.WorkingDirAgentWorkspace,
			SkillDirs:        []string{"skills"},
			RoleSkillIDs: map[domain.AgentType]string{
				domain.AgentTypeManager:    "og-board-manager",
				domain.AgentTypeIndividual: "og-board-individual",
			},
		},
	}
}

func (p *GatewayProvider) Descriptor() domain.ProviderDescriptor {
	return domain.ProviderDescriptor{
		ID:          "openclaw",
		DisplayName: "OpenClaw (gateway)",
		Kind:        domain.ProviderKindAgent,
		Capabilities: domain.Capabilities{
			Agent:       true,
			Reportees:   true,
			AgentCreate: true,
			AgentDelete: true,
		},
		Profile: p.profile,
	}
}

type runInvokeParams struct {
	AgentID    string `json:"agentId"`
	Message    string `json:"message"`
	SessionRef string `json:"sessionRef,omitempty"`
}

// gatewayEnvelope is the JSON envelope a gateway run reply is wrapped
// in: {runId,status,result.payloads:[{text}]}.
type gatewayEnvelope struct {
	RunID  string `json:"runId"`
	Status string `json:"status"`
	Result struct {
		Payloads []struct {
			Text string `json:"text"`
		} `json:"payloads"`
	} `json:"result"`
}

func (p *GatewayProvider) Invoke(ctx context.Context, opts provider.InvokeOptions) (provider.InvokeResult, error) {
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

	raw, err := p.client.Call(ctx, "run.invoke", runInvokeParams{
		AgentID:    opts.Agent.ID,
		Message:    opts.Message,
		SessionRef: opts.SessionRef,
	})
	if err != nil {
		if ctx.Err() != nil {
			return provider.InvokeResult{Code: 1, Stderr: "aborted", ProviderID: "openclaw"}, nil
		}
		return provider.InvokeResult{}, err
	}

	var env gatewayEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return provider.InvokeResult{Code: 0, Stdout: string(raw), ProviderID: "openclaw"}, nil
	}

	text := joinPayloadText(env.Result.Payloads)
	if opts.OnStdout != nil && text != "" {
		opts.OnStdout(text)
	}
	return provider.InvokeResult{
		Code:              0,
		Stdout:            text,
		ProviderID:        "openclaw",
		ProviderSessionID: env.RunID,
	}, nil
}

func joinPayloadText(payloads []struct {
	Text string `json:"text"`
}) string {
	out := ""
	for i, p := range payloads {
		if p.Text == "" {
			continue
		}
		if i > 0 && out != "" {
			out += "\n\n"
		}
		out += p.Text
	}
	return out
}

func (p *GatewayProvider) CreateAgent(ctx context.Context, opts provider.CreateAgentOptions) error {
	_, err := p.client.Call(ctx, "agents.create", map[string]string{
		"id":        opts.Agent.ID,
		"workspace": opts.WorkspacePath,
	})
	return err
}

func (p *GatewayProvider) DeleteAgent(ctx context.Context, agentID string, force bool) error {
	_, err := p.client.Call(ctx, "agents.delete", map[string]interface{}{
		"id":    agentID,
		"force": force,
	})
	if err != nil && !force {
		return fmt.Errorf("openclaw gateway delete agent %s: %w", agentID, err)
	}
	return err
}
