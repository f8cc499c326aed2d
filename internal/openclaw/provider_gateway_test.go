package openclaw

import (
	"testing"

	"opengoat/internal/domain"
)

func TestGatewayProviderDescriptor(t *testing.T) {
	p := NewGatewayProvider(nil)
	d := p.Descriptor()
	if d.Kind != domain.ProviderKindAgent {
		t.Errorf("Kind = %q, want %q", d.Kind, domain.ProviderKindAgent)
	}
	if d.DisplayName != "OpenClaw (gateway)" {
		t.Errorf("DisplayName = %q, want %q", d.DisplayName, "OpenClaw (gateway)")
	}
}

func TestJoinPayloadTextJoinsNonEmptyPayloadsWithBlankLine(t *testing.T) {
	payloads := []struct {
		Text string `json:"text"`
	}{
		{Text: "first"},
		{Text: ""},
		{Text: "second"},
	}
	got := joinPayloadText(payloads)
	want := "first\n\nsecond"
	if got != want {
		t.Errorf("joinPayloadText() = %q, want %q", got, want)
	}
}

func TestJoinPayloadTextEmpty(t *testing.T) {
	if got := joinPayloadText(nil); got != "" {
		t.Errorf("joinPayloadText(nil) = %q, want empty", got)
	}
}
