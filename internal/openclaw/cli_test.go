package openclaw

import "testing"

func TestExtractJSONSkipsNoisePrefixLines(t *testing.T) {
	input := "Config warnings: none\n" + `{"agents":[{"id":"a1"}]}` + "\n"
	raw, err := ExtractJSON(input)
	if err != nil {
		t.Fatalf("ExtractJSON() = %v, want nil", err)
	}
	if string(raw) != `{"agents":[{"id":"a1"}]}` {
		t.Errorf("ExtractJSON() = %s, want the bare JSON object", raw)
	}
}

func TestExtractJSONHandlesArrays(t *testing.T) {
	raw, err := ExtractJSON(`[1,2,3]`)
	if err != nil {
		t.Fatalf("ExtractJSON() = %v, want nil", err)
	}
	if string(raw) != "[1,2,3]" {
		t.Errorf("ExtractJSON() = %s, want [1,2,3]", raw)
	}
}

func TestExtractJSONErrorsWhenNoPayload(t *testing.T) {
	if _, err := ExtractJSON("just some plain text\nmore text"); err == nil {
		t.Error("ExtractJSON() = nil, want error for missing JSON payload")
	}
}

func TestExtractJSONErrorsOnUnbalancedPayload(t *testing.T) {
	if _, err := ExtractJSON(`{"a": 1`); err == nil {
		t.Error("ExtractJSON() = nil, want error for unbalanced payload")
	}
}

func TestExtractJSONIgnoresBracesInsideStrings(t *testing.T) {
	raw, err := ExtractJSON(`{"msg": "looks like a brace } but isn't"}`)
	if err != nil {
		t.Fatalf("ExtractJSON() = %v, want nil", err)
	}
	if string(raw) != `{"msg": "looks like a brace } but isn't"}` {
		t.Errorf("ExtractJSON() = %s, want the full balanced object", raw)
	}
}

func TestDefaultTimeoutIsPositive(t *testing.T) {
	if DefaultTimeout() <= 0 {
		t.Error("DefaultTimeout() should be a positive duration")
	}
}
