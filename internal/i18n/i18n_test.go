package i18n

import "testing"

func TestInitIsIdempotent(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("Init() = %v, want nil", err)
	}
	if err := Init(); err != nil {
		t.Fatalf("Init() (second call) = %v, want nil", err)
	}
	langs := SupportedLanguages()
	if len(langs) != 2 {
		t.Fatalf("SupportedLanguages() = %v, want 2 languages", langs)
	}
}

func TestSetLanguageAndT(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("Init() = %v", err)
	}
	defer SetLanguage("en")

	SetLanguage("zh")
	if GetLanguage() != "zh" {
		t.Errorf("GetLanguage() = %q, want %q", GetLanguage(), "zh")
	}

	SetLanguage("unsupported-lang")
	if GetLanguage() != "zh" {
		t.Errorf("GetLanguage() = %q, want %q (SetLanguage should ignore unsupported codes)", GetLanguage(), "zh")
	}
}

func TestTReturnsKeyWhenMissing(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("Init() = %v", err)
	}
	if got := T("this.key.does.not.exist"); got != "this.key.does.not.exist" {
		t.Errorf("T(missing) = %q, want the key echoed back", got)
	}
}

func TestTranslateSubstitutesTemplateFields(t *testing.T) {
	msgs := map[string]string{"greeting": "hello {{.Name}}"}
	got := translate(msgs, "greeting", map[string]interface{}{"Name": "Alice"})
	if got != "hello Alice" {
		t.Errorf("translate() = %q, want %q", got, "hello Alice")
	}
}

func TestNormalizeLanguageHandlesVariants(t *testing.T) {
	cases := map[string]string{
		"ZH-CN": "zh",
		"en-US": "en",
		"":      "en",
	}
	for input, want := range cases {
		if got := normalizeLanguage(input); got != want {
			t.Errorf("normalizeLanguage(%q) = %q, want %q", input, got, want)
		}
	}
}
