package i18n

import "testing"

func TestSelectLanguageWithTimeoutSkipsPromptWhenStdinNotATerminal(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("Init() = %v, want nil", err)
	}
	t.Setenv("OPENGOAT_LANG", "zh_CN.UTF-8")

	// go test's stdin is never a terminal, so the countdown prompt must be
	// skipped and the system-detected default returned immediately.
	got := SelectLanguageWithTimeout(30)
	if got != "zh" {
		t.Errorf("SelectLanguageWithTimeout() = %q, want %q", got, "zh")
	}
	if GetLanguage() != "zh" {
		t.Errorf("GetLanguage() = %q, want %q", GetLanguage(), "zh")
	}
}

func TestParseLanguageInputRecognizesAliases(t *testing.T) {
	cases := map[string]string{
		"1":       "en",
		"en":      "en",
		"english": "en",
		"e":       "en",
		"2":       "zh",
		"zh":      "zh",
		"chinese": "zh",
		"中文":      "zh",
		"c":       "zh",
		"":        "en",
		"bogus":   "en",
	}
	for input, want := range cases {
		if got := parseLanguageInput(input, "en"); got != want {
			t.Errorf("parseLanguageInput(%q) = %q, want %q", input, got, want)
		}
	}
}
