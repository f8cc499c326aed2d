package domain

import (
	"errors"
	"testing"
)

func TestIsMatchesKind(t *testing.T) {
	err := NotFoundf("agent %q not found", "ceo")
	if !Is(err, KindNotFound) {
		t.Errorf("Is(err, KindNotFound) = false, want true")
	}
	if Is(err, KindValidation) {
		t.Errorf("Is(err, KindValidation) = true, want false")
	}
}

func TestIsRejectsPlainErrors(t *testing.T) {
	if Is(errors.New("boom"), KindFatal) {
		t.Errorf("Is(plain error, KindFatal) = true, want false")
	}
}

func TestWrapErrorUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapError(KindFatal, "write agent config", cause)

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(err, cause) = false, want true")
	}
	want := "fatal: write agent config: disk full"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestValidationfFormats(t *testing.T) {
	err := Validationf("display name %q does not derive a valid agent id", "***")
	want := `validation: display name "***" does not derive a valid agent id`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
