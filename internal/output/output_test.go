package output

import (
	"bytes"
	"io"
	"os"
	"testing"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe() = %v", err)
	}
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	w.Close()
	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

func TestDebugfSuppressedWithoutEnv(t *testing.T) {
	t.Setenv("OPENGOAT_DEBUG", "")
	out := captureStdout(t, func() { Debugf("hello %s", "world") })
	if out != "" {
		t.Errorf("Debugf() wrote %q, want nothing when OPENGOAT_DEBUG is unset", out)
	}
}

func TestDebugfPrintsWhenEnabled(t *testing.T) {
	t.Setenv("OPENGOAT_DEBUG", "1")
	out := captureStdout(t, func() { Debugf("hello %s", "world") })
	if out != "[debug] hello world\n" {
		t.Errorf("Debugf() = %q, want [debug] hello world", out)
	}
}

func TestInfofAlwaysPrints(t *testing.T) {
	t.Setenv("OPENGOAT_DEBUG", "")
	out := captureStdout(t, func() { Infof("plain %d", 7) })
	if out != "plain 7\n" {
		t.Errorf("Infof() = %q, want plain 7", out)
	}
}
