package envutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteAndLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	values := map[string]string{
		"STAFFSUITE_TEST_A": "alpha",
		"STAFFSUITE_TEST_B": "has space",
	}
	if err := WriteDotEnv(path, values, false); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteDotEnv(path, values, false); err == nil {
		t.Fatalf("expected refusal to overwrite without force")
	}

	t.Setenv("STAFFSUITE_TEST_A", "preset")
	t.Setenv("STAFFSUITE_TEST_B", "")
	os.Unsetenv("STAFFSUITE_TEST_B")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("STAFFSUITE_TEST_A"); got != "preset" {
		t.Fatalf("expected existing env to win, got %q", got)
	}
	if got := os.Getenv("STAFFSUITE_TEST_B"); got != "has space" {
		t.Fatalf("expected value from file, got %q", got)
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("expected missing file to be ignored, got %v", err)
	}
}

func TestTypedGetters(t *testing.T) {
	t.Setenv("STAFFSUITE_TEST_DUR", "45")
	if d, err := Duration("STAFFSUITE_TEST_DUR", time.Second); err != nil || d != 45*time.Second {
		t.Fatalf("unexpected duration %v %v", d, err)
	}
	t.Setenv("STAFFSUITE_TEST_DUR", "1m30s")
	if d, err := Duration("STAFFSUITE_TEST_DUR", time.Second); err != nil || d != 90*time.Second {
		t.Fatalf("unexpected duration %v %v", d, err)
	}
	t.Setenv("STAFFSUITE_TEST_BOOL", "nope")
	if _, err := Bool("STAFFSUITE_TEST_BOOL", false); err == nil {
		t.Fatalf("expected bool parse error")
	}
	if got := String("STAFFSUITE_TEST_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("unexpected fallback %q", got)
	}
}
