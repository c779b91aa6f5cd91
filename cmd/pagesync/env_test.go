package main

import (
	"os"
	"testing"
	"time"
)

func TestIntEnvParsesValue(t *testing.T) {
	t.Setenv("PAGESYNC_TEST_INT", "42")
	got := intEnv("PAGESYNC_TEST_INT", 7)
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestIntEnvFallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("PAGESYNC_TEST_INT_BAD", "not-a-number")
	got := intEnv("PAGESYNC_TEST_INT_BAD", 7)
	if got != 7 {
		t.Fatalf("expected fallback 7, got %d", got)
	}
}

func TestInt64EnvParsesValue(t *testing.T) {
	t.Setenv("PAGESYNC_TEST_INT64", "4096")
	if got := int64Env("PAGESYNC_TEST_INT64", 1); got != 4096 {
		t.Fatalf("expected 4096, got %d", got)
	}
}

func TestDurationEnvParsesValue(t *testing.T) {
	t.Setenv("PAGESYNC_TEST_DURATION", "150ms")
	got := durationEnv("PAGESYNC_TEST_DURATION", time.Second)
	if got != 150*time.Millisecond {
		t.Fatalf("expected 150ms, got %s", got)
	}
}

func TestDurationEnvFallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("PAGESYNC_TEST_DURATION_BAD", "soon")
	got := durationEnv("PAGESYNC_TEST_DURATION_BAD", 2*time.Second)
	if got != 2*time.Second {
		t.Fatalf("expected fallback 2s, got %s", got)
	}
}

func TestBoolEnv(t *testing.T) {
	t.Setenv("PAGESYNC_TEST_BOOL", "true")
	if !boolEnv("PAGESYNC_TEST_BOOL", false) {
		t.Fatalf("expected true")
	}
	t.Setenv("PAGESYNC_TEST_BOOL_BAD", "maybe")
	if !boolEnv("PAGESYNC_TEST_BOOL_BAD", true) {
		t.Fatalf("expected fallback true")
	}
}

func TestEnvHelpersUseFallbackWhenUnset(t *testing.T) {
	_ = os.Unsetenv("PAGESYNC_TEST_INT_UNSET")
	_ = os.Unsetenv("PAGESYNC_TEST_DURATION_UNSET")
	_ = os.Unsetenv("PAGESYNC_TEST_STRING_UNSET")

	if got := intEnv("PAGESYNC_TEST_INT_UNSET", 9); got != 9 {
		t.Fatalf("expected fallback 9, got %d", got)
	}
	if got := durationEnv("PAGESYNC_TEST_DURATION_UNSET", 3*time.Second); got != 3*time.Second {
		t.Fatalf("expected fallback 3s, got %s", got)
	}
	if got := envOrDefault("PAGESYNC_TEST_STRING_UNSET", "x"); got != "x" {
		t.Fatalf("expected fallback x, got %q", got)
	}
}
