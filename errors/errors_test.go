package errors

import (
	"fmt"
	"testing"
)

func TestWardenError(t *testing.T) {
	// Test basic error creation
	err := New(ErrCodeRunNotFound, "run not found")
	if err.Code != ErrCodeRunNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeRunNotFound, err.Code)
	}

	// Test error wrapping
	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, ErrCodeSpawnFailed, "spawn failed")

	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	// Test Is function
	if !Is(wrapped, ErrCodeSpawnFailed) {
		t.Error("Is should return true for matching code")
	}

	if Is(wrapped, ErrCodeRunNotFound) {
		t.Error("Is should return false for non-matching code")
	}

	// Test WithDetail
	detailed := err.WithDetail("runId", "run-20240101-120000").WithDetail("attempt", 2)
	if detailed.Details["runId"] != "run-20240101-120000" {
		t.Error("WithDetail should add details")
	}
}

func TestErrorConstructors(t *testing.T) {
	// Test NoLiveSession
	err := NoLiveSession("run-20240101-120000")
	if err.Code != ErrCodeNoLiveSession {
		t.Errorf("expected code %s, got %s", ErrCodeNoLiveSession, err.Code)
	}
	if err.Details["runId"] != "run-20240101-120000" {
		t.Error("NoLiveSession should include runId detail")
	}

	// Test ExecutableMissing
	err = ExecutableMissing("/usr/local/bin/agent")
	if err.Code != ErrCodeExecutableMissing {
		t.Errorf("expected code %s, got %s", ErrCodeExecutableMissing, err.Code)
	}
	if err.Details["path"] != "/usr/local/bin/agent" {
		t.Error("ExecutableMissing should include path detail")
	}
}

func TestGetCodeUnwrapsStandardWrapping(t *testing.T) {
	inner := SpawnFailed("/bin/agent", fmt.Errorf("no such file"))
	outer := fmt.Errorf("dispatch: %w", inner)

	if GetCode(outer) != ErrCodeSpawnFailed {
		t.Errorf("expected %s, got %s", ErrCodeSpawnFailed, GetCode(outer))
	}
}
