package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormattingIncludesScopeAndEvent(t *testing.T) {
	err := New(
		"claimstore/postgres",
		CodeStore,
		WithHTTP(500),
		WithMessage("conditional update failed"),
		WithEventID("evt_123"),
		WithCause(errors.New("connection reset")),
	)

	out := err.Error()
	if !strings.Contains(out, "scope=claimstore/postgres") {
		t.Fatalf("expected scope marker in error string: %s", out)
	}
	if !strings.Contains(out, "code=store_error") {
		t.Fatalf("expected code in error string: %s", out)
	}
	if !strings.Contains(out, "event=evt_123") {
		t.Fatalf("expected event marker in error string: %s", out)
	}
	if !strings.Contains(out, "message=\"conditional update failed\"") {
		t.Fatalf("expected message in error string: %s", out)
	}
	if !strings.Contains(out, "cause=\"connection reset\"") {
		t.Fatalf("expected wrapped cause in error string: %s", out)
	}
}

func TestHasCodeMatchesThroughWrapping(t *testing.T) {
	base := New("engine/claim", CodeConflict, WithEventID("evt_9"))
	wrapped := fmt.Errorf("claim webhook event: %w", base)

	if !HasCode(wrapped, CodeConflict) {
		t.Fatalf("expected conflict code to match through wrapping")
	}
	if HasCode(wrapped, CodeStore) {
		t.Fatalf("unexpected store code match")
	}
	if HasCode(errors.New("plain"), CodeConflict) {
		t.Fatalf("plain errors must not match any code")
	}
}

func TestHTTPStatusFallsBackWhenUnset(t *testing.T) {
	tagged := New("webhook/verify", CodeAuth, WithHTTP(400))
	if got := HTTPStatus(fmt.Errorf("reject delivery: %w", tagged), 500); got != 400 {
		t.Fatalf("expected recorded status 400, got %d", got)
	}
	untagged := New("engine/claim", CodeStore)
	if got := HTTPStatus(untagged, 500); got != 500 {
		t.Fatalf("expected fallback 500 for envelope without status, got %d", got)
	}
	if got := HTTPStatus(errors.New("plain"), 503); got != 503 {
		t.Fatalf("expected fallback 503 for plain error, got %d", got)
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("row missing")
	err := New("claimstore/memory", CodeNotFound, WithCause(cause))
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to reach the cause")
	}
}

func TestNilErrorString(t *testing.T) {
	var e *E
	if got := e.Error(); got != "<nil>" {
		t.Fatalf("expected <nil> string for nil error, got %q", got)
	}
}
