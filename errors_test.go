package sagabus

import (
	"errors"
	"strings"
	"testing"
)

func TestSagaBusErrorUnwrap(t *testing.T) {
	wrapped := NewError(ErrReplyTimeout, "no completed reply received within timeout", "r1", "s1")
	if !errors.Is(wrapped, ErrReplyTimeout) {
		t.Error("expected errors.Is to find ErrReplyTimeout through SagaBusError")
	}
}

func TestSagaBusErrorMessageIncludesIdentifiers(t *testing.T) {
	wrapped := NewError(ErrMissingField, "mission:start command missing correlation_id", "r1", "s1")
	msg := wrapped.Error()
	for _, want := range []string{"mission:start command missing correlation_id", "r1", "s1"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message %q missing %q", msg, want)
		}
	}
}

func TestSagaBusErrorWithoutIdentifiers(t *testing.T) {
	wrapped := NewError(ErrFatalConfig, "bad config", "", "")
	if wrapped.Error() != "bad config" {
		t.Errorf("expected bare message, got %q", wrapped.Error())
	}
}
