package record

import (
	"errors"
	"testing"
)

func TestTransitionLegal(t *testing.T) {
	legal := []struct{ from, to Status }{
		{StatusPending, StatusInProgress},
		{StatusPending, StatusCancelled},
		{StatusInProgress, StatusWaitingReview},
		{StatusInProgress, StatusOverdue},
		{StatusInProgress, StatusCompleted},
		{StatusWaitingReview, StatusWaitingApproval},
		{StatusWaitingApproval, StatusCompleted},
		{StatusOverdue, StatusInProgress},
	}
	for _, tc := range legal {
		if err := Transition(tc.from, tc.to); err != nil {
			t.Errorf("Transition(%s, %s): %v", tc.from, tc.to, err)
		}
	}
}

func TestTransitionIllegal(t *testing.T) {
	err := Transition(StatusPending, StatusCompleted)
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if ite.From != StatusPending || ite.To != StatusCompleted {
		t.Fatalf("unexpected error fields: %+v", ite)
	}
	if len(ite.Allowed) == 0 {
		t.Fatal("expected allowed states for non-terminal source")
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusFailed, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
		err := Transition(s, StatusInProgress)
		var ite *InvalidTransitionError
		if !errors.As(err, &ite) {
			t.Fatalf("expected InvalidTransitionError from %s, got %v", s, err)
		}
		if len(ite.Allowed) != 0 {
			t.Errorf("terminal state %s should allow nothing, got %v", s, ite.Allowed)
		}
	}
}

func TestTransitionUnknownStatus(t *testing.T) {
	if err := Transition("bogus", StatusCompleted); err == nil {
		t.Fatal("expected error for unknown source status")
	}
	if err := Transition(StatusPending, "bogus"); err == nil {
		t.Fatal("expected error for unknown target status")
	}
}

func TestParse(t *testing.T) {
	s, err := Parse("  In_Progress ")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s != StatusInProgress {
		t.Fatalf("got %s", s)
	}
	if _, err := Parse("nope"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestAllowedReturnsCopy(t *testing.T) {
	first := Allowed(StatusPending)
	first[0] = "mutated"
	second := Allowed(StatusPending)
	if second[0] == "mutated" {
		t.Fatal("Allowed must not expose internal state")
	}
}
