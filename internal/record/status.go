// Package record defines the lifecycle contract shared by every workflow
// bearing domain record: the status machine and the updated_at stamping
// rule. Stores funnel all mutations through these checks so the invariants
// hold in code review, not in database triggers.
package record

import (
	"fmt"
	"strings"
)

// Status is a workflow state.
type Status string

const (
	StatusPending         Status = "pending"
	StatusInProgress      Status = "in_progress"
	StatusWaitingReview   Status = "waiting_review"
	StatusWaitingApproval Status = "waiting_approval"
	StatusOverdue         Status = "overdue"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusCancelled       Status = "cancelled"
)

// transitions lists the legal next states per state. Terminal states have no
// entry: nothing leaves completed, failed or cancelled.
var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusWaitingReview, StatusOverdue, StatusCompleted, StatusFailed, StatusCancelled},
	StatusWaitingReview: {
		StatusWaitingApproval, StatusInProgress, StatusCancelled,
	},
	StatusWaitingApproval: {
		StatusCompleted, StatusInProgress, StatusCancelled,
	},
	StatusOverdue: {StatusInProgress, StatusCompleted, StatusFailed, StatusCancelled},
}

// Known reports whether s is a declared status value.
func Known(s Status) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusWaitingReview, StatusWaitingApproval,
		StatusOverdue, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Parse normalizes and validates a status string.
func Parse(raw string) (Status, error) {
	s := Status(strings.TrimSpace(strings.ToLower(raw)))
	if !Known(s) {
		return "", fmt.Errorf("record: unknown status %q", raw)
	}
	return s, nil
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0 && Known(s)
}

// Allowed returns the legal next states from s.
func Allowed(from Status) []Status {
	next := transitions[from]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// InvalidTransitionError reports a rejected workflow transition together
// with the states that would have been accepted.
type InvalidTransitionError struct {
	From    Status
	To      Status
	Allowed []Status
}

func (e *InvalidTransitionError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("record: %s is terminal, no transition to %s", e.From, e.To)
	}
	names := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		names[i] = string(s)
	}
	return fmt.Sprintf("record: cannot transition %s -> %s (allowed: %s)", e.From, e.To, strings.Join(names, ", "))
}

// Transition validates a status change. It returns *InvalidTransitionError
// when the change is not legal from the current state.
func Transition(from, to Status) error {
	if !Known(from) {
		return fmt.Errorf("record: unknown status %q", from)
	}
	if !Known(to) {
		return fmt.Errorf("record: unknown status %q", to)
	}
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return &InvalidTransitionError{From: from, To: to, Allowed: Allowed(from)}
}
