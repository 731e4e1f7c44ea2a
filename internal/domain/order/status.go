package order

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of an order.
//
//	Pending ──> Processing ──> Out for Delivery ──> Delivered
//	   │             │                 │
//	   └─────────────┴─────────────────┴──> Cancelled
//
// Delivered and Cancelled are terminal.
type Status string

const (
	StatusPending        Status = "Pending"
	StatusProcessing     Status = "Processing"
	StatusOutForDelivery Status = "Out for Delivery"
	StatusDelivered      Status = "Delivered"
	StatusCancelled      Status = "Cancelled"
)

// forward holds the single non-cancelling successor of each state.
var forward = map[Status]Status{
	StatusPending:        StatusProcessing,
	StatusProcessing:     StatusOutForDelivery,
	StatusOutForDelivery: StatusDelivered,
}

// InvalidStatusError indicates a status name outside the known set.
type InvalidStatusError struct {
	Value string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid order status %q", e.Value)
}

// InvalidTransitionError indicates a status change the state graph forbids.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	if e.From.IsTerminal() {
		return fmt.Sprintf("order is %s and can no longer change status", e.From)
	}
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}

// ParseStatus resolves a status name, ignoring case and surrounding spaces.
func ParseStatus(s string) (Status, error) {
	v := strings.TrimSpace(s)
	for _, st := range All() {
		if strings.EqualFold(v, string(st)) {
			return st, nil
		}
	}
	return "", &InvalidStatusError{Value: s}
}

// All lists every status in lifecycle order.
func All() []Status {
	return []Status{StatusPending, StatusProcessing, StatusOutForDelivery, StatusDelivered, StatusCancelled}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusOutForDelivery, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Next returns the statuses reachable from s in one step.
func (s Status) Next() []Status {
	if !s.Valid() || s.IsTerminal() {
		return nil
	}
	return []Status{forward[s], StatusCancelled}
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s Status) CanTransitionTo(next Status) bool {
	if !s.Valid() || s.IsTerminal() {
		return false
	}
	return next == StatusCancelled || forward[s] == next
}

// TransitionTo validates the move from s to next and returns next.
func (s Status) TransitionTo(next Status) (Status, error) {
	if !next.Valid() {
		return "", &InvalidStatusError{Value: string(next)}
	}
	if !s.CanTransitionTo(next) {
		return "", &InvalidTransitionError{From: s, To: next}
	}
	return next, nil
}
