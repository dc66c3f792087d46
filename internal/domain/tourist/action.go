package tourist

import "fmt"

// Action is the kind of ledger operation a WorkItem requests.
type Action string

const (
	ActionRegister  Action = "register"
	ActionUpdate    Action = "update"
	ActionPanic     Action = "panic"
	ActionScore     Action = "score"
	ActionVerifyKYC Action = "verify_kyc"
)

// AllActions lists every action in declaration order.
func AllActions() []Action {
	return []Action{ActionRegister, ActionUpdate, ActionPanic, ActionScore, ActionVerifyKYC}
}

// ParseAction converts a stored or user supplied string into an Action.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.IsValid() {
		return "", fmt.Errorf("unknown work item action %q", s)
	}
	return a, nil
}

// IsValid reports whether a is one of the declared actions.
func (a Action) IsValid() bool {
	switch a {
	case ActionRegister, ActionUpdate, ActionPanic, ActionScore, ActionVerifyKYC:
		return true
	}
	return false
}

// SubmitsToLedger reports whether the action results in a ledger call.
// Panic events stay off-chain and KYC verification has no contract entry point.
func (a Action) SubmitsToLedger() bool {
	switch a {
	case ActionRegister, ActionUpdate, ActionScore:
		return true
	case ActionPanic, ActionVerifyKYC:
		return false
	}
	return false
}

func (a Action) String() string {
	return string(a)
}

// WorkItemStatus is the lifecycle state of a WorkItem.
type WorkItemStatus string

const (
	StatusPending   WorkItemStatus = "pending"
	StatusSubmitted WorkItemStatus = "submitted"
	StatusConfirmed WorkItemStatus = "confirmed"
	StatusFailed    WorkItemStatus = "failed"
)

// ParseWorkItemStatus converts a stored string into a WorkItemStatus.
func ParseWorkItemStatus(s string) (WorkItemStatus, error) {
	st := WorkItemStatus(s)
	switch st {
	case StatusPending, StatusSubmitted, StatusConfirmed, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown work item status %q", s)
}

// IsTerminal reports whether no further transitions are allowed.
func (s WorkItemStatus) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

func (s WorkItemStatus) String() string {
	return string(s)
}
