package model

import "fmt"

// ApprovalStatus is the lifecycle state shared by takeoff versions and
// cost estimates.
type ApprovalStatus string

const (
	StatusDraft      ApprovalStatus = "draft"
	StatusSubmitted  ApprovalStatus = "submitted"
	StatusApproved   ApprovalStatus = "approved"
	StatusRejected   ApprovalStatus = "rejected"
	StatusSuperseded ApprovalStatus = "superseded"
)

// TransitionAction names a state-machine transition.
type TransitionAction string

const (
	ActionSubmit    TransitionAction = "submit"
	ActionApprove   TransitionAction = "approve"
	ActionReject    TransitionAction = "reject"
	ActionSupersede TransitionAction = "supersede"
)

// transitions is the complete legal transition table. Rejected and
// superseded are terminal: a rejected version is resubmitted only by
// deriving a new draft version from it.
var transitions = map[ApprovalStatus]map[TransitionAction]ApprovalStatus{
	StatusDraft: {
		ActionSubmit: StatusSubmitted,
	},
	StatusSubmitted: {
		ActionApprove: StatusApproved,
		ActionReject:  StatusRejected,
	},
	StatusApproved: {
		ActionSupersede: StatusSuperseded,
	},
}

// InvalidTransitionError reports a state-machine method called from a
// disallowed state. It is always surfaced to the caller and never
// auto-corrected.
type InvalidTransitionError struct {
	Action TransitionAction
	From   ApprovalStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("model: cannot %s from status %q", e.Action, e.From)
}

// Transition returns the status reached by applying action from s, or an
// *InvalidTransitionError if the transition table does not allow it.
func (s ApprovalStatus) Transition(action TransitionAction) (ApprovalStatus, error) {
	if next, ok := transitions[s][action]; ok {
		return next, nil
	}
	return s, &InvalidTransitionError{Action: action, From: s}
}

// CanMutate reports whether snapshot fields may still be edited. Only
// drafts are mutable; every later state freezes the record.
func (s ApprovalStatus) CanMutate() bool {
	return s == StatusDraft
}
