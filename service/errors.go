package service

import "errors"

// ErrNotEligible is returned by Generate when the trigger policy has not
// accumulated enough technical signal and the caller did not force.
var ErrNotEligible = errors.New("conversation not eligible for diagram generation")

// ErrConversationDeleted is returned when an ingest loses the race with a
// concurrent deletion; nothing from the aborted ingest survives.
var ErrConversationDeleted = errors.New("conversation deleted")

// ModificationError is surfaced to the caller with a human-readable reason;
// the prior diagram and graph are guaranteed untouched.
type ModificationError struct {
	Reason string
}

func (e *ModificationError) Error() string {
	return "modification failed: " + e.Reason
}
