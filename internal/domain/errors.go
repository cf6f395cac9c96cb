package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEvent = errors.New("duplicate reservation event in job")

	// Import coordinator
	ErrImportInProgress = errors.New("another import is processing for this hotel")
	ErrBadTransition    = errors.New("invalid job status transition")

	// Reconstruction / features
	ErrCorruptEvent    = errors.New("corrupt reservation event")
	ErrSnapshotMissing = errors.New("daily otb snapshot missing")

	// Collaborators: absence of a result, not a pipeline failure.
	ErrUnavailable = errors.New("collaborator unavailable")

	// Decision ledger
	ErrInvalidDecision     = errors.New("invalid decision action")
	ErrOverrideNeedsReason = errors.New("override requires a reason")
	ErrOverrideSamePrice   = errors.New("override price equals system price")
	ErrNoRecommendation    = errors.New("no recommendation for this date")
)
