package check

import "errors"

var (
	// ErrCheckInProgress means another IN_PROGRESS check already exists
	// for the apparatus.
	ErrCheckInProgress = errors.New("check: an in-progress check already exists for this apparatus")
	// ErrCheckNotFound means the check does not exist or is not in the
	// state the operation requires.
	ErrCheckNotFound = errors.New("check: not found or not in progress")
	// ErrDuplicateVerification means the target was already verified in
	// this session.
	ErrDuplicateVerification = errors.New("check: target already verified in this session")
	// ErrInvalidTarget means the verification target violates the
	// equipment-XOR-consumable constraint.
	ErrInvalidTarget = errors.New("check: exactly one of equipment or consumable target required")
	// ErrResumeWindowExpired means the AUTO_TIMEOUT abandonment is too old
	// to resume.
	ErrResumeWindowExpired = errors.New("check: resume window expired")
	// ErrNotResumable means the check was not abandoned by AUTO_TIMEOUT.
	ErrNotResumable = errors.New("check: not resumable")
	// ErrNotOwner means a user other than the original checker tried to
	// resume.
	ErrNotOwner = errors.New("check: only the original checker may resume")
	// ErrStartContended means another start attempt for the same apparatus
	// holds the start guard; the caller should retry.
	ErrStartContended = errors.New("check: start already in progress for this apparatus")
	// ErrInvalidStatus means the verification status is not one of the
	// known outcomes.
	ErrInvalidStatus = errors.New("check: unknown verification status")
)
