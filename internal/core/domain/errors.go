package domain

import "errors"

var (
	ErrChannelUnavailable   = errors.New("channel unavailable")
	ErrRecipientInvalid     = errors.New("recipient invalid")
	ErrDirectoryUnavailable = errors.New("directory unavailable")
	ErrDuplicateEvent       = errors.New("duplicate event")
	ErrAlreadyResolved      = errors.New("shift already resolved")
	ErrMeltdownDetected     = errors.New("meltdown detected: automated outreach halted")

	ErrShiftNotFound      = errors.New("shift not found")
	ErrAttemptNotFound    = errors.New("outreach attempt not found")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrInvalidTransition  = errors.New("invalid shift transition")
	ErrVersionConflict    = errors.New("shift version conflict")
	ErrInvalidCallOff     = errors.New("invalid call-off")
	ErrInvalidEvent       = errors.New("invalid channel event")
	ErrInvalidAssignment  = errors.New("invalid assignment")
	ErrWaveNotActive      = errors.New("wave no longer active")
)
