package skincase

import "errors"

var (
	ErrCaseNotFound            = errors.New("case not found")
	ErrInvalidStatusTransition = errors.New("invalid case status transition")
	ErrStatusConflict          = errors.New("case was modified concurrently")
	ErrAlreadyProcessing       = errors.New("case is already being processed")
	ErrImageMissing            = errors.New("no case image uploaded")
	ErrInvalidImage            = errors.New("case image is not an accepted type or size")
	ErrNotEditable             = errors.New("case can only be modified while submitted")
	ErrNoSymptoms              = errors.New("symptoms must be a non-empty list")
)
