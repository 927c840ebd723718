package assignment

import "errors"

var (
	ErrAlreadyAssigned   = errors.New("case already has an assigned doctor")
	ErrNotAssigned       = errors.New("case has no assigned doctor")
	ErrDoctorNotEligible = errors.New("doctor not found or not approved")
	ErrSameDoctor        = errors.New("case is already assigned to this doctor")
	ErrCaseNotAssignable = errors.New("case is closed or no longer available")
	ErrReasonRequired    = errors.New("assignment reason is required")
)
