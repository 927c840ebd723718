package review

import "errors"

var (
	ErrAlreadyReviewed = errors.New("doctor has already reviewed this case")
	ErrInvalidDecision = errors.New("invalid review decision")
	ErrNotReviewable   = errors.New("case is not awaiting review by this doctor")
)
