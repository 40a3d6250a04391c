package labsample

import "errors"

var (
	ErrSampleNotFound          = errors.New("lab sample not found")
	ErrSampleAlreadyRegistered = errors.New("order item already has a registered sample")
	ErrInvalidSampleStatus     = errors.New("invalid sample status")
	ErrRejectionReasonRequired = errors.New("rejection reason is required")
)
