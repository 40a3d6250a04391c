package labresult

import "errors"

var (
	ErrResultNotFound       = errors.New("lab result not found")
	ErrResultAlreadyEntered = errors.New("order item already has a result")
	ErrInvalidFlag          = errors.New("invalid result flag")
	ErrValueRequired        = errors.New("result value is required")
)
