package laborder

import "errors"

var (
	ErrOrderNotFound   = errors.New("lab order not found")
	ErrItemNotFound    = errors.New("lab order item not found")
	ErrNoTestsResolved = errors.New("none of the requested test ids resolve to a known test")
	ErrInvalidStatus   = errors.New("invalid lab order status")
)
