package domain

import "errors"

// Error kinds the tracker surfaces. Callers match with errors.Is; the
// HTTP layer maps them to status codes.
var (
	ErrValidation       = errors.New("validation failed")
	ErrUnauthorized     = errors.New("not authorized for shipment")
	ErrNotFound         = errors.New("shipment not found")
	ErrInsufficientData = errors.New("insufficient data for route analysis")
)
