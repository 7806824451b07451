package models

import "errors"

// Domain specific errors. Handlers translate these into HTTP envelopes; raw
// database or payment-processor errors never cross the handler boundary.
var (
	ErrNotFound        = errors.New("requested item not found")
	ErrConflict        = errors.New("item already exists or conflict")
	ErrUnauthenticated = errors.New("authentication required or invalid credentials")
	ErrForbidden       = errors.New("action forbidden")
	ErrBadRequest      = errors.New("bad request")
	ErrValidation      = errors.New("validation failed")
	ErrNoCustomerRef   = errors.New("no payment customer reference for user")
	ErrMissingConfig   = errors.New("missing configuration")
)
