package treatment

import "errors"

var (
	// ErrNotFound is returned when a treatment, doctor or patient does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is returned for input that violates a treatment rule.
	ErrInvalidArgument = errors.New("invalid argument")
)
