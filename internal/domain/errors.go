package domain

import "errors"

// Common domain errors that can occur during a scoring run.
var (
	// ErrInvalidWeights indicates that a weight set does not sum to 1.0.
	ErrInvalidWeights = errors.New("invalid weights")

	// ErrDuplicateItemID indicates that the candidate set violates the
	// unique-id precondition of the scorer.
	ErrDuplicateItemID = errors.New("duplicate item id")

	// ErrEmptyValue indicates that a required value is empty or nil.
	ErrEmptyValue = errors.New("empty value")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)
