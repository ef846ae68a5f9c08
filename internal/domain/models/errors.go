package models

import "fmt"

// InvalidInputError reports a missing or malformed caller argument.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UnknownSymbolError means the provider has no trading history for Symbol.
type UnknownSymbolError struct {
	Symbol string
}

func (e *UnknownSymbolError) Error() string {
	return fmt.Sprintf("no price history for symbol %q", e.Symbol)
}

// InsufficientDataError means a series is too short for the requested
// operation. Need is the minimum length that would have worked.
type InsufficientDataError struct {
	Op   string
	Need int
	Have int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: need at least %d rows, have %d", e.Op, e.Need, e.Have)
}

// NotFittedError is returned when a scaler is used before Fit.
type NotFittedError struct {
	Component string
}

func (e *NotFittedError) Error() string {
	return e.Component + " used before fit"
}

// TrainingFailure reports a numerically unstable sequence-model fit.
type TrainingFailure struct {
	Epoch  int
	Reason string
}

func (e *TrainingFailure) Error() string {
	return fmt.Sprintf("training failed at epoch %d: %s", e.Epoch, e.Reason)
}
