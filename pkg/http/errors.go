package http

import (
	"maps"
	"net/http"
)

// AppError is a ValidationError that also carries its HTTP status and the
// underlying cause. Only the ValidationError part is serialized.
type AppError struct {
	ValidationError
	Status int   `json:"-"`
	Err    error `json:"-"`
}

func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{
		ValidationError: ValidationError{Code: code, Field: field, Message: message},
		Status:          status,
	}
}

func InternalError(message string) *AppError {
	return NewAppError("ERR_INTERNAL", "", message, http.StatusInternalServerError)
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error { return e.Err }

// WithParam attaches one machine-readable detail.
func (e *AppError) WithParam(key string, value interface{}) *AppError {
	return e.WithParams(map[string]interface{}{key: value})
}

func (e *AppError) WithParams(params map[string]interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{}, len(params))
	}
	maps.Copy(e.Params, params)
	return e
}

// WithError records the cause for logs.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}
