package util

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrNotFound           = errors.New("resource not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailRegistered    = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrNotEnrolled        = errors.New("not enrolled in this course")
	ErrPaymentNotPaid     = errors.New("payment is not paid")
	ErrPaymentRequired    = errors.New("course requires payment")
	ErrInvalidTransition  = errors.New("invalid payment status transition")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrGateway            = errors.New("payment gateway error")
	ErrDuplicateOrder     = errors.New("order already used")
	ErrAlreadyPaid        = errors.New("course already paid")
)

// ValidationError carries per-field messages for rejected input.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

func (e *ValidationError) Add(field, msg string) {
	e.Fields[field] = msg
}

func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

// OrNil returns nil when no field failed, so callers can `return v.OrNil()`.
func (e *ValidationError) OrNil() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
