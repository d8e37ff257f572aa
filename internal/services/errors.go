// Package services defines the business logic for free and paid forecast
// generation, forecast retrieval and support tooling. This file centralizes
// the service-level error taxonomy so that handlers can translate errors
// into HTTP results with errors.Is / errors.As.
package services

import (
	"errors"
	"time"

	"github.com/tbourn/go-forecast-backend/internal/payment"
	"github.com/tbourn/go-forecast-backend/internal/validation"
)

var (
	// ErrValidation matches every *validation.Error.
	ErrValidation = validation.ErrInvalid

	// ErrPaymentInvalid matches every *payment.Error.
	ErrPaymentInvalid = payment.ErrInvalid

	// ErrRateLimited matches every *RateLimitError.
	ErrRateLimited = errors.New("rate limited")

	// ErrUpstream indicates a required collaborator was unreachable.
	ErrUpstream = errors.New("upstream unavailable")

	// ErrGeneration indicates that no usable artifact could be produced.
	ErrGeneration = errors.New("forecast generation failed")

	// ErrPersistence indicates a write that the flow cannot proceed without
	// failed.
	ErrPersistence = errors.New("persistence failed")

	// ErrCaptchaFailed is returned when a supplied captcha token is rejected.
	ErrCaptchaFailed = errors.New("captcha verification failed")

	// ErrBirthDataMissing is returned when a paid request has no birth
	// instant or coordinates even after completion from the free record.
	ErrBirthDataMissing = errors.New("birth data missing")

	// ErrBirthDataNotFound is returned when the linked free forecast does
	// not exist.
	ErrBirthDataNotFound = errors.New("birth data not found")

	// ErrNotFound indicates a forecast does not exist or the guest token
	// does not match.
	ErrNotFound = errors.New("forecast not found")
)

// RateLimitError is an admission denial. Message is client-facing.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string { return e.Message }

// Is makes every *RateLimitError match ErrRateLimited.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }
