// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them while the
// message stays human-readable. Generic codes mirror HTTP status semantics;
// domain codes name the forecast pipeline stage that refused the request.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "payment_invalid",
//	  "message": "Payment verification failed"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeTooLarge         = "too_large"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeValidation       = "validation_failed"
	ErrCodeCaptchaFailed    = "captcha_failed"
	ErrCodePaymentInvalid   = "payment_invalid"
	ErrCodeBirthDataMissing = "birth_data_missing"
	ErrCodeGenerationFailed = "generation_failed"
	ErrCodeLookupFailed     = "lookup_failed"
	ErrCodeUnavailable      = "unavailable"
)

// Client-facing messages.
const (
	MsgCaptchaFailed     = "CAPTCHA verification failed. Please try again."
	MsgPaymentInvalid    = "Payment verification failed"
	MsgBirthDataMissing  = "Birth data is required. Please contact support."
	MsgBirthDataNotFound = "Birth data not found. Please contact support."
	MsgFreeFailed        = "Unable to generate forecast. Please try again."
	MsgPaidFailed        = "Unable to generate forecast. Our team has been notified."
	MsgNotFound          = "Forecast not found."
	MsgLookupFailed      = "Failed to retrieve forecast."
	MsgUnavailable       = "Service temporarily unavailable. Please try again later."
)
