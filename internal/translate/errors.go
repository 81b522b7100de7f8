package translate

import (
	"errors"
	"fmt"
	"net/http"
)

// Class categorizes gateway failures for HTTP mapping and logging.
// The class decides which status code a failure surfaces as and whether
// the broker was ever involved.
type Class string

const (
	// ClassUnauthorized indicates an unknown API key.
	ClassUnauthorized Class = "unauthorized"

	// ClassForbidden indicates a valid key used for a domain it is not permitted to access.
	ClassForbidden Class = "forbidden"

	// ClassUnprocessable indicates an unknown language, domain, or unsupported language pair.
	ClassUnprocessable Class = "unprocessable_input"

	// ClassMissingParameter indicates a declared routing field absent from the request.
	ClassMissingParameter Class = "missing_parameter"

	// ClassPayloadTooLarge indicates the text payload exceeds the configured maximum.
	ClassPayloadTooLarge Class = "payload_too_large"

	// ClassRateLimited indicates the per-key request limit was exceeded.
	ClassRateLimited Class = "rate_limited"

	// ClassBrokerUnavailable indicates the broker could not be reached at startup.
	ClassBrokerUnavailable Class = "broker_unavailable"

	// ClassBrokerTransport indicates a transport failure that survived the single retry.
	ClassBrokerTransport Class = "broker_transport_error"

	// ClassTimeout indicates no worker reply arrived within the configured window.
	ClassTimeout Class = "request_timed_out"

	// ClassStorage indicates the correction store rejected a write after bounded retries.
	ClassStorage Class = "storage_write_failed"
)

// Sentinel errors owned by the validation and routing paths.
var (
	// ErrDomainNotPermitted indicates the workspace does not grant the domain.
	ErrDomainNotPermitted = errors.New("domain not permitted for workspace")

	// ErrUnsupportedPair indicates the (src, tgt) pair is not served by the domain.
	ErrUnsupportedPair = errors.New("language pair not supported by domain")

	// ErrTextTooLong indicates the total text length exceeds the maximum.
	ErrTextTooLong = errors.New("text exceeds maximum length")

	// ErrMissingField indicates a mandatory routing field was absent.
	ErrMissingField = errors.New("mandatory parameter missing")
)

// StatusError is a classified failure with a detail string that is safe to
// return to the caller verbatim. Internal causes stay in the wrapped error
// and are logged server-side only.
type StatusError struct {
	Class  Class
	Detail string
	cause  error
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Class, e.Detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Detail)
}

// Unwrap exposes the underlying cause for errors.Is/As matching.
func (e *StatusError) Unwrap() error { return e.cause }

// HTTPStatus maps the failure class to the status code the HTTP layer returns.
func (e *StatusError) HTTPStatus() int {
	switch e.Class {
	case ClassUnauthorized, ClassForbidden:
		return http.StatusUnauthorized
	case ClassUnprocessable:
		return http.StatusUnprocessableEntity
	case ClassMissingParameter:
		return http.StatusBadRequest
	case ClassPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case ClassRateLimited:
		return http.StatusTooManyRequests
	case ClassTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// NewStatusError builds a classified error with a caller-safe detail message.
func NewStatusError(class Class, detail string, cause error) *StatusError {
	return &StatusError{Class: class, Detail: detail, cause: cause}
}

// AsStatusError extracts a StatusError from an error chain, or wraps the
// error as an internal transport failure with a generic detail.
func AsStatusError(err error) *StatusError {
	var se *StatusError
	if errors.As(err, &se) {
		return se
	}
	return &StatusError{Class: ClassBrokerTransport, Detail: "internal server error", cause: err}
}
