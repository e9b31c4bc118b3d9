package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies an application error for transport mapping and retry
// policy. Kinds are stable; concrete messages are not.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindInvalidRequest
	KindNotFound
	KindBusinessRule
	KindProviderUnavailable
	KindProviderRejected
	KindProviderContract
	KindImportSanity
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindNotFound:
		return "not_found"
	case KindBusinessRule:
		return "business_rule"
	case KindProviderUnavailable:
		return "provider_unavailable"
	case KindProviderRejected:
		return "provider_rejected"
	case KindProviderContract:
		return "provider_contract_violation"
	case KindImportSanity:
		return "import_sanity_failed"
	default:
		return "internal"
	}
}

// Stable business error codes surfaced to API callers.
const (
	CodeDuplicateCurrencyCode  = "DUPLICATE_CURRENCY_CODE"
	CodeInvalidIso4217Code     = "INVALID_ISO4217_CODE"
	CodeInvalidProviderSeries  = "INVALID_PROVIDER_SERIES_ID"
	CodeCurrencyNotEnabled     = "CURRENCY_NOT_ENABLED"
	CodeNoExchangeRateData     = "NO_EXCHANGE_RATE_DATA_AVAILABLE"
	CodeStartDateOutOfRange    = "START_DATE_OUT_OF_RANGE"
)

// Error is the application error type. Business errors carry a stable Code;
// StartDateOutOfRange additionally carries the earliest stored date.
type Error struct {
	Kind     ErrorKind
	Code     string
	Message  string
	Earliest time.Time
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NewInvalidRequest reports malformed caller input.
func NewInvalidRequest(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// NewNotFound reports an unknown resource id.
func NewNotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewBusinessRule reports a domain violation with a stable code.
func NewBusinessRule(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindBusinessRule, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewStartDateOutOfRange reports a query start date preceding the earliest
// stored rate for the target currency.
func NewStartDateOutOfRange(earliest time.Time) *Error {
	return &Error{
		Kind:     KindBusinessRule,
		Code:     CodeStartDateOutOfRange,
		Message:  fmt.Sprintf("start date precedes earliest available rate %s", FormatDate(earliest)),
		Earliest: earliest,
	}
}

// NewProviderUnavailable reports upstream timeouts, 5xx, or transport failures.
func NewProviderUnavailable(msg string, err error) *Error {
	return &Error{Kind: KindProviderUnavailable, Message: msg, Err: err}
}

// NewProviderRejected reports an upstream 4xx rejection.
func NewProviderRejected(msg string, err error) *Error {
	return &Error{Kind: KindProviderRejected, Message: msg, Err: err}
}

// NewProviderContract reports an internally inconsistent upstream payload.
func NewProviderContract(format string, args ...interface{}) *Error {
	return &Error{Kind: KindProviderContract, Message: fmt.Sprintf(format, args...)}
}

// NewImportSanity reports an incremental payload exceeding size caps.
func NewImportSanity(format string, args ...interface{}) *Error {
	return &Error{Kind: KindImportSanity, Message: fmt.Sprintf(format, args...)}
}

// NewInternal wraps an unexpected failure.
func NewInternal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf extracts the error kind, defaulting to KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// CodeOf extracts the stable business code, if any.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
