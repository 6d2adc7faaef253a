package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeUnavailable is used when a dependency such as the database is down
	ErrCodeUnavailable = "ERR_UNAVAILABLE"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeValidationRequired is used when a required field is missing
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	// ErrCodeValidationFormat is used when a field has invalid format
	ErrCodeValidationFormat = "ERR_VALIDATION_FORMAT"
	// ErrCodeValidationRange is used when a value is out of range
	ErrCodeValidationRange = "ERR_VALIDATION_RANGE"
	// ErrCodeValidationLength is used when a field length is invalid
	ErrCodeValidationLength = "ERR_VALIDATION_LENGTH"
)

// Access error codes
const (
	// ErrCodeForbidden is used when the client may not reach a resource
	ErrCodeForbidden = "ERR_FORBIDDEN"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeAlreadyExists is used when trying to create a duplicate resource
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	// ErrCodeConflict is used for general resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
	// ErrCodeConcurrencyConflict is used when optimistic locking fails
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	// ErrCodeIdempotencyKeyReused is used when a key is replayed with a different body
	ErrCodeIdempotencyKeyReused = "ERR_IDEMPOTENCY_KEY_REUSED"
)

// Business rule error codes
const (
	// ErrCodeInvalidState is used when an operation is invalid for current state
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeBusinessRule is used for generic business rule violations
	ErrCodeBusinessRule = "ERR_BUSINESS_RULE"
	// ErrCodeAlreadyReceived is used when an order with receipts is cancelled
	ErrCodeAlreadyReceived = "ERR_ALREADY_RECEIVED"
	// ErrCodeAlreadyReversed is used when a receipt is reversed twice
	ErrCodeAlreadyReversed = "ERR_ALREADY_REVERSED"
	// ErrCodeLedgerInconsistent is used when a reversal would drive a total negative
	ErrCodeLedgerInconsistent = "ERR_LEDGER_INCONSISTENT"
)

// Receipt rejection codes, one per rejection reason
const (
	// ErrCodeOrderNotReceivable is used when the order status does not accept receipts
	ErrCodeOrderNotReceivable = "ERR_ORDER_NOT_RECEIVABLE"
	// ErrCodeLineNotInOrder is used when a receipt line names a foreign order line
	ErrCodeLineNotInOrder = "ERR_LINE_NOT_IN_ORDER"
	// ErrCodeEmptyOrInvalidReceipt is used for receipts with no positive quantity
	ErrCodeEmptyOrInvalidReceipt = "ERR_EMPTY_OR_INVALID_RECEIPT"
	// ErrCodeOverReceipt is used when a quantity exceeds what remains on the line
	ErrCodeOverReceipt = "ERR_OVER_RECEIPT"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:     http.StatusInternalServerError,
	ErrCodeInternal:    http.StatusInternalServerError,
	ErrCodeUnavailable: http.StatusServiceUnavailable,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,
	ErrCodeValidationRange:    http.StatusBadRequest,
	ErrCodeValidationLength:   http.StatusBadRequest,

	// Access errors
	ErrCodeForbidden: http.StatusForbidden,

	// Resource errors
	ErrCodeNotFound:             http.StatusNotFound,
	ErrCodeAlreadyExists:        http.StatusConflict,
	ErrCodeConflict:             http.StatusConflict,
	ErrCodeConcurrencyConflict:  http.StatusConflict,
	ErrCodeIdempotencyKeyReused: http.StatusConflict,

	// Business rule errors -> 422 Unprocessable Entity
	ErrCodeInvalidState:       http.StatusUnprocessableEntity,
	ErrCodeBusinessRule:       http.StatusUnprocessableEntity,
	ErrCodeAlreadyReceived:    http.StatusUnprocessableEntity,
	ErrCodeAlreadyReversed:    http.StatusUnprocessableEntity,
	ErrCodeLedgerInconsistent: http.StatusUnprocessableEntity,

	// Receipt rejections -> 422 Unprocessable Entity
	ErrCodeOrderNotReceivable:    http.StatusUnprocessableEntity,
	ErrCodeLineNotInOrder:        http.StatusUnprocessableEntity,
	ErrCodeEmptyOrInvalidReceipt: http.StatusUnprocessableEntity,
	ErrCodeOverReceipt:           http.StatusUnprocessableEntity,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes and rejection reasons to
// the standardized API codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":              ErrCodeNotFound,
	"ALREADY_EXISTS":         ErrCodeAlreadyExists,
	"INVALID_INPUT":          ErrCodeInvalidInput,
	"INVALID_STATE":          ErrCodeInvalidState,
	"CONCURRENCY_CONFLICT":   ErrCodeConcurrencyConflict,
	"IDEMPOTENCY_KEY_REUSED": ErrCodeIdempotencyKeyReused,
	"VALIDATION_ERROR":       ErrCodeValidation,
	"BAD_REQUEST":            ErrCodeBadRequest,
	"INTERNAL_ERROR":         ErrCodeInternal,

	"ALREADY_RECEIVED":     ErrCodeAlreadyReceived,
	"ALREADY_REVERSED":     ErrCodeAlreadyReversed,
	"LEDGER_INCONSISTENT":  ErrCodeLedgerInconsistent,
	"RECEIPT_NOT_IN_ORDER": ErrCodeNotFound,
	"INVALID_RECEIPT":      ErrCodeInvalidState,

	// Order construction rules surface as input errors
	"NO_LINES":              ErrCodeInvalidInput,
	"INVALID_ORDER_NUMBER":  ErrCodeInvalidInput,
	"INVALID_SUPPLIER":      ErrCodeInvalidInput,
	"INVALID_ITEM":          ErrCodeInvalidInput,
	"INVALID_QUANTITY":      ErrCodeInvalidInput,
	"INVALID_PRICE":         ErrCodeInvalidInput,
	"INVALID_EXPECTED_DATE": ErrCodeInvalidInput,
	"INVALID_REASON":        ErrCodeInvalidInput,

	"ORDER_NOT_RECEIVABLE":     ErrCodeOrderNotReceivable,
	"LINE_NOT_IN_ORDER":        ErrCodeLineNotInOrder,
	"EMPTY_OR_INVALID_RECEIPT": ErrCodeEmptyOrInvalidReceipt,
	"OVER_RECEIPT":             ErrCodeOverReceipt,
}

// NormalizeErrorCode converts a domain error code to the standardized format
// If the code is already in the new format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if newCode, ok := DomainErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}
