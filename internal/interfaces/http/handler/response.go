package handler

import (
	"time"

	"github.com/erp/procurement/internal/interfaces/http/dto"
)

// The types below only describe response bodies for the OpenAPI document.
// BaseHandler writes dto.Response, which has the same JSON shape.

// APIResponse is the envelope of every successful order, receipt and outbox call
// @Description Standard API response wrapper with typed data field
type APIResponse[T any] struct {
	Success bool           `json:"success"`
	Data    T              `json:"data,omitempty"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
	Meta    *dto.Meta      `json:"meta,omitempty"`
}

// ErrorResponse represents an error API response for OpenAPI documentation
// @Description Standard error response
type ErrorResponse struct {
	Success bool           `json:"success" example:"false"`
	Error   *dto.ErrorInfo `json:"error,omitempty"`
}

// RejectionResponse is the body of a refused receipt submission or reversal.
// Nothing was recorded; rejection says which line failed and by how much.
// @Description Receipt rejected by validation, no state changed
type RejectionResponse struct {
	Success bool           `json:"success" example:"false"`
	Error   RejectionError `json:"error"`
}

// RejectionError is dto.ErrorInfo with the rejection detail always present
// @Description Rejection reason and the order line it concerns
type RejectionError struct {
	Code      string               `json:"code" example:"ERR_OVER_RECEIPT"`
	Message   string               `json:"message" example:"cannot receive 7, only 5 remain on line 1 (SKU-001)"`
	RequestID string               `json:"request_id,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
	Rejection *dto.RejectionDetail `json:"rejection"`
}

// SuccessResponse represents a simple success API response for OpenAPI documentation
// @Description Simple success response without data
type SuccessResponse struct {
	Success bool `json:"success" example:"true"`
}
