package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/erp/procurement/internal/domain/procurement"
	"github.com/erp/procurement/internal/domain/shared"
	"github.com/erp/procurement/internal/infrastructure/logger"
	"github.com/erp/procurement/internal/interfaces/http/dto"
	"github.com/erp/procurement/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	code = dto.NormalizeErrorCode(code)
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// ValidationError answers a failed bind with field level details
func (h *BaseHandler) ValidationError(c *gin.Context, err error) {
	middleware.HandleValidationError(c, err)
}

// parseID reads a uuid path parameter, answering 400 when it is malformed
func (h *BaseHandler) parseID(c *gin.Context, param, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		h.BadRequest(c, "Invalid "+label+" ID format")
		return uuid.Nil, false
	}
	return id, true
}

// HandleError converts service errors to HTTP responses.
//
// Rejections carry their reason as the error code. Line level rejections
// also carry the offending line and quantities.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID := middleware.GetRequestID(c)

	if rejection, ok := procurement.AsRejection(err); ok {
		code := dto.NormalizeErrorCode(string(rejection.Reason))
		c.JSON(dto.GetHTTPStatus(code), dto.NewRejectionResponse(code, rejection.Message, requestID, rejectionDetail(rejection)))
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		status, known := dto.ErrorCodeHTTPStatus[code]
		if !known {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, dto.NewErrorResponseWithRequestID(code, domainErr.Message, requestID))
		return
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		logger.L(c.Request.Context()).Warn("request did not complete in time", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, dto.NewErrorResponseWithRequestID(
			dto.ErrCodeUnavailable,
			"The request timed out, retry with the same idempotency key",
			requestID,
		))
		return
	}

	logger.L(c.Request.Context()).Error("unhandled request error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeInternal,
		"An unexpected error occurred",
		requestID,
	))
}

func rejectionDetail(r *procurement.Rejection) *dto.RejectionDetail {
	detail := &dto.RejectionDetail{Reason: string(r.Reason)}
	if r.OrderLineID != uuid.Nil {
		detail.OrderLineID = r.OrderLineID.String()
	}
	if r.Reason == procurement.ReasonOverReceipt {
		requested, remaining, excess := r.Requested, r.Remaining, r.Excess
		detail.Requested = &requested
		detail.Remaining = &remaining
		detail.Excess = &excess
	}
	return detail
}
