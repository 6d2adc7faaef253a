package handler

import (
	appprocurement "github.com/erp/procurement/internal/application/procurement"
	"github.com/erp/procurement/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// ReceiptHandler handles goods receipt and fulfillment endpoints
type ReceiptHandler struct {
	BaseHandler
	reconciliationService *appprocurement.ReconciliationService
}

// NewReceiptHandler creates a new ReceiptHandler
func NewReceiptHandler(reconciliationService *appprocurement.ReconciliationService) *ReceiptHandler {
	return &ReceiptHandler{
		reconciliationService: reconciliationService,
	}
}

// idempotencyKey picks the key from the header or the body. Both may be set
// only when they agree.
func (h *ReceiptHandler) idempotencyKey(c *gin.Context, bodyKey string) (string, bool) {
	headerKey := c.GetHeader(middleware.IdempotencyKeyHeader)
	switch {
	case headerKey == "":
		return bodyKey, true
	case bodyKey == "" || bodyKey == headerKey:
		if len(headerKey) > 100 {
			h.BadRequest(c, "Idempotency-Key must be at most 100 characters")
			return "", false
		}
		return headerKey, true
	default:
		h.BadRequest(c, "Idempotency-Key header and idempotency_key field differ")
		return "", false
	}
}

// respondResult answers 201 for a newly posted receipt and 200 for a replay
func (h *ReceiptHandler) respondResult(c *gin.Context, result *appprocurement.ReceiptResultResponse) {
	if result.Replayed {
		h.Success(c, result)
		return
	}
	h.Created(c, result)
}

// Submit godoc
// @ID           submitReceipt
// @Summary      Submit a goods receipt
// @Description  Validate a receipt against the order's remaining quantities and post it atomically.
// @Description  A repeated idempotency key returns the stored result with 200 instead of posting again.
// @Tags         receipts
// @Accept       json
// @Produce      json
// @Param        id path string true "Order ID" format(uuid)
// @Param        Idempotency-Key header string false "Client supplied idempotency key"
// @Param        request body appprocurement.SubmitReceiptRequest true "Receipt lines"
// @Success      200 {object} APIResponse[appprocurement.ReceiptResultResponse] "Replayed result"
// @Success      201 {object} APIResponse[appprocurement.ReceiptResultResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} RejectionResponse "Rejected: ORDER_NOT_RECEIVABLE, LINE_NOT_IN_ORDER, EMPTY_OR_INVALID_RECEIPT or OVER_RECEIPT"
// @Failure      500 {object} ErrorResponse
// @Router       /orders/{id}/receipts [post]
func (h *ReceiptHandler) Submit(c *gin.Context) {
	orderID, ok := h.parseID(c, "id", "order")
	if !ok {
		return
	}

	var req appprocurement.SubmitReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	key, ok := h.idempotencyKey(c, req.IdempotencyKey)
	if !ok {
		return
	}

	result, err := h.reconciliationService.SubmitReceipt(c.Request.Context(), appprocurement.SubmitReceiptCommand{
		OrderID:        orderID,
		IdempotencyKey: key,
		ReceivedAt:     req.ReceivedAt,
		Note:           req.Note,
		Lines:          req.Lines,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.respondResult(c, result)
}

// List godoc
// @ID           listReceipts
// @Summary      List the receipts of an order
// @Description  Return the receipt log of an order in posting order, reversals included
// @Tags         receipts
// @Produce      json
// @Param        id path string true "Order ID" format(uuid)
// @Success      200 {object} APIResponse[[]appprocurement.ReceiptResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /orders/{id}/receipts [get]
func (h *ReceiptHandler) List(c *gin.Context) {
	orderID, ok := h.parseID(c, "id", "order")
	if !ok {
		return
	}

	receipts, err := h.reconciliationService.ListReceipts(c.Request.Context(), orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, receipts)
}

// Reverse godoc
// @ID           reverseReceipt
// @Summary      Reverse a receipt
// @Description  Post a compensating reversal of a standard receipt. Each receipt can be reversed once.
// @Tags         receipts
// @Accept       json
// @Produce      json
// @Param        id path string true "Order ID" format(uuid)
// @Param        receiptId path string true "Receipt ID" format(uuid)
// @Param        Idempotency-Key header string false "Client supplied idempotency key"
// @Param        request body appprocurement.ReverseReceiptRequest true "Reversal reason"
// @Success      200 {object} APIResponse[appprocurement.ReceiptResultResponse] "Replayed result"
// @Success      201 {object} APIResponse[appprocurement.ReceiptResultResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} RejectionResponse
// @Failure      500 {object} ErrorResponse
// @Router       /orders/{id}/receipts/{receiptId}/reverse [post]
func (h *ReceiptHandler) Reverse(c *gin.Context) {
	orderID, ok := h.parseID(c, "id", "order")
	if !ok {
		return
	}
	receiptID, ok := h.parseID(c, "receiptId", "receipt")
	if !ok {
		return
	}

	var req appprocurement.ReverseReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}
	key, ok := h.idempotencyKey(c, req.IdempotencyKey)
	if !ok {
		return
	}

	result, err := h.reconciliationService.ReverseReceipt(c.Request.Context(), appprocurement.ReverseReceiptCommand{
		OrderID:        orderID,
		ReceiptID:      receiptID,
		IdempotencyKey: key,
		Reason:         req.Reason,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.respondResult(c, result)
}

// Fulfillment godoc
// @ID           getOrderFulfillment
// @Summary      Get order fulfillment
// @Description  Ordered, received and remaining quantity per line with the derived order status
// @Tags         receipts
// @Produce      json
// @Param        id path string true "Order ID" format(uuid)
// @Success      200 {object} APIResponse[appprocurement.FulfillmentResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /orders/{id}/fulfillment [get]
func (h *ReceiptHandler) Fulfillment(c *gin.Context) {
	orderID, ok := h.parseID(c, "id", "order")
	if !ok {
		return
	}

	fulfillment, err := h.reconciliationService.GetOrderFulfillment(c.Request.Context(), orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, fulfillment)
}

// LedgerAudit godoc
// @ID           auditOrderLedger
// @Summary      Audit the quantity ledger
// @Description  Compare the cached received totals of each line with the sum of the receipt log
// @Tags         ledger
// @Produce      json
// @Param        id path string true "Order ID" format(uuid)
// @Success      200 {object} APIResponse[appprocurement.LedgerAuditResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /orders/{id}/ledger-audit [get]
func (h *ReceiptHandler) LedgerAudit(c *gin.Context) {
	orderID, ok := h.parseID(c, "id", "order")
	if !ok {
		return
	}

	audit, err := h.reconciliationService.AuditLedger(c.Request.Context(), orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, audit)
}

// LedgerRepair godoc
// @ID           repairOrderLedger
// @Summary      Repair the quantity ledger
// @Description  Rebuild the cached received totals from the receipt log and re-derive the order status
// @Tags         ledger
// @Produce      json
// @Param        id path string true "Order ID" format(uuid)
// @Success      200 {object} APIResponse[appprocurement.LedgerAuditResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /orders/{id}/ledger-repair [post]
func (h *ReceiptHandler) LedgerRepair(c *gin.Context) {
	orderID, ok := h.parseID(c, "id", "order")
	if !ok {
		return
	}

	audit, err := h.reconciliationService.RepairLedger(c.Request.Context(), orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, audit)
}
