package handler

import (
	"github.com/erp/procurement/internal/application/event"
	"github.com/gin-gonic/gin"
)

// OutboxHandler lets operators inspect order events stuck in the outbox and
// push dead letters back into delivery.
type OutboxHandler struct {
	BaseHandler
	outbox *event.OutboxService
}

func NewOutboxHandler(outbox *event.OutboxService) *OutboxHandler {
	return &OutboxHandler{outbox: outbox}
}

// RetryAllResponse reports how many dead letters went back to pending
type RetryAllResponse struct {
	Count int64 `json:"count"`
}

// GetStats godoc
// @ID           getOutboxStats
// @Summary      Get outbox statistics
// @Description  Count outbox entries per delivery status
// @Tags         outbox
// @Produce      json
// @Success      200 {object} APIResponse[event.OutboxStatsDTO]
// @Failure      500 {object} ErrorResponse
// @Router       /system/outbox/stats [get]
func (h *OutboxHandler) GetStats(c *gin.Context) {
	stats, err := h.outbox.GetStats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

// GetDeadLetterEntries godoc
// @ID           getOutboxDeadLetterEntries
// @Summary      List dead letter entries
// @Description  Page through events whose delivery gave up after the last retry
// @Tags         outbox
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Items per page" default(20) maximum(100)
// @Success      200 {object} APIResponse[[]event.OutboxEntryDTO]
// @Failure      400 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /system/outbox/dead [get]
func (h *OutboxHandler) GetDeadLetterEntries(c *gin.Context) {
	var filter event.OutboxFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.ValidationError(c, err)
		return
	}

	page, err := h.outbox.GetDeadLetterEntries(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Entries, page.Total, page.Page, page.PageSize)
}

// RetryAllDeadEntries godoc
// @ID           retryAllDeadEntriesOutbox
// @Summary      Retry all dead letter entries
// @Tags         outbox
// @Produce      json
// @Success      200 {object} APIResponse[RetryAllResponse]
// @Failure      500 {object} ErrorResponse
// @Router       /system/outbox/dead/retry-all [post]
func (h *OutboxHandler) RetryAllDeadEntries(c *gin.Context) {
	count, err := h.outbox.RetryAllDeadEntries(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, RetryAllResponse{Count: count})
}

// GetEntry godoc
// @ID           getOutboxEntry
// @Summary      Get an outbox entry by ID
// @Tags         outbox
// @Produce      json
// @Param        id path string true "Outbox entry ID" format(uuid)
// @Success      200 {object} APIResponse[event.OutboxEntryDTO]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /system/outbox/{id} [get]
func (h *OutboxHandler) GetEntry(c *gin.Context) {
	id, ok := h.parseID(c, "id", "outbox entry")
	if !ok {
		return
	}

	entry, err := h.outbox.GetEntry(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}

// RetryDeadEntry godoc
// @ID           retryDeadEntryOutbox
// @Summary      Retry a dead letter entry
// @Description  Reset a dead entry to pending with its retry count cleared
// @Tags         outbox
// @Produce      json
// @Param        id path string true "Outbox entry ID" format(uuid)
// @Success      200 {object} APIResponse[event.OutboxEntryDTO]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Router       /system/outbox/{id}/retry [post]
func (h *OutboxHandler) RetryDeadEntry(c *gin.Context) {
	id, ok := h.parseID(c, "id", "outbox entry")
	if !ok {
		return
	}

	entry, err := h.outbox.RetryDeadEntry(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}
