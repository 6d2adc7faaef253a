package handler

import (
	appprocurement "github.com/erp/procurement/internal/application/procurement"
	"github.com/gin-gonic/gin"
)

// OrderHandler handles purchase order lifecycle endpoints
type OrderHandler struct {
	BaseHandler
	orderService *appprocurement.OrderService
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orderService *appprocurement.OrderService) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

// Create godoc
// @ID           createOrder
// @Summary      Create a purchase order
// @Description  Create a draft purchase order with at least one line. The order number is generated when omitted.
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        request body appprocurement.CreateOrderRequest true "Order details"
// @Success      201 {object} APIResponse[appprocurement.OrderResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /orders [post]
func (h *OrderHandler) Create(c *gin.Context) {
	var req appprocurement.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	order, err := h.orderService.Create(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, order)
}

// List godoc
// @ID           listOrders
// @Summary      List purchase orders
// @Description  Page through purchase orders with optional status, supplier and search filters
// @Tags         orders
// @Produce      json
// @Param        search query string false "Search by order number or supplier reference"
// @Param        status query string false "Order status" Enums(DRAFT, APPROVED, PARTIALLY_RECEIVED, FULLY_RECEIVED, CLOSED_SHORT, CANCELLED)
// @Param        supplier_reference query string false "Supplier reference"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20) maximum(100)
// @Param        order_by query string false "Sort field" default(created_at)
// @Param        order_dir query string false "Sort direction" Enums(asc, desc) default(desc)
// @Success      200 {object} APIResponse[[]appprocurement.OrderListItemResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /orders [get]
func (h *OrderHandler) List(c *gin.Context) {
	var filter appprocurement.OrderListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.ValidationError(c, err)
		return
	}
	if filter.Page == 0 {
		filter.Page = 1
	}
	if filter.PageSize == 0 {
		filter.PageSize = 20
	}

	orders, total, err := h.orderService.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, orders, total, filter.Page, filter.PageSize)
}

// GetByID godoc
// @ID           getOrderById
// @Summary      Get a purchase order
// @Description  Get a purchase order with its lines and cached received totals
// @Tags         orders
// @Produce      json
// @Param        id path string true "Order ID" format(uuid)
// @Success      200 {object} APIResponse[appprocurement.OrderResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /orders/{id} [get]
func (h *OrderHandler) GetByID(c *gin.Context) {
	id, ok := h.parseID(c, "id", "order")
	if !ok {
		return
	}

	order, err := h.orderService.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, order)
}

// GetByOrderNumber godoc
// @ID           getOrderByNumber
// @Summary      Get a purchase order by number
// @Description  Look up a purchase order by its business order number
// @Tags         orders
// @Produce      json
// @Param        order_number path string true "Order number"
// @Success      200 {object} APIResponse[appprocurement.OrderResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /orders/number/{order_number} [get]
func (h *OrderHandler) GetByOrderNumber(c *gin.Context) {
	orderNumber := c.Param("order_number")
	if orderNumber == "" {
		h.BadRequest(c, "Order number is required")
		return
	}

	order, err := h.orderService.GetByOrderNumber(c.Request.Context(), orderNumber)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, order)
}

// Approve godoc
// @ID           approveOrder
// @Summary      Approve a purchase order
// @Description  Move a draft order to APPROVED so that it accepts receipts
// @Tags         orders
// @Produce      json
// @Param        id path string true "Order ID" format(uuid)
// @Success      200 {object} APIResponse[appprocurement.OrderResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /orders/{id}/approve [post]
func (h *OrderHandler) Approve(c *gin.Context) {
	id, ok := h.parseID(c, "id", "order")
	if !ok {
		return
	}

	order, err := h.orderService.Approve(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, order)
}

// Cancel godoc
// @ID           cancelOrder
// @Summary      Cancel a purchase order
// @Description  Cancel an order that has not received anything yet
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        id path string true "Order ID" format(uuid)
// @Param        request body appprocurement.ReasonRequest true "Cancellation reason"
// @Success      200 {object} APIResponse[appprocurement.OrderResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /orders/{id}/cancel [post]
func (h *OrderHandler) Cancel(c *gin.Context) {
	id, ok := h.parseID(c, "id", "order")
	if !ok {
		return
	}

	var req appprocurement.ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	order, err := h.orderService.Cancel(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, order)
}

// CloseShort godoc
// @ID           closeShortOrder
// @Summary      Close a purchase order short
// @Description  Close a partially received order; the outstanding quantities will not be delivered
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        id path string true "Order ID" format(uuid)
// @Param        request body appprocurement.ReasonRequest true "Close reason"
// @Success      200 {object} APIResponse[appprocurement.OrderResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /orders/{id}/close-short [post]
func (h *OrderHandler) CloseShort(c *gin.Context) {
	id, ok := h.parseID(c, "id", "order")
	if !ok {
		return
	}

	var req appprocurement.ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	order, err := h.orderService.CloseShort(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, order)
}
