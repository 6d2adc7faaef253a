package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	appprocurement "github.com/erp/procurement/internal/application/procurement"
	"github.com/erp/procurement/internal/domain/procurement"
	"github.com/erp/procurement/internal/interfaces/http/dto"
	"github.com/erp/procurement/internal/interfaces/http/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// receiptBody receives quantities against the order's lines, in line order
func receiptBody(order appprocurement.OrderResponse, quantities ...int64) map[string]any {
	lines := make([]map[string]any, 0, len(quantities))
	for i, q := range quantities {
		lines = append(lines, map[string]any{
			"order_line_id": order.Lines[i].ID,
			"quantity":      decimal.NewFromInt(q),
		})
	}
	return map[string]any{"lines": lines}
}

func receiptsPath(order appprocurement.OrderResponse) string {
	return "/orders/" + order.ID.String() + "/receipts"
}

func TestReceiptHandler_Submit(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("first submission is created and a replay answers 200", func(t *testing.T) {
		order := f.approvedOrder(t, 10)

		w := f.do(t, http.MethodPost, receiptsPath(order), receiptBody(order, 4), middleware.IdempotencyKeyHeader, "key-1")
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		first := decodeData[appprocurement.ReceiptResultResponse](t, w)
		assert.False(t, first.Replayed)
		assert.Equal(t, procurement.OrderStatusPartiallyReceived, first.OrderStatus)
		assert.Equal(t, procurement.ReceiptStatusPartiallyReceived, first.ReceiptStatus)
		require.Len(t, first.Lines, 1)
		assert.True(t, decimal.NewFromInt(4).Equal(first.Lines[0].TotalReceived))

		w = f.do(t, http.MethodPost, receiptsPath(order), receiptBody(order, 4), middleware.IdempotencyKeyHeader, "key-1")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		again := decodeData[appprocurement.ReceiptResultResponse](t, w)
		assert.True(t, again.Replayed)
		assert.Equal(t, first.ReceiptID, again.ReceiptID)

		fulfillment := f.do(t, http.MethodGet, "/orders/"+order.ID.String()+"/fulfillment", nil)
		require.Equal(t, http.StatusOK, fulfillment.Code)
		state := decodeData[appprocurement.FulfillmentResponse](t, fulfillment)
		assert.True(t, decimal.NewFromInt(4).Equal(state.Lines[0].Received))
		assert.True(t, decimal.NewFromInt(6).Equal(state.Lines[0].Remaining))
	})

	t.Run("the body key is used without a header", func(t *testing.T) {
		order := f.approvedOrder(t, 10)
		body := receiptBody(order, 2)
		body["idempotency_key"] = "body-key"

		w := f.do(t, http.MethodPost, receiptsPath(order), body)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		w = f.do(t, http.MethodPost, receiptsPath(order), receiptBody(order, 2), middleware.IdempotencyKeyHeader, "body-key")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.True(t, decodeData[appprocurement.ReceiptResultResponse](t, w).Replayed)
	})

	t.Run("header and body keys must agree", func(t *testing.T) {
		order := f.approvedOrder(t, 10)
		body := receiptBody(order, 2)
		body["idempotency_key"] = "one"

		w := f.do(t, http.MethodPost, receiptsPath(order), body, middleware.IdempotencyKeyHeader, "two")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeBadRequest, decodeErrorInfo(t, w).Code)
	})

	t.Run("over receipt is refused with line detail", func(t *testing.T) {
		order := f.approvedOrder(t, 5)

		w := f.do(t, http.MethodPost, receiptsPath(order), receiptBody(order, 7))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

		var resp RejectionResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
		assert.False(t, resp.Success)
		assert.Equal(t, dto.ErrCodeOverReceipt, resp.Error.Code)
		assert.Contains(t, resp.Error.Message, "cannot receive 7, only 5 remain on line 1")
		require.NotNil(t, resp.Error.Rejection)
		assert.Equal(t, "OVER_RECEIPT", resp.Error.Rejection.Reason)
		assert.Equal(t, order.Lines[0].ID.String(), resp.Error.Rejection.OrderLineID)
		require.NotNil(t, resp.Error.Rejection.Excess)
		assert.True(t, decimal.NewFromInt(2).Equal(*resp.Error.Rejection.Excess))
		assert.True(t, decimal.NewFromInt(5).Equal(*resp.Error.Rejection.Remaining))

		list := f.do(t, http.MethodGet, receiptsPath(order), nil)
		require.Equal(t, http.StatusOK, list.Code)
		assert.Empty(t, decodeData[[]appprocurement.ReceiptResponse](t, list))
	})

	t.Run("an empty receipt is refused", func(t *testing.T) {
		order := f.approvedOrder(t, 5)

		w := f.do(t, http.MethodPost, receiptsPath(order), map[string]any{"lines": []any{}})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, dto.ErrCodeEmptyOrInvalidReceipt, decodeErrorInfo(t, w).Code)
	})

	t.Run("a draft order is not receivable", func(t *testing.T) {
		order := f.createOrder(t, 5)

		w := f.do(t, http.MethodPost, receiptsPath(order), receiptBody(order, 1))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, dto.ErrCodeOrderNotReceivable, decodeErrorInfo(t, w).Code)
	})

	t.Run("a line of another order is refused", func(t *testing.T) {
		order := f.approvedOrder(t, 5)
		other := f.approvedOrder(t, 5)

		w := f.do(t, http.MethodPost, receiptsPath(order), receiptBody(other, 1))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		info := decodeErrorInfo(t, w)
		assert.Equal(t, dto.ErrCodeLineNotInOrder, info.Code)
		require.NotNil(t, info.Rejection)
		assert.Equal(t, other.Lines[0].ID.String(), info.Rejection.OrderLineID)
	})

	t.Run("an unknown order is 404", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/orders/"+uuid.NewString()+"/receipts", map[string]any{
			"lines": []map[string]any{{"order_line_id": uuid.New(), "quantity": "1"}},
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, dto.ErrCodeNotFound, decodeErrorInfo(t, w).Code)
	})

	t.Run("a line without an id fails validation", func(t *testing.T) {
		order := f.approvedOrder(t, 5)

		w := f.do(t, http.MethodPost, receiptsPath(order), map[string]any{
			"lines": []map[string]any{{"quantity": "1"}},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		info := decodeErrorInfo(t, w)
		require.NotEmpty(t, info.Details)
		assert.Equal(t, "lines[0].order_line_id", info.Details[0].Field)
	})
}

func TestReceiptHandler_ReverseAndLedger(t *testing.T) {
	f := newAPIFixture(t)
	order := f.approvedOrder(t, 10)

	w := f.do(t, http.MethodPost, receiptsPath(order), receiptBody(order, 6), middleware.IdempotencyKeyHeader, "r-1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = f.do(t, http.MethodPost, receiptsPath(order), receiptBody(order, 4), middleware.IdempotencyKeyHeader, "r-2")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	second := decodeData[appprocurement.ReceiptResultResponse](t, w)
	assert.Equal(t, procurement.OrderStatusFullyReceived, second.OrderStatus)

	reversePath := receiptsPath(order) + "/" + second.ReceiptID.String() + "/reverse"

	t.Run("reversal requires a reason", func(t *testing.T) {
		w := f.do(t, http.MethodPost, reversePath, map[string]any{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("reversal reopens the order", func(t *testing.T) {
		w := f.do(t, http.MethodPost, reversePath, map[string]any{"reason": "damaged"}, middleware.IdempotencyKeyHeader, "rev-1")
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		reversal := decodeData[appprocurement.ReceiptResultResponse](t, w)
		assert.Equal(t, procurement.ReceiptKindReversal, reversal.Kind)
		assert.Equal(t, procurement.OrderStatusPartiallyReceived, reversal.OrderStatus)

		w = f.do(t, http.MethodPost, reversePath, map[string]any{"reason": "damaged"}, middleware.IdempotencyKeyHeader, "rev-1")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.True(t, decodeData[appprocurement.ReceiptResultResponse](t, w).Replayed)
	})

	t.Run("a receipt is reversed once", func(t *testing.T) {
		w := f.do(t, http.MethodPost, reversePath, map[string]any{"reason": "again"}, middleware.IdempotencyKeyHeader, "rev-2")
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, dto.ErrCodeAlreadyReversed, decodeErrorInfo(t, w).Code)
	})

	t.Run("a submission key cannot name a reversal", func(t *testing.T) {
		w := f.do(t, http.MethodPost, reversePath, map[string]any{"reason": "again"}, middleware.IdempotencyKeyHeader, "r-1")
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, dto.ErrCodeIdempotencyKeyReused, decodeErrorInfo(t, w).Code)
	})

	t.Run("an unknown receipt is 404", func(t *testing.T) {
		path := receiptsPath(order) + "/" + uuid.NewString() + "/reverse"
		w := f.do(t, http.MethodPost, path, map[string]any{"reason": "missing"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("the log lists receipts in posting order", func(t *testing.T) {
		w := f.do(t, http.MethodGet, receiptsPath(order), nil)
		require.Equal(t, http.StatusOK, w.Code)
		log := decodeData[[]appprocurement.ReceiptResponse](t, w)
		require.Len(t, log, 3)
		assert.Equal(t, "r-1", log[0].IdempotencyKey)
		assert.Equal(t, procurement.ReceiptKindReversal, log[2].Kind)
		require.NotNil(t, log[2].ReversesReceiptID)
		assert.Equal(t, second.ReceiptID, *log[2].ReversesReceiptID)
	})

	t.Run("fulfillment reflects the reversal", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/orders/"+order.ID.String()+"/fulfillment", nil)
		require.Equal(t, http.StatusOK, w.Code)
		state := decodeData[appprocurement.FulfillmentResponse](t, w)
		assert.Equal(t, procurement.OrderStatusPartiallyReceived, state.OrderStatus)
		assert.True(t, decimal.NewFromInt(6).Equal(state.Lines[0].Received))
		assert.True(t, decimal.NewFromInt(4).Equal(state.Lines[0].Remaining))
	})

	t.Run("audit and repair agree with the log", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/orders/"+order.ID.String()+"/ledger-audit", nil)
		require.Equal(t, http.StatusOK, w.Code)
		audit := decodeData[appprocurement.LedgerAuditResponse](t, w)
		assert.True(t, audit.Consistent)
		assert.Empty(t, audit.Discrepancies)

		w = f.do(t, http.MethodPost, "/orders/"+order.ID.String()+"/ledger-repair", nil)
		require.Equal(t, http.StatusOK, w.Code)
		repair := decodeData[appprocurement.LedgerAuditResponse](t, w)
		assert.True(t, repair.Consistent)
		assert.False(t, repair.Repaired)
	})

	t.Run("audit of an unknown order is 404", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/orders/"+uuid.NewString()+"/ledger-audit", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestReceiptHandler_CancelAfterFullReversal(t *testing.T) {
	f := newAPIFixture(t)
	order := f.approvedOrder(t, 5)

	w := f.do(t, http.MethodPost, receiptsPath(order), receiptBody(order, 3))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	receipt := decodeData[appprocurement.ReceiptResultResponse](t, w)

	w = f.do(t, http.MethodPost, receiptsPath(order)+"/"+receipt.ReceiptID.String()+"/reverse", map[string]any{"reason": "wrong order"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, procurement.OrderStatusApproved, decodeData[appprocurement.ReceiptResultResponse](t, w).OrderStatus)

	w = f.do(t, http.MethodPost, "/orders/"+order.ID.String()+"/cancel", map[string]any{"reason": "supplier withdrew"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, dto.ErrCodeAlreadyReceived, decodeErrorInfo(t, w).Code)
}
