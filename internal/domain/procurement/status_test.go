package procurement

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_IsValid(t *testing.T) {
	tests := []struct {
		status  OrderStatus
		isValid bool
	}{
		{OrderStatusDraft, true},
		{OrderStatusApproved, true},
		{OrderStatusPartiallyReceived, true},
		{OrderStatusFullyReceived, true},
		{OrderStatusCancelled, true},
		{OrderStatusClosedShort, true},
		{OrderStatus("INVALID"), false},
		{OrderStatus(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.isValid, tt.status.IsValid())
		})
	}
}

func TestOrderStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from     OrderStatus
		to       OrderStatus
		canTrans bool
	}{
		{OrderStatusDraft, OrderStatusApproved, true},
		{OrderStatusDraft, OrderStatusCancelled, true},
		{OrderStatusDraft, OrderStatusPartiallyReceived, false},
		{OrderStatusApproved, OrderStatusPartiallyReceived, true},
		{OrderStatusApproved, OrderStatusFullyReceived, true},
		{OrderStatusApproved, OrderStatusCancelled, true},
		{OrderStatusApproved, OrderStatusClosedShort, false},
		{OrderStatusPartiallyReceived, OrderStatusFullyReceived, true},
		{OrderStatusPartiallyReceived, OrderStatusClosedShort, true},
		{OrderStatusPartiallyReceived, OrderStatusCancelled, false},
		{OrderStatusFullyReceived, OrderStatusPartiallyReceived, true},
		{OrderStatusFullyReceived, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusApproved, false},
		{OrderStatusClosedShort, OrderStatusPartiallyReceived, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.canTrans, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestOrderStatus_IsReceivable(t *testing.T) {
	assert.True(t, OrderStatusApproved.IsReceivable())
	assert.True(t, OrderStatusPartiallyReceived.IsReceivable())
	assert.False(t, OrderStatusDraft.IsReceivable())
	assert.False(t, OrderStatusFullyReceived.IsReceivable())
	assert.False(t, OrderStatusCancelled.IsReceivable())
	assert.False(t, OrderStatusClosedShort.IsReceivable())
}

func TestDeriveLineStatus(t *testing.T) {
	d := decimal.RequireFromString
	tests := []struct {
		name     string
		ordered  string
		received string
		want     LineStatus
	}{
		{"nothing received", "10", "0", LineStatusNotReceived},
		{"part received", "10", "4", LineStatusPartiallyReceived},
		{"fractional part", "1.5", "0.25", LineStatusPartiallyReceived},
		{"exactly received", "10", "10", LineStatusFullyReceived},
		{"negative clamps to not received", "10", "-1", LineStatusNotReceived},
		{"over clamps to full", "10", "11", LineStatusFullyReceived},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveLineStatus(d(tt.ordered), d(tt.received)))
		})
	}
}

func TestDeriveLineStatus_IsDeterministic(t *testing.T) {
	ordered := decimal.NewFromInt(7)
	received := decimal.NewFromInt(3)
	first := DeriveLineStatus(ordered, received)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, DeriveLineStatus(ordered, received))
	}
}

func TestDeriveOrderStatus(t *testing.T) {
	tests := []struct {
		name    string
		current OrderStatus
		lines   []LineStatus
		want    OrderStatus
	}{
		{"approved, nothing received", OrderStatusApproved, []LineStatus{LineStatusNotReceived, LineStatusNotReceived}, OrderStatusApproved},
		{"one line partial", OrderStatusApproved, []LineStatus{LineStatusPartiallyReceived, LineStatusNotReceived}, OrderStatusPartiallyReceived},
		{"one full one empty", OrderStatusApproved, []LineStatus{LineStatusFullyReceived, LineStatusNotReceived}, OrderStatusPartiallyReceived},
		{"all full", OrderStatusPartiallyReceived, []LineStatus{LineStatusFullyReceived, LineStatusFullyReceived}, OrderStatusFullyReceived},
		{"reversed back to nothing", OrderStatusFullyReceived, []LineStatus{LineStatusNotReceived}, OrderStatusApproved},
		{"draft unchanged", OrderStatusDraft, []LineStatus{LineStatusFullyReceived}, OrderStatusDraft},
		{"cancelled unchanged", OrderStatusCancelled, []LineStatus{LineStatusFullyReceived}, OrderStatusCancelled},
		{"closed short unchanged", OrderStatusClosedShort, []LineStatus{LineStatusFullyReceived}, OrderStatusClosedShort},
		{"no lines keeps current", OrderStatusApproved, nil, OrderStatusApproved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveOrderStatus(tt.current, tt.lines))
		})
	}
}

func TestDeriveReceiptStatus(t *testing.T) {
	assert.Equal(t, ReceiptStatusFullyReceived, DeriveReceiptStatus([]LineStatus{LineStatusFullyReceived}))
	assert.Equal(t, ReceiptStatusFullyReceived, DeriveReceiptStatus([]LineStatus{LineStatusFullyReceived, LineStatusFullyReceived}))
	assert.Equal(t, ReceiptStatusPartiallyReceived, DeriveReceiptStatus([]LineStatus{LineStatusFullyReceived, LineStatusPartiallyReceived}))
	assert.Equal(t, ReceiptStatusPartiallyReceived, DeriveReceiptStatus([]LineStatus{LineStatusNotReceived}))
	assert.Equal(t, ReceiptStatusPartiallyReceived, DeriveReceiptStatus(nil))
}
