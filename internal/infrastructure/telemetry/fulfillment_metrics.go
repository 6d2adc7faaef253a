package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// FulfillmentMetrics records receipt reconciliation activity.
// All methods are safe on a nil receiver, so callers may leave metrics unset.
type FulfillmentMetrics struct {
	logger *zap.Logger

	receiptsTotal      *Counter
	quantityTotal      *FloatCounter
	rejectionsTotal    *Counter
	conflictRetries    *Counter
	ledgerRepairsTotal *Counter
	transitionsTotal   *Counter
	submitDuration     *Histogram
}

// NewFulfillmentMetrics creates the fulfillment metric instruments on meter.
func NewFulfillmentMetrics(meter metric.Meter, logger *zap.Logger) (*FulfillmentMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &FulfillmentMetrics{logger: logger}
	var err error

	if m.receiptsTotal, err = NewCounter(meter,
		"procurement_receipts_total", "Receipts accepted, by kind and status", "{receipts}"); err != nil {
		return nil, err
	}
	if m.quantityTotal, err = NewFloatCounter(meter,
		"procurement_received_quantity_total", "Quantity posted through receipts, by kind", "{units}"); err != nil {
		return nil, err
	}
	if m.rejectionsTotal, err = NewCounter(meter,
		"procurement_receipt_rejections_total", "Receipt submissions rejected, by reason", "{rejections}"); err != nil {
		return nil, err
	}
	if m.conflictRetries, err = NewCounter(meter,
		"procurement_concurrency_retries_total", "Attempts retried after a concurrency conflict", "{retries}"); err != nil {
		return nil, err
	}
	if m.ledgerRepairsTotal, err = NewCounter(meter,
		"procurement_ledger_repairs_total", "Order lines whose cached total was repaired from the receipt log", "{lines}"); err != nil {
		return nil, err
	}
	if m.transitionsTotal, err = NewCounter(meter,
		"procurement_order_transitions_total", "Order status transitions", "{transitions}"); err != nil {
		return nil, err
	}
	if m.submitDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "procurement_receipt_submit_duration_seconds",
		Description: "Duration of receipt submissions including retries",
		Unit:        "s",
		Boundaries:  ServiceDurationBuckets,
	}); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordReceiptAccepted counts an accepted receipt and the quantity it posted.
func (m *FulfillmentMetrics) RecordReceiptAccepted(ctx context.Context, kind, status string, quantity float64) {
	if m == nil {
		return
	}
	m.receiptsTotal.Inc(ctx, AttrReceiptKind.String(kind), AttrReceiptStatus.String(status))
	m.quantityTotal.Add(ctx, quantity, AttrReceiptKind.String(kind))
}

// RecordRejection counts a rejected submission.
func (m *FulfillmentMetrics) RecordRejection(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.rejectionsTotal.Inc(ctx, AttrRejectionReason.String(reason))
}

// RecordConflictRetry counts one retried attempt.
func (m *FulfillmentMetrics) RecordConflictRetry(ctx context.Context) {
	if m == nil {
		return
	}
	m.conflictRetries.Inc(ctx)
}

// RecordLedgerRepair counts repaired order lines.
func (m *FulfillmentMetrics) RecordLedgerRepair(ctx context.Context, lines int) {
	if m == nil || lines <= 0 {
		return
	}
	m.ledgerRepairsTotal.Add(ctx, int64(lines))
}

// RecordTransition counts an order status transition.
func (m *FulfillmentMetrics) RecordTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.Inc(ctx, AttrStatusFrom.String(from), AttrStatusTo.String(to))
}

// RecordSubmitDuration records how long a submission took, labelled by outcome.
func (m *FulfillmentMetrics) RecordSubmitDuration(ctx context.Context, d time.Duration, outcome string) {
	if m == nil {
		return
	}
	m.submitDuration.RecordDuration(ctx, d, AttrOutcome.String(outcome))
}
