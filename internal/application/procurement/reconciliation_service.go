package procurement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/procurement/internal/domain/procurement"
	"github.com/erp/procurement/internal/domain/shared"
	"github.com/erp/procurement/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const reconciliationSpanService = "reconciliation"

// ReconciliationService posts goods receipts against purchase orders. It is
// the only place where received totals change, and every change for one
// order happens inside a single unit of work.
type ReconciliationService struct {
	uow      procurement.UnitOfWork
	orders   procurement.OrderRepository
	receipts procurement.ReceiptRepository
	locker   OrderLocker
	retry    RetryPolicy
	metrics  *telemetry.FulfillmentMetrics
	logger   *zap.Logger
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(
	uow procurement.UnitOfWork,
	orders procurement.OrderRepository,
	receipts procurement.ReceiptRepository,
	logger *zap.Logger,
) *ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationService{
		uow:      uow,
		orders:   orders,
		receipts: receipts,
		locker:   NoopOrderLocker{},
		retry:    DefaultRetryPolicy(),
		logger:   logger,
	}
}

// SetOrderLocker sets the order-scoped lock provider
func (s *ReconciliationService) SetOrderLocker(locker OrderLocker) {
	if locker == nil {
		locker = NoopOrderLocker{}
	}
	s.locker = locker
}

// SetRetryPolicy sets the conflict retry policy
func (s *ReconciliationService) SetRetryPolicy(policy RetryPolicy) {
	s.retry = policy
}

// SetMetrics sets the fulfillment metrics collector
func (s *ReconciliationService) SetMetrics(m *telemetry.FulfillmentMetrics) {
	s.metrics = m
}

// SubmitReceipt validates a receipt against the order and the receipt log and
// posts it atomically. A submission whose idempotency key was already used on
// this order returns the stored result with Replayed set. Business refusals
// are returned as *procurement.Rejection and leave nothing behind.
func (s *ReconciliationService) SubmitReceipt(ctx context.Context, cmd SubmitReceiptCommand) (*ReceiptResultResponse, error) {
	start := time.Now()
	ctx, span := telemetry.StartServiceSpan(ctx, reconciliationSpanService, "submit_receipt",
		telemetry.WithAttribute(telemetry.SpanAttrOrderID, cmd.OrderID))
	defer span.End()

	if cmd.IdempotencyKey == "" {
		cmd.IdempotencyKey = uuid.NewString()
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrIdempotencyKey, cmd.IdempotencyKey)
	proposal := cmd.proposal()

	var result *ReceiptResultResponse
	var err error
	telemetry.WithProfilingLabels(ctx, map[string]string{"operation": "submit_receipt"}, func(ctx context.Context) {
		err = s.retry.run(ctx, cmd.OrderID, s.onRetry(ctx, span, cmd.OrderID), func(ctx context.Context, attempt int) error {
			res, err := s.submitOnce(ctx, cmd.OrderID, cmd.IdempotencyKey, proposal)
			if err != nil {
				return err
			}
			result = res
			return nil
		})
	})

	s.finish(ctx, span, start, result, err)
	if err != nil {
		return nil, err
	}
	if !result.Replayed {
		s.logger.Info("receipt posted",
			zap.String("order_id", result.OrderID.String()),
			zap.String("receipt_number", result.ReceiptNumber),
			zap.String("receipt_status", string(result.ReceiptStatus)),
			zap.String("order_status", string(result.OrderStatus)),
		)
	}
	return result, nil
}

// submitOnce is one attempt of SubmitReceipt
func (s *ReconciliationService) submitOnce(ctx context.Context, orderID uuid.UUID, key string, proposal procurement.ProposedReceipt) (*ReceiptResultResponse, error) {
	release, err := s.locker.Acquire(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	var result *ReceiptResultResponse
	err = s.uow.Execute(ctx, func(ctx context.Context, tx procurement.Transaction) error {
		prior, err := tx.Receipts().FindByIdempotencyKey(ctx, orderID, key)
		if err == nil {
			result = ToReceiptResultResponse(prior.Result, true)
			return nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("look up idempotency key: %w", err)
		}

		order, err := s.loadForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		ledger, err := s.reconcile(ctx, tx, order)
		if err != nil {
			return err
		}

		validated, rejection := procurement.Validate(order, ledger, proposal)
		if rejection != nil {
			return rejection
		}
		receipt, err := order.PostReceipt(validated, key)
		if err != nil {
			return err
		}

		if err := s.persist(ctx, tx, order, receipt); err != nil {
			return err
		}
		result = ToReceiptResultResponse(receipt.Result, false)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Replayed {
		var qty float64
		for _, l := range proposal.Lines {
			qty += l.Quantity.InexactFloat64()
		}
		s.metrics.RecordReceiptAccepted(ctx, string(result.Kind), string(result.ReceiptStatus), qty)
	}
	return result, nil
}

// ReverseReceipt posts a compensating reversal of a standard receipt. A
// receipt can be reversed once; the reversal key replays like a submission.
func (s *ReconciliationService) ReverseReceipt(ctx context.Context, cmd ReverseReceiptCommand) (*ReceiptResultResponse, error) {
	start := time.Now()
	ctx, span := telemetry.StartServiceSpan(ctx, reconciliationSpanService, "reverse_receipt",
		telemetry.WithAttribute(telemetry.SpanAttrOrderID, cmd.OrderID),
		telemetry.WithAttribute(telemetry.SpanAttrReceiptID, cmd.ReceiptID))
	defer span.End()

	if cmd.IdempotencyKey == "" {
		cmd.IdempotencyKey = uuid.NewString()
	}

	var result *ReceiptResultResponse
	err := s.retry.run(ctx, cmd.OrderID, s.onRetry(ctx, span, cmd.OrderID), func(ctx context.Context, _ int) error {
		res, err := s.reverseOnce(ctx, cmd)
		if err != nil {
			return err
		}
		result = res
		return nil
	})

	s.finish(ctx, span, start, result, err)
	if err != nil {
		return nil, err
	}
	if !result.Replayed {
		s.logger.Warn("receipt reversed",
			zap.String("order_id", cmd.OrderID.String()),
			zap.String("reversed_receipt_id", cmd.ReceiptID.String()),
			zap.String("reversal_number", result.ReceiptNumber),
			zap.String("reason", cmd.Reason),
			zap.String("order_status", string(result.OrderStatus)),
		)
	}
	return result, nil
}

func (s *ReconciliationService) reverseOnce(ctx context.Context, cmd ReverseReceiptCommand) (*ReceiptResultResponse, error) {
	release, err := s.locker.Acquire(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	defer release()

	var result *ReceiptResultResponse
	err = s.uow.Execute(ctx, func(ctx context.Context, tx procurement.Transaction) error {
		prior, err := tx.Receipts().FindByIdempotencyKey(ctx, cmd.OrderID, cmd.IdempotencyKey)
		if err == nil {
			if !prior.IsReversal() || prior.ReversesReceiptID == nil || *prior.ReversesReceiptID != cmd.ReceiptID {
				return shared.NewDomainError("IDEMPOTENCY_KEY_REUSED", "Idempotency key was already used for a different receipt")
			}
			result = ToReceiptResultResponse(prior.Result, true)
			return nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("look up idempotency key: %w", err)
		}

		order, err := s.loadForUpdate(ctx, tx, cmd.OrderID)
		if err != nil {
			return err
		}
		original, err := tx.Receipts().FindByID(ctx, cmd.ReceiptID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return procurement.NewNotFound("receipt", cmd.ReceiptID)
			}
			return fmt.Errorf("load receipt: %w", err)
		}
		if _, err := tx.Receipts().FindReversalOf(ctx, original.ID); err == nil {
			return shared.NewDomainError("ALREADY_REVERSED", fmt.Sprintf("Receipt %s has already been reversed", original.ReceiptNumber))
		} else if !errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("look up reversal: %w", err)
		}

		if _, err := s.reconcile(ctx, tx, order); err != nil {
			return err
		}
		reversal, err := order.ReverseReceipt(original, cmd.IdempotencyKey, cmd.Reason)
		if err != nil {
			return err
		}

		if err := s.persist(ctx, tx, order, reversal); err != nil {
			return err
		}
		result = ToReceiptResultResponse(reversal.Result, false)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Replayed {
		s.metrics.RecordReceiptAccepted(ctx, string(result.Kind), string(result.ReceiptStatus), 0)
	}
	return result, nil
}

// GetOrderFulfillment returns the per-line fulfillment state of an order
func (s *ReconciliationService) GetOrderFulfillment(ctx context.Context, orderID uuid.UUID) (*FulfillmentResponse, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, notFoundAs(err, "order", orderID)
	}
	return ToFulfillmentResponse(order), nil
}

// ListReceipts returns the receipt log of an order in posting order
func (s *ReconciliationService) ListReceipts(ctx context.Context, orderID uuid.UUID) ([]ReceiptResponse, error) {
	if _, err := s.orders.FindByID(ctx, orderID); err != nil {
		return nil, notFoundAs(err, "order", orderID)
	}
	receipts, err := s.receipts.FindByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return ToReceiptResponses(receipts), nil
}

// AuditLedger compares the cached line totals with the receipt log without
// changing anything.
func (s *ReconciliationService) AuditLedger(ctx context.Context, orderID uuid.UUID) (*LedgerAuditResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, reconciliationSpanService, "audit_ledger",
		telemetry.WithAttribute(telemetry.SpanAttrOrderID, orderID))
	defer span.End()

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, notFoundAs(err, "order", orderID)
	}
	totals, err := s.receipts.SumReceivedByLine(ctx, orderID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	diffs := procurement.NewLedger(totals).Discrepancies(order)
	statusCurrent := order.Status == order.DerivedStatus()
	telemetry.SetAttributes(span, "discrepancies", len(diffs), "status_current", statusCurrent)
	return ToLedgerAuditResponse(order, diffs, statusCurrent, false), nil
}

// RepairLedger rewrites cached line totals from the receipt log and
// re-derives the order status.
func (s *ReconciliationService) RepairLedger(ctx context.Context, orderID uuid.UUID) (*LedgerAuditResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, reconciliationSpanService, "repair_ledger",
		telemetry.WithAttribute(telemetry.SpanAttrOrderID, orderID))
	defer span.End()

	var result *LedgerAuditResponse
	err := s.retry.run(ctx, orderID, s.onRetry(ctx, span, orderID), func(ctx context.Context, _ int) error {
		release, err := s.locker.Acquire(ctx, orderID)
		if err != nil {
			return err
		}
		defer release()

		return s.uow.Execute(ctx, func(ctx context.Context, tx procurement.Transaction) error {
			order, err := s.loadForUpdate(ctx, tx, orderID)
			if err != nil {
				return err
			}
			totals, err := tx.Receipts().SumReceivedByLine(ctx, orderID)
			if err != nil {
				return fmt.Errorf("sum receipt log: %w", err)
			}
			stale := order.Status != order.DerivedStatus()
			diffs, changed := order.ReconcileWithLedger(procurement.NewLedger(totals))
			if changed {
				if err := tx.Orders().SaveWithLock(ctx, order); err != nil {
					return err
				}
				if err := tx.SaveEvents(ctx, order.PullDomainEvents()...); err != nil {
					return err
				}
				s.metrics.RecordLedgerRepair(ctx, len(diffs))
			}
			result = ToLedgerAuditResponse(order, diffs, !stale, changed)
			return nil
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

func (s *ReconciliationService) loadForUpdate(ctx context.Context, tx procurement.Transaction, orderID uuid.UUID) (*procurement.Order, error) {
	order, err := tx.Orders().FindByIDForUpdate(ctx, orderID)
	if err != nil {
		return nil, notFoundAs(err, "order", orderID)
	}
	return order, nil
}

// reconcile builds the ledger from the receipt log and repairs any cache
// drift on the loaded order before it is validated against.
func (s *ReconciliationService) reconcile(ctx context.Context, tx procurement.Transaction, order *procurement.Order) (*procurement.Ledger, error) {
	totals, err := tx.Receipts().SumReceivedByLine(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("sum receipt log: %w", err)
	}
	ledger := procurement.NewLedger(totals)
	from := order.Status
	if diffs, changed := order.ReconcileWithLedger(ledger); changed {
		if order.Status != from {
			s.logger.Warn("order status was stale against its line totals, re-derived",
				zap.String("order_id", order.ID.String()),
				zap.String("from", string(from)),
				zap.String("to", string(order.Status)),
			)
		}
		for _, d := range diffs {
			s.logger.Warn("order line cache drifted from receipt log, repaired",
				zap.String("order_id", order.ID.String()),
				zap.Int("line_number", d.LineNumber),
				zap.String("cached", d.Cached.String()),
				zap.String("ledger", d.Ledger.String()),
			)
		}
		s.metrics.RecordLedgerRepair(ctx, len(diffs))
	}
	return ledger, nil
}

func (s *ReconciliationService) persist(ctx context.Context, tx procurement.Transaction, order *procurement.Order, receipt *procurement.Receipt) error {
	if err := tx.Receipts().Append(ctx, receipt); err != nil {
		return err
	}
	if err := tx.Orders().SaveWithLock(ctx, order); err != nil {
		return err
	}
	return tx.SaveEvents(ctx, order.PullDomainEvents()...)
}

func (s *ReconciliationService) onRetry(ctx context.Context, span trace.Span, orderID uuid.UUID) func(int, error) {
	return func(attempt int, err error) {
		s.metrics.RecordConflictRetry(ctx)
		telemetry.AddEvent(span, "retry", telemetry.SpanAttrAttempt, attempt)
		s.logger.Debug("order changed concurrently, retrying",
			zap.String("order_id", orderID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}

// finish records the outcome of a receipt operation on the span and metrics
func (s *ReconciliationService) finish(ctx context.Context, span trace.Span, start time.Time, result *ReceiptResultResponse, err error) {
	outcome := "accepted"
	switch rejection, isRejection := procurement.AsRejection(err); {
	case isRejection:
		outcome = "rejected"
		s.metrics.RecordRejection(ctx, string(rejection.Reason))
		telemetry.SetAttributes(span, telemetry.SpanAttrRejection, string(rejection.Reason))
		s.logger.Info("receipt rejected",
			zap.String("reason", string(rejection.Reason)),
			zap.String("message", rejection.Message),
		)
	case err != nil:
		outcome = "error"
		telemetry.RecordError(span, err)
	case result.Replayed:
		outcome = "replayed"
		telemetry.SetAttributes(span, telemetry.SpanAttrReplayed, true)
	}
	if result != nil {
		telemetry.SetAttributes(span,
			telemetry.SpanAttrReceiptID, result.ReceiptID.String(),
			telemetry.SpanAttrOrderStatus, string(result.OrderStatus))
	}
	if err == nil {
		telemetry.SetOK(span)
	}
	s.metrics.RecordSubmitDuration(ctx, time.Since(start), outcome)
}

// notFoundAs turns a repository not-found into a NOT_FOUND rejection
func notFoundAs(err error, kind string, id uuid.UUID) error {
	if errors.Is(err, shared.ErrNotFound) {
		return procurement.NewNotFound(kind, id)
	}
	return err
}
