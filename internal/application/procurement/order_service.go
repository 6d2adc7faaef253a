package procurement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/erp/procurement/internal/domain/procurement"
	"github.com/erp/procurement/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderService handles the purchase order lifecycle around receiving:
// creation, approval, cancellation and short closing.
type OrderService struct {
	uow    procurement.UnitOfWork
	orders procurement.OrderRepository
	retry  RetryPolicy
	logger *zap.Logger
	now    func() time.Time
}

// NewOrderService creates a new OrderService
func NewOrderService(uow procurement.UnitOfWork, orders procurement.OrderRepository, logger *zap.Logger) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{
		uow:    uow,
		orders: orders,
		retry:  DefaultRetryPolicy(),
		logger: logger,
		now:    time.Now,
	}
}

// SetRetryPolicy sets the conflict retry policy
func (s *OrderService) SetRetryPolicy(policy RetryPolicy) {
	s.retry = policy
}

// Create creates a new draft purchase order. An empty order number is
// generated from the issue date.
func (s *OrderService) Create(ctx context.Context, req CreateOrderRequest) (*OrderResponse, error) {
	issueDate := s.now()
	if req.IssueDate != nil {
		issueDate = *req.IssueDate
	}
	orderNumber := strings.TrimSpace(req.OrderNumber)
	if orderNumber == "" {
		orderNumber = generateOrderNumber(issueDate)
	}

	lines := make([]procurement.NewOrderLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, procurement.NewOrderLine{
			ItemReference:   l.ItemReference,
			Description:     l.Description,
			OrderedQuantity: l.OrderedQuantity,
			UnitPrice:       l.UnitPrice,
		})
	}

	order, err := procurement.NewOrder(orderNumber, req.SupplierReference, issueDate, req.ExpectedDate, lines)
	if err != nil {
		return nil, err
	}

	err = s.uow.Execute(ctx, func(ctx context.Context, tx procurement.Transaction) error {
		exists, err := tx.Orders().ExistsByOrderNumber(ctx, orderNumber)
		if err != nil {
			return err
		}
		if exists {
			return shared.NewDomainError("ALREADY_EXISTS", fmt.Sprintf("Order number %s already exists", orderNumber))
		}
		if err := tx.Orders().Create(ctx, order); err != nil {
			return err
		}
		return tx.SaveEvents(ctx, order.PullDomainEvents()...)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("purchase order created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.Int("lines", len(order.Lines)),
	)
	response := ToOrderResponse(order)
	return &response, nil
}

// Approve moves a draft order to APPROVED so it can be received against
func (s *OrderService) Approve(ctx context.Context, orderID uuid.UUID) (*OrderResponse, error) {
	return s.mutate(ctx, orderID, "approved", func(order *procurement.Order) error {
		return order.Approve()
	})
}

// Cancel cancels an order that has not received anything
func (s *OrderService) Cancel(ctx context.Context, orderID uuid.UUID, reason string) (*OrderResponse, error) {
	return s.mutate(ctx, orderID, "cancelled", func(order *procurement.Order) error {
		return order.Cancel(reason)
	})
}

// CloseShort ends a partially received order without waiting for the rest
func (s *OrderService) CloseShort(ctx context.Context, orderID uuid.UUID, reason string) (*OrderResponse, error) {
	return s.mutate(ctx, orderID, "closed short", func(order *procurement.Order) error {
		return order.CloseShort(reason)
	})
}

// GetByID retrieves a purchase order by ID
func (s *OrderService) GetByID(ctx context.Context, orderID uuid.UUID) (*OrderResponse, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	response := ToOrderResponse(order)
	return &response, nil
}

// GetByOrderNumber retrieves a purchase order by order number
func (s *OrderService) GetByOrderNumber(ctx context.Context, orderNumber string) (*OrderResponse, error) {
	order, err := s.orders.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	response := ToOrderResponse(order)
	return &response, nil
}

// List retrieves purchase orders with filtering and pagination
func (s *OrderService) List(ctx context.Context, filter OrderListFilter) ([]OrderListItemResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if filter.OrderBy == "" {
		filter.OrderBy = "created_at"
	}
	if filter.OrderDir == "" {
		filter.OrderDir = "desc"
	}

	domainFilter := procurement.OrderFilter{
		Filter: shared.Filter{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			OrderBy:  filter.OrderBy,
			OrderDir: filter.OrderDir,
			Search:   filter.Search,
		},
		Status:            filter.Status,
		SupplierReference: filter.SupplierReference,
	}

	orders, err := s.orders.FindAll(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.orders.Count(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	return ToOrderListItemResponses(orders), total, nil
}

// mutate loads the order for update, applies fn and saves it with a version
// check, retrying on concurrency conflicts.
func (s *OrderService) mutate(ctx context.Context, orderID uuid.UUID, action string, fn func(*procurement.Order) error) (*OrderResponse, error) {
	var updated *procurement.Order
	err := s.retry.run(ctx, orderID, nil, func(ctx context.Context, _ int) error {
		return s.uow.Execute(ctx, func(ctx context.Context, tx procurement.Transaction) error {
			order, err := tx.Orders().FindByIDForUpdate(ctx, orderID)
			if err != nil {
				return err
			}
			if err := fn(order); err != nil {
				return err
			}
			if err := tx.Orders().SaveWithLock(ctx, order); err != nil {
				return err
			}
			if err := tx.SaveEvents(ctx, order.PullDomainEvents()...); err != nil {
				return err
			}
			updated = order
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("purchase order "+action,
		zap.String("order_id", updated.ID.String()),
		zap.String("order_number", updated.OrderNumber),
		zap.String("status", string(updated.Status)),
	)
	response := ToOrderResponse(updated)
	return &response, nil
}

func generateOrderNumber(issueDate time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("PO-%s-%s", issueDate.Format("20060102"), suffix)
}
