package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/procurement/internal/domain/procurement"
	"github.com/erp/procurement/internal/domain/shared"
	"github.com/erp/procurement/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOrderRepository implements procurement.OrderRepository using GORM.
// It never opens a transaction itself; bind it to a transaction handle to
// take part in a unit of work.
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

func preloadLines(db *gorm.DB) *gorm.DB {
	return db.Order("line_number ASC")
}

// FindByID finds an order by its ID
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*procurement.Order, error) {
	return r.findOne(r.db.WithContext(ctx), "id = ?", id)
}

// FindByIDForUpdate finds an order and locks its row with SELECT ... FOR UPDATE
// on PostgreSQL. SQLite has no row locks and already serialises writers.
func (r *GormOrderRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*procurement.Order, error) {
	query := r.db.WithContext(ctx)
	if query.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.findOne(query, "id = ?", id)
}

// FindByOrderNumber finds an order by its business number
func (r *GormOrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (*procurement.Order, error) {
	return r.findOne(r.db.WithContext(ctx), "order_number = ?", orderNumber)
}

func (r *GormOrderRepository) findOne(query *gorm.DB, cond string, arg any) (*procurement.Order, error) {
	var model models.PurchaseOrderModel
	if err := query.
		Preload("Lines", preloadLines).
		Where(cond, arg).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll finds orders matching the filter, one page at a time
func (r *GormOrderRepository) FindAll(ctx context.Context, filter procurement.OrderFilter) ([]procurement.Order, error) {
	var rows []models.PurchaseOrderModel
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.PurchaseOrderModel{}), filter)

	if err := query.Preload("Lines", preloadLines).Find(&rows).Error; err != nil {
		return nil, err
	}

	orders := make([]procurement.Order, len(rows))
	for i := range rows {
		orders[i] = *rows[i].ToDomain()
	}
	return orders, nil
}

// Count counts orders matching the filter, ignoring pagination
func (r *GormOrderRepository) Count(ctx context.Context, filter procurement.OrderFilter) (int64, error) {
	var count int64
	query := r.applyFilterWithoutPagination(r.db.WithContext(ctx).Model(&models.PurchaseOrderModel{}), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ExistsByOrderNumber checks if an order number is taken
func (r *GormOrderRepository) ExistsByOrderNumber(ctx context.Context, orderNumber string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.PurchaseOrderModel{}).
		Where("order_number = ?", orderNumber).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create inserts a new order together with its lines
func (r *GormOrderRepository) Create(ctx context.Context, order *procurement.Order) error {
	model := models.PurchaseOrderModelFromDomain(order)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// SaveWithLock saves the order header and line caches with optimistic
// locking. On success order.Version holds the new stored version.
func (r *GormOrderRepository) SaveWithLock(ctx context.Context, order *procurement.Order) error {
	db := r.db.WithContext(ctx)

	var current struct{ Version int }
	result := db.Model(&models.PurchaseOrderModel{}).
		Select("version").
		Where("id = ?", order.ID).
		Scan(&current)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}

	if current.Version != order.Version {
		return fmt.Errorf("order %s at version %d, stored %d: %w",
			order.ID, order.Version, current.Version, shared.ErrConcurrencyConflict)
	}

	previousVersion := order.Version
	previousUpdatedAt := order.UpdatedAt
	order.IncrementVersion()
	order.UpdatedAt = time.Now().UTC()

	err := r.saveVersioned(db, order, previousVersion)
	if err != nil {
		order.Version = previousVersion
		order.UpdatedAt = previousUpdatedAt
	}
	return err
}

func (r *GormOrderRepository) saveVersioned(db *gorm.DB, order *procurement.Order, expectedVersion int) error {
	result := db.Model(&models.PurchaseOrderModel{}).
		Where("id = ? AND version = ?", order.ID, expectedVersion).
		Updates(map[string]any{
			"status":        order.Status,
			"expected_date": order.ExpectedDate,
			"receipt_count": order.ReceiptCount,
			"approved_at":   order.ApprovedAt,
			"cancelled_at":  order.CancelledAt,
			"closed_at":     order.ClosedAt,
			"close_reason":  order.CloseReason,
			"version":       order.Version,
			"updated_at":    order.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("order %s changed during save: %w", order.ID, shared.ErrConcurrencyConflict)
	}

	// Lines are immutable apart from their received cache
	for i := range order.Lines {
		line := &order.Lines[i]
		if err := db.Model(&models.OrderLineModel{}).
			Where("id = ? AND order_id = ?", line.ID, order.ID).
			Updates(map[string]any{
				"received_quantity": line.ReceivedQuantity,
				"updated_at":        order.UpdatedAt,
			}).Error; err != nil {
			return err
		}
	}
	return nil
}

// applyFilter applies filter, ordering and pagination options to the query
func (r *GormOrderRepository) applyFilter(query *gorm.DB, filter procurement.OrderFilter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	query = query.Order(orderListSort(filter.OrderBy, filter.OrderDir))

	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}
	return query
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormOrderRepository) applyFilterWithoutPagination(query *gorm.DB, filter procurement.OrderFilter) *gorm.DB {
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(order_number) LIKE ? OR LOWER(supplier_reference) LIKE ?", pattern, pattern)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.SupplierReference != "" {
		query = query.Where("supplier_reference = ?", filter.SupplierReference)
	}

	for key, value := range filter.Filters {
		switch key {
		case "issued_from":
			if t, ok := value.(time.Time); ok {
				query = query.Where("issue_date >= ?", t)
			}
		case "issued_to":
			if t, ok := value.(time.Time); ok {
				query = query.Where("issue_date <= ?", t)
			}
		}
	}
	return query
}

// Ensure GormOrderRepository implements procurement.OrderRepository
var _ procurement.OrderRepository = (*GormOrderRepository)(nil)
