package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/procurement/internal/domain/procurement"
	"github.com/erp/procurement/internal/domain/shared"
	"github.com/erp/procurement/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormReceiptRepository implements procurement.ReceiptRepository using GORM.
// Receipts are only ever inserted.
type GormReceiptRepository struct {
	db *gorm.DB
}

// NewGormReceiptRepository creates a new GormReceiptRepository
func NewGormReceiptRepository(db *gorm.DB) *GormReceiptRepository {
	return &GormReceiptRepository{db: db}
}

func preloadReceiptLines(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// Append inserts a receipt with its lines
func (r *GormReceiptRepository) Append(ctx context.Context, receipt *procurement.Receipt) error {
	model, err := models.ReceiptModelFromDomain(receipt)
	if err != nil {
		return fmt.Errorf("encode receipt %s: %w", receipt.ID, err)
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Another submission took the same key, sequence or reversal slot
			return fmt.Errorf("receipt %s for order %s: %w",
				receipt.IdempotencyKey, receipt.OrderID, shared.ErrConcurrencyConflict)
		}
		return err
	}
	return nil
}

// FindByID finds a receipt by its ID
func (r *GormReceiptRepository) FindByID(ctx context.Context, id uuid.UUID) (*procurement.Receipt, error) {
	return r.findOne(r.db.WithContext(ctx).Where("id = ?", id))
}

// FindByIdempotencyKey finds the receipt an order accepted under key
func (r *GormReceiptRepository) FindByIdempotencyKey(ctx context.Context, orderID uuid.UUID, key string) (*procurement.Receipt, error) {
	return r.findOne(r.db.WithContext(ctx).Where("order_id = ? AND idempotency_key = ?", orderID, key))
}

// FindReversalOf finds the receipt that reverses receiptID
func (r *GormReceiptRepository) FindReversalOf(ctx context.Context, receiptID uuid.UUID) (*procurement.Receipt, error) {
	return r.findOne(r.db.WithContext(ctx).Where("reverses_receipt_id = ?", receiptID))
}

func (r *GormReceiptRepository) findOne(query *gorm.DB) (*procurement.Receipt, error) {
	var model models.ReceiptModel
	if err := query.Preload("Lines", preloadReceiptLines).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindByOrder returns the receipt log of an order in posting order
func (r *GormReceiptRepository) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]procurement.Receipt, error) {
	var rows []models.ReceiptModel
	if err := r.db.WithContext(ctx).
		Preload("Lines", preloadReceiptLines).
		Where("order_id = ?", orderID).
		Order("sequence ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	receipts := make([]procurement.Receipt, 0, len(rows))
	for i := range rows {
		receipt, err := rows[i].ToDomain()
		if err != nil {
			return nil, fmt.Errorf("decode receipt %s: %w", rows[i].ID, err)
		}
		receipts = append(receipts, *receipt)
	}
	return receipts, nil
}

// SumReceivedByLine totals the signed receipt quantities per order line.
// Lines without receipts are absent from the map.
func (r *GormReceiptRepository) SumReceivedByLine(ctx context.Context, orderID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	var rows []struct {
		OrderLineID uuid.UUID
		Total       decimal.Decimal
	}
	if err := r.db.WithContext(ctx).
		Model(&models.ReceiptLineModel{}).
		Select("order_line_id, SUM(quantity) AS total").
		Where("order_id = ?", orderID).
		Group("order_line_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	totals := make(map[uuid.UUID]decimal.Decimal, len(rows))
	for _, row := range rows {
		totals[row.OrderLineID] = row.Total
	}
	return totals, nil
}

// Ensure GormReceiptRepository implements procurement.ReceiptRepository
var _ procurement.ReceiptRepository = (*GormReceiptRepository)(nil)
