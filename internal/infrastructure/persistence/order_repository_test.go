package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/procurement/internal/domain/procurement"
	"github.com/erp/procurement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newApprovedOrder builds an approved order with one line per quantity
func newApprovedOrder(t *testing.T, number string, quantities ...int64) *procurement.Order {
	t.Helper()

	lines := make([]procurement.NewOrderLine, len(quantities))
	for i, q := range quantities {
		lines[i] = procurement.NewOrderLine{
			ItemReference:   "ITEM-" + string(rune('A'+i)),
			OrderedQuantity: decimal.NewFromInt(q),
			UnitPrice:       decimal.NewFromFloat(2.5),
		}
	}
	order, err := procurement.NewOrder(number, "SUP-001", time.Now(), nil, lines)
	require.NoError(t, err)
	require.NoError(t, order.Approve())
	order.ClearDomainEvents()
	return order
}

func TestGormOrderRepository_CreateAndFind(t *testing.T) {
	db := newTestDatabase(t)
	repo := NewGormOrderRepository(db.DB)
	ctx := context.Background()

	order := newApprovedOrder(t, "PO-100", 5, 90, 10)
	require.NoError(t, repo.Create(ctx, order))

	t.Run("finds by id with lines in order", func(t *testing.T) {
		found, err := repo.FindByID(ctx, order.ID)
		require.NoError(t, err)

		assert.Equal(t, "PO-100", found.OrderNumber)
		assert.Equal(t, procurement.OrderStatusApproved, found.Status)
		assert.Equal(t, order.Version, found.Version)
		require.Len(t, found.Lines, 3)
		for i, line := range found.Lines {
			assert.Equal(t, i+1, line.LineNumber)
			assert.Equal(t, order.Lines[i].ID, line.ID)
			assert.True(t, order.Lines[i].OrderedQuantity.Equal(line.OrderedQuantity))
			assert.True(t, line.ReceivedQuantity.IsZero())
		}
	})

	t.Run("finds for update", func(t *testing.T) {
		found, err := repo.FindByIDForUpdate(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, order.ID, found.ID)
	})

	t.Run("finds by order number", func(t *testing.T) {
		found, err := repo.FindByOrderNumber(ctx, "PO-100")
		require.NoError(t, err)
		assert.Equal(t, order.ID, found.ID)

		exists, err := repo.ExistsByOrderNumber(ctx, "PO-100")
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = repo.ExistsByOrderNumber(ctx, "PO-404")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("returns not found for unknown ids", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)

		_, err = repo.FindByOrderNumber(ctx, "PO-404")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("rejects a duplicate order number", func(t *testing.T) {
		dup := newApprovedOrder(t, "PO-100", 1)
		err := repo.Create(ctx, dup)
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})
}

func TestGormOrderRepository_FindAll(t *testing.T) {
	db := newTestDatabase(t)
	repo := NewGormOrderRepository(db.DB)
	ctx := context.Background()

	for _, number := range []string{"PO-A1", "PO-A2", "PO-B1"} {
		require.NoError(t, repo.Create(ctx, newApprovedOrder(t, number, 1)))
	}
	cancelled := newApprovedOrder(t, "PO-C1", 1)
	require.NoError(t, cancelled.Cancel("supplier withdrew"))
	require.NoError(t, repo.Create(ctx, cancelled))

	t.Run("filters by status", func(t *testing.T) {
		status := procurement.OrderStatusCancelled
		filter := procurement.OrderFilter{Filter: shared.DefaultFilter(), Status: &status}

		orders, err := repo.FindAll(ctx, filter)
		require.NoError(t, err)
		require.Len(t, orders, 1)
		assert.Equal(t, "PO-C1", orders[0].OrderNumber)
		assert.Len(t, orders[0].Lines, 1)
	})

	t.Run("searches order numbers case insensitively", func(t *testing.T) {
		filter := procurement.OrderFilter{Filter: shared.DefaultFilter()}
		filter.Search = "po-a"

		count, err := repo.Count(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("paginates with a whitelisted sort", func(t *testing.T) {
		filter := procurement.OrderFilter{Filter: shared.DefaultFilter()}
		filter.OrderBy = "order_number"
		filter.OrderDir = "asc"
		filter.PageSize = 2
		filter.Page = 2

		orders, err := repo.FindAll(ctx, filter)
		require.NoError(t, err)
		require.Len(t, orders, 2)
		assert.Equal(t, "PO-B1", orders[0].OrderNumber)
		assert.Equal(t, "PO-C1", orders[1].OrderNumber)

		count, err := repo.Count(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(4), count)
	})

	t.Run("ignores unknown sort fields", func(t *testing.T) {
		filter := procurement.OrderFilter{Filter: shared.DefaultFilter()}
		filter.OrderBy = "status; DROP TABLE purchase_orders"

		orders, err := repo.FindAll(ctx, filter)
		require.NoError(t, err)
		assert.Len(t, orders, 4)
	})
}

func TestGormOrderRepository_SaveWithLock(t *testing.T) {
	ctx := context.Background()

	t.Run("persists received quantities and bumps the version", func(t *testing.T) {
		db := newTestDatabase(t)
		repo := NewGormOrderRepository(db.DB)
		order := newApprovedOrder(t, "PO-200", 90)
		require.NoError(t, repo.Create(ctx, order))

		order.Lines[0].ReceivedQuantity = decimal.NewFromInt(40)
		order.ReceiptCount = 1
		order.Status = procurement.OrderStatusPartiallyReceived
		startVersion := order.Version

		require.NoError(t, repo.SaveWithLock(ctx, order))
		assert.Equal(t, startVersion+1, order.Version)

		stored, err := repo.FindByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, startVersion+1, stored.Version)
		assert.Equal(t, 1, stored.ReceiptCount)
		assert.Equal(t, procurement.OrderStatusPartiallyReceived, stored.Status)
		assert.True(t, decimal.NewFromInt(40).Equal(stored.Lines[0].ReceivedQuantity))
	})

	t.Run("rejects a stale copy and leaves its version alone", func(t *testing.T) {
		db := newTestDatabase(t)
		repo := NewGormOrderRepository(db.DB)
		order := newApprovedOrder(t, "PO-201", 10)
		require.NoError(t, repo.Create(ctx, order))

		first, err := repo.FindByID(ctx, order.ID)
		require.NoError(t, err)
		second, err := repo.FindByID(ctx, order.ID)
		require.NoError(t, err)

		first.Lines[0].ReceivedQuantity = decimal.NewFromInt(6)
		require.NoError(t, repo.SaveWithLock(ctx, first))

		second.Lines[0].ReceivedQuantity = decimal.NewFromInt(6)
		staleVersion := second.Version
		err = repo.SaveWithLock(ctx, second)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.Equal(t, staleVersion, second.Version)

		stored, err := repo.FindByID(ctx, order.ID)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(6).Equal(stored.Lines[0].ReceivedQuantity))
	})

	t.Run("returns not found for a missing order", func(t *testing.T) {
		db := newTestDatabase(t)
		repo := NewGormOrderRepository(db.DB)

		err := repo.SaveWithLock(ctx, newApprovedOrder(t, "PO-202", 1))
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormOrderRepository_PostgresLocking(t *testing.T) {
	ctx := context.Background()

	t.Run("loads for update with a row lock", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		repo := NewGormOrderRepository(db.DB)
		id := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "purchase_orders" WHERE id = \$1 .*FOR UPDATE`).
			WithArgs(id, 1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "order_number", "status", "version"}).
				AddRow(id.String(), "PO-300", "APPROVED", 3))
		mock.ExpectQuery(`SELECT \* FROM "purchase_order_lines" WHERE "purchase_order_lines"."order_id" = \$1 ORDER BY line_number ASC`).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "line_number", "ordered_quantity", "received_quantity"}).
				AddRow(uuid.NewString(), id.String(), 1, "10", "4"))

		order, err := repo.FindByIDForUpdate(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 3, order.Version)
		require.Len(t, order.Lines, 1)
		assert.True(t, decimal.NewFromInt(4).Equal(order.Lines[0].ReceivedQuantity))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("saves header then lines with a version check", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		repo := NewGormOrderRepository(db.DB)
		order := newApprovedOrder(t, "PO-301", 5, 5)

		mock.ExpectQuery(`SELECT version FROM "purchase_orders" WHERE id = \$1`).
			WithArgs(order.ID).
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(order.Version))
		mock.ExpectExec(`UPDATE "purchase_orders" SET .* WHERE id = \$\d+ AND version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE "purchase_order_lines" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE "purchase_order_lines" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		startVersion := order.Version
		require.NoError(t, repo.SaveWithLock(ctx, order))
		assert.Equal(t, startVersion+1, order.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("version mismatch stops before any update", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		repo := NewGormOrderRepository(db.DB)
		order := newApprovedOrder(t, "PO-302", 5)

		mock.ExpectQuery(`SELECT version FROM "purchase_orders"`).
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(order.Version + 1))

		err := repo.SaveWithLock(ctx, order)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost race on update reverts the version", func(t *testing.T) {
		db, mock, mockDB := newMockDatabase(t)
		defer mockDB.Close()
		repo := NewGormOrderRepository(db.DB)
		order := newApprovedOrder(t, "PO-303", 5)
		startVersion := order.Version

		mock.ExpectQuery(`SELECT version FROM "purchase_orders"`).
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(order.Version))
		mock.ExpectExec(`UPDATE "purchase_orders" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.SaveWithLock(ctx, order)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.Equal(t, startVersion, order.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
