package procurement

import (
	"context"
	"fmt"
	"sync"

	"github.com/erp/procurement/internal/domain/procurement"
	"github.com/erp/procurement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory UnitOfWork with optimistic commits: reads see the
// last committed state and a commit fails if an order it saved moved on.
type memStore struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]*procurement.Order
	receipts []procurement.Receipt
	events   []shared.DomainEvent

	// commitConflicts makes the next n commits fail with a conflict
	commitConflicts int
	commits         int
	// beforeCommit runs after fn and before the commit check
	beforeCommit func()
}

func newMemStore() *memStore {
	return &memStore{orders: map[uuid.UUID]*procurement.Order{}}
}

func cloneOrder(o *procurement.Order) *procurement.Order {
	c := *o
	c.Lines = append([]procurement.OrderLine(nil), o.Lines...)
	c.ClearDomainEvents()
	return &c
}

func (s *memStore) put(order *procurement.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = cloneOrder(order)
}

func (s *memStore) order(id uuid.UUID) *procurement.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneOrder(s.orders[id])
}

func (s *memStore) receiptCount(orderID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.receipts {
		if r.OrderID == orderID {
			n++
		}
	}
	return n
}

func (s *memStore) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, 0, len(s.events))
	for _, e := range s.events {
		types = append(types, e.EventType())
	}
	return types
}

type stagedSave struct {
	order       *procurement.Order
	baseVersion int
}

type memTx struct {
	store    *memStore
	saves    map[uuid.UUID]stagedSave
	creates  []*procurement.Order
	receipts []procurement.Receipt
	events   []shared.DomainEvent
}

func (s *memStore) Execute(ctx context.Context, fn func(ctx context.Context, tx procurement.Transaction) error) error {
	tx := &memTx{store: s, saves: map[uuid.UUID]stagedSave{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if s.beforeCommit != nil {
		s.beforeCommit()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits++
	if s.commitConflicts > 0 {
		s.commitConflicts--
		return fmt.Errorf("commit: %w", shared.ErrConcurrencyConflict)
	}
	for id, staged := range tx.saves {
		if current := s.orders[id]; current == nil || current.Version != staged.baseVersion {
			return fmt.Errorf("order %s: %w", id, shared.ErrConcurrencyConflict)
		}
	}
	for _, r := range tx.receipts {
		if s.keyTaken(r.OrderID, r.IdempotencyKey) {
			return fmt.Errorf("duplicate idempotency key: %w", shared.ErrConcurrencyConflict)
		}
	}
	for _, o := range tx.creates {
		s.orders[o.ID] = cloneOrder(o)
	}
	for id, staged := range tx.saves {
		s.orders[id] = cloneOrder(staged.order)
	}
	s.receipts = append(s.receipts, tx.receipts...)
	s.events = append(s.events, tx.events...)
	return nil
}

func (s *memStore) keyTaken(orderID uuid.UUID, key string) bool {
	for _, r := range s.receipts {
		if r.OrderID == orderID && r.IdempotencyKey == key {
			return true
		}
	}
	return false
}

func (tx *memTx) Orders() procurement.OrderRepository     { return &memOrders{store: tx.store, tx: tx} }
func (tx *memTx) Receipts() procurement.ReceiptRepository { return &memReceipts{store: tx.store, tx: tx} }

func (tx *memTx) SaveEvents(_ context.Context, events ...shared.DomainEvent) error {
	tx.events = append(tx.events, events...)
	return nil
}

// memOrders reads committed state, overlaid with what tx has staged
type memOrders struct {
	store *memStore
	tx    *memTx
}

func (r *memOrders) FindByID(_ context.Context, id uuid.UUID) (*procurement.Order, error) {
	if r.tx != nil {
		if staged, ok := r.tx.saves[id]; ok {
			return cloneOrder(staged.order), nil
		}
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.orders[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *memOrders) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*procurement.Order, error) {
	return r.FindByID(ctx, id)
}

func (r *memOrders) FindByOrderNumber(_ context.Context, orderNumber string) (*procurement.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, o := range r.store.orders {
		if o.OrderNumber == orderNumber {
			return cloneOrder(o), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memOrders) FindAll(_ context.Context, filter procurement.OrderFilter) ([]procurement.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []procurement.Order
	for _, o := range r.store.orders {
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		out = append(out, *cloneOrder(o))
	}
	return out, nil
}

func (r *memOrders) Count(ctx context.Context, filter procurement.OrderFilter) (int64, error) {
	all, err := r.FindAll(ctx, filter)
	return int64(len(all)), err
}

func (r *memOrders) ExistsByOrderNumber(ctx context.Context, orderNumber string) (bool, error) {
	_, err := r.FindByOrderNumber(ctx, orderNumber)
	return err == nil, nil
}

func (r *memOrders) Create(_ context.Context, order *procurement.Order) error {
	r.tx.creates = append(r.tx.creates, cloneOrder(order))
	return nil
}

func (r *memOrders) SaveWithLock(_ context.Context, order *procurement.Order) error {
	base := order.Version
	if staged, ok := r.tx.saves[order.ID]; ok {
		base = staged.baseVersion
	}
	order.IncrementVersion()
	r.tx.saves[order.ID] = stagedSave{order: cloneOrder(order), baseVersion: base}
	return nil
}

type memReceipts struct {
	store *memStore
	tx    *memTx
}

func (r *memReceipts) all() []procurement.Receipt {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := append([]procurement.Receipt(nil), r.store.receipts...)
	if r.tx != nil {
		out = append(out, r.tx.receipts...)
	}
	return out
}

func (r *memReceipts) Append(_ context.Context, receipt *procurement.Receipt) error {
	r.tx.receipts = append(r.tx.receipts, *receipt)
	return nil
}

func (r *memReceipts) FindByID(_ context.Context, id uuid.UUID) (*procurement.Receipt, error) {
	for _, rc := range r.all() {
		if rc.ID == id {
			return &rc, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memReceipts) FindByIdempotencyKey(_ context.Context, orderID uuid.UUID, key string) (*procurement.Receipt, error) {
	for _, rc := range r.all() {
		if rc.OrderID == orderID && rc.IdempotencyKey == key {
			return &rc, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memReceipts) FindByOrder(_ context.Context, orderID uuid.UUID) ([]procurement.Receipt, error) {
	var out []procurement.Receipt
	for _, rc := range r.all() {
		if rc.OrderID == orderID {
			out = append(out, rc)
		}
	}
	return out, nil
}

func (r *memReceipts) FindReversalOf(_ context.Context, receiptID uuid.UUID) (*procurement.Receipt, error) {
	for _, rc := range r.all() {
		if rc.ReversesReceiptID != nil && *rc.ReversesReceiptID == receiptID {
			return &rc, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memReceipts) SumReceivedByLine(ctx context.Context, orderID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	receipts, _ := r.FindByOrder(ctx, orderID)
	totals := map[uuid.UUID]decimal.Decimal{}
	for _, rc := range receipts {
		for _, l := range rc.Lines {
			totals[l.OrderLineID] = totals[l.OrderLineID].Add(l.Quantity)
		}
	}
	return totals, nil
}

var (
	_ procurement.UnitOfWork        = (*memStore)(nil)
	_ procurement.OrderRepository   = (*memOrders)(nil)
	_ procurement.ReceiptRepository = (*memReceipts)(nil)
)
