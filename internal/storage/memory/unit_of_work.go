package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// unitOfWork журналирует компенсирующие действия в порядке применения.
// Все undo-функции вызываются под s.mu.
type unitOfWork struct {
	store      *Store
	undo       []func()
	savepoints map[string]int
	done       bool

	// Записи, которые Commit делает видимыми другим транзакциям.
	lockedVariants []int64
	createdOrders  []string
	enqueued       []string
}

func (u *unitOfWork) Inventory() domain.InventoryLedger { return &ledger{uow: u} }
func (u *unitOfWork) Orders() domain.OrderWriter         { return &orderWriter{uow: u} }
func (u *unitOfWork) Outbox() domain.OutboxWriter        { return &outboxWriter{uow: u} }

func (u *unitOfWork) active() error {
	if u.done {
		return domain.ErrTxDone
	}
	return nil
}

func (u *unitOfWork) Savepoint(_ context.Context, name string) error {
	if err := u.active(); err != nil {
		return err
	}
	u.savepoints[name] = len(u.undo)
	return nil
}

func (u *unitOfWork) RollbackTo(_ context.Context, name string) error {
	if err := u.active(); err != nil {
		return err
	}
	pos, ok := u.savepoints[name]
	if !ok {
		return fmt.Errorf("memory: savepoint %q does not exist", name)
	}

	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	u.unwind(pos)
	return nil
}

func (u *unitOfWork) Release(_ context.Context, name string) error {
	if err := u.active(); err != nil {
		return err
	}
	if _, ok := u.savepoints[name]; !ok {
		return fmt.Errorf("memory: savepoint %q does not exist", name)
	}
	delete(u.savepoints, name)
	return nil
}

// Commit публикует записи и снимает блокировки строк.
func (u *unitOfWork) Commit() error {
	if err := u.active(); err != nil {
		return err
	}
	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range u.lockedVariants {
		if lock, ok := s.rowLocks[id]; ok && lock.owner == u {
			delete(s.rowLocks, id)
		}
	}
	for _, id := range u.createdOrders {
		if s.orderOwners[id] == u {
			delete(s.orderOwners, id)
		}
	}
	for _, id := range u.enqueued {
		if rec, ok := s.outbox[id]; ok && rec.owner == u {
			rec.owner = nil
		}
	}

	u.done = true
	u.undo = nil
	return nil
}

func (u *unitOfWork) Rollback() error {
	if err := u.active(); err != nil {
		return err
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	u.unwind(0)
	u.done = true
	return nil
}

// unwind откатывает записи начиная с позиции pos. Вызывающий держит s.mu.
func (u *unitOfWork) unwind(pos int) {
	for i := len(u.undo) - 1; i >= pos; i-- {
		u.undo[i]()
	}
	u.undo = u.undo[:pos]
}

// lockVariant берёт блокировку строки при первой записи. Вызывающий держит s.mu.
func (u *unitOfWork) lockVariant(id int64, committed domain.ProductVariant) {
	s := u.store
	if lock, ok := s.rowLocks[id]; ok && lock.owner == u {
		return
	}
	s.rowLocks[id] = rowLock{owner: u, committed: committed}
	u.lockedVariants = append(u.lockedVariants, id)
	u.undo = append(u.undo, func() {
		if lock, ok := s.rowLocks[id]; ok && lock.owner == u {
			delete(s.rowLocks, id)
		}
	})
}

// lockedByOther сообщает, держит ли строку другая незакоммиченная единица работы.
// Вызывающий держит s.mu.
func (u *unitOfWork) lockedByOther(id int64) (domain.ProductVariant, bool) {
	lock, ok := u.store.rowLocks[id]
	if !ok || lock.owner == u {
		return domain.ProductVariant{}, false
	}
	return lock.committed, true
}

type ledger struct {
	uow *unitOfWork
}

func (l *ledger) TryReserve(_ context.Context, variantID int64, qty int32) (domain.Reservation, error) {
	if qty <= 0 {
		return domain.Reservation{}, domain.ErrQuantityInvalid
	}
	if err := l.uow.active(); err != nil {
		return domain.Reservation{}, err
	}
	s := l.uow.store

	s.mu.RLock()
	origin, ok := s.variants[variantID]
	committed, locked := l.uow.lockedByOther(variantID)
	hook := s.beforeSwap
	s.mu.RUnlock()
	if !ok {
		return domain.Reservation{}, fmt.Errorf("variant %d: %w", variantID, domain.ErrVariantNotFound)
	}
	if locked {
		return domain.Reservation{Outcome: domain.ReserveConflict, Variant: committed}, nil
	}
	if qty > origin.Stock {
		return domain.Reservation{Outcome: domain.ReserveInsufficient, Variant: origin}, nil
	}

	if hook != nil {
		hook(variantID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if committed, locked := l.uow.lockedByOther(variantID); locked {
		return domain.Reservation{Outcome: domain.ReserveConflict, Variant: committed}, nil
	}
	current := s.variants[variantID]
	if current.Stock != origin.Stock {
		return domain.Reservation{Outcome: domain.ReserveConflict, Variant: origin}, nil
	}
	l.uow.lockVariant(variantID, current)
	current.Stock = origin.Stock - qty
	current.Sales = origin.Sales + qty
	s.variants[variantID] = current

	l.uow.undo = append(l.uow.undo, func() {
		v := s.variants[variantID]
		v.Stock += qty
		v.Sales -= qty
		s.variants[variantID] = v
	})

	return domain.Reservation{
		Outcome:  domain.ReserveSuccess,
		Variant:  origin,
		NewStock: current.Stock,
		NewSales: current.Sales,
	}, nil
}

func (l *ledger) AddProductSales(_ context.Context, productID int64, qty int32) error {
	if err := l.uow.active(); err != nil {
		return err
	}
	s := l.uow.store

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return fmt.Errorf("product %d not found", productID)
	}
	p.Sales += qty
	s.products[productID] = p

	l.uow.undo = append(l.uow.undo, func() {
		p := s.products[productID]
		p.Sales -= qty
		s.products[productID] = p
	})
	return nil
}

type orderWriter struct {
	uow *unitOfWork
}

func (w *orderWriter) CreateHeader(_ context.Context, order *domain.Order) error {
	if err := w.uow.active(); err != nil {
		return err
	}
	s := w.uow.store

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return fmt.Errorf("order %s: %w", order.ID, domain.ErrOrderIDCollision)
	}
	header := *order
	header.Lines = nil
	s.orders[order.ID] = header
	s.orderOwners[order.ID] = w.uow
	w.uow.createdOrders = append(w.uow.createdOrders, order.ID)

	id := order.ID
	w.uow.undo = append(w.uow.undo, func() {
		delete(s.orders, id)
		delete(s.orderOwners, id)
	})
	return nil
}

func (w *orderWriter) AddLineItem(_ context.Context, line domain.OrderLineItem) error {
	if err := w.uow.active(); err != nil {
		return err
	}
	s := w.uow.store

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[line.OrderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	prev := len(order.Lines)
	order.Lines = append(order.Lines, line)
	s.orders[line.OrderID] = order

	w.uow.undo = append(w.uow.undo, func() {
		if o, ok := s.orders[line.OrderID]; ok {
			o.Lines = o.Lines[:prev]
			s.orders[line.OrderID] = o
		}
	})
	return nil
}

func (w *orderWriter) FinalizeTotals(_ context.Context, order *domain.Order) error {
	if err := w.uow.active(); err != nil {
		return err
	}
	s := w.uow.store

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	prevCount, prevAmount, prevUpdated := stored.TotalCount, stored.TotalAmountMinor, stored.UpdatedAt
	stored.TotalCount = order.TotalCount
	stored.TotalAmountMinor = order.TotalAmountMinor
	stored.UpdatedAt = order.UpdatedAt
	s.orders[order.ID] = stored

	id := order.ID
	w.uow.undo = append(w.uow.undo, func() {
		if o, ok := s.orders[id]; ok {
			o.TotalCount, o.TotalAmountMinor, o.UpdatedAt = prevCount, prevAmount, prevUpdated
			s.orders[id] = o
		}
	})
	return nil
}

type outboxWriter struct {
	uow *unitOfWork
}

func (w *outboxWriter) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if err := w.uow.active(); err != nil {
		return domain.OutboxMessage{}, err
	}
	s := w.uow.store

	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	s.outboxSeq++
	now := time.Now().UTC()
	s.outbox[msg.ID] = &outboxRecord{
		msg:       msg,
		status:    outboxStatusPending,
		seq:       s.outboxSeq,
		createdAt: now,
		updatedAt: now,
		owner:     w.uow,
	}
	w.uow.enqueued = append(w.uow.enqueued, msg.ID)

	id := msg.ID
	w.uow.undo = append(w.uow.undo, func() {
		delete(s.outbox, id)
	})
	return msg, nil
}

var _ domain.UnitOfWork = (*unitOfWork)(nil)
