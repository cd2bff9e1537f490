package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func seededStore() *Store {
	store := NewStore()
	store.PutProduct(domain.Product{ID: 10, Name: "phone"})
	store.PutVariant(domain.ProductVariant{ID: 1, ProductID: 10, Name: "phone 64GB", PriceMinor: 1000, Stock: 5})
	store.PutVariant(domain.ProductVariant{ID: 2, ProductID: 10, Name: "phone 128GB", PriceMinor: 2000, Stock: 0})
	return store
}

func TestLedger_TryReserveSuccess(t *testing.T) {
	store := seededStore()
	uow, err := store.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	res, err := uow.Inventory().TryReserve(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if res.Outcome != domain.ReserveSuccess || res.NewStock != 0 || res.NewSales != 5 {
		t.Fatalf("unexpected reservation: %+v", res)
	}
	if res.Variant.PriceMinor != 1000 {
		t.Fatalf("reservation must carry the price read: %+v", res.Variant)
	}
	if err := uow.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	v, _ := store.Variant(1)
	if v.Stock != 0 || v.Sales != 5 {
		t.Fatalf("unexpected variant after commit: %+v", v)
	}
}

func TestLedger_TryReserveInsufficientLeavesStock(t *testing.T) {
	store := seededStore()
	uow, _ := store.Begin(context.Background())

	res, err := uow.Inventory().TryReserve(context.Background(), 1, 6)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if res.Outcome != domain.ReserveInsufficient {
		t.Fatalf("expected insufficient, got %s", res.Outcome)
	}
	v, _ := store.Variant(1)
	if v.Stock != 5 || v.Sales != 0 {
		t.Fatalf("stock must be unchanged: %+v", v)
	}
}

func TestLedger_TryReserveConflict(t *testing.T) {
	store := seededStore()
	store.beforeSwap = func(variantID int64) {
		// Конкурент успевает списать единицу между чтением и записью.
		store.mu.Lock()
		v := store.variants[variantID]
		v.Stock--
		store.variants[variantID] = v
		store.mu.Unlock()
		store.beforeSwap = nil
	}

	uow, _ := store.Begin(context.Background())
	res, err := uow.Inventory().TryReserve(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if res.Outcome != domain.ReserveConflict {
		t.Fatalf("expected conflict, got %s", res.Outcome)
	}

	res, err = uow.Inventory().TryReserve(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("retry reserve: %v", err)
	}
	if res.Outcome != domain.ReserveSuccess || res.NewStock != 2 {
		t.Fatalf("retry must see fresh stock 4 and leave 2: %+v", res)
	}
}

func TestLedger_TryReserveValidation(t *testing.T) {
	store := seededStore()
	uow, _ := store.Begin(context.Background())

	if _, err := uow.Inventory().TryReserve(context.Background(), 1, 0); !errors.Is(err, domain.ErrQuantityInvalid) {
		t.Fatalf("expected ErrQuantityInvalid, got %v", err)
	}
	if _, err := uow.Inventory().TryReserve(context.Background(), 99, 1); !errors.Is(err, domain.ErrVariantNotFound) {
		t.Fatalf("expected ErrVariantNotFound, got %v", err)
	}
}

func TestUnitOfWork_RollbackToSavepointUndoesEverything(t *testing.T) {
	store := seededStore()
	ctx := context.Background()
	uow, _ := store.Begin(ctx)

	if err := uow.Savepoint(ctx, "checkout"); err != nil {
		t.Fatalf("savepoint: %v", err)
	}
	order := domain.NewOrder(1, 3, domain.PayMethodCash, time.Now())
	if err := uow.Orders().CreateHeader(ctx, order); err != nil {
		t.Fatalf("create header: %v", err)
	}
	if _, err := uow.Inventory().TryReserve(ctx, 1, 2); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := uow.Inventory().AddProductSales(ctx, 10, 2); err != nil {
		t.Fatalf("product sales: %v", err)
	}
	if err := uow.Orders().AddLineItem(ctx, domain.OrderLineItem{OrderID: order.ID, VariantID: 1, Count: 2, PriceMinor: 1000}); err != nil {
		t.Fatalf("line item: %v", err)
	}
	if _, err := uow.Outbox().Enqueue(ctx, domain.OutboxMessage{AggregateID: order.ID}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := uow.RollbackTo(ctx, "checkout"); err != nil {
		t.Fatalf("rollback to: %v", err)
	}
	if err := uow.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	if store.OrderCount() != 0 {
		t.Fatal("order header must be rolled back")
	}
	v, _ := store.Variant(1)
	if v.Stock != 5 || v.Sales != 0 {
		t.Fatalf("stock must be restored: %+v", v)
	}
	p, _ := store.Product(10)
	if p.Sales != 0 {
		t.Fatalf("product sales must be restored: %+v", p)
	}
	stats, _ := NewOutboxRepository(store).Stats(ctx)
	if stats.PendingCount != 0 {
		t.Fatalf("outbox must be rolled back: %+v", stats)
	}
	if err := uow.Commit(); !errors.Is(err, domain.ErrTxDone) {
		t.Fatalf("expected ErrTxDone after rollback, got %v", err)
	}
}

func TestUnitOfWork_CommitKeepsWrites(t *testing.T) {
	store := seededStore()
	ctx := context.Background()
	uow, _ := store.Begin(ctx)

	order := domain.NewOrder(1, 3, domain.PayMethodCash, time.Now())
	if err := uow.Orders().CreateHeader(ctx, order); err != nil {
		t.Fatalf("create header: %v", err)
	}
	line := domain.OrderLineItem{OrderID: order.ID, VariantID: 1, Count: 1, PriceMinor: 1000}
	if err := uow.Orders().AddLineItem(ctx, line); err != nil {
		t.Fatalf("line item: %v", err)
	}
	order.AddLine(line)
	order.ApplyFreight()
	if err := uow.Orders().FinalizeTotals(ctx, order); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := uow.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := uow.Rollback(); !errors.Is(err, domain.ErrTxDone) {
		t.Fatalf("rollback after commit must report ErrTxDone, got %v", err)
	}

	stored, err := store.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if stored.TotalCount != 1 || stored.TotalAmountMinor != 1000+domain.FreightMinor || len(stored.Lines) != 1 {
		t.Fatalf("unexpected stored order: %+v", stored)
	}
	if errs := stored.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("stored order violates invariants: %v", errs)
	}
}

func TestUnitOfWork_DuplicateHeaderIsCollision(t *testing.T) {
	store := seededStore()
	ctx := context.Background()
	at := time.Now()

	first, _ := store.Begin(ctx)
	if err := first.Orders().CreateHeader(ctx, domain.NewOrder(1, 1, domain.PayMethodCash, at)); err != nil {
		t.Fatalf("create header: %v", err)
	}
	_ = first.Commit()

	second, _ := store.Begin(ctx)
	err := second.Orders().CreateHeader(ctx, domain.NewOrder(1, 1, domain.PayMethodCash, at))
	if !errors.Is(err, domain.ErrOrderIDCollision) {
		t.Fatalf("expected ErrOrderIDCollision, got %v", err)
	}
}

func TestUnitOfWork_UnknownSavepoint(t *testing.T) {
	store := seededStore()
	uow, _ := store.Begin(context.Background())

	if err := uow.RollbackTo(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown savepoint")
	}
	if err := uow.Release(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown savepoint")
	}
}

func TestStore_GetVariantsSkipsMissing(t *testing.T) {
	store := seededStore()
	variants, err := store.GetVariants(context.Background(), []int64{2, 99, 1})
	if err != nil {
		t.Fatalf("get variants: %v", err)
	}
	if len(variants) != 2 || variants[0].ID != 1 || variants[1].ID != 2 {
		t.Fatalf("unexpected variants: %+v", variants)
	}
}

func TestLedger_OpenReservationLocksRow(t *testing.T) {
	store := seededStore()
	ctx := context.Background()

	owner, _ := store.Begin(ctx)
	if _, err := owner.Inventory().TryReserve(ctx, 1, 2); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	// Читатели видят закоммиченный остаток, а не незавершённое списание.
	v, _ := store.Variant(1)
	if v.Stock != 5 || v.Sales != 0 {
		t.Fatalf("uncommitted decrement must be invisible: %+v", v)
	}
	variants, _ := store.GetVariants(ctx, []int64{1})
	if len(variants) != 1 || variants[0].Stock != 5 {
		t.Fatalf("catalog must return committed stock: %+v", variants)
	}

	rival, _ := store.Begin(ctx)
	res, err := rival.Inventory().TryReserve(ctx, 1, 5)
	if err != nil {
		t.Fatalf("rival reserve: %v", err)
	}
	if res.Outcome != domain.ReserveConflict || res.Variant.Stock != 5 {
		t.Fatalf("locked row must report conflict with committed stock, got %+v", res)
	}

	if err := owner.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	res, err = rival.Inventory().TryReserve(ctx, 1, 5)
	if err != nil {
		t.Fatalf("rival retry: %v", err)
	}
	if res.Outcome != domain.ReserveSuccess || res.NewStock != 0 {
		t.Fatalf("rolled back stock must be available again: %+v", res)
	}
	if err := rival.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	v, _ = store.Variant(1)
	if v.Stock != 0 || v.Sales != 5 {
		t.Fatalf("unexpected variant after rival commit: %+v", v)
	}
}

func TestLedger_CommitReleasesRowLock(t *testing.T) {
	store := seededStore()
	ctx := context.Background()

	owner, _ := store.Begin(ctx)
	if _, err := owner.Inventory().TryReserve(ctx, 1, 2); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	rival, _ := store.Begin(ctx)
	if res, _ := rival.Inventory().TryReserve(ctx, 1, 1); res.Outcome != domain.ReserveConflict {
		t.Fatalf("expected conflict while the row is locked, got %s", res.Outcome)
	}
	if err := owner.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	res, err := rival.Inventory().TryReserve(ctx, 1, 4)
	if err != nil {
		t.Fatalf("rival reserve: %v", err)
	}
	if res.Outcome != domain.ReserveInsufficient || res.Variant.Stock != 3 {
		t.Fatalf("rival must validate against committed stock 3: %+v", res)
	}
}

func TestLedger_RollbackToSavepointReleasesRowLock(t *testing.T) {
	store := seededStore()
	ctx := context.Background()

	owner, _ := store.Begin(ctx)
	_ = owner.Savepoint(ctx, "checkout")
	if _, err := owner.Inventory().TryReserve(ctx, 1, 2); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := owner.RollbackTo(ctx, "checkout"); err != nil {
		t.Fatalf("rollback to: %v", err)
	}

	rival, _ := store.Begin(ctx)
	res, err := rival.Inventory().TryReserve(ctx, 1, 5)
	if err != nil {
		t.Fatalf("rival reserve: %v", err)
	}
	if res.Outcome != domain.ReserveSuccess {
		t.Fatalf("expected success after savepoint rollback, got %s", res.Outcome)
	}
}

func TestUnitOfWork_UncommittedOrderAndOutboxAreHidden(t *testing.T) {
	store := seededStore()
	ctx := context.Background()
	outbox := NewOutboxRepository(store)

	uow, _ := store.Begin(ctx)
	order := domain.NewOrder(1, 3, domain.PayMethodCash, time.Now())
	if err := uow.Orders().CreateHeader(ctx, order); err != nil {
		t.Fatalf("create header: %v", err)
	}
	msg, err := uow.Outbox().Enqueue(ctx, domain.OutboxMessage{AggregateID: order.ID})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if _, err := store.GetOrder(ctx, order.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("uncommitted order must be hidden, got %v", err)
	}
	if store.OrderCount() != 0 {
		t.Fatal("uncommitted order must not be counted")
	}
	pending, _ := outbox.PullPending(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("uncommitted outbox message must be hidden: %+v", pending)
	}
	if err := outbox.MarkSent(ctx, msg.ID); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("uncommitted message cannot be marked, got %v", err)
	}

	if err := uow.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := store.GetOrder(ctx, order.ID); err != nil {
		t.Fatalf("committed order must be visible: %v", err)
	}
	pending, _ = outbox.PullPending(ctx, 10)
	if len(pending) != 1 || pending[0].ID != msg.ID {
		t.Fatalf("committed message must be pending: %+v", pending)
	}
}
