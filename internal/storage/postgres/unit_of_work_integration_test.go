package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

func TestUnitOfWork_CommitPersistsOrderAndStock(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedCatalogForIntegrationTest(t, store)
	ctx := context.Background()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.Savepoint(ctx, "checkout"))

	order := domain.NewOrder(7, 3, domain.PayMethodAlipay, time.Now())
	require.NoError(t, uow.Orders().CreateHeader(ctx, order))

	res, err := uow.Inventory().TryReserve(ctx, 1, 2)
	require.NoError(t, err)
	require.Equal(t, domain.ReserveSuccess, res.Outcome)
	require.Equal(t, int32(3), res.NewStock)
	require.Equal(t, int32(2), res.NewSales)
	require.NoError(t, uow.Inventory().AddProductSales(ctx, res.Variant.ProductID, 2))

	line := domain.OrderLineItem{VariantID: 1, Count: 2, PriceMinor: res.Variant.PriceMinor, CreatedAt: order.CreatedAt}
	order.AddLine(line)
	require.NoError(t, uow.Orders().AddLineItem(ctx, order.Lines[0]))
	order.ApplyFreight()
	require.NoError(t, uow.Orders().FinalizeTotals(ctx, order))

	msg, err := domain.NewOrderCommittedMessage(order)
	require.NoError(t, err)
	_, err = uow.Outbox().Enqueue(ctx, msg)
	require.NoError(t, err)

	require.NoError(t, uow.Release(ctx, "checkout"))
	require.NoError(t, uow.Commit())

	stock, sales := skuStateForIntegrationTest(t, store, 1)
	require.Equal(t, int32(3), stock)
	require.Equal(t, int32(2), sales)

	saved, err := NewOrderReader(store).GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, int32(2), saved.TotalCount)
	require.Equal(t, int64(2*1000+domain.FreightMinor), saved.TotalAmountMinor)
	require.Equal(t, domain.OrderStatusUnpaid, saved.Status)
	require.Len(t, saved.Lines, 1)
	require.Empty(t, saved.ValidateInvariants())

	pending, err := NewOutboxRepository(store).PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, order.ID, pending[0].AggregateID)
}

func TestUnitOfWork_RollbackToSavepointUndoesEverything(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedCatalogForIntegrationTest(t, store)
	ctx := context.Background()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.Savepoint(ctx, "checkout"))

	order := domain.NewOrder(7, 3, domain.PayMethodCash, time.Now())
	require.NoError(t, uow.Orders().CreateHeader(ctx, order))
	res, err := uow.Inventory().TryReserve(ctx, 1, 1)
	require.NoError(t, err)
	require.Equal(t, domain.ReserveSuccess, res.Outcome)

	res, err = uow.Inventory().TryReserve(ctx, 2, 1)
	require.NoError(t, err)
	require.Equal(t, domain.ReserveInsufficient, res.Outcome)

	require.NoError(t, uow.RollbackTo(ctx, "checkout"))
	require.NoError(t, uow.Rollback())

	stock, sales := skuStateForIntegrationTest(t, store, 1)
	require.Equal(t, int32(5), stock)
	require.Zero(t, sales)

	_, err = NewOrderReader(store).GetOrder(ctx, order.ID)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestUnitOfWork_ConcurrentSwapReportsConflict(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedCatalogForIntegrationTest(t, store)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	first, err := store.Begin(ctx)
	require.NoError(t, err)
	res, err := first.Inventory().TryReserve(ctx, 1, 2)
	require.NoError(t, err)
	require.Equal(t, domain.ReserveSuccess, res.Outcome)

	second, err := store.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = second.Rollback() }()

	type result struct {
		res domain.Reservation
		err error
	}
	done := make(chan result, 1)
	go func() {
		r, err := second.Inventory().TryReserve(ctx, 1, 2)
		done <- result{res: r, err: err}
	}()

	// Вторая транзакция прочитала stock=5 и ждёт блокировку строки.
	require.Eventually(t, func() bool {
		var waiting int
		err := store.DB().QueryRowContext(ctx, `
			SELECT COUNT(*) FROM pg_stat_activity
			WHERE datname = current_database() AND wait_event_type = 'Lock'
		`).Scan(&waiting)
		return err == nil && waiting > 0
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, first.Commit())

	got := <-done
	require.NoError(t, got.err)
	require.Equal(t, domain.ReserveConflict, got.res.Outcome)

	retry, err := second.Inventory().TryReserve(ctx, 1, 2)
	require.NoError(t, err)
	require.Equal(t, domain.ReserveSuccess, retry.Outcome)
	require.Equal(t, int32(1), retry.NewStock)
}

func TestUnitOfWork_DuplicateHeaderIsCollision(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	at := time.Date(2018, 12, 5, 10, 54, 0, 0, time.UTC)

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.Orders().CreateHeader(ctx, domain.NewOrder(1, 1, domain.PayMethodCash, at)))
	require.NoError(t, uow.Commit())

	uow, err = store.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = uow.Rollback() }()

	err = uow.Orders().CreateHeader(ctx, domain.NewOrder(1, 1, domain.PayMethodCash, at))
	require.ErrorIs(t, err, domain.ErrOrderIDCollision)
	require.Equal(t, domain.KindPersistence, domain.KindOf(err))
}

func TestUnitOfWork_InvalidSavepointName(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = uow.Rollback() }()

	require.Error(t, uow.Savepoint(ctx, "bad name; DROP TABLE orders"))
}

func TestCatalogReader_GetVariants(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedCatalogForIntegrationTest(t, store)

	variants, err := NewCatalogReader(store).GetVariants(context.Background(), []int64{2, 1, 99})
	require.NoError(t, err)
	require.Len(t, variants, 2)
	require.Equal(t, int64(1), variants[0].ID)
	require.Equal(t, "img/2.png", variants[1].DefaultImageURL)
}

func TestOutboxRepository_MarkStatus(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	repo := NewOutboxRepository(store)

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	msg, err := uow.Outbox().Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   "order-1",
		EventType:     domain.EventTypeOrderCommitted,
		Payload:       []byte(`{"order_id":"order-1"}`),
	})
	require.NoError(t, err)
	require.NoError(t, uow.Commit())

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.PendingCount)

	require.NoError(t, repo.MarkSent(ctx, msg.ID))
	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)

	err = repo.MarkFailed(ctx, "00000000-0000-0000-0000-000000000000")
	require.True(t, errors.Is(err, domain.ErrOutboxPublish))
}

func TestUnitOfWork_FinishedTxReportsErrTxDone(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.Commit())

	require.ErrorIs(t, uow.Rollback(), domain.ErrTxDone)
	require.ErrorIs(t, uow.Commit(), domain.ErrTxDone)
	require.ErrorIs(t, uow.RollbackTo(ctx, "checkout"), domain.ErrTxDone)
}
