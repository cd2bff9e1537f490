package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/metrics"
)

const (
	savepointCheckout = "checkout"
	tracerName        = "github.com/vladislavdragonenkov/checkout/internal/service/checkout"

	// Очистка корзины и откат не должны обрываться вместе с запросом клиента.
	detachedOpTimeout = 3 * time.Second
)

// CommitRequest — данные, с которыми покупатель оформляет заказ.
type CommitRequest struct {
	BuyerID   int64
	AddressID int64
	PayMethod domain.PayMethod
}

// Validate проверяет запрос до обращения к хранилищам.
func (r CommitRequest) Validate() error {
	switch {
	case r.BuyerID <= 0:
		return domain.ErrBuyerRequired
	case r.AddressID <= 0:
		return domain.ErrAddressRequired
	case !r.PayMethod.Valid():
		return domain.ErrPayMethodInvalid
	}
	return nil
}

// CommitResult возвращается после успешного коммита.
// CartCleanupErr != nil означает, что заказ сохранён, но корзина не очищена.
type CommitResult struct {
	Order          domain.Order
	CartCleanupErr error
}

// Dependencies — порты, с которыми работает сервис.
type Dependencies struct {
	Tx      domain.TxManager
	Cart    domain.CartStore
	Catalog domain.CatalogReader
	Orders  domain.OrderReader
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics задаёт метрики коммита.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer задаёт tracer; по умолчанию используется глобальный provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithRetryPolicy задаёт политику повторов при конфликте.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(s *Service) {
		s.retry = policy
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service оформляет заказ из отмеченных позиций корзины.
type Service struct {
	tx      domain.TxManager
	cart    domain.CartStore
	catalog domain.CatalogReader
	orders  domain.OrderReader

	logger  *log.Entry
	metrics *metrics.CheckoutMetrics
	tracer  trace.Tracer
	retry   RetryPolicy
	now     func() time.Time
}

// NewService создаёт сервис оформления заказов.
func NewService(deps Dependencies, opts ...Option) *Service {
	s := &Service{
		tx:      deps.Tx,
		cart:    deps.Cart,
		catalog: deps.Catalog,
		orders:  deps.Orders,
		logger:  log.WithField("component", "checkout"),
		tracer:  otel.Tracer(tracerName),
		retry:   DefaultRetryPolicy(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Commit превращает отмеченные позиции корзины в заказ.
//
// Заголовок, позиции, все условные списания остатков, продажи SPU и outbox-событие
// пишутся в одну транзакцию. Любая ошибка до коммита откатывает всё. Корзина
// очищается только после коммита, и её сбой не отменяет заказ.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (result CommitResult, err error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Commit", trace.WithAttributes(
		attribute.Int64("checkout.buyer_id", req.BuyerID),
		attribute.Int("checkout.pay_method", int(req.PayMethod)),
	))
	defer span.End()

	finish := s.metrics.CommitStarted()
	logger := s.logger.WithField("buyer_id", req.BuyerID)
	defer func() {
		finish(resultLabel(err))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.WithError(err).WithField("kind", domain.KindOf(err)).Warn("order commit failed")
		}
	}()

	if err := req.Validate(); err != nil {
		return CommitResult{}, err
	}

	sel, err := s.cart.LoadSelection(ctx, req.BuyerID)
	if err != nil {
		return CommitResult{}, domain.AsPersistence("load cart selection", err)
	}
	if sel.Empty() {
		return CommitResult{}, domain.ErrEmptySelection
	}

	order, err := s.persist(ctx, logger, req, sel)
	if err != nil {
		return CommitResult{}, err
	}
	span.SetAttributes(attribute.String("checkout.order_id", order.ID))
	logger = logger.WithField("order_id", order.ID)
	logger.WithFields(log.Fields{
		"total_count":  order.TotalCount,
		"total_amount": order.TotalAmountMinor,
		"lines":        len(order.Lines),
	}).Info("order committed")

	result = CommitResult{Order: *order}

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), detachedOpTimeout)
	defer cancel()
	if cleanupErr := s.cart.ClearSelected(cleanupCtx, req.BuyerID, sel.Selected); cleanupErr != nil {
		result.CartCleanupErr = fmt.Errorf("%w: %w", domain.ErrCartCleanup, cleanupErr)
		s.metrics.RecordCartCleanupFailure()
		span.AddEvent("cart cleanup failed")
		logger.WithError(cleanupErr).Warn("order committed but cart cleanup failed")
	}

	return result, nil
}

// persist выполняет транзакционную часть коммита.
func (s *Service) persist(ctx context.Context, logger *log.Entry, req CommitRequest, sel domain.CartSelection) (_ *domain.Order, err error) {
	uow, err := s.tx.Begin(ctx)
	if err != nil {
		return nil, domain.AsPersistence("begin unit of work", err)
	}

	committing := false
	defer func() {
		if err == nil || committing {
			return
		}
		s.abort(ctx, logger, uow)
	}()

	if err := uow.Savepoint(ctx, savepointCheckout); err != nil {
		return nil, domain.AsPersistence("create savepoint", err)
	}

	order := domain.NewOrder(req.BuyerID, req.AddressID, req.PayMethod, s.now())
	if err := uow.Orders().CreateHeader(ctx, order); err != nil {
		return nil, domain.AsPersistence("create order header", err)
	}

	for _, variantID := range sel.VariantIDs() {
		qty := sel.Counts[variantID]

		res, err := s.reserve(ctx, logger, uow.Inventory(), variantID, qty)
		if err != nil {
			return nil, domain.AsPersistence("reserve stock", err)
		}
		if err := uow.Inventory().AddProductSales(ctx, res.Variant.ProductID, qty); err != nil {
			return nil, domain.AsPersistence("add product sales", err)
		}

		order.AddLine(domain.OrderLineItem{
			VariantID:  variantID,
			Count:      qty,
			PriceMinor: res.Variant.PriceMinor,
			CreatedAt:  order.CreatedAt,
		})
		if err := uow.Orders().AddLineItem(ctx, order.Lines[len(order.Lines)-1]); err != nil {
			return nil, domain.AsPersistence("add order line", err)
		}
	}

	order.ApplyFreight()
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return nil, domain.AsPersistence("validate order", errors.Join(errs...))
	}
	order.UpdatedAt = s.now().UTC()
	if err := uow.Orders().FinalizeTotals(ctx, order); err != nil {
		return nil, domain.AsPersistence("finalize order totals", err)
	}

	msg, err := domain.NewOrderCommittedMessage(order)
	if err != nil {
		return nil, domain.AsPersistence("build order.committed event", err)
	}
	if _, err := uow.Outbox().Enqueue(ctx, msg); err != nil {
		return nil, domain.AsPersistence("enqueue order.committed event", err)
	}

	if err := uow.Release(ctx, savepointCheckout); err != nil {
		return nil, domain.AsPersistence("release savepoint", err)
	}
	committing = true
	if err := uow.Commit(); err != nil {
		return nil, domain.AsPersistence("commit unit of work", err)
	}
	return order, nil
}

// reserve повторяет TryReserve, пока конфликт не разрешится.
func (s *Service) reserve(ctx context.Context, logger *log.Entry, ledger domain.InventoryLedger, variantID int64, qty int32) (domain.Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Reserve", trace.WithAttributes(
		attribute.Int64("checkout.variant_id", variantID),
		attribute.Int("checkout.quantity", int(qty)),
	))
	defer span.End()

	var reservation domain.Reservation
	err := s.retry.Do(ctx, func(attempt int) error {
		res, err := ledger.TryReserve(ctx, variantID, qty)
		if err != nil {
			return err
		}
		s.metrics.RecordReserveOutcome(res.Outcome.String())

		switch res.Outcome {
		case domain.ReserveSuccess:
			reservation = res
			span.SetAttributes(attribute.Int("checkout.attempts", attempt))
			return nil
		case domain.ReserveInsufficient:
			return &domain.InsufficientStockError{
				VariantID: variantID,
				Requested: qty,
				Available: res.Variant.Stock,
			}
		case domain.ReserveConflict:
			return domain.ErrOptimisticConflict
		default:
			return fmt.Errorf("variant %d: unexpected reserve outcome %s", variantID, res.Outcome)
		}
	}, func(attempt int, delay time.Duration) {
		s.metrics.RecordConflictRetry()
		logger.WithFields(log.Fields{
			"variant_id": variantID,
			"attempt":    attempt,
			"delay":      delay,
		}).Debug("stock changed concurrently, retrying")
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Reservation{}, err
	}
	return reservation, nil
}

// abort откатывает к точке сохранения и завершает транзакцию.
func (s *Service) abort(ctx context.Context, logger *log.Entry, uow domain.UnitOfWork) {
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), detachedOpTimeout)
	defer cancel()

	if err := uow.RollbackTo(rbCtx, savepointCheckout); err != nil {
		logger.WithError(err).Debug("rollback to savepoint failed")
	}
	err := uow.Rollback()
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrTxDone):
		// Драйвер уже откатил транзакцию по отмене контекста.
		logger.WithError(err).Debug("unit of work already finished")
	default:
		logger.WithError(err).Error("rollback failed")
	}
}

// GetOrder возвращает заказ, если он принадлежит покупателю.
func (s *Service) GetOrder(ctx context.Context, buyerID int64, orderID string) (domain.Order, error) {
	if buyerID <= 0 {
		return domain.Order{}, domain.ErrBuyerRequired
	}
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.BuyerID != buyerID {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func resultLabel(err error) string {
	switch domain.KindOf(err) {
	case domain.KindNone:
		return metrics.ResultCommitted
	case domain.KindValidation:
		return metrics.ResultValidation
	case domain.KindInsufficient:
		return metrics.ResultInsufficient
	default:
		return metrics.ResultPersistence
	}
}
