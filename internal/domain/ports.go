package domain

import (
	"context"
	"time"
)

// InventoryLedger выполняет условные изменения остатков с optimistic locking.
// Экземпляр привязан к единице работы: все его записи откатываются вместе с ней.
type InventoryLedger interface {
	// TryReserve читает текущие stock/sales и пытается применить
	// stock-qty, sales+qty при условии, что stock не изменился с момента чтения.
	TryReserve(ctx context.Context, variantID int64, qty int32) (Reservation, error)
	// AddProductSales увеличивает агрегированные продажи SPU без проверки версии.
	AddProductSales(ctx context.Context, productID int64, qty int32) error
}

// OrderWriter создаёт заказ и его позиции внутри единицы работы.
type OrderWriter interface {
	// CreateHeader сохраняет заголовок заказа. Дубликат идентификатора — ErrOrderIDCollision.
	CreateHeader(ctx context.Context, order *Order) error
	// AddLineItem сохраняет позицию заказа.
	AddLineItem(ctx context.Context, line OrderLineItem) error
	// FinalizeTotals записывает итоговые количество и сумму.
	FinalizeTotals(ctx context.Context, order *Order) error
}

// OutboxWriter ставит событие в transactional outbox той же единицы работы.
type OutboxWriter interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
}

// UnitOfWork — одна транзакция «всё или ничего» с именованными точками сохранения.
type UnitOfWork interface {
	Inventory() InventoryLedger
	Orders() OrderWriter
	Outbox() OutboxWriter
	// Savepoint создаёт именованную точку сохранения.
	Savepoint(ctx context.Context, name string) error
	// RollbackTo откатывает все записи после точки сохранения name.
	RollbackTo(ctx context.Context, name string) error
	// Release удаляет точку сохранения, оставляя записи.
	Release(ctx context.Context, name string) error
	Commit() error
	Rollback() error
}

// TxManager открывает единицы работы.
type TxManager interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// CartStore работает с корзиной покупателя во внешнем key-value хранилище.
type CartStore interface {
	// LoadSelection возвращает количества только для отмеченных вариантов.
	LoadSelection(ctx context.Context, buyerID int64) (CartSelection, error)
	// ClearSelected атомарно удаляет варианты и из количеств, и из набора отмеченных.
	ClearSelected(ctx context.Context, buyerID int64, variantIDs []int64) error
}

// CatalogReader читает витринные данные вариантов вне транзакции коммита.
type CatalogReader interface {
	GetVariants(ctx context.Context, ids []int64) ([]ProductVariant, error)
}

// OrderReader читает сохранённые заказы.
type OrderReader interface {
	GetOrder(ctx context.Context, id string) (Order, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository обслуживает фоновую публикацию outbox.
type OutboxRepository interface {
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

const (
	// AggregateTypeOrder — тип агрегата для событий заказа.
	AggregateTypeOrder = "order"
	// EventTypeOrderCommitted — заказ сохранён вместе со списанием остатков.
	EventTypeOrderCommitted = "order.committed"
)
