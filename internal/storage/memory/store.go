package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// Store — in-memory реализация реляционного хранилища для локальной разработки и тестов.
//
// Записи единицы работы применяются сразу и журналируются для отката. Вариант,
// списанный открытой единицей работы, заблокирован до её Commit или Rollback:
// остальные читают закоммиченный снимок, а их TryReserve получает ReserveConflict.
// Заказы и outbox-сообщения открытой единицы работы не видны читателям.
type Store struct {
	mu        sync.RWMutex
	variants  map[int64]domain.ProductVariant
	products  map[int64]domain.Product
	orders    map[string]domain.Order
	outbox    map[string]*outboxRecord
	outboxSeq int64

	// rowLocks — варианты, изменённые незакоммиченными единицами работы.
	rowLocks map[int64]rowLock
	// orderOwners — заголовки заказов, ещё не опубликованные коммитом.
	orderOwners map[string]*unitOfWork

	// beforeSwap вызывается между чтением строки варианта и условной записью.
	beforeSwap func(variantID int64)
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	return &Store{
		variants: make(map[int64]domain.ProductVariant),
		products: make(map[int64]domain.Product),
		orders:   make(map[string]domain.Order),
		outbox:   make(map[string]*outboxRecord),

		rowLocks:    make(map[int64]rowLock),
		orderOwners: make(map[string]*unitOfWork),
	}
}

// rowLock хранит владельца блокировки и последнее закоммиченное состояние строки.
type rowLock struct {
	owner     *unitOfWork
	committed domain.ProductVariant
}

// committedVariant возвращает строку в том виде, в каком её видят другие транзакции.
// Вызывающий держит s.mu.
func (s *Store) committedVariant(id int64) (domain.ProductVariant, bool) {
	if lock, ok := s.rowLocks[id]; ok {
		return lock.committed, true
	}
	v, ok := s.variants[id]
	return v, ok
}

// PutProduct добавляет или заменяет SPU.
func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// PutVariant добавляет или заменяет SKU.
func (s *Store) PutVariant(v domain.ProductVariant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variants[v.ID] = v
}

// Variant возвращает закоммиченное состояние SKU.
func (s *Store) Variant(id int64) (domain.ProductVariant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.committedVariant(id)
}

// Product возвращает текущее состояние SPU.
func (s *Store) Product(id int64) (domain.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	return p, ok
}

// OrderCount возвращает количество закоммиченных заказов.
func (s *Store) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders) - len(s.orderOwners)
}

// SetBeforeSwapHook задаёт функцию, вызываемую между чтением строки варианта и
// условной записью. Позволяет детерминированно воспроизвести конкурентный коммит.
func (s *Store) SetBeforeSwapHook(fn func(variantID int64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeSwap = fn
}

// Begin открывает единицу работы.
func (s *Store) Begin(ctx context.Context) (domain.UnitOfWork, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &unitOfWork{
		store:      s,
		savepoints: make(map[string]int),
	}, nil
}

// GetVariants возвращает закоммиченные варианты в порядке возрастания id; отсутствующие пропускаются.
func (s *Store) GetVariants(_ context.Context, ids []int64) ([]domain.ProductVariant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ProductVariant, 0, len(ids))
	for _, id := range ids {
		if v, ok := s.committedVariant(id); ok {
			result = append(result, v)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// GetOrder возвращает копию заказа вместе с позициями.
func (s *Store) GetOrder(_ context.Context, id string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if _, pending := s.orderOwners[id]; !ok || pending {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	order.Lines = append([]domain.OrderLineItem(nil), order.Lines...)
	order.MarkFreightApplied()
	return order, nil
}

var (
	_ domain.TxManager     = (*Store)(nil)
	_ domain.CatalogReader = (*Store)(nil)
	_ domain.OrderReader   = (*Store)(nil)
)
