package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// CartStore — in-memory корзина: количества и набор отмеченных позиций на покупателя.
type CartStore struct {
	mu       sync.Mutex
	counts   map[int64]map[int64]int32
	selected map[int64]map[int64]struct{}
}

// NewCartStore создаёт пустую in-memory корзину.
func NewCartStore() *CartStore {
	return &CartStore{
		counts:   make(map[int64]map[int64]int32),
		selected: make(map[int64]map[int64]struct{}),
	}
}

// Put кладёт вариант в корзину и при необходимости отмечает его к оформлению.
func (c *CartStore) Put(buyerID, variantID int64, count int32, selected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.counts[buyerID] == nil {
		c.counts[buyerID] = make(map[int64]int32)
	}
	c.counts[buyerID][variantID] = count

	if selected {
		if c.selected[buyerID] == nil {
			c.selected[buyerID] = make(map[int64]struct{})
		}
		c.selected[buyerID][variantID] = struct{}{}
	}
}

// MarkSelected отмечает вариант, не меняя количества. Отметка без количества
// встречается, когда позицию удалили из hash, а набор отмеченных не обновили.
func (c *CartStore) MarkSelected(buyerID, variantID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.selected[buyerID] == nil {
		c.selected[buyerID] = make(map[int64]struct{})
	}
	c.selected[buyerID][variantID] = struct{}{}
}

// Counts возвращает копию всех количеств корзины покупателя.
func (c *CartStore) Counts(buyerID int64) map[int64]int32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make(map[int64]int32, len(c.counts[buyerID]))
	for id, count := range c.counts[buyerID] {
		result[id] = count
	}
	return result
}

// SelectedIDs возвращает отмеченные идентификаторы в порядке возрастания.
func (c *CartStore) SelectedIDs(buyerID int64) []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedIDs(c.selected[buyerID])
}

func (c *CartStore) LoadSelection(ctx context.Context, buyerID int64) (domain.CartSelection, error) {
	if err := ctx.Err(); err != nil {
		return domain.CartSelection{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	sel := domain.CartSelection{
		BuyerID:  buyerID,
		Counts:   make(map[int64]int32),
		Selected: sortedIDs(c.selected[buyerID]),
	}
	for _, id := range sel.Selected {
		if count, ok := c.counts[buyerID][id]; ok {
			sel.Counts[id] = count
		}
	}
	return sel, nil
}

func (c *CartStore) ClearSelected(ctx context.Context, buyerID int64, variantIDs []int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range variantIDs {
		delete(c.counts[buyerID], id)
		delete(c.selected[buyerID], id)
	}
	return nil
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

var _ domain.CartStore = (*CartStore)(nil)
