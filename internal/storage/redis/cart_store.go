package redis

import (
	"context"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// CartStore — Redis-реализация корзины. На каждого покупателя два ключа:
// hash cart_<buyer> (variant -> count) и set selected_<buyer> (отмеченные варианты).
type CartStore struct {
	client goredis.UniversalClient
}

// NewCartStore создаёт корзину поверх готового клиента.
func NewCartStore(client goredis.UniversalClient) *CartStore {
	return &CartStore{client: client}
}

func cartKey(buyerID int64) string {
	return "cart_" + strconv.FormatInt(buyerID, 10)
}

func selectedKey(buyerID int64) string {
	return "selected_" + strconv.FormatInt(buyerID, 10)
}

// LoadSelection читает hash и set одним pipeline и оставляет количества только
// для отмеченных вариантов.
func (c *CartStore) LoadSelection(ctx context.Context, buyerID int64) (domain.CartSelection, error) {
	var (
		countsCmd   *goredis.MapStringStringCmd
		selectedCmd *goredis.StringSliceCmd
	)
	if _, err := c.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		countsCmd = pipe.HGetAll(ctx, cartKey(buyerID))
		selectedCmd = pipe.SMembers(ctx, selectedKey(buyerID))
		return nil
	}); err != nil {
		return domain.CartSelection{}, fmt.Errorf("load cart %d: %w", buyerID, err)
	}

	rawCounts := countsCmd.Val()
	sel := domain.CartSelection{
		BuyerID: buyerID,
		Counts:  make(map[int64]int32, len(selectedCmd.Val())),
	}
	for _, member := range selectedCmd.Val() {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			return domain.CartSelection{}, fmt.Errorf("parse selected variant %q: %w", member, err)
		}
		sel.Selected = append(sel.Selected, id)

		raw, ok := rawCounts[member]
		if !ok {
			continue
		}
		count, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return domain.CartSelection{}, fmt.Errorf("parse count of variant %d: %w", id, err)
		}
		sel.Counts[id] = int32(count)
	}
	return sel, nil
}

// ClearSelected удаляет варианты из hash и set в одной транзакции MULTI/EXEC.
func (c *CartStore) ClearSelected(ctx context.Context, buyerID int64, variantIDs []int64) error {
	if len(variantIDs) == 0 {
		return nil
	}

	fields := make([]string, 0, len(variantIDs))
	members := make([]interface{}, 0, len(variantIDs))
	for _, id := range variantIDs {
		s := strconv.FormatInt(id, 10)
		fields = append(fields, s)
		members = append(members, s)
	}

	if _, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HDel(ctx, cartKey(buyerID), fields...)
		pipe.SRem(ctx, selectedKey(buyerID), members...)
		return nil
	}); err != nil {
		return fmt.Errorf("clear cart %d: %w", buyerID, err)
	}
	return nil
}

// Put кладёт позицию в корзину; используется в тестах и для наполнения стенда.
func (c *CartStore) Put(ctx context.Context, buyerID, variantID int64, count int32, selected bool) error {
	member := strconv.FormatInt(variantID, 10)
	_, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, cartKey(buyerID), member, count)
		if selected {
			pipe.SAdd(ctx, selectedKey(buyerID), member)
		} else {
			pipe.SRem(ctx, selectedKey(buyerID), member)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put cart item: %w", err)
	}
	return nil
}

// Ping проверяет доступность Redis.
func (c *CartStore) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

var _ domain.CartStore = (*CartStore)(nil)
