package redis

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func openCartStoreForIntegrationTest(t *testing.T) *CartStore {
	t.Helper()

	addr := strings.TrimSpace(os.Getenv("CHECKOUT_REDIS_TEST_ADDR"))
	if addr == "" {
		addr = "localhost:6379"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := Open(ctx, Options{Addr: addr, DB: 15})
	if err != nil {
		t.Skipf("redis is not available for integration tests: %v", err)
	}
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	require.NoError(t, client.FlushDB(ctx).Err())

	return NewCartStore(client)
}

func TestCartStore_LoadSelectionSkipsUnselected(t *testing.T) {
	cart := openCartStoreForIntegrationTest(t)
	ctx := context.Background()

	require.NoError(t, cart.Put(ctx, 1, 1, 2, true))
	require.NoError(t, cart.Put(ctx, 1, 16, 1, false))
	require.NoError(t, cart.Put(ctx, 2, 1, 9, true))

	sel, err := cart.LoadSelection(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, map[int64]int32{1: 2}, sel.Counts)
	require.Equal(t, []int64{1}, sel.Selected)
}

func TestCartStore_SelectedWithoutCountIsReported(t *testing.T) {
	cart := openCartStoreForIntegrationTest(t)
	ctx := context.Background()

	require.NoError(t, cart.client.SAdd(ctx, selectedKey(1), "42").Err())

	sel, err := cart.LoadSelection(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, sel.Counts)
	require.Equal(t, []int64{42}, sel.Selected)
}

func TestCartStore_ClearSelectedKeepsOtherEntries(t *testing.T) {
	cart := openCartStoreForIntegrationTest(t)
	ctx := context.Background()

	require.NoError(t, cart.Put(ctx, 1, 1, 1, true))
	require.NoError(t, cart.Put(ctx, 1, 2, 3, true))
	require.NoError(t, cart.Put(ctx, 1, 16, 2, false))

	require.NoError(t, cart.ClearSelected(ctx, 1, []int64{1, 2}))
	require.NoError(t, cart.ClearSelected(ctx, 1, []int64{1, 2}))
	require.NoError(t, cart.ClearSelected(ctx, 1, nil))

	counts, err := cart.client.HGetAll(ctx, cartKey(1)).Result()
	require.NoError(t, err)
	require.Equal(t, map[string]string{"16": "2"}, counts)

	members, err := cart.client.SMembers(ctx, selectedKey(1)).Result()
	require.NoError(t, err)
	require.Empty(t, members)
}

func TestCartStore_ClosedClientFails(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	_ = client.Close()
	cart := NewCartStore(client)

	_, err := cart.LoadSelection(context.Background(), 1)
	require.Error(t, err)
	require.Error(t, cart.ClearSelected(context.Background(), 1, []int64{1}))
}
