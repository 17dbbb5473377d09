package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderbook/internal/models"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestFileStore_CreateUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Sequential, gapless ids starting at 1
	for i, name := range []string{"alice", "bob", "carol"} {
		user, err := s.CreateUser(ctx, name, "hash")
		require.NoError(t, err)
		assert.Equal(t, i+1, user.ID)
		assert.Equal(t, name, user.Username)
	}

	_, err := s.CreateUser(ctx, "alice", "otherhash")
	assert.ErrorIs(t, err, ErrDuplicateUser)

	// Case-sensitive exact match: "Alice" is a different user
	user, err := s.CreateUser(ctx, "Alice", "hash")
	require.NoError(t, err)
	assert.Equal(t, 4, user.ID)
}

func TestFileStore_GetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, "alice", "hash")
	require.NoError(t, err)

	got, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "hash", got.PasswordHash)

	_, err = s.GetUser(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_CreateOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	order, err := s.CreateOrder(ctx, 1, "alice", d("100.50"), 10, models.SideAsk)
	require.NoError(t, err)
	assert.Equal(t, 1, order.ID)
	assert.Equal(t, 1, order.UserID)
	assert.Equal(t, "alice", order.Username)
	assert.True(t, order.Price.Equal(d("100.50")))
	assert.Equal(t, int64(10), order.Quantity)
	assert.Equal(t, models.SideAsk, order.Side)
	assert.True(t, order.IsActive)
	assert.False(t, order.CreatedAt.IsZero())

	second, err := s.CreateOrder(ctx, 2, "bob", d("99"), 5, models.SideBid)
	require.NoError(t, err)
	assert.Equal(t, 2, second.ID)
}

func TestFileStore_UpdateOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	order, err := s.CreateOrder(ctx, 1, "alice", d("100"), 10, models.SideAsk)
	require.NoError(t, err)

	// Partial update: quantity only, nothing else touched
	qty := int64(4)
	updated, err := s.UpdateOrder(ctx, order.ID, OrderUpdate{Quantity: &qty})
	require.NoError(t, err)
	assert.Equal(t, int64(4), updated.Quantity)
	assert.True(t, updated.IsActive)
	assert.True(t, updated.Price.Equal(d("100")))

	// Terminal update
	zero := int64(0)
	inactive := false
	updated, err = s.UpdateOrder(ctx, order.ID, OrderUpdate{Quantity: &zero, IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated.Quantity)
	assert.False(t, updated.IsActive)

	_, err = s.UpdateOrder(ctx, 999, OrderUpdate{Quantity: &qty})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_ListOrders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateOrder(ctx, 1, "alice", d("100"), 10, models.SideAsk)
	require.NoError(t, err)
	_, err = s.CreateOrder(ctx, 2, "bob", d("99"), 5, models.SideBid)
	require.NoError(t, err)

	inactive := false
	_, err = s.UpdateOrder(ctx, a.ID, OrderUpdate{IsActive: &inactive})
	require.NoError(t, err)

	all, err := s.ListOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// Inactive orders stay queryable but drop out of the active view
	active, err := s.ListActiveOrders(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 2, active[0].ID)

	mine, err := s.ListUserOrders(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a.ID, mine[0].ID)
}

func TestFileStore_CreateTrade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	trade, err := s.CreateTrade(ctx, d("100"), 5, 1, "alice", 2, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, trade.ID)
	assert.Equal(t, 1, trade.BidUserID)
	assert.Equal(t, "alice", trade.BidUsername)
	assert.Equal(t, 2, trade.AskUserID)
	assert.Equal(t, "bob", trade.AskUsername)
	assert.False(t, trade.CreatedAt.IsZero())

	second, err := s.CreateTrade(ctx, d("101"), 3, 2, "bob", 1, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, second.ID)

	trades, err := s.ListTrades(ctx)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, 1, trades[0].ID)
	assert.Equal(t, 2, trades[1].ID)
}

func TestFileStore_OrderBook(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Deliberately out of price order
	_, err := s.CreateOrder(ctx, 1, "alice", d("99"), 10, models.SideBid)
	require.NoError(t, err)
	_, err = s.CreateOrder(ctx, 2, "bob", d("101"), 10, models.SideBid)
	require.NoError(t, err)
	tieNewer, err := s.CreateOrder(ctx, 1, "alice", d("101"), 10, models.SideBid) // price tie, newer
	require.NoError(t, err)
	_, err = s.CreateOrder(ctx, 2, "bob", d("103"), 10, models.SideAsk)
	require.NoError(t, err)
	_, err = s.CreateOrder(ctx, 1, "alice", d("102"), 10, models.SideAsk)
	require.NoError(t, err)

	filledOrder, err := s.CreateOrder(ctx, 1, "alice", d("98"), 10, models.SideBid)
	require.NoError(t, err)
	inactive := false
	_, err = s.UpdateOrder(ctx, filledOrder.ID, OrderUpdate{IsActive: &inactive})
	require.NoError(t, err)

	book, err := s.OrderBook(ctx)
	require.NoError(t, err)

	// Bids: price descending, ties oldest first; inactive excluded
	require.Len(t, book.Bids, 3)
	assert.True(t, book.Bids[0].Price.Equal(d("101")))
	assert.Equal(t, 2, book.Bids[0].ID)
	assert.Equal(t, tieNewer.ID, book.Bids[1].ID)
	assert.True(t, book.Bids[2].Price.Equal(d("99")))

	// Asks: price ascending
	require.Len(t, book.Asks, 2)
	assert.True(t, book.Asks[0].Price.Equal(d("102")))
	assert.True(t, book.Asks[1].Price.Equal(d("103")))

	// Idempotent snapshot: no mutation in between, identical views
	again, err := s.OrderBook(ctx)
	require.NoError(t, err)
	assert.Equal(t, book, again)
}

func TestFileStore_ReopenPersistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewFileStore(dir)
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, "alice", "hash")
	require.NoError(t, err)
	_, err = s.CreateOrder(ctx, 1, "alice", d("100"), 10, models.SideAsk)
	require.NoError(t, err)

	// A fresh store over the same directory sees the same state and
	// continues the id sequence.
	reopened, err := NewFileStore(dir)
	require.NoError(t, err)

	user, err := reopened.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, user.ID)

	order, err := reopened.CreateOrder(ctx, 1, "alice", d("101"), 5, models.SideAsk)
	require.NoError(t, err)
	assert.Equal(t, 2, order.ID)
}

func TestFileStore_CorruptCollection(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "orders.json"), []byte("{not json"), 0o644))

	_, err = s.ListOrders(ctx)
	assert.ErrorIs(t, err, ErrCorruptState)
	_, err = s.CreateOrder(ctx, 1, "alice", d("100"), 10, models.SideAsk)
	assert.ErrorIs(t, err, ErrCorruptState)

	// Other collections are unaffected
	_, err = s.CreateUser(ctx, "alice", "hash")
	assert.NoError(t, err)
}
