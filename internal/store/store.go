package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"orderbook/internal/models"
)

var (
	// ErrDuplicateUser is returned when a username is already taken.
	// The match is case-sensitive.
	ErrDuplicateUser = errors.New("username already exists")

	// ErrNotFound is returned when a user or order does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCorruptState is returned when a persisted collection cannot be
	// decoded. It is surfaced to the caller rather than silently treated
	// as an empty collection, so data loss never goes unnoticed.
	ErrCorruptState = errors.New("corrupt persisted state")
)

// OrderUpdate is a partial update of an order. Nil fields are left
// untouched. The matching engine only ever touches quantity and
// is_active; price, side and ownership are immutable after creation.
type OrderUpdate struct {
	Quantity *int64
	IsActive *bool
}

// Store provides atomic, serialized access to the three persisted
// collections: users, orders and trades. Every call observes and leaves
// a consistent state; no call can see another call's partial write.
//
// Orders are never deleted. Ids within a collection are assigned
// sequentially starting at 1 and never reused, even across restarts.
type Store interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	// GetUser returns the user with the given username, or ErrNotFound.
	GetUser(ctx context.Context, username string) (*models.User, error)
	// CreateUser adds a user, or returns ErrDuplicateUser.
	CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error)

	ListOrders(ctx context.Context) ([]models.Order, error)
	ListActiveOrders(ctx context.Context) ([]models.Order, error)
	ListUserOrders(ctx context.Context, userID int) ([]models.Order, error)
	// CreateOrder persists a new active order stamped with the current time.
	CreateOrder(ctx context.Context, userID int, username string, price decimal.Decimal, quantity int64, side models.Side) (*models.Order, error)
	// UpdateOrder applies a partial update, or returns ErrNotFound.
	UpdateOrder(ctx context.Context, orderID int, upd OrderUpdate) (*models.Order, error)

	// ListTrades returns all trades in id (creation) order.
	ListTrades(ctx context.Context) ([]models.Trade, error)
	CreateTrade(ctx context.Context, price decimal.Decimal, quantity int64, bidUserID int, bidUsername string, askUserID int, askUsername string) (*models.Trade, error)

	// OrderBook builds the derived book view from active orders: bids
	// sorted by price descending, asks ascending, ties oldest first.
	OrderBook(ctx context.Context) (*models.OrderBook, error)

	Close()
}
