package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBid Side = "bid" // buy
	SideAsk Side = "ask" // sell
)

// Valid reports whether s is one of the two known sides.
func (s Side) Valid() bool {
	return s == SideBid || s == SideAsk
}

// User represents a registered user
type User struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}

// Order represents a bid or ask resting in (or entering) the book.
// Username is denormalized at creation time and never resynchronized.
type Order struct {
	ID        int             `json:"id"`
	UserID    int             `json:"user_id"`
	Username  string          `json:"user"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	Side      Side            `json:"order_type"`
	CreatedAt time.Time       `json:"timestamp"`
	IsActive  bool            `json:"is_active"`
}

// Trade represents an executed match. Price is always the resting
// order's price.
type Trade struct {
	ID          int             `json:"id"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int64           `json:"quantity"`
	CreatedAt   time.Time       `json:"timestamp"`
	BidUserID   int             `json:"bid_user_id"`
	BidUsername string          `json:"bid_user"`
	AskUserID   int             `json:"ask_user_id"`
	AskUsername string          `json:"ask_user"`
}

// OrderBook is the derived view over active orders: bids sorted by
// price descending, asks ascending, equal prices oldest first. It is
// rebuilt from the order collection on every query, never stored.
type OrderBook struct {
	Bids []Order `json:"bids"`
	Asks []Order `json:"asks"`
}
