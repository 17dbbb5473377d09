package exchange

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"orderbook/internal/models"
	"orderbook/internal/store"
)

var (
	ErrInvalidPrice    = errors.New("price must be positive")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidSide     = errors.New(`order type must be "bid" or "ask"`)
)

// TradeFeed receives executed trades for downstream consumers. A feed
// failure never fails the submission that produced the trades.
type TradeFeed interface {
	PublishTrades(ctx context.Context, trades []models.Trade) error
}

// Engine matches each incoming order against the opposite side of the
// book and persists every mutation through the store.
//
// The whole submit-match-persist sequence runs under the engine's own
// mutex. The store serializes individual calls, but a match spans one
// snapshot read plus a chain of writes, and no other submission may
// interleave inside that span. Submissions are totally ordered by lock
// acquisition; first in wins the liquidity.
type Engine struct {
	mu    sync.Mutex
	store store.Store
	feed  TradeFeed
	log   *zap.Logger
}

// NewEngine creates a matching engine over the given store.
func NewEngine(st store.Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: st, log: logger}
}

// SetFeed attaches a trade feed. Call before serving traffic.
func (e *Engine) SetFeed(f TradeFeed) {
	e.feed = f
}

// SubmitOrder validates, persists and immediately matches a new order.
// It returns the order in its post-match state and the trades executed,
// in match order. Store failures propagate unchanged; records written
// before the failure stay written.
func (e *Engine) SubmitOrder(ctx context.Context, userID int, username string, price decimal.Decimal, quantity int64, side models.Side) (*models.Order, []models.Trade, error) {
	if !side.Valid() {
		return nil, nil, ErrInvalidSide
	}
	if !price.IsPositive() {
		return nil, nil, ErrInvalidPrice
	}
	if quantity <= 0 {
		return nil, nil, ErrInvalidQuantity
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	order, err := e.store.CreateOrder(ctx, userID, username, price, quantity, side)
	if err != nil {
		return nil, nil, err
	}

	trades, err := e.match(ctx, order)
	if err != nil {
		return nil, nil, err
	}

	e.log.Info("order submitted",
		zap.Int("order_id", order.ID),
		zap.Int("user_id", order.UserID),
		zap.String("side", string(order.Side)),
		zap.String("price", order.Price.String()),
		zap.Int64("quantity", quantity),
		zap.Int("trades", len(trades)),
	)

	if e.feed != nil && len(trades) > 0 {
		if err := e.feed.PublishTrades(ctx, trades); err != nil {
			e.log.Warn("failed to publish trades", zap.Error(err))
		}
	}
	return order, trades, nil
}

// match walks the opposite side of the book in price priority and
// executes against every eligible resting order until the incoming
// order is filled or liquidity runs out. order is updated in place to
// its post-match state.
func (e *Engine) match(ctx context.Context, order *models.Order) ([]models.Trade, error) {
	book, err := e.store.OrderBook(ctx)
	if err != nil {
		return nil, err
	}

	// Candidate pool: price-eligible resting orders on the opposite
	// side, excluding the submitter's own liquidity. The book view is
	// already best-price-first for the incoming side (asks ascending
	// for a bid, bids descending for an ask, ties oldest first).
	var candidates []models.Order
	if order.Side == models.SideBid {
		for _, ask := range book.Asks {
			if ask.Price.LessThanOrEqual(order.Price) && ask.UserID != order.UserID {
				candidates = append(candidates, ask)
			}
		}
	} else {
		for _, bid := range book.Bids {
			if bid.Price.GreaterThanOrEqual(order.Price) && bid.UserID != order.UserID {
				candidates = append(candidates, bid)
			}
		}
	}

	trades := []models.Trade{}
	remaining := order.Quantity

	for _, resting := range candidates {
		if remaining <= 0 {
			break
		}
		qty := min(remaining, resting.Quantity)

		// Trade at the resting order's price, bid and ask sides
		// attributed regardless of which side the incoming order is.
		var trade *models.Trade
		if order.Side == models.SideBid {
			trade, err = e.store.CreateTrade(ctx, resting.Price, qty,
				order.UserID, order.Username, resting.UserID, resting.Username)
		} else {
			trade, err = e.store.CreateTrade(ctx, resting.Price, qty,
				resting.UserID, resting.Username, order.UserID, order.Username)
		}
		if err != nil {
			return nil, err
		}
		trades = append(trades, *trade)

		if qty == resting.Quantity {
			if _, err := e.store.UpdateOrder(ctx, resting.ID, filled()); err != nil {
				return nil, err
			}
		} else {
			left := resting.Quantity - qty
			if _, err := e.store.UpdateOrder(ctx, resting.ID, store.OrderUpdate{Quantity: &left}); err != nil {
				return nil, err
			}
		}
		remaining -= qty
	}

	switch {
	case remaining <= 0:
		if _, err := e.store.UpdateOrder(ctx, order.ID, filled()); err != nil {
			return nil, err
		}
		order.Quantity = 0
		order.IsActive = false
	case remaining < order.Quantity:
		if _, err := e.store.UpdateOrder(ctx, order.ID, store.OrderUpdate{Quantity: &remaining}); err != nil {
			return nil, err
		}
		order.Quantity = remaining
	}
	return trades, nil
}

// filled is the terminal update: quantity zeroed, order off the book.
func filled() store.OrderUpdate {
	zero := int64(0)
	inactive := false
	return store.OrderUpdate{Quantity: &zero, IsActive: &inactive}
}
