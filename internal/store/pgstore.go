package store

import (
	"context"
	"errors"
	"fmt"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"orderbook/internal/models"
)

// uniqueViolation is the Postgres error code for a unique constraint hit.
const uniqueViolation = "23505"

// PGStore backs the Store contract with a PostgreSQL pool. Unlike the
// FileStore it is genuinely concurrent, so it relies on the matching
// engine holding its own critical section around a whole match; the
// store itself only guarantees per-statement atomicity.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore initializes a new database connection pool with decimal
// support registered on every connection.
func NewPGStore(ctx context.Context, connString string) (*PGStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

// Close closes the underlying connection pool.
func (s *PGStore) Close() {
	s.pool.Close()
}

// Pool exposes the underlying pool for migrations and test setup.
func (s *PGStore) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *PGStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, username, password_hash FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PGStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx,
		"SELECT id, username, password_hash FROM users WHERE username = $1",
		username).Scan(&user.ID, &user.Username, &user.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *PGStore) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx,
		"INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id, username, password_hash",
		username, passwordHash).Scan(&user.ID, &user.Username, &user.PasswordHash)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return nil, fmt.Errorf("user %q: %w", username, ErrDuplicateUser)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

const orderColumns = "id, user_id, username, price, quantity, side, created_at, is_active"

func (s *PGStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	return s.queryOrders(ctx, "SELECT "+orderColumns+" FROM orders ORDER BY id")
}

func (s *PGStore) ListActiveOrders(ctx context.Context) ([]models.Order, error) {
	return s.queryOrders(ctx, "SELECT "+orderColumns+" FROM orders WHERE is_active ORDER BY id")
}

func (s *PGStore) ListUserOrders(ctx context.Context, userID int) ([]models.Order, error) {
	return s.queryOrders(ctx, "SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY id", userID)
}

func (s *PGStore) CreateOrder(ctx context.Context, userID int, username string, price decimal.Decimal, quantity int64, side models.Side) (*models.Order, error) {
	order := &models.Order{}
	err := s.pool.QueryRow(ctx,
		"INSERT INTO orders (user_id, username, price, quantity, side, is_active) VALUES ($1, $2, $3, $4, $5, TRUE) RETURNING "+orderColumns,
		userID, username, price, quantity, string(side)).Scan(
		&order.ID, &order.UserID, &order.Username, &order.Price, &order.Quantity, &order.Side, &order.CreatedAt, &order.IsActive)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return order, nil
}

func (s *PGStore) UpdateOrder(ctx context.Context, orderID int, upd OrderUpdate) (*models.Order, error) {
	order := &models.Order{}
	err := s.pool.QueryRow(ctx,
		"UPDATE orders SET quantity = COALESCE($2, quantity), is_active = COALESCE($3, is_active) WHERE id = $1 RETURNING "+orderColumns,
		orderID, upd.Quantity, upd.IsActive).Scan(
		&order.ID, &order.UserID, &order.Username, &order.Price, &order.Quantity, &order.Side, &order.CreatedAt, &order.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update order: %w", err)
	}
	return order, nil
}

func (s *PGStore) ListTrades(ctx context.Context) ([]models.Trade, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, price, quantity, created_at, bid_user_id, bid_username, ask_user_id, ask_username FROM trades ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		if err := rows.Scan(&t.ID, &t.Price, &t.Quantity, &t.CreatedAt,
			&t.BidUserID, &t.BidUsername, &t.AskUserID, &t.AskUsername); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *PGStore) CreateTrade(ctx context.Context, price decimal.Decimal, quantity int64, bidUserID int, bidUsername string, askUserID int, askUsername string) (*models.Trade, error) {
	trade := &models.Trade{}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO trades (price, quantity, bid_user_id, bid_username, ask_user_id, ask_username)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, price, quantity, created_at, bid_user_id, bid_username, ask_user_id, ask_username`,
		price, quantity, bidUserID, bidUsername, askUserID, askUsername).Scan(
		&trade.ID, &trade.Price, &trade.Quantity, &trade.CreatedAt,
		&trade.BidUserID, &trade.BidUsername, &trade.AskUserID, &trade.AskUsername)
	if err != nil {
		return nil, fmt.Errorf("failed to create trade: %w", err)
	}
	return trade, nil
}

func (s *PGStore) OrderBook(ctx context.Context) (*models.OrderBook, error) {
	bids, err := s.queryOrders(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE is_active AND side = 'bid' ORDER BY price DESC, created_at ASC")
	if err != nil {
		return nil, err
	}
	asks, err := s.queryOrders(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE is_active AND side = 'ask' ORDER BY price ASC, created_at ASC")
	if err != nil {
		return nil, err
	}
	if bids == nil {
		bids = []models.Order{}
	}
	if asks == nil {
		asks = []models.Order{}
	}
	return &models.OrderBook{Bids: bids, Asks: asks}, nil
}

func (s *PGStore) queryOrders(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Username, &o.Price, &o.Quantity,
			&o.Side, &o.CreatedAt, &o.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
