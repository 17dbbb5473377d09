package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"orderbook/internal/models"
)

// FileStore persists each collection as a JSON array in its own file
// under a data directory. Every call loads the whole collection,
// mutates it in memory and writes it back; a single mutex over all
// three collections makes each read/modify/write indivisible relative
// to every other call. Coarse, but it fully serializes store activity
// and rules out lost updates and torn reads at this scale.
type FileStore struct {
	mu  sync.Mutex
	dir string

	usersPath  string
	ordersPath string
	tradesPath string
}

// NewFileStore creates the data directory and empty collection files
// if they do not exist yet.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	s := &FileStore{
		dir:        dir,
		usersPath:  filepath.Join(dir, "users.json"),
		ordersPath: filepath.Join(dir, "orders.json"),
		tradesPath: filepath.Join(dir, "trades.json"),
	}
	for _, path := range []string{s.usersPath, s.ordersPath, s.tradesPath} {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
				return nil, fmt.Errorf("failed to initialize %s: %w", filepath.Base(path), err)
			}
		} else if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", filepath.Base(path), err)
		}
	}
	return s, nil
}

// Close implements Store. The FileStore holds no open handles.
func (s *FileStore) Close() {}

// userRecord is the on-disk user layout. models.User hides the hash
// from JSON encoding, so the store persists its own representation.
type userRecord struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Password string `json:"password"` // bcrypt hash
}

func (r userRecord) toUser() models.User {
	return models.User{ID: r.ID, Username: r.Username, PasswordHash: r.Password}
}

// loadCollection reads a JSON collection file. A missing file is an
// empty collection; an undecodable file surfaces ErrCorruptState so
// the operator learns about data loss instead of silently starting over.
func loadCollection[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptState, filepath.Base(path), err)
	}
	return items, nil
}

// saveCollection writes the collection through a temp file and rename,
// so a crash mid-write never leaves a half-written collection behind.
func saveCollection[T any](path string, items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ListUsers returns all registered users.
func (s *FileStore) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := loadCollection[userRecord](s.usersPath)
	if err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(records))
	for _, r := range records {
		users = append(users, r.toUser())
	}
	return users, nil
}

// GetUser returns the user with the given username, or ErrNotFound.
// The lookup is a case-sensitive exact match.
func (s *FileStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := loadCollection[userRecord](s.usersPath)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.Username == username {
			user := r.toUser()
			return &user, nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
}

// CreateUser adds a user with the next sequential id, or returns
// ErrDuplicateUser if the username is taken.
func (s *FileStore) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := loadCollection[userRecord](s.usersPath)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.Username == username {
			return nil, fmt.Errorf("user %q: %w", username, ErrDuplicateUser)
		}
	}
	record := userRecord{
		ID:       nextID(records, func(r userRecord) int { return r.ID }),
		Username: username,
		Password: passwordHash,
	}
	records = append(records, record)
	if err := saveCollection(s.usersPath, records); err != nil {
		return nil, err
	}
	user := record.toUser()
	return &user, nil
}

// ListOrders returns every order ever created, active or not.
func (s *FileStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return loadCollection[models.Order](s.ordersPath)
}

// ListActiveOrders returns orders still resting in the book.
func (s *FileStore) ListActiveOrders(ctx context.Context) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orders, err := loadCollection[models.Order](s.ordersPath)
	if err != nil {
		return nil, err
	}
	return filterOrders(orders, func(o models.Order) bool { return o.IsActive }), nil
}

// ListUserOrders returns all orders owned by userID.
func (s *FileStore) ListUserOrders(ctx context.Context, userID int) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orders, err := loadCollection[models.Order](s.ordersPath)
	if err != nil {
		return nil, err
	}
	return filterOrders(orders, func(o models.Order) bool { return o.UserID == userID }), nil
}

// CreateOrder persists a new active order stamped with the current time.
func (s *FileStore) CreateOrder(ctx context.Context, userID int, username string, price decimal.Decimal, quantity int64, side models.Side) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orders, err := loadCollection[models.Order](s.ordersPath)
	if err != nil {
		return nil, err
	}
	order := models.Order{
		ID:        nextID(orders, func(o models.Order) int { return o.ID }),
		UserID:    userID,
		Username:  username,
		Price:     price,
		Quantity:  quantity,
		Side:      side,
		CreatedAt: time.Now(),
		IsActive:  true,
	}
	orders = append(orders, order)
	if err := saveCollection(s.ordersPath, orders); err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrder applies a partial update and persists the collection.
// Returns ErrNotFound for an unknown order id.
func (s *FileStore) UpdateOrder(ctx context.Context, orderID int, upd OrderUpdate) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orders, err := loadCollection[models.Order](s.ordersPath)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if orders[i].ID != orderID {
			continue
		}
		if upd.Quantity != nil {
			orders[i].Quantity = *upd.Quantity
		}
		if upd.IsActive != nil {
			orders[i].IsActive = *upd.IsActive
		}
		if err := saveCollection(s.ordersPath, orders); err != nil {
			return nil, err
		}
		return &orders[i], nil
	}
	return nil, fmt.Errorf("order %d: %w", orderID, ErrNotFound)
}

// ListTrades returns all trades in creation order.
func (s *FileStore) ListTrades(ctx context.Context) ([]models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return loadCollection[models.Trade](s.tradesPath)
}

// CreateTrade appends an executed trade stamped with the current time.
func (s *FileStore) CreateTrade(ctx context.Context, price decimal.Decimal, quantity int64, bidUserID int, bidUsername string, askUserID int, askUsername string) (*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trades, err := loadCollection[models.Trade](s.tradesPath)
	if err != nil {
		return nil, err
	}
	trade := models.Trade{
		ID:          nextID(trades, func(t models.Trade) int { return t.ID }),
		Price:       price,
		Quantity:    quantity,
		CreatedAt:   time.Now(),
		BidUserID:   bidUserID,
		BidUsername: bidUsername,
		AskUserID:   askUserID,
		AskUsername: askUsername,
	}
	trades = append(trades, trade)
	if err := saveCollection(s.tradesPath, trades); err != nil {
		return nil, err
	}
	return &trade, nil
}

// OrderBook rebuilds the derived book view from active orders.
func (s *FileStore) OrderBook(ctx context.Context) (*models.OrderBook, error) {
	active, err := s.ListActiveOrders(ctx)
	if err != nil {
		return nil, err
	}
	book := &models.OrderBook{Bids: []models.Order{}, Asks: []models.Order{}}
	for _, o := range active {
		switch o.Side {
		case models.SideBid:
			book.Bids = append(book.Bids, o)
		case models.SideAsk:
			book.Asks = append(book.Asks, o)
		}
	}
	SortBids(book.Bids)
	SortAsks(book.Asks)
	return book, nil
}

// SortBids orders bids best-first: highest price, then oldest.
func SortBids(bids []models.Order) {
	sort.SliceStable(bids, func(i, j int) bool {
		if !bids[i].Price.Equal(bids[j].Price) {
			return bids[i].Price.GreaterThan(bids[j].Price)
		}
		return bids[i].CreatedAt.Before(bids[j].CreatedAt)
	})
}

// SortAsks orders asks best-first: lowest price, then oldest.
func SortAsks(asks []models.Order) {
	sort.SliceStable(asks, func(i, j int) bool {
		if !asks[i].Price.Equal(asks[j].Price) {
			return asks[i].Price.LessThan(asks[j].Price)
		}
		return asks[i].CreatedAt.Before(asks[j].CreatedAt)
	})
}

// nextID assigns max(existing ids)+1, or 1 for an empty collection.
// Safe here because records are never deleted, so no holes can form.
func nextID[T any](items []T, id func(T) int) int {
	max := 0
	for _, it := range items {
		if v := id(it); v > max {
			max = v
		}
	}
	return max + 1
}

func filterOrders(orders []models.Order, keep func(models.Order) bool) []models.Order {
	var out []models.Order
	for _, o := range orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out
}
