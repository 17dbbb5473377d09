package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"orderbook/internal/config"
	"orderbook/internal/exchange"
	"orderbook/internal/models"
	"orderbook/internal/store"
)

// Seed the store with demo users and a populated book. Running the
// orders through the engine also produces a few trades.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := config.NewLogger(cfg)
	defer logger.Sync()

	ctx := context.Background()

	var st store.Store
	var err error
	if cfg.DatabaseURL != "" {
		st, err = store.NewPGStore(ctx, cfg.DatabaseURL)
	} else {
		st, err = store.NewFileStore(cfg.DataDir)
	}
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer st.Close()

	trades, err := st.ListTrades(ctx)
	if err != nil {
		logger.Fatal("failed to check trades", zap.Error(err))
	}
	if len(trades) > 0 {
		fmt.Printf("Store already has %d trades. No need to seed.\n", len(trades))
		os.Exit(0)
	}

	alice := seedUser(ctx, logger, st, "alice", "password123")
	bob := seedUser(ctx, logger, st, "bob", "password123")

	engine := exchange.NewEngine(st, logger)

	type seedOrder struct {
		user  *models.User
		side  models.Side
		price string
		qty   int64
	}
	// A small ladder on each side, plus two crossing orders so the
	// trade history has content.
	orders := []seedOrder{
		{alice, models.SideAsk, "101.50", 10},
		{alice, models.SideAsk, "102.00", 20},
		{bob, models.SideBid, "99.00", 15},
		{bob, models.SideBid, "98.50", 25},
		{bob, models.SideBid, "101.50", 5},  // crosses alice's best ask
		{alice, models.SideAsk, "99.00", 5}, // crosses bob's best bid
	}

	for _, o := range orders {
		_, executed, err := engine.SubmitOrder(ctx, o.user.ID, o.user.Username,
			decimal.RequireFromString(o.price), o.qty, o.side)
		if err != nil {
			logger.Fatal("failed to seed order", zap.Error(err))
		}
		fmt.Printf("%s %s %d@%s -> %d trade(s)\n", o.user.Username, o.side, o.qty, o.price, len(executed))
	}

	fmt.Println("Seed complete.")
}

func seedUser(ctx context.Context, logger *zap.Logger, st store.Store, username, password string) *models.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logger.Fatal("failed to hash password", zap.Error(err))
	}
	user, err := st.CreateUser(ctx, username, string(hash))
	if errors.Is(err, store.ErrDuplicateUser) {
		user, err = st.GetUser(ctx, username)
	}
	if err != nil {
		logger.Fatal("failed to seed user", zap.String("username", username), zap.Error(err))
	}
	return user
}
