package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"orderbook/internal/api"
	"orderbook/internal/auth"
	"orderbook/internal/config"
	"orderbook/internal/exchange"
	"orderbook/internal/feed"
	"orderbook/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

type broadcaster struct {
	store     store.Store
	log       *zap.Logger
	clientsMu sync.RWMutex
	clients   map[*wsClient]bool
}

func newBroadcaster(st store.Store, logger *zap.Logger) *broadcaster {
	return &broadcaster{store: st, log: logger, clients: make(map[*wsClient]bool)}
}

// broadcast sends the current order book snapshot to every connected
// client, dropping clients whose connection has gone away.
func (b *broadcaster) broadcast(ctx context.Context) {
	book, err := b.store.OrderBook(ctx)
	if err != nil {
		b.log.Error("failed to build order book for broadcast", zap.Error(err))
		return
	}
	data, err := json.Marshal(book)
	if err != nil {
		b.log.Error("failed to marshal order book", zap.Error(err))
		return
	}

	var stale []*wsClient
	b.clientsMu.RLock()
	for client := range b.clients {
		client.mu.Lock()
		err := client.conn.WriteMessage(websocket.TextMessage, data)
		client.mu.Unlock()
		if err != nil {
			stale = append(stale, client)
		}
	}
	b.clientsMu.RUnlock()

	if len(stale) > 0 {
		b.clientsMu.Lock()
		for _, client := range stale {
			delete(b.clients, client)
		}
		b.clientsMu.Unlock()
	}
}

func (b *broadcaster) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	client := &wsClient{conn: conn}
	b.clientsMu.Lock()
	b.clients[client] = true
	b.clientsMu.Unlock()

	// Send initial order book
	b.broadcast(r.Context())

	// Keep connection alive and handle disconnection
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			b.clientsMu.Lock()
			delete(b.clients, client)
			b.clientsMu.Unlock()
			break
		}
	}
}

// Main entry point: sets up the store, engine and HTTP server
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger := config.NewLogger(cfg)
	defer logger.Sync()

	ctx := context.Background()

	// Pick the store backend: Postgres when configured, the JSON file
	// store otherwise.
	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPGStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		st = pg
		logger.Info("using postgres store")
	} else {
		fs, err := store.NewFileStore(cfg.DataDir)
		if err != nil {
			logger.Fatal("failed to open file store", zap.Error(err))
		}
		st = fs
		logger.Info("using file store", zap.String("dir", cfg.DataDir))
	}
	defer st.Close()

	engine := exchange.NewEngine(st, logger)

	if cfg.KafkaBroker != "" {
		publisher := feed.NewPublisher(strings.Split(cfg.KafkaBroker, ","), cfg.KafkaTopic)
		defer publisher.Close()
		engine.SetFeed(publisher)
		logger.Info("trade feed enabled", zap.String("topic", cfg.KafkaTopic))
	}

	authService := auth.NewService(st, []byte(cfg.JWTSecret))
	handler := api.NewHandler(st, engine, authService, logger)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	b := newBroadcaster(st, logger)
	r.Get("/ws", b.handleWebSocket)

	handler.Routes(r)

	// Push the book to websocket clients every few seconds.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			b.broadcast(ctx)
		}
	}()

	logger.Info("starting server", zap.String("addr", cfg.Addr))
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
