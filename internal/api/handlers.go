package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"orderbook/internal/auth"
	"orderbook/internal/exchange"
	"orderbook/internal/models"
	"orderbook/internal/store"
)

type ctxKey int

const identityKey ctxKey = 0

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Store  store.Store
	Engine *exchange.Engine
	Auth   *auth.Service
	Log    *zap.Logger
}

// NewHandler creates a new handler
func NewHandler(st store.Store, engine *exchange.Engine, authService *auth.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Store: st, Engine: engine, Auth: authService, Log: logger}
}

// Routes mounts all API endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(h.JWTAuthMiddleware)
		r.Post("/orders", h.PlaceOrder)
		r.Get("/orders", h.GetUserOrders)
		r.Get("/orderbook", h.GetOrderBook)
		r.Get("/trades", h.GetTrades)
	})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Register handles user registration. A successful registration logs
// the user in immediately.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, token, err := h.Auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateUser):
			respondError(w, http.StatusConflict, "username already exists")
		default:
			h.Log.Error("registration failed", zap.String("username", req.Username), zap.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to register user")
		}
		return
	}

	respondJSON(w, http.StatusCreated, authResponse{Token: token, User: *user})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, token, err := h.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			respondError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, auth.ErrInvalidCredentials):
			respondError(w, http.StatusUnauthorized, "invalid password")
		default:
			h.Log.Error("login failed", zap.String("username", req.Username), zap.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to log in")
		}
		return
	}

	respondJSON(w, http.StatusOK, authResponse{Token: token, User: *user})
}

// JWTAuthMiddleware verifies bearer tokens and stashes the caller's
// identity in the request context.
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			respondError(w, http.StatusUnauthorized, "authorization header required")
			return
		}
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		ident, err := h.Auth.ParseToken(tokenString)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, ident)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerIdentity(r *http.Request) (*auth.Identity, bool) {
	ident, ok := r.Context().Value(identityKey).(*auth.Identity)
	return ident, ok
}

type placeOrderRequest struct {
	Side     models.Side     `json:"order_type"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

type placeOrderResponse struct {
	Order  models.Order   `json:"order"`
	Trades []models.Trade `json:"trades"`
}

// PlaceOrder handles order submission and matching. Invalid price,
// quantity or side is rejected here, before the engine runs.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ident, ok := callerIdentity(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Side.Valid() {
		respondError(w, http.StatusBadRequest, `order type must be "bid" or "ask"`)
		return
	}
	if !req.Price.IsPositive() || req.Quantity <= 0 {
		respondError(w, http.StatusBadRequest, "price and quantity must be positive")
		return
	}

	order, trades, err := h.Engine.SubmitOrder(r.Context(), ident.UserID, ident.Username, req.Price, req.Quantity, req.Side)
	if err != nil {
		switch {
		case errors.Is(err, exchange.ErrInvalidPrice),
			errors.Is(err, exchange.ErrInvalidQuantity),
			errors.Is(err, exchange.ErrInvalidSide):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			h.Log.Error("order submission failed", zap.Int("user_id", ident.UserID), zap.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to place order")
		}
		return
	}

	respondJSON(w, http.StatusCreated, placeOrderResponse{Order: *order, Trades: trades})
}

// GetUserOrders retrieves the caller's orders, active and filled.
func (h *Handler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	ident, ok := callerIdentity(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orders, err := h.Store.ListUserOrders(r.Context(), ident.UserID)
	if err != nil {
		h.Log.Error("failed to list user orders", zap.Int("user_id", ident.UserID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to retrieve orders")
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

// GetOrderBook retrieves the current order book
func (h *Handler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.Store.OrderBook(r.Context())
	if err != nil {
		h.Log.Error("failed to build order book", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to retrieve order book")
		return
	}
	respondJSON(w, http.StatusOK, book)
}

// GetTrades retrieves the full trade history, newest first.
func (h *Handler) GetTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.Store.ListTrades(r.Context())
	if err != nil {
		h.Log.Error("failed to list trades", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to retrieve trades")
		return
	}
	newestFirst := make([]models.Trade, 0, len(trades))
	for i := len(trades) - 1; i >= 0; i-- {
		newestFirst = append(newestFirst, trades[i])
	}
	respondJSON(w, http.StatusOK, newestFirst)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
