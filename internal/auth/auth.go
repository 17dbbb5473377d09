package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"orderbook/internal/models"
	"orderbook/internal/store"
)

// ErrInvalidCredentials is returned for a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

const tokenTTL = 24 * time.Hour

// Identity is the resolved caller extracted from a verified token.
// The engine trusts it as-is.
type Identity struct {
	UserID   int
	Username string
}

// Service handles registration and authentication. The core never sees
// raw passwords beyond this boundary; only bcrypt hashes are stored.
type Service struct {
	store  store.Store
	secret []byte
}

// NewService creates an auth service signing tokens with secret.
func NewService(st store.Store, secret []byte) *Service {
	return &Service{store: st, secret: secret}
}

// Register creates a new user with a hashed password and logs them in,
// returning the user and a fresh token. A taken username surfaces as
// store.ErrDuplicateUser.
func (s *Service) Register(ctx context.Context, username, password string) (*models.User, string, error) {
	if username == "" {
		return nil, "", fmt.Errorf("username cannot be empty")
	}
	if password == "" {
		return nil, "", fmt.Errorf("password cannot be empty")
	}
	if len(username) > 50 {
		return nil, "", fmt.Errorf("username too long (max 50 characters)")
	}
	if len(password) > 100 {
		return nil, "", fmt.Errorf("password too long (max 100 characters)")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	user, err := s.store.CreateUser(ctx, username, string(hashed))
	if err != nil {
		return nil, "", err
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Login verifies credentials and returns the user and a signed token.
// An unknown username surfaces as store.ErrNotFound, a wrong password
// as ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (*models.User, string, error) {
	user, err := s.store.GetUser(ctx, username)
	if err != nil {
		return nil, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *Service) issueToken(user *models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"exp":      time.Now().Add(tokenTTL).Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies a token and extracts the caller's identity.
func (s *Service) ParseToken(tokenString string) (*Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	userID, ok := claims["user_id"].(float64)
	if !ok {
		return nil, fmt.Errorf("invalid token: missing user_id claim")
	}
	username, ok := claims["username"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid token: missing username claim")
	}
	return &Identity{UserID: int(userID), Username: username}, nil
}
