package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jparker/dispatch-api/internal/config"
	"github.com/jparker/dispatch-api/internal/domain"
	"github.com/jparker/dispatch-api/internal/service"
	"github.com/jparker/dispatch-api/internal/service/auth"
	"github.com/jparker/dispatch-api/internal/store"
)

// stubUserStore is an in-memory UserStore for handler tests.
type stubUserStore struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newStubUserStore() *stubUserStore {
	return &stubUserStore{users: make(map[string]*domain.User)}
}

func (s *stubUserStore) Create(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.Email]; exists {
		return store.ErrEmailExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.MinCost)
	if err != nil {
		return err
	}
	user.HashedPassword = string(hashed)
	user.Password = ""

	copied := *user
	s.users[user.Email] = &copied
	return nil
}

func (s *stubUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if user.ID == id {
			copied := *user
			return &copied, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (s *stubUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[email]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *stubUserStore) WithTx(tx *sql.Tx) store.UserStore { return s }

func newAuthAPI(t *testing.T) http.Handler {
	t.Helper()

	jwtService, err := auth.NewJWTService(config.AuthConfig{
		JWTSecret:            "testsecrettestsecrettestsecrettestsecret",
		TokenLifetimeMinutes: 60,
	})
	require.NoError(t, err)

	userService, err := service.NewUserService(
		nil, newStubUserStore(), jwtService, auth.NewBcryptVerifier(), testLogger())
	require.NoError(t, err)

	handler := NewAuthHandler(userService)
	router := chi.NewRouter()
	router.Post("/auth/register", handler.Register)
	router.Post("/auth/login", handler.Login)
	return router
}

func TestAuthHandler_Register(t *testing.T) {
	t.Parallel()

	t.Run("created", func(t *testing.T) {
		t.Parallel()

		router := newAuthAPI(t)
		rec := doJSON(t, router, http.MethodPost, "/auth/register", map[string]any{
			"email":    "ops@example.com",
			"password": "correct horse battery",
		})

		require.Equal(t, http.StatusCreated, rec.Code)

		var resp AuthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEqual(t, uuid.Nil, resp.UserID)
		assert.NotEmpty(t, resp.AccessToken)
	})

	t.Run("duplicate email", func(t *testing.T) {
		t.Parallel()

		router := newAuthAPI(t)
		body := map[string]any{
			"email":    "ops@example.com",
			"password": "correct horse battery",
		}
		require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/auth/register", body).Code)

		rec := doJSON(t, router, http.MethodPost, "/auth/register", body)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("validation failures", func(t *testing.T) {
		t.Parallel()

		router := newAuthAPI(t)

		rec := doJSON(t, router, http.MethodPost, "/auth/register", map[string]any{
			"email":    "not-an-email",
			"password": "correct horse battery",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = doJSON(t, router, http.MethodPost, "/auth/register", map[string]any{
			"email":    "ops@example.com",
			"password": "short",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAuthHandler_Login(t *testing.T) {
	t.Parallel()

	router := newAuthAPI(t)
	require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/auth/register", map[string]any{
		"email":    "ops@example.com",
		"password": "correct horse battery",
	}).Code)

	t.Run("valid credentials", func(t *testing.T) {
		t.Parallel()

		rec := doJSON(t, router, http.MethodPost, "/auth/login", map[string]any{
			"email":    "ops@example.com",
			"password": "correct horse battery",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp AuthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.AccessToken)
	})

	t.Run("wrong password", func(t *testing.T) {
		t.Parallel()

		rec := doJSON(t, router, http.MethodPost, "/auth/login", map[string]any{
			"email":    "ops@example.com",
			"password": "wrong password here",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown email", func(t *testing.T) {
		t.Parallel()

		rec := doJSON(t, router, http.MethodPost, "/auth/login", map[string]any{
			"email":    "nobody@example.com",
			"password": "correct horse battery",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
