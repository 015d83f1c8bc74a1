package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jparker/dispatch-api/internal/config"
)

func newTestJWTService(t *testing.T) *hmacJWTService {
	t.Helper()

	svc, err := NewJWTService(config.AuthConfig{
		JWTSecret:            "testsecrettestsecrettestsecrettestsecret",
		TokenLifetimeMinutes: 60,
	})
	require.NoError(t, err)
	return svc.(*hmacJWTService)
}

func TestNewJWTService_RejectsShortSecret(t *testing.T) {
	t.Parallel()

	_, err := NewJWTService(config.AuthConfig{
		JWTSecret:            "tooshort",
		TokenLifetimeMinutes: 60,
	})
	assert.Error(t, err)
}

func TestJWTService_GenerateAndValidate(t *testing.T) {
	t.Parallel()

	svc := newTestJWTService(t)
	userID := uuid.New()

	token, err := svc.GenerateToken(context.Background(), userID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
}

func TestJWTService_ValidateToken_Errors(t *testing.T) {
	t.Parallel()

	svc := newTestJWTService(t)

	t.Run("missing token", func(t *testing.T) {
		t.Parallel()

		_, err := svc.ValidateToken(context.Background(), "")
		assert.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("garbage token", func(t *testing.T) {
		t.Parallel()

		_, err := svc.ValidateToken(context.Background(), "not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong signing key", func(t *testing.T) {
		t.Parallel()

		other := newTestJWTService(t)
		other.signingKey = []byte("a-completely-different-secret-key-value")

		token, err := other.GenerateToken(context.Background(), uuid.New())
		require.NoError(t, err)

		_, err = svc.ValidateToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired token", func(t *testing.T) {
		t.Parallel()

		issued := newTestJWTService(t)
		issuedAt := time.Now().Add(-2 * time.Hour)
		issued.timeFunc = func() time.Time { return issuedAt }

		token, err := issued.GenerateToken(context.Background(), uuid.New())
		require.NoError(t, err)

		_, err = svc.ValidateToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})
}

func TestBcryptVerifier_Compare(t *testing.T) {
	t.Parallel()

	verifier := NewBcryptVerifier()

	hashed, err := bcrypt.GenerateFromPassword([]byte("correct horse battery"), bcrypt.MinCost)
	require.NoError(t, err)

	assert.NoError(t, verifier.Compare(string(hashed), "correct horse battery"))
	assert.Error(t, verifier.Compare(string(hashed), "wrong password"))
}
