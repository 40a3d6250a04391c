package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinicore/labflow/internal/config"
	"github.com/clinicore/labflow/internal/domain"
	"github.com/clinicore/labflow/pkg/auth"
)

const testPassword = "correct-horse-battery"

func newAuthFixture(t *testing.T, mutate func(*domain.User)) (*AuthService, *domain.User) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	user := &domain.User{
		ID:           uuid.New(),
		Email:        "tech@example.org",
		PasswordHash: string(hash),
		FirstName:    "Sam",
		LastName:     "Mercer",
		Role:         domain.RoleTechnician,
		IsActive:     true,
	}
	if mutate != nil {
		mutate(user)
	}

	jwtManager := auth.NewJWTManager(config.JWTConfig{
		Secret:          "test-secret-test-secret-test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
		Issuer:          "labflow-test",
	})

	svc := NewAuthService(newFakeUserRepo(user), jwtManager, zap.NewNop())
	return svc, user
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("valid credentials return a token pair", func(t *testing.T) {
		svc, _ := newAuthFixture(t, nil)

		pair, err := svc.Login(ctx, "tech@example.org", testPassword, "10.0.0.9")
		require.NoError(t, err)
		assert.NotEmpty(t, pair.AccessToken)
		assert.NotEmpty(t, pair.RefreshToken)
		assert.Equal(t, "Bearer", pair.TokenType)
		assert.True(t, pair.ExpiresAt.After(time.Now()))
	})

	t.Run("wrong password", func(t *testing.T) {
		svc, _ := newAuthFixture(t, nil)

		_, err := svc.Login(ctx, "tech@example.org", "wrong", "10.0.0.9")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		svc, _ := newAuthFixture(t, nil)

		_, err := svc.Login(ctx, "nobody@example.org", testPassword, "10.0.0.9")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("inactive account", func(t *testing.T) {
		svc, _ := newAuthFixture(t, func(u *domain.User) { u.IsActive = false })

		_, err := svc.Login(ctx, "tech@example.org", testPassword, "10.0.0.9")
		assert.ErrorIs(t, err, ErrAccountInactive)
	})

	t.Run("locked account", func(t *testing.T) {
		svc, _ := newAuthFixture(t, func(u *domain.User) {
			until := time.Now().Add(10 * time.Minute)
			u.LockedUntil = &until
		})

		_, err := svc.Login(ctx, "tech@example.org", testPassword, "10.0.0.9")
		assert.ErrorIs(t, err, ErrAccountLocked)
	})

	t.Run("expired lock allows login again", func(t *testing.T) {
		svc, _ := newAuthFixture(t, func(u *domain.User) {
			until := time.Now().Add(-time.Minute)
			u.LockedUntil = &until
		})

		_, err := svc.Login(ctx, "tech@example.org", testPassword, "10.0.0.9")
		assert.NoError(t, err)
	})
}

func TestRefreshToken(t *testing.T) {
	ctx := context.Background()

	t.Run("valid refresh token issues a new pair", func(t *testing.T) {
		svc, _ := newAuthFixture(t, nil)

		pair, err := svc.Login(ctx, "tech@example.org", testPassword, "10.0.0.9")
		require.NoError(t, err)

		refreshed, err := svc.RefreshToken(ctx, pair.RefreshToken)
		require.NoError(t, err)
		assert.NotEmpty(t, refreshed.AccessToken)
	})

	t.Run("an access token is not accepted as a refresh token", func(t *testing.T) {
		svc, _ := newAuthFixture(t, nil)

		pair, err := svc.Login(ctx, "tech@example.org", testPassword, "10.0.0.9")
		require.NoError(t, err)

		_, err = svc.RefreshToken(ctx, pair.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("garbage token", func(t *testing.T) {
		svc, _ := newAuthFixture(t, nil)

		_, err := svc.RefreshToken(ctx, "not-a-token")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("updates the hash", func(t *testing.T) {
		svc, user := newAuthFixture(t, nil)

		err := svc.ChangePassword(ctx, user.ID, testPassword, "a-much-longer-password")
		require.NoError(t, err)

		// The old password no longer works.
		_, err = svc.Login(ctx, "tech@example.org", testPassword, "10.0.0.9")
		assert.ErrorIs(t, err, ErrInvalidCredentials)

		_, err = svc.Login(ctx, "tech@example.org", "a-much-longer-password", "10.0.0.9")
		assert.NoError(t, err)
	})

	t.Run("wrong current password", func(t *testing.T) {
		svc, user := newAuthFixture(t, nil)

		err := svc.ChangePassword(ctx, user.ID, "wrong", "a-much-longer-password")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("too short", func(t *testing.T) {
		svc, user := newAuthFixture(t, nil)

		err := svc.ChangePassword(ctx, user.ID, testPassword, "short")
		assert.Error(t, err)
	})
}
