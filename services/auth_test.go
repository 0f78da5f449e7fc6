package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speaktoheaven/logger"
	"speaktoheaven/memstore"
	"speaktoheaven/services"
)

func newAuth(t *testing.T) (*services.AuthService, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	return services.NewAuthService(logger.Nop(), store, "test-secret", services.DefaultSignupBonus), store
}

func TestSignupGrantsBonus(t *testing.T) {
	auth, _ := newAuth(t)
	ctx := context.Background()

	u, token, err := auth.Signup(ctx, "  Hannah@Example.com ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "hannah@example.com", u.Email)
	assert.Equal(t, services.DefaultSignupBonus, u.Credits)
	assert.NotEqual(t, "correct horse", u.PasswordHash)

	claims, err := auth.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, u.Email, claims.Email)

	_, _, err = auth.Signup(ctx, "hannah@example.com", "another pass")
	assert.ErrorIs(t, err, services.ErrEmailTaken)
}

func TestSignupValidation(t *testing.T) {
	auth, _ := newAuth(t)
	ctx := context.Background()

	_, _, err := auth.Signup(ctx, "not-an-email", "long enough")
	assert.ErrorIs(t, err, services.ErrInvalidRequest)
	_, _, err = auth.Signup(ctx, "a@example.com", "short")
	assert.ErrorIs(t, err, services.ErrInvalidRequest)
}

func TestLogin(t *testing.T) {
	auth, _ := newAuth(t)
	ctx := context.Background()
	u, _, err := auth.Signup(ctx, "eli@example.com", "temple lamp")
	require.NoError(t, err)

	got, token, err := auth.Login(ctx, "eli@example.com", "temple lamp")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.NotEmpty(t, token)

	_, _, err = auth.Login(ctx, "eli@example.com", "wrong password")
	assert.ErrorIs(t, err, services.ErrBadCredentials)
	_, _, err = auth.Login(ctx, "nobody@example.com", "temple lamp")
	assert.ErrorIs(t, err, services.ErrBadCredentials)
}

func TestParseTokenRejectsExpiredAndForeign(t *testing.T) {
	auth, store := newAuth(t)
	u, err := store.CreateUser(context.Background(), "t@example.com", "", 0)
	require.NoError(t, err)

	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	auth.SetClock(func() time.Time { return issued })
	token, err := auth.IssueToken(u)
	require.NoError(t, err)

	auth.SetClock(func() time.Time { return issued.Add(services.DefaultTokenTTL - time.Minute) })
	_, err = auth.ParseToken(token)
	assert.NoError(t, err)

	auth.SetClock(func() time.Time { return issued.Add(services.DefaultTokenTTL + time.Minute) })
	_, err = auth.ParseToken(token)
	assert.Error(t, err)

	other := services.NewAuthService(logger.Nop(), store, "other-secret", 0)
	_, err = other.ParseToken(token)
	assert.Error(t, err)

	_, err = auth.ParseToken("garbage")
	assert.Error(t, err)
}

func TestSystemUserIsStable(t *testing.T) {
	auth, _ := newAuth(t)
	ctx := context.Background()

	first, err := auth.SystemUser(ctx)
	require.NoError(t, err)
	second, err := auth.SystemUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, services.SystemUserEmail, first.Email)
}
