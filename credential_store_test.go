package auth_test

import (
	"context"
	"testing"
	"time"

	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCredentialStore(t *testing.T) {
	ctx := context.Background()
	clock := newManualClock()
	store := auth.NewMemoryCredentialStore(auth.DefaultRenewalCookie()).WithClock(clock.Now)

	_, ok, err := store.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "renewal-1"))
	require.NoError(t, store.Set(ctx, "renewal-2"))

	value, ok, err := store.Get(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "renewal-2", value, "set overwrites")

	require.NoError(t, store.Clear(ctx))
	_, ok, err = store.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCredentialStoreExpires(t *testing.T) {
	ctx := context.Background()
	clock := newManualClock()
	cookie := auth.DefaultRenewalCookie()
	cookie.MaxAge = time.Hour
	store := auth.NewMemoryCredentialStore(cookie).WithClock(clock.Now)

	require.NoError(t, store.Set(ctx, "renewal-1"))

	clock.Advance(59 * time.Minute)
	_, ok, _ := store.Get(ctx)
	assert.True(t, ok)

	clock.Advance(time.Minute)
	_, ok, _ = store.Get(ctx)
	assert.False(t, ok)
}

func TestMemoryCredentialStoreSetEmptyClears(t *testing.T) {
	ctx := context.Background()
	store := auth.NewMemoryCredentialStore(auth.DefaultRenewalCookie())

	require.NoError(t, store.Set(ctx, "renewal-1"))
	require.NoError(t, store.Set(ctx, ""))

	_, ok, err := store.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDefaultRenewalCookie(t *testing.T) {
	cookie := auth.DefaultRenewalCookie()

	assert.Equal(t, "refresh_token", cookie.Name)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, 30*24*time.Hour, cookie.MaxAge)
	assert.Equal(t, "Strict", cookie.SameSite)
	assert.True(t, cookie.Secure)
	assert.True(t, cookie.HTTPOnly)

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, at.Add(30*24*time.Hour), cookie.ExpiresAt(at))
	assert.Equal(t, at.Add(auth.DefaultRenewalCookieMaxAge), auth.RenewalCookie{}.ExpiresAt(at))
}
