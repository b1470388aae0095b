package transport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/goliatone/go-dashboard-auth/transport"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *transport.Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := transport.New(transport.Config{BaseURL: srv.URL + "/api/", Timeout: 5 * time.Second})
	return srv, client
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func identityPayload(role string) map[string]any {
	return map[string]any{
		"id":              "user-1",
		"email":           "operator@example.com",
		"display_name":    "Operator",
		"role":            role,
		"organization_id": "org-1",
		"email_verified":  true,
		"created_at":      "2025-05-01T00:00:00Z",
	}
}

func TestExchangeRenewalCredential(t *testing.T) {
	var seenAuth atomic.Value
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/refresh", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NotEmpty(t, r.Header.Get(transport.RequestIDHeader))
		seenAuth.Store(r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "renewal-1", body["refresh_token"])

		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "access-2",
			"refresh_token": "renewal-2",
			"expires_in":    3600,
		})
	})

	client.SetAccessCredential("stale")
	renewal, err := client.ExchangeRenewalCredential(context.Background(), "renewal-1")
	require.NoError(t, err)

	assert.Equal(t, "access-2", renewal.AccessCredential)
	assert.Equal(t, "renewal-2", renewal.RenewalCredential)
	assert.Equal(t, time.Hour, renewal.Lifetime)
	assert.Empty(t, seenAuth.Load(), "the exchange does not carry the access credential")
}

func TestExchangeRenewalCredentialRejected(t *testing.T) {
	var hookCalls int32
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid_grant", "message": "refresh token revoked"})
	})
	client.OnUnauthorized(func() { atomic.AddInt32(&hookCalls, 1) })

	_, err := client.ExchangeRenewalCredential(context.Background(), "renewal-1")
	require.Error(t, err)

	assert.True(t, transport.IsRejected(err))
	assert.Zero(t, atomic.LoadInt32(&hookCalls), "renewal rejections are handled by the scheduler")

	var apiErr *transport.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid_grant", apiErr.Code)
	assert.Equal(t, "refresh token revoked", apiErr.Description)
}

func TestExchangeRenewalCredentialMissingToken(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{})
	})

	_, err := client.ExchangeRenewalCredential(context.Background(), "renewal-1")
	assert.True(t, auth.HasTextCode(err, auth.TextCodeRenewalFailed))
	assert.False(t, transport.IsRejected(err))
}

func TestExchangeRenewalCredentialLifetimeFromJWT(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(2 * time.Hour)),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"access_token": token})
	})

	renewal, err := client.ExchangeRenewalCredential(context.Background(), "renewal-1")
	require.NoError(t, err)
	assert.InDelta(t, (2 * time.Hour).Seconds(), renewal.Lifetime.Seconds(), 5)
	assert.Empty(t, renewal.RenewalCredential)
}

func TestLifetimeFromJWT(t *testing.T) {
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	sign := func(claims jwt.RegisteredClaims) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
		require.NoError(t, err)
		return token
	}

	assert.Equal(t, 30*time.Minute, transport.LifetimeFromJWT(sign(jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(30 * time.Minute)),
	}), now))
	assert.Zero(t, transport.LifetimeFromJWT(sign(jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
	}), now), "expired")
	assert.Zero(t, transport.LifetimeFromJWT(sign(jwt.RegisteredClaims{Subject: "user-1"}), now), "no exp claim")
	assert.Zero(t, transport.LifetimeFromJWT("opaque-token", now))
	assert.Zero(t, transport.LifetimeFromJWT("a.b.c", now))
}

func TestFetchCurrentIdentity(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/me", r.URL.Path)
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, identityPayload("REGULATOR"))
	})

	client.SetAccessCredential("access-1")
	identity, err := client.FetchCurrentIdentity(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "user-1", identity.ID)
	assert.Equal(t, auth.RoleRegulator, identity.Role)
	require.NotNil(t, identity.OrganizationID)
	assert.Equal(t, "org-1", *identity.OrganizationID)
}

func TestFetchCurrentIdentityInvalidPayload(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, identityPayload("AUDITOR"))
	})

	_, err := client.FetchCurrentIdentity(context.Background())
	assert.True(t, auth.HasTextCode(err, auth.TextCodeIdentityFetchFailed))
}

func TestAuthenticatedRejectionRunsHook(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{name: "unauthorized", status: http.StatusUnauthorized},
		{name: "forbidden", status: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hookCalls int32
			_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			client.OnUnauthorized(func() { atomic.AddInt32(&hookCalls, 1) })
			client.SetAccessCredential("access-1")

			err := client.Call(context.Background(), http.MethodGet, "/reports", nil, nil)
			assert.True(t, auth.IsUnauthenticated(err))
			assert.Equal(t, int32(1), atomic.LoadInt32(&hookCalls))

			_, err = client.FetchCurrentIdentity(context.Background())
			assert.True(t, auth.IsUnauthenticated(err))
			assert.Equal(t, int32(2), atomic.LoadInt32(&hookCalls))
		})
	}
}

func TestLogoutDoesNotRunHook(t *testing.T) {
	var hookCalls int32
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/logout", r.URL.Path)
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
	})
	client.OnUnauthorized(func() { atomic.AddInt32(&hookCalls, 1) })
	client.SetAccessCredential("access-1")

	err := client.Logout(context.Background())
	assert.Error(t, err)
	assert.Zero(t, atomic.LoadInt32(&hookCalls))
}

func TestLogin(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		if body["password"] != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid_credentials"})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "access-1",
			"refresh_token": "renewal-1",
			"expires_in":    604800,
			"user":          identityPayload("ADMIN"),
		})
	})

	result, err := client.Login(context.Background(), "operator@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "access-1", result.AccessCredential)
	assert.Equal(t, "renewal-1", result.RenewalCredential)
	assert.Equal(t, 7*24*time.Hour, result.Lifetime)
	assert.Equal(t, auth.RoleAdmin, result.Identity.Role)

	_, err = client.Login(context.Background(), "operator@example.com", "wrong")
	assert.True(t, auth.HasTextCode(err, auth.TextCodeInvalidCredentials))
}

func TestLoginIncompleteAnswer(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "access-1"})
	})

	_, err := client.Login(context.Background(), "operator@example.com", "secret")
	assert.True(t, auth.HasTextCode(err, auth.TextCodeTransportFailure))
}

func TestServerErrorIsTransportFailure(t *testing.T) {
	_, client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})

	err := client.Call(context.Background(), http.MethodGet, "/reports", nil, nil)
	require.Error(t, err)
	assert.True(t, auth.HasTextCode(err, auth.TextCodeTransportFailure))
	assert.False(t, auth.IsUnauthenticated(err))

	var richErr *goerrors.Error
	require.ErrorAs(t, err, &richErr)
	assert.Equal(t, http.StatusBadGateway, richErr.Metadata["status"])
	assert.Equal(t, "upstream exploded", richErr.Metadata["description"])
}

func TestUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := transport.New(transport.Config{BaseURL: srv.URL})
	_, err := client.ExchangeRenewalCredential(context.Background(), "renewal-1")

	assert.True(t, auth.HasTextCode(err, auth.TextCodeTransportFailure))
	assert.False(t, transport.IsRejected(err))
}

func TestClientSlot(t *testing.T) {
	client := transport.New(transport.Config{BaseURL: "http://localhost"})

	_, ok := client.Slot().Token()
	assert.False(t, ok)

	client.SetAccessCredential("access-1")
	token, ok := client.Slot().Token()
	assert.True(t, ok)
	assert.Equal(t, "access-1", token)

	client.ClearAccessCredential()
	_, ok = client.Slot().Token()
	assert.False(t, ok)
}
