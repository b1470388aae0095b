package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/google/uuid"
)

const (
	defaultTimeout = 15 * time.Second

	// RequestIDHeader carries the per call correlation id.
	RequestIDHeader = "X-Request-ID"
)

// Paths are the remote API endpoints, relative to Config.BaseURL.
type Paths struct {
	Refresh string
	Me      string
	Login   string
	Logout  string
}

// DefaultPaths returns the standard endpoint layout.
func DefaultPaths() Paths {
	return Paths{
		Refresh: "/auth/refresh",
		Me:      "/auth/me",
		Login:   "/auth/login",
		Logout:  "/auth/logout",
	}
}

// Config holds the remote API client configuration.
type Config struct {
	BaseURL string
	Paths   Paths
	// Timeout bounds each call. Ignored when HTTPClient is set.
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     auth.Logger
	// OnUnauthorized runs when an authenticated call is rejected with 401
	// or 403. The renewal exchange never triggers it.
	OnUnauthorized func()
}

// Client talks JSON to the remote API. It implements auth.Client and
// auth.CredentialSink.
type Client struct {
	config     Config
	httpClient *http.Client
	slot       *BearerSlot
	logger     auth.Logger
	now        func() time.Time

	hookMu         sync.RWMutex
	onUnauthorized func()
}

// New creates a new remote API client.
func New(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	defaults := DefaultPaths()
	if cfg.Paths.Refresh == "" {
		cfg.Paths.Refresh = defaults.Refresh
	}
	if cfg.Paths.Me == "" {
		cfg.Paths.Me = defaults.Me
	}
	if cfg.Paths.Login == "" {
		cfg.Paths.Login = defaults.Login
	}
	if cfg.Paths.Logout == "" {
		cfg.Paths.Logout = defaults.Logout
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	return &Client{
		config:         cfg,
		httpClient:     client,
		slot:           &BearerSlot{},
		logger:         logger,
		now:            time.Now,
		onUnauthorized: cfg.OnUnauthorized,
	}
}

// OnUnauthorized replaces the rejection hook. Useful when the hook target is
// built after the client, e.g. auth.Manager.HandleUnauthorized.
func (c *Client) OnUnauthorized(fn func()) {
	c.hookMu.Lock()
	c.onUnauthorized = fn
	c.hookMu.Unlock()
}

// Slot exposes the bearer credential slot.
func (c *Client) Slot() *BearerSlot {
	return c.slot
}

func (c *Client) SetAccessCredential(token string) {
	c.slot.SetAccessCredential(token)
}

func (c *Client) ClearAccessCredential() {
	c.slot.ClearAccessCredential()
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token,omitempty"`
	ExpiresIn    int64          `json:"expires_in,omitempty"`
	User         *auth.Identity `json:"user,omitempty"`
}

// ExchangeRenewalCredential implements auth.RenewalExchanger.
func (c *Client) ExchangeRenewalCredential(ctx context.Context, renewalCredential string) (auth.Renewal, error) {
	var out tokenResponse
	err := c.do(ctx, call{
		operation: "refresh",
		method:    http.MethodPost,
		path:      c.config.Paths.Refresh,
		body:      refreshRequest{RefreshToken: renewalCredential},
		out:       &out,
	})
	if err != nil {
		return auth.Renewal{}, err
	}

	if out.AccessToken == "" {
		return auth.Renewal{}, wrapAPIError(auth.ErrRenewalFailed, &APIError{
			Operation:   "refresh",
			Status:      http.StatusOK,
			Code:        "missing_access_token",
			Description: "missing access token",
		})
	}

	return auth.Renewal{
		AccessCredential:  out.AccessToken,
		RenewalCredential: out.RefreshToken,
		Lifetime:          c.lifetime(out),
	}, nil
}

// FetchCurrentIdentity implements auth.IdentityFetcher.
func (c *Client) FetchCurrentIdentity(ctx context.Context) (*auth.Identity, error) {
	var identity auth.Identity
	err := c.do(ctx, call{
		operation:     "me",
		method:        http.MethodGet,
		path:          c.config.Paths.Me,
		authenticated: true,
		out:           &identity,
	})
	if err != nil {
		return nil, err
	}

	if err := identity.Validate(); err != nil {
		return nil, wrapAPIError(auth.ErrIdentityFetchFailed, &APIError{
			Operation:   "me",
			Status:      http.StatusOK,
			Code:        "invalid_identity",
			Description: err.Error(),
			Err:         err,
		})
	}
	return &identity, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login implements auth.Client. A 401 or 403 answer is reported as
// auth.ErrInvalidCredentials.
func (c *Client) Login(ctx context.Context, email, password string) (*auth.LoginResult, error) {
	var out tokenResponse
	err := c.do(ctx, call{
		operation: "login",
		method:    http.MethodPost,
		path:      c.config.Paths.Login,
		body:      loginRequest{Email: email, Password: password},
		out:       &out,
	})
	if err != nil {
		if auth.IsUnauthenticated(err) {
			return nil, wrapAPIError(auth.ErrInvalidCredentials, err)
		}
		return nil, err
	}

	if out.AccessToken == "" || out.RefreshToken == "" || out.User == nil {
		return nil, wrapAPIError(auth.ErrTransportFailure, &APIError{
			Operation:   "login",
			Status:      http.StatusOK,
			Code:        "incomplete_session",
			Description: "login answer is missing tokens or user",
		})
	}

	return &auth.LoginResult{
		Identity:          out.User,
		AccessCredential:  out.AccessToken,
		RenewalCredential: out.RefreshToken,
		Lifetime:          c.lifetime(out),
	}, nil
}

// Logout implements auth.Client.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, call{
		operation:     "logout",
		method:        http.MethodPost,
		path:          c.config.Paths.Logout,
		authenticated: true,
		quiet:         true,
	})
}

// Call performs an authenticated JSON call against the remote API. body and
// out may be nil.
func (c *Client) Call(ctx context.Context, method, path string, body, out any) error {
	return c.do(ctx, call{
		operation:     strings.ToLower(method) + " " + path,
		method:        method,
		path:          path,
		body:          body,
		out:           out,
		authenticated: true,
	})
}

type call struct {
	operation     string
	method        string
	path          string
	body          any
	out           any
	authenticated bool
	// quiet suppresses the rejection hook
	quiet bool
}

func (c *Client) do(ctx context.Context, cl call) error {
	requestID := uuid.NewString()

	var reader io.Reader
	if cl.body != nil {
		payload, err := json.Marshal(cl.body)
		if err != nil {
			return wrapAPIError(auth.ErrTransportFailure, &APIError{
				Operation: cl.operation,
				RequestID: requestID,
				Err:       err,
			})
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.config.BaseURL+cl.path, reader)
	if err != nil {
		return wrapAPIError(auth.ErrTransportFailure, &APIError{
			Operation: cl.operation,
			RequestID: requestID,
			Err:       err,
		})
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.authenticated {
		if token, ok := c.slot.Token(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	started := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("remote call failed", "operation", cl.operation, "request_id", requestID, "error", err)
		return wrapAPIError(auth.ErrTransportFailure, &APIError{
			Operation: cl.operation,
			RequestID: requestID,
			Err:       err,
		})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return wrapAPIError(auth.ErrTransportFailure, &APIError{
			Operation: cl.operation,
			Status:    resp.StatusCode,
			RequestID: requestID,
			Err:       err,
		})
	}

	c.logger.Debug("remote call",
		"operation", cl.operation,
		"status", resp.StatusCode,
		"request_id", requestID,
		"elapsed", c.now().Sub(started),
	)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		apiErr := decodeAPIError(cl.operation, requestID, resp.StatusCode, body)
		if cl.authenticated && !cl.quiet {
			c.unauthorized()
		}
		return wrapAPIError(auth.ErrUnauthenticated, apiErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return wrapAPIError(auth.ErrTransportFailure, decodeAPIError(cl.operation, requestID, resp.StatusCode, body))
	}

	if cl.out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	if err := json.Unmarshal(body, cl.out); err != nil {
		return wrapAPIError(auth.ErrTransportFailure, &APIError{
			Operation:   cl.operation,
			Status:      resp.StatusCode,
			RequestID:   requestID,
			Code:        "invalid_response",
			Description: "failed to decode response",
			Err:         err,
		})
	}
	return nil
}

func (c *Client) unauthorized() {
	c.hookMu.RLock()
	fn := c.onUnauthorized
	c.hookMu.RUnlock()

	if fn != nil {
		fn()
	}
}

// lifetime prefers the reported expires_in, then the exp claim of a JWT
// access credential. Zero lets the session fall back to its configured
// lifetime.
func (c *Client) lifetime(out tokenResponse) time.Duration {
	if out.ExpiresIn > 0 {
		return time.Duration(out.ExpiresIn) * time.Second
	}
	return LifetimeFromJWT(out.AccessToken, c.now())
}

// LifetimeFromJWT reads the exp claim of token without verifying it. It
// returns zero for opaque or already expired tokens.
func LifetimeFromJWT(token string, now time.Time) time.Duration {
	if strings.Count(token, ".") != 2 {
		return 0
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0
	}
	if claims.ExpiresAt == nil {
		return 0
	}

	lifetime := claims.ExpiresAt.Sub(now)
	if lifetime <= 0 {
		return 0
	}
	return lifetime
}

func decodeAPIError(operation, requestID string, status int, body []byte) *APIError {
	apiErr := &APIError{
		Operation: operation,
		Status:    status,
		RequestID: requestID,
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		apiErr.Code = firstNonEmpty(eb.Code, eb.Error)
		apiErr.Description = eb.Message
		if apiErr.Description == "" && eb.Code != "" {
			apiErr.Description = eb.Error
		}
		return apiErr
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = fmt.Sprintf("status %d", status)
	}
	apiErr.Description = msg
	return apiErr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ auth.Client = (*Client)(nil)
var _ auth.CredentialSink = (*Client)(nil)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
