package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
)

// logoutTimeout bounds the best-effort remote logout call.
const logoutTimeout = 10 * time.Second

// Manager owns the session of the process: state, renewal credential,
// renewal timer and bootstrap.
type Manager struct {
	activityEmitter
	cfg          Config
	client       Client
	credentials  CredentialStore
	credSink     CredentialSink
	clock        Clock
	store        *Store
	scheduler    *Scheduler
	bootstrapper *Bootstrapper
}

// ManagerOption customizes manager construction.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger shared by the manager components.
func WithManagerLogger(logger Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithManagerActivitySink sets the ActivitySink shared by the manager components.
func WithManagerActivitySink(sink ActivitySink) ManagerOption {
	return func(m *Manager) {
		m.sink = normalizeActivitySink(sink)
	}
}

// WithManagerClock injects a custom clock (useful for tests).
func WithManagerClock(clock Clock) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
			m.now = clock.Now
		}
	}
}

// WithCredentialSink sets where the access credential is published. By
// default the client is used when it implements CredentialSink.
func WithCredentialSink(sink CredentialSink) ManagerOption {
	return func(m *Manager) {
		if sink != nil {
			m.credSink = sink
		}
	}
}

// NewManager builds the session manager. Call Bootstrap once at start and
// Close on shutdown.
func NewManager(client Client, credentials CredentialStore, cfg Config, opts ...ManagerOption) *Manager {
	if cfg == nil {
		cfg = DefaultOptions()
	}

	m := &Manager{
		activityEmitter: newActivityEmitter(),
		cfg:             cfg,
		client:          client,
		credentials:     credentials,
		clock:           systemClock{},
	}

	if sink, ok := client.(CredentialSink); ok {
		m.credSink = sink
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	m.store = NewStore(m.credSink)
	m.scheduler = NewScheduler(m.store, credentials, client,
		WithSchedulerConfig(cfg),
		WithSchedulerClock(m.clock),
		WithSchedulerLogger(m.logger),
		WithSchedulerActivitySink(m.sink),
	)
	m.bootstrapper = NewBootstrapper(m.store, credentials, client, m.scheduler,
		WithBootstrapLifetime(cfg.GetAccessLifetime()),
		WithBootstrapLogger(m.logger),
		WithBootstrapActivitySink(m.sink),
	)

	return m
}

// Store returns the session state container.
func (m *Manager) Store() *Store {
	return m.store
}

// Scheduler returns the renewal scheduler.
func (m *Manager) Scheduler() *Scheduler {
	return m.scheduler
}

// Config returns the session options.
func (m *Manager) Config() Config {
	return m.cfg
}

// Bootstrap restores the session from the stored renewal credential. Safe
// to call more than once; only the first call runs.
func (m *Manager) Bootstrap(ctx context.Context) {
	m.bootstrapper.Run(ctx)
}

// Ready is closed when bootstrap finished.
func (m *Manager) Ready() <-chan struct{} {
	return m.bootstrapper.Done()
}

// Credentials is the sign-in form payload
type Credentials struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (c Credentials) Validate() *errors.Error {
	return errors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&c,
			validation.Field(&c.Email, validation.Required, is.Email),
			validation.Field(&c.Password, validation.Required),
		)
	}, "Invalid sign in payload")
}

// Login signs in against the remote API and establishes the session. A
// rejected sign in leaves the current state untouched.
func (m *Manager) Login(ctx context.Context, email, password string) (*Identity, error) {
	creds := Credentials{Email: email, Password: password}
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	result, err := m.client.Login(ctx, email, password)
	if err != nil {
		m.logger.Info("sign in rejected", "email", email, "error", err)
		m.emit(ctx, ActivityEventLoginFailure, nil, map[string]any{
			"email": email,
			"error": err.Error(),
		})
		if IsUnauthenticated(err) || HasTextCode(err, TextCodeInvalidCredentials) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := m.establish(ctx, result); err != nil {
		m.emit(ctx, ActivityEventLoginFailure, nil, map[string]any{
			"email": email,
			"error": err.Error(),
		})
		return nil, err
	}

	m.emit(ctx, ActivityEventLoginSuccess, result.Identity, nil)
	return result.Identity.Clone(), nil
}

// CompleteRegistration installs the session handed back by a registration
// flow that signs the new identity in.
func (m *Manager) CompleteRegistration(ctx context.Context, result *LoginResult) error {
	if err := m.establish(ctx, result); err != nil {
		return err
	}
	m.emit(ctx, ActivityEventLoginSuccess, result.Identity, map[string]any{
		"flow": "registration",
	})
	return nil
}

func (m *Manager) establish(ctx context.Context, result *LoginResult) error {
	if result == nil || result.Identity == nil || result.AccessCredential == "" || result.RenewalCredential == "" {
		return ErrInvalidSession
	}

	if err := m.credentials.Set(ctx, result.RenewalCredential); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "unable to persist renewal credential")
	}

	if err := m.store.SetAuth(result.Identity, result.AccessCredential); err != nil {
		if clearErr := m.credentials.Clear(ctx); clearErr != nil {
			m.logger.Error("unable to clear renewal credential", "error", clearErr)
		}
		return err
	}

	lifetime := result.Lifetime
	if lifetime <= 0 {
		lifetime = m.cfg.GetAccessLifetime()
	}
	m.scheduler.ScheduleRenewal(lifetime)
	return nil
}

// Logout ends the session. Local state is always cleared; the remote call
// is best effort and its error is only logged.
func (m *Manager) Logout(ctx context.Context) {
	m.scheduler.Disarm()

	identity := m.store.Snapshot().Identity
	if identity != nil {
		remoteCtx, cancel := context.WithTimeout(ctx, logoutTimeout)
		if err := m.client.Logout(remoteCtx); err != nil {
			m.logger.Warn("remote logout failed, clearing local session anyway", "error", err)
		}
		cancel()
	}

	m.store.ClearAuth()
	if err := m.credentials.Clear(ctx); err != nil {
		m.logger.Error("unable to clear renewal credential", "error", err)
	}

	m.emit(ctx, ActivityEventLogout, identity, nil)
}

// HandleUnauthorized reacts to the transport reporting that the remote API
// rejected the access credential. The renewal credential is kept, so the
// next start can still restore the session.
func (m *Manager) HandleUnauthorized() {
	identity := m.store.Snapshot().Identity
	if identity == nil {
		return
	}

	m.scheduler.Disarm()
	m.store.ClearAuth()

	m.logger.Warn("remote API rejected the access credential, session cleared")
	m.emit(context.Background(), ActivityEventSessionRevoked, identity, nil)
}

// UpdateUser merges a profile change into the current identity.
func (m *Manager) UpdateUser(patch IdentityPatch) {
	m.store.UpdateUser(patch)
}

// Close cancels the renewal timer. The manager must not be used afterwards.
func (m *Manager) Close() error {
	m.scheduler.Stop()
	return nil
}
