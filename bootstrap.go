package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-print"
)

// Bootstrapper rehydrates the session from the stored renewal credential.
// It runs at most once and always leaves the store initialized.
type Bootstrapper struct {
	activityEmitter
	store       *Store
	credentials CredentialStore
	client      interface {
		RenewalExchanger
		IdentityFetcher
	}
	scheduler *Scheduler
	lifetime  time.Duration

	once sync.Once
	done chan struct{}
}

// BootstrapOption customizes the bootstrapper.
type BootstrapOption func(*Bootstrapper)

// WithBootstrapLogger overrides the bootstrap logger.
func WithBootstrapLogger(logger Logger) BootstrapOption {
	return func(b *Bootstrapper) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithBootstrapActivitySink sets the ActivitySink used to publish bootstrap events.
func WithBootstrapActivitySink(sink ActivitySink) BootstrapOption {
	return func(b *Bootstrapper) {
		b.sink = normalizeActivitySink(sink)
	}
}

// WithBootstrapLifetime sets the access lifetime used when the exchange
// does not report one.
func WithBootstrapLifetime(lifetime time.Duration) BootstrapOption {
	return func(b *Bootstrapper) {
		if lifetime > 0 {
			b.lifetime = lifetime
		}
	}
}

// NewBootstrapper wires the bootstrap sequence.
func NewBootstrapper(store *Store, credentials CredentialStore, client Client, scheduler *Scheduler, opts ...BootstrapOption) *Bootstrapper {
	b := &Bootstrapper{
		activityEmitter: newActivityEmitter(),
		store:           store,
		credentials:     credentials,
		client:          client,
		scheduler:       scheduler,
		lifetime:        DefaultAccessLifetime,
		done:            make(chan struct{}),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	return b
}

// Run executes the bootstrap sequence. Only the first call does any work;
// later calls return immediately.
func (b *Bootstrapper) Run(ctx context.Context) {
	b.once.Do(func() {
		defer close(b.done)
		b.run(ctx)
	})
}

// Done is closed once the first Run completes.
func (b *Bootstrapper) Done() <-chan struct{} {
	return b.done
}

func (b *Bootstrapper) run(ctx context.Context) {
	defer b.store.SetInitialized()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bootstrap panicked, clearing session", "panic", fmt.Sprint(r))
			b.store.ClearAuth()
		}
	}()

	credential, ok, err := b.credentials.Get(ctx)
	if err != nil {
		b.logger.Error("bootstrap unable to read renewal credential", "error", err)
		b.store.ClearAuth()
		return
	}

	if !ok {
		b.store.ClearAuth()
		b.emit(ctx, ActivityEventBootstrapAnonymous, nil, nil)
		return
	}

	renewal, err := b.client.ExchangeRenewalCredential(ctx, credential)
	if err == nil && renewal.AccessCredential == "" {
		err = fmt.Errorf("exchange returned an empty access credential")
	}
	if err != nil {
		b.abort(ctx, wrapWith(ErrRenewalFailed, err), IsUnauthenticated(err))
		return
	}

	// the identity call authenticates with the new credential
	b.store.StageAccessCredential(renewal.AccessCredential)

	identity, err := b.client.FetchCurrentIdentity(ctx)
	if err == nil && identity == nil {
		err = ErrIdentityNotFound
	}
	if err != nil {
		b.abort(ctx, wrapWith(ErrIdentityFetchFailed, err), IsUnauthenticated(err))
		return
	}

	if err := b.store.SetAuth(identity, renewal.AccessCredential); err != nil {
		b.abort(ctx, err, false)
		return
	}

	if renewal.RenewalCredential != "" && renewal.RenewalCredential != credential {
		if err := b.credentials.Set(ctx, renewal.RenewalCredential); err != nil {
			b.logger.Warn("unable to persist rotated renewal credential", "error", err)
		}
	}

	lifetime := renewal.Lifetime
	if lifetime <= 0 {
		lifetime = b.lifetime
	}
	b.scheduler.ScheduleRenewal(lifetime)

	b.logger.Debug("session restored", "identity", print.MaybePrettyJSON(identity))
	b.emit(ctx, ActivityEventBootstrapRestored, identity, map[string]any{
		"lifetime": lifetime.String(),
	})
}

// abort clears the in-memory session. The stored renewal credential is only
// dropped when the remote API rejected it; transient failures keep it for
// the next start.
func (b *Bootstrapper) abort(ctx context.Context, err error, rejected bool) {
	b.logger.Warn("bootstrap could not restore the session", "error", err)
	b.store.ClearAuth()

	if rejected {
		if clearErr := b.credentials.Clear(ctx); clearErr != nil {
			b.logger.Error("unable to clear renewal credential", "error", clearErr)
		}
	}

	b.emit(ctx, ActivityEventBootstrapAnonymous, nil, map[string]any{
		"error":    err.Error(),
		"rejected": rejected,
	})
}
