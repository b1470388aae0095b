package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// SchedulerStatus is the state of the renewal timer.
type SchedulerStatus string

const (
	SchedulerIdle     SchedulerStatus = "idle"
	SchedulerArmed    SchedulerStatus = "armed"
	SchedulerFiring   SchedulerStatus = "firing"
	SchedulerDisarmed SchedulerStatus = "disarmed"
)

const renewalFlightKey = "renewal"

// RenewalDelay returns how long to wait before renewing a credential that
// expires in lifetime: lead before expiry, but never sooner than floor.
func RenewalDelay(lifetime, lead, floor time.Duration) time.Duration {
	delay := lifetime - lead
	if delay < floor {
		return floor
	}
	return delay
}

// Scheduler keeps the access credential fresh with a single pending timer.
// Each arm bumps a generation; callbacks and exchange results belonging to
// an older generation are dropped.
type Scheduler struct {
	activityEmitter
	store       *Store
	credentials CredentialStore
	exchanger   RenewalExchanger
	clock       Clock
	lifetime    time.Duration
	lead        time.Duration
	floor       time.Duration
	timeout     time.Duration

	// installMu serializes installing a renewal result against Disarm, so a
	// logout never interleaves with a token install.
	installMu  sync.Mutex
	mu         sync.Mutex
	timer      Timer
	generation uint64
	status     SchedulerStatus
	nextAt     time.Time
	stopped    bool

	flight singleflight.Group
}

// SchedulerOption customizes scheduler construction.
type SchedulerOption func(*Scheduler)

// WithSchedulerClock injects a custom clock (useful for tests).
func WithSchedulerClock(clock Clock) SchedulerOption {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
			s.now = clock.Now
		}
	}
}

// WithSchedulerLogger overrides the scheduler logger.
func WithSchedulerLogger(logger Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSchedulerActivitySink sets the ActivitySink used to publish renewal events.
func WithSchedulerActivitySink(sink ActivitySink) SchedulerOption {
	return func(s *Scheduler) {
		s.sink = normalizeActivitySink(sink)
	}
}

// WithSchedulerConfig reads lifetime, lead, floor and timeout from cfg.
func WithSchedulerConfig(cfg Config) SchedulerOption {
	return func(s *Scheduler) {
		if cfg == nil {
			return
		}
		s.lifetime = cfg.GetAccessLifetime()
		s.lead = cfg.GetRenewalLead()
		s.floor = cfg.GetRenewalFloor()
		s.timeout = cfg.GetRenewalTimeout()
	}
}

// NewScheduler returns an idle scheduler.
func NewScheduler(store *Store, credentials CredentialStore, exchanger RenewalExchanger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		activityEmitter: newActivityEmitter(),
		store:           store,
		credentials:     credentials,
		exchanger:       exchanger,
		clock:           systemClock{},
		lifetime:        DefaultAccessLifetime,
		lead:            DefaultRenewalLead,
		floor:           DefaultRenewalFloor,
		timeout:         DefaultRenewalTimeout,
		status:          SchedulerIdle,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// ScheduleRenewal cancels any pending timer and arms a new one for a
// credential that expires in lifetime.
func (s *Scheduler) ScheduleRenewal(lifetime time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	s.cancelLocked()
	s.generation++
	gen := s.generation

	delay := RenewalDelay(lifetime, s.lead, s.floor)
	s.status = SchedulerArmed
	s.nextAt = s.clock.Now().Add(delay)
	s.timer = s.clock.AfterFunc(delay, func() {
		s.fire(gen)
	})

	s.logger.Debug("renewal scheduled", "delay", delay, "lifetime", lifetime)
}

// Disarm cancels the pending timer and invalidates any renewal in flight.
// The scheduler can be armed again afterwards.
func (s *Scheduler) Disarm() {
	s.installMu.Lock()
	defer s.installMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	s.generation++
	s.status = SchedulerDisarmed
}

// Stop disarms the scheduler for good. Call it when the session owner goes
// away.
func (s *Scheduler) Stop() {
	s.installMu.Lock()
	defer s.installMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	s.generation++
	s.status = SchedulerDisarmed
	s.stopped = true
}

// Pending reports whether a timer is armed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Status returns the current scheduler state.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// NextRenewal returns when the pending timer fires, or the zero time.
func (s *Scheduler) NextRenewal() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextAt
}

// RenewNow cancels the pending timer and renews immediately. Concurrent
// renewals share a single exchange.
func (s *Scheduler) RenewNow(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return wrapWith(ErrRenewalFailed, fmt.Errorf("scheduler stopped"))
	}
	s.cancelLocked()
	s.status = SchedulerFiring
	gen := s.generation
	s.mu.Unlock()

	return s.renew(ctx, gen)
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.stopped || gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.nextAt = time.Time{}
	s.status = SchedulerFiring
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.renew(ctx, gen); err != nil {
		s.logger.Info("background renewal ended the session", "error", err)
	}
}

func (s *Scheduler) renew(ctx context.Context, gen uint64) error {
	epoch := s.store.Epoch()

	credential, ok, err := s.credentials.Get(ctx)
	if err != nil {
		return s.fail(ctx, gen, err)
	}

	if !ok {
		s.settle(gen, SchedulerDisarmed)
		s.logger.Debug("renewal skipped, no renewal credential stored")
		return ErrNoRenewalCredential
	}

	result, err, shared := s.flight.Do(renewalFlightKey, func() (any, error) {
		return s.exchanger.ExchangeRenewalCredential(ctx, credential)
	})
	if err != nil {
		return s.fail(ctx, gen, err)
	}

	renewal, _ := result.(Renewal)
	if renewal.AccessCredential == "" {
		return s.fail(ctx, gen, fmt.Errorf("exchange returned an empty access credential"))
	}

	if shared {
		s.logger.Debug("renewal exchange shared with a concurrent caller")
	}

	return s.install(ctx, gen, epoch, credential, renewal)
}

func (s *Scheduler) install(ctx context.Context, gen, epoch uint64, credential string, renewal Renewal) error {
	s.installMu.Lock()
	defer s.installMu.Unlock()

	if !s.current(gen) {
		s.discard(ctx, "scheduler was re-armed or disarmed")
		return nil
	}

	stored, ok, err := s.credentials.Get(ctx)
	if err != nil || !ok || stored != credential {
		s.settle(gen, SchedulerDisarmed)
		s.discard(ctx, "renewal credential changed or was cleared")
		return nil
	}

	if !s.store.UpdateTokenIfEpoch(epoch, renewal.AccessCredential) {
		s.settle(gen, SchedulerDisarmed)
		s.discard(ctx, "session changed while renewing")
		return nil
	}

	if renewal.RenewalCredential != "" && renewal.RenewalCredential != credential {
		if err := s.credentials.Set(ctx, renewal.RenewalCredential); err != nil {
			s.logger.Warn("unable to persist rotated renewal credential", "error", err)
		}
	}

	lifetime := renewal.Lifetime
	if lifetime <= 0 {
		lifetime = s.lifetime
	}
	s.ScheduleRenewal(lifetime)

	snapshot := s.store.Snapshot()
	s.emit(ctx, ActivityEventRenewalSuccess, snapshot.Identity, map[string]any{
		"lifetime": lifetime.String(),
	})
	return nil
}

// fail ends the session: no retry, the renewal credential is dropped.
func (s *Scheduler) fail(ctx context.Context, gen uint64, cause error) error {
	err := wrapWith(ErrRenewalFailed, cause)

	s.installMu.Lock()
	defer s.installMu.Unlock()

	if !s.current(gen) {
		s.logger.Debug("stale renewal failure ignored", "error", cause)
		return err
	}

	s.settle(gen, SchedulerDisarmed)

	identity := s.store.Snapshot().Identity
	s.store.ClearAuth()
	if clearErr := s.credentials.Clear(ctx); clearErr != nil {
		s.logger.Error("unable to clear renewal credential", "error", clearErr)
	}

	s.logger.Warn("renewal failed, session cleared", "error", cause)
	s.emit(ctx, ActivityEventRenewalFailure, identity, map[string]any{
		"error": cause.Error(),
	})
	return err
}

func (s *Scheduler) discard(ctx context.Context, reason string) {
	s.logger.Info("renewal result discarded", "reason", reason)
	s.emit(ctx, ActivityEventRenewalDiscarded, nil, map[string]any{
		"reason": reason,
	})
}

func (s *Scheduler) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped && gen == s.generation
}

func (s *Scheduler) settle(gen uint64, status SchedulerStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.generation && !s.stopped {
		s.status = status
	}
}

func (s *Scheduler) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.nextAt = time.Time{}
}
