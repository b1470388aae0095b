package auth_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/mock"
)

// MockClient implements auth.Client
type MockClient struct {
	mock.Mock
}

func (m *MockClient) ExchangeRenewalCredential(ctx context.Context, renewalCredential string) (auth.Renewal, error) {
	args := m.Called(ctx, renewalCredential)
	renewal, _ := args.Get(0).(auth.Renewal)
	return renewal, args.Error(1)
}

func (m *MockClient) FetchCurrentIdentity(ctx context.Context) (*auth.Identity, error) {
	args := m.Called(ctx)
	identity, _ := args.Get(0).(*auth.Identity)
	return identity, args.Error(1)
}

func (m *MockClient) Login(ctx context.Context, email, password string) (*auth.LoginResult, error) {
	args := m.Called(ctx, email, password)
	result, _ := args.Get(0).(*auth.LoginResult)
	return result, args.Error(1)
}

func (m *MockClient) Logout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// sinkSpy records what the store pushes to the transport slot.
type sinkSpy struct {
	mu     sync.Mutex
	token  string
	sets   []string
	clears int
}

func (s *sinkSpy) SetAccessCredential(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.sets = append(s.sets, token)
}

func (s *sinkSpy) ClearAccessCredential() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.clears++
}

func (s *sinkSpy) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *sinkSpy) Clears() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}

// manualClock fires timers only when Advance moves past their deadline.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Time
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) auth.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward and runs due callbacks synchronously, in
// deadline order.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fn()
	}
}

// Active returns the timers that are neither stopped nor fired.
func (c *manualClock) Active() []*manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// LastDelay returns the delay of the most recently armed timer.
func (c *manualClock) LastDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		return 0
	}
	return c.timers[len(c.timers)-1].delay
}

// logRecorder keeps every message logged at error level.
type logRecorder struct {
	mu     sync.Mutex
	errors []string
}

func (l *logRecorder) Debug(string, ...any) {}
func (l *logRecorder) Info(string, ...any)  {}
func (l *logRecorder) Warn(string, ...any)  {}

func (l *logRecorder) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *logRecorder) Errors() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.errors...)
}

// brokenClearStore fails every Clear.
type brokenClearStore struct {
	*auth.MemoryCredentialStore
}

func (s brokenClearStore) Clear(context.Context) error {
	return errors.New("disk full")
}

type activityRecorder struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (r *activityRecorder) Record(_ context.Context, event auth.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *activityRecorder) Types() []auth.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

// routerContext names the embedded field so it does not clash with the
// Context method.
type routerContext = router.Context

// fakeContext implements the parts of router.Context the session handlers
// touch. Anything else panics through the nil embedded interface.
type fakeContext struct {
	routerContext

	method  string
	url     string
	query   map[string]string
	bind    func(any) error
	ctx     context.Context
	locals  map[any]any
	headers map[string]string

	status         int
	body           string
	redirect       string
	redirectStatus int
	view           string
	viewData       any
	nextCalled     bool
}

var _ router.Context = (*fakeContext)(nil)

func newFakeContext(method, url string) *fakeContext {
	return &fakeContext{
		method:  method,
		url:     url,
		query:   map[string]string{},
		ctx:     context.Background(),
		locals:  map[any]any{},
		headers: map[string]string{},
	}
}

func (f *fakeContext) Method() string      { return f.method }
func (f *fakeContext) OriginalURL() string { return f.url }

func (f *fakeContext) Context() context.Context      { return f.ctx }
func (f *fakeContext) SetContext(ctx context.Context) { f.ctx = ctx }

func (f *fakeContext) Query(key string, defaultValue ...string) string {
	if v, ok := f.query[key]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (f *fakeContext) Bind(v any) error {
	if f.bind == nil {
		return nil
	}
	return f.bind(v)
}

func (f *fakeContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		f.locals[key] = value[0]
		return value[0]
	}
	return f.locals[key]
}

func (f *fakeContext) SetHeader(key, val string) router.Context {
	f.headers[key] = val
	return f
}

func (f *fakeContext) Status(code int) router.Context {
	f.status = code
	return f
}

func (f *fakeContext) SendString(s string) error {
	f.body = s
	return nil
}

func (f *fakeContext) Redirect(path string, status ...int) error {
	f.redirect = path
	if len(status) > 0 {
		f.redirectStatus = status[0]
	}
	return nil
}

func (f *fakeContext) Render(name string, bind any, layout ...string) error {
	f.view = name
	f.viewData = bind
	return nil
}

func (f *fakeContext) viewContext() router.ViewContext {
	vc, _ := f.viewData.(router.ViewContext)
	return vc
}

// nextHandler marks the fake context when the guarded handler runs.
func nextHandler(ctx router.Context) error {
	if f, ok := ctx.(*fakeContext); ok {
		f.nextCalled = true
	}
	return nil
}

func testIdentity(role auth.Role) *auth.Identity {
	org := "org-1"
	return &auth.Identity{
		ID:             "user-1",
		Email:          "operator@example.com",
		DisplayName:    "Operator",
		Role:           role,
		OrganizationID: &org,
		EmailVerified:  true,
		CreatedAt:      time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}
