package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Logger takes a message followed by alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Renewal is the result of exchanging a renewal credential.
type Renewal struct {
	AccessCredential string
	Lifetime         time.Duration
	// RenewalCredential is set only when the backend rotated it.
	RenewalCredential string
}

// LoginResult is what the remote API hands back after a successful sign in
// or registration.
type LoginResult struct {
	Identity          *Identity
	AccessCredential  string
	RenewalCredential string
	Lifetime          time.Duration
}

// RenewalExchanger trades a renewal credential for a fresh access credential.
type RenewalExchanger interface {
	ExchangeRenewalCredential(ctx context.Context, renewalCredential string) (Renewal, error)
}

// IdentityFetcher resolves the identity behind the access credential
// currently attached to outbound calls.
type IdentityFetcher interface {
	FetchCurrentIdentity(ctx context.Context) (*Identity, error)
}

// Client is the remote API surface the session lifecycle depends on.
type Client interface {
	RenewalExchanger
	IdentityFetcher
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Logout(ctx context.Context) error
}

// CredentialSink is the single mutable slot the transport reads on every
// outbound call to build the Authorization header.
type CredentialSink interface {
	SetAccessCredential(token string)
	ClearAccessCredential()
}

type noopSink struct{}

func (noopSink) SetAccessCredential(string) {}
func (noopSink) ClearAccessCredential()     {}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] AUTH " + render(msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] AUTH " + render(msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] AUTH " + render(msg, args...))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] AUTH " + render(msg, args...))
}

// render appends key/value pairs to msg. A trailing key without a value is
// printed as is.
func render(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		b.WriteByte(' ')
		if i+1 < len(args) {
			b.WriteString(fmt.Sprint(args[i]))
			b.WriteByte('=')
			b.WriteString(fmt.Sprint(args[i+1]))
		} else {
			b.WriteString(fmt.Sprint(args[i]))
		}
	}
	b.WriteByte('\n')
	return b.String()
}
