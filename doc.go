// Package auth keeps the operator session of a dashboard process alive
// without any server-side session storage.
//
// Session state:
//   - Store is the single source of truth for the current Identity, the
//     short-lived access credential and the authenticated, loading and
//     initialized flags. Every transition is atomic and observers receive a
//     copy of the complete post-state.
//   - The access credential lives only in memory. It is pushed into the
//     transport's CredentialSink whenever it changes.
//
// Renewal:
//   - The long-lived renewal credential is kept in a CredentialStore (see the
//     repository package for a durable bun backend).
//   - Scheduler arms exactly one timer that exchanges the renewal credential
//     shortly before the access credential expires, and re-arms itself on
//     success. A failed renewal ends the session.
//
// Bootstrap and guards:
//   - Bootstrapper runs once per process start, rehydrates the session from
//     the renewal credential and flips initialized exactly once.
//   - ProtectedGuard and GuestGuard turn a State into a render/redirect
//     Decision. RouteGuards exposes them as go-router middleware.
//
// Manager wires all of the above and owns the login, logout and
// transport-error flows.
package auth
