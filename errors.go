package auth

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeUnauthenticated     = "SESSION_UNAUTHENTICATED"
	TextCodeForbiddenRole       = "SESSION_FORBIDDEN_ROLE"
	TextCodeRenewalFailed       = "SESSION_RENEWAL_FAILED"
	TextCodeIdentityFetchFailed = "SESSION_IDENTITY_FETCH_FAILED"
	TextCodeInvalidCredentials  = "SESSION_INVALID_CREDENTIALS"
	TextCodeInvalidSession      = "SESSION_INVALID_STATE"
	TextCodeNoRenewalCredential = "SESSION_NO_RENEWAL_CREDENTIAL"
	TextCodeTransportFailure    = "SESSION_TRANSPORT_FAILURE"
	TextCodeIdentityNotFound    = "SESSION_IDENTITY_NOT_FOUND"
)

// ErrUnauthenticated is returned when the remote API rejects the credential
// presented on a call.
var ErrUnauthenticated = errors.New("session is not authenticated", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(errors.CodeUnauthorized)

// ErrForbiddenRole is returned when an identity reaches an area its role does
// not grant.
var ErrForbiddenRole = errors.New("role not allowed for this area", errors.CategoryAuthz).
	WithTextCode(TextCodeForbiddenRole).
	WithCode(errors.CodeForbidden)

// ErrRenewalFailed wraps any failure to exchange the renewal credential.
var ErrRenewalFailed = errors.New("access credential renewal failed", errors.CategoryAuth).
	WithTextCode(TextCodeRenewalFailed).
	WithCode(errors.CodeUnauthorized)

// ErrIdentityFetchFailed wraps failures resolving the current identity.
var ErrIdentityFetchFailed = errors.New("unable to fetch current identity", errors.CategoryAuth).
	WithTextCode(TextCodeIdentityFetchFailed).
	WithCode(errors.CodeUnauthorized)

// ErrIdentityNotFound is returned when the remote API answers without an identity.
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithTextCode(TextCodeIdentityNotFound).
	WithCode(errors.CodeNotFound)

// ErrInvalidCredentials is returned when sign in is rejected.
var ErrInvalidCredentials = errors.New("invalid email or password", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidSession is returned when a transition would break the
// authenticated invariant, e.g. SetAuth without an identity.
var ErrInvalidSession = errors.New("identity and access credential are both required", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidSession).
	WithCode(errors.CodeBadRequest)

// ErrNoRenewalCredential is returned when a renewal runs with nothing stored.
var ErrNoRenewalCredential = errors.New("no renewal credential stored", errors.CategoryAuth).
	WithTextCode(TextCodeNoRenewalCredential).
	WithCode(errors.CodeUnauthorized)

// ErrTransportFailure is the base error for calls that never got a usable
// answer from the remote API.
var ErrTransportFailure = errors.New("remote call failed", errors.CategoryOperation).
	WithTextCode(TextCodeTransportFailure).
	WithCode(errors.CodeInternal)

// IsUnauthenticated reports whether err means the remote API rejected the
// presented credential.
func IsUnauthenticated(err error) bool {
	return HasTextCode(err, TextCodeUnauthenticated)
}

// HasTextCode reports whether err or anything it wraps carries the text code.
func HasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) {
		if richErr.TextCode == code {
			return true
		}
		if richErr.Source != nil && richErr.Source != err {
			return HasTextCode(richErr.Source, code)
		}
	}
	return false
}

// wrapWith clones base and attaches cause as its source, keeping the base
// text code so HasTextCode keeps working up the chain.
func wrapWith(base *errors.Error, cause error) *errors.Error {
	clone := base.Clone()
	if clone == nil {
		return base
	}
	if cause != nil {
		clone.Source = cause
		clone.WithMetadata(map[string]any{"cause": cause.Error()})
	}
	return clone
}
