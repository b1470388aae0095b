package auth

import (
	"net/url"
	"strings"
	"sync"
)

// DecisionKind is what a guard tells the caller to do.
type DecisionKind int

const (
	// DecisionLoading renders a placeholder: bootstrap has not finished.
	DecisionLoading DecisionKind = iota
	// DecisionRedirect navigates to Decision.Target and renders nothing.
	DecisionRedirect
	// DecisionRender renders the guarded content.
	DecisionRender
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionLoading:
		return "loading"
	case DecisionRedirect:
		return "redirect"
	case DecisionRender:
		return "render"
	default:
		return "unknown"
	}
}

// Decision is the outcome of evaluating a guard against a session state.
type Decision struct {
	Kind   DecisionKind
	Target string
}

// Loading reports whether the caller must render the placeholder only.
func (d Decision) Loading() bool { return d.Kind == DecisionLoading }

// Redirect reports whether the caller must navigate away.
func (d Decision) Redirect() bool { return d.Kind == DecisionRedirect }

// Render reports whether the guarded content may be rendered.
func (d Decision) Render() bool { return d.Kind == DecisionRender }

// ProtectedGuard admits authenticated identities, optionally restricted to
// AllowedRoles.
type ProtectedGuard struct {
	AllowedRoles []Role
	SignInPath   string
	ReturnParam  string
}

// Decide evaluates the guard. currentPath becomes the return target of the
// sign-in redirect.
func (g ProtectedGuard) Decide(state State, currentPath string) Decision {
	if !state.Initialized {
		return Decision{Kind: DecisionLoading}
	}

	if !state.Authenticated {
		return Decision{
			Kind:   DecisionRedirect,
			Target: SignInURL(stringOr(g.SignInPath, DefaultSignInPath), stringOr(g.ReturnParam, DefaultReturnParam), currentPath),
		}
	}

	if len(g.AllowedRoles) > 0 && !state.Role().In(g.AllowedRoles) {
		return Decision{
			Kind:   DecisionRedirect,
			Target: homeOrSignIn(state.Role(), g.SignInPath),
		}
	}

	return Decision{Kind: DecisionRender}
}

// GuestGuard admits only visitors that are not signed in, e.g. on the
// sign-in and registration pages.
type GuestGuard struct {
	SignInPath string
}

// Decide evaluates the guard.
func (g GuestGuard) Decide(state State) Decision {
	if !state.Initialized {
		return Decision{Kind: DecisionLoading}
	}

	if state.Authenticated {
		return Decision{
			Kind:   DecisionRedirect,
			Target: homeOrSignIn(state.Role(), g.SignInPath),
		}
	}

	return Decision{Kind: DecisionRender}
}

// SignInURL builds the sign-in location carrying currentPath as return
// target.
func SignInURL(signInPath, returnParam, currentPath string) string {
	if currentPath == "" || currentPath == signInPath {
		return signInPath
	}
	return signInPath + "?" + url.Values{returnParam: {currentPath}}.Encode()
}

// SafeReturnTarget accepts only site relative paths, so a return target can
// never send the browser to another host.
func SafeReturnTarget(raw string) (string, bool) {
	target := strings.TrimSpace(raw)
	if target == "" || !strings.HasPrefix(target, "/") {
		return "", false
	}
	if strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "", false
	}

	u, err := url.Parse(target)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "", false
	}
	return target, true
}

// Watch evaluates decide against the current state and again after every
// transition, calling fn only when the decision changes. The returned
// function stops watching.
func Watch(store *Store, decide func(State) Decision, fn func(Decision)) func() {
	var (
		mu   sync.Mutex
		last *Decision
	)

	evaluate := func(state State) {
		d := decide(state)

		mu.Lock()
		if last != nil && *last == d {
			mu.Unlock()
			return
		}
		last = &d
		mu.Unlock()

		fn(d)
	}

	return store.Observe(evaluate)
}

// homeOrSignIn sends an identity with an unknown role back to sign in
// rather than into a redirect loop.
func homeOrSignIn(role Role, signInPath string) string {
	if home, ok := role.HomeArea(); ok {
		return home
	}
	return stringOr(signInPath, DefaultSignInPath)
}
