package auth

import (
	"net/http"

	"github.com/goliatone/go-router"
)

// IdentityKey is the router local holding the signed in *Identity on
// protected routes.
const IdentityKey = "current_user"

const loadingPage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><meta http-equiv="refresh" content="1"><title>Loading</title></head>
<body><p>Restoring your session...</p></body>
</html>`

// RouteGuards turns the session guards into router middleware.
type RouteGuards struct {
	store          *Store
	cfg            Config
	Logger         Logger
	LoadingHandler router.HandlerFunc
}

// NewRouteGuards binds the guards to the session store.
func NewRouteGuards(store *Store, cfg Config) *RouteGuards {
	if cfg == nil {
		cfg = DefaultOptions()
	}

	return &RouteGuards{
		store:          store,
		cfg:            cfg,
		Logger:         defLogger{},
		LoadingHandler: defaultLoadingHandler,
	}
}

// Protected admits authenticated identities. With roles, only those roles
// are admitted and everyone else is sent to their home area.
func (g *RouteGuards) Protected(roles ...Role) router.MiddlewareFunc {
	guard := ProtectedGuard{
		AllowedRoles: roles,
		SignInPath:   g.cfg.GetSignInPath(),
		ReturnParam:  g.cfg.GetReturnParam(),
	}

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			state := g.store.Snapshot()
			decision := guard.Decide(state, ctx.OriginalURL())

			if decision.Render() {
				ctx.Locals(IdentityKey, state.Identity)
				ctx.SetContext(WithIdentityContext(ctx.Context(), state.Identity))
			}

			return g.apply(ctx, decision, next)
		}
	}
}

// Guest admits only visitors that are not signed in.
func (g *RouteGuards) Guest() router.MiddlewareFunc {
	guard := GuestGuard{SignInPath: g.cfg.GetSignInPath()}

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			return g.apply(ctx, guard.Decide(g.store.Snapshot()), next)
		}
	}
}

func (g *RouteGuards) apply(ctx router.Context, decision Decision, next router.HandlerFunc) error {
	switch decision.Kind {
	case DecisionLoading:
		return g.LoadingHandler(ctx)
	case DecisionRedirect:
		g.Logger.Debug("guard redirect", "path", ctx.OriginalURL(), "target", decision.Target)
		return ctx.Redirect(decision.Target, redirectStatus(ctx))
	default:
		return next(ctx)
	}
}

// redirectStatus keeps GET as GET and turns form posts into a GET on the
// target.
func redirectStatus(ctx router.Context) int {
	if ctx.Method() == string(router.GET) {
		return http.StatusFound
	}
	return http.StatusSeeOther
}

func defaultLoadingHandler(ctx router.Context) error {
	ctx.SetHeader("Retry-After", "1")
	ctx.SetHeader("Content-Type", "text/html; charset=utf-8")
	return ctx.Status(http.StatusServiceUnavailable).SendString(loadingPage)
}
