package auth

import (
	"fmt"
	"net/http"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"golang.org/x/time/rate"
)

// RegisterSessionRoutes mounts sign in and sign out. The sign in routes are
// wrapped in the guest guard.
func RegisterSessionRoutes[T any](app router.Router[T], guards *RouteGuards, opts ...SessionControllerOption) *SessionController {
	controller := NewSessionController(opts...)

	guest := guards.Guest()

	app.Get(controller.Routes.Login, controller.LoginShow, guest).
		SetName("sign-in.get")

	app.Post(controller.Routes.Login, controller.LoginPost, guest).
		SetName("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut).SetName("sign-out.get")
	app.Post(controller.Routes.Logout, controller.LogOut).SetName("sign-out.post")

	return controller
}

type SessionControllerRoutes struct {
	Login  string
	Logout string
}

type SessionControllerViews struct {
	Login string
}

type SessionController struct {
	Debug        bool
	Logger       Logger
	Manager      *Manager
	Routes       *SessionControllerRoutes
	Views        *SessionControllerViews
	Limiter      *rate.Limiter
	ErrorHandler router.ErrorHandler
}

type SessionControllerOption func(*SessionController) *SessionController

// WithSessionManager sets the session manager. Required.
func WithSessionManager(m *Manager) SessionControllerOption {
	return func(c *SessionController) *SessionController {
		c.Manager = m
		if m != nil {
			c.Routes.Login = m.Config().GetSignInPath()
			c.Routes.Logout = m.Config().GetSignOutPath()
		}
		return c
	}
}

// WithSessionLogger sets the controller logger.
func WithSessionLogger(logger Logger) SessionControllerOption {
	return func(c *SessionController) *SessionController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithLoginLimiter throttles sign in attempts. Pass nil to disable.
func WithLoginLimiter(limiter *rate.Limiter) SessionControllerOption {
	return func(c *SessionController) *SessionController {
		c.Limiter = limiter
		return c
	}
}

// WithSessionViews overrides the template names.
func WithSessionViews(views SessionControllerViews) SessionControllerOption {
	return func(c *SessionController) *SessionController {
		if views.Login != "" {
			c.Views.Login = views.Login
		}
		return c
	}
}

// WithSessionDebug dumps sign in payloads.
func WithSessionDebug(debug bool) SessionControllerOption {
	return func(c *SessionController) *SessionController {
		c.Debug = debug
		return c
	}
}

func NewSessionController(opts ...SessionControllerOption) *SessionController {
	c := &SessionController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Limiter:      rate.NewLimiter(rate.Limit(1), 5),
		Routes: &SessionControllerRoutes{
			Login:  DefaultSignInPath,
			Logout: DefaultSignOutPath,
		},
		Views: &SessionControllerViews{
			Login: "login",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Manager == nil {
		panic("Missing Manager in session controller...")
	}

	return c
}

func (a *SessionController) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, a.loginView(ctx.Query(a.Manager.Config().GetReturnParam(), ""), router.ViewContext{
		"errors": nil,
		"record": nil,
	}))
}

// loginView adds the form target to data so the view never hardcodes the
// sign in path or the return parameter name.
func (a *SessionController) loginView(redirect string, data router.ViewContext) router.ViewContext {
	data["sign_in_path"] = a.Routes.Login
	data["return_param"] = a.Manager.Config().GetReturnParam()
	data["redirect"] = redirect
	return data
}

func (a *SessionController) LoginPost(ctx router.Context) error {
	payload := new(Credentials)
	redirect := ctx.Query(a.Manager.Config().GetReturnParam(), "")

	if a.Limiter != nil && !a.Limiter.Allow() {
		a.Logger.Warn("sign in throttled", "path", ctx.OriginalURL())
		return ctx.Status(http.StatusTooManyRequests).Render(a.Views.Login, a.loginView(redirect, router.ViewContext{
			"errors": map[string]string{"authentication": "Too many sign in attempts, try again shortly"},
		}))
	}

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("sign in parse payload", "error", err)
		return a.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryBadInput, "Failed to parse form").
			WithCode(errors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return ctx.Status(http.StatusBadRequest).Render(a.Views.Login, a.loginView(redirect, router.ViewContext{
			"record":     payload.public(),
			"validation": err.Error(),
		}))
	}

	if a.Debug {
		fmt.Println("======= SESSION SIGN IN ======")
		fmt.Println(print.MaybePrettyJSON(payload.public()))
		fmt.Println("==============================")
	}

	identity, err := a.Manager.Login(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		message := "Unable to sign in right now"
		status := http.StatusBadGateway
		if errors.Is(err, ErrInvalidCredentials) {
			message = "Invalid email or password"
			status = http.StatusUnauthorized
		}
		a.Logger.Info("sign in failed", "error", err)
		return ctx.Status(status).Render(a.Views.Login, a.loginView(redirect, router.ViewContext{
			"errors": map[string]string{"authentication": message},
			"record": payload.public(),
		}))
	}

	target, ok := SafeReturnTarget(redirect)
	if !ok {
		target = homeOrSignIn(identity.Role, a.Routes.Login)
	}

	a.Logger.Info("signed in", "user", identity.ID, "role", identity.Role, "redirect", target)

	return ctx.Redirect(target, http.StatusSeeOther)
}

func (a *SessionController) LogOut(ctx router.Context) error {
	a.Manager.Logout(ctx.Context())
	return ctx.Redirect(a.Routes.Login, http.StatusSeeOther)
}

// public drops the password before the payload reaches a template or a log.
func (c Credentials) public() Credentials {
	c.Password = ""
	return c
}

func defaultErrHandler(c router.Context, err error) error {
	status := http.StatusInternalServerError
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.Code > 0 {
		status = richErr.Code
	}
	return c.Status(status).Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
