package main

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	auth "github.com/goliatone/go-dashboard-auth"
	"github.com/goliatone/go-dashboard-auth/cmd/dashboard/config"
	"github.com/goliatone/go-dashboard-auth/metrics"
	"github.com/goliatone/go-dashboard-auth/repository"
	"github.com/goliatone/go-dashboard-auth/transport"
	gconfig "github.com/goliatone/go-config/config"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/time/rate"
)

//go:embed views
var viewsFS embed.FS

type App struct {
	config      *gconfig.Container[*config.BaseConfig]
	bunDB       *bun.DB
	redis       *redis.Client
	repo        repository.Manager
	credentials auth.CredentialStore
	client      *transport.Client
	session     *auth.Manager
	guards      *auth.RouteGuards
	metrics     *metrics.Collector
	metricsSrv  *http.Server
	srv         router.Server[*fiber.App]
	logger      *glog.BaseLogger
}

func (a *App) Config() *config.BaseConfig {
	return a.config.Raw()
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Trace),
		glog.WithName("dashboard"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	cfg := gconfig.New(&config.BaseConfig{}).
		WithLogger(lgr.GetLogger("config"))

	ctx := context.Background()
	if err := cfg.Load(ctx); err != nil {
		panic(err)
	}

	if cfg.Raw().Debug {
		fmt.Println("============")
		fmt.Println(print.MaybePrettyJSON(cfg.Raw()))
		fmt.Println("============")
	}

	app := &App{
		config: cfg,
		logger: lgr,
	}

	if err := WithPersistence(ctx, app); err != nil {
		panic(err)
	}

	app.metrics = metrics.New()

	if err := WithSession(ctx, app); err != nil {
		panic(err)
	}

	if err := WithHTTPServer(ctx, app); err != nil {
		panic(err)
	}

	SessionRoutes(app)
	DashboardRoutes(app)

	if err := WithMetricsServer(ctx, app); err != nil {
		panic(err)
	}

	// pages answer with the loading placeholder until this finishes
	go app.session.Bootstrap(ctx)

	app.srv.Serve(app.Config().Server.Address)

	sig := WaitExitSignal()
	app.GetLogger("app").Info("shutting down", "signal", sig.String())

	if err := app.session.Close(); err != nil {
		app.GetLogger("app").Error("session close", "error", err)
	}
	if app.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := app.metricsSrv.Shutdown(shutdownCtx); err != nil {
			app.GetLogger("app").Error("metrics shutdown", "error", err)
		}
		cancel()
	}
	if app.bunDB != nil {
		if err := app.bunDB.Close(); err != nil {
			app.GetLogger("app").Error("database close", "error", err)
		}
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.GetLogger("app").Error("redis close", "error", err)
		}
	}
}

func WithPersistence(ctx context.Context, app *App) error {
	persistence := app.Config().Persistence
	cookie := app.Config().Session.Options().GetRenewalCookie()

	switch persistence.GetDriver() {
	case config.DriverRedis:
		app.redis = redis.NewClient(&redis.Options{Addr: persistence.RedisAddr})
		store := repository.NewRedisCredentialRepository(app.redis, persistence.RedisPrefix, cookie)
		if err := store.Ping(ctx); err != nil {
			return errors.Wrap(err, errors.CategoryExternal, "redis unreachable").
				WithMetadata(map[string]any{"addr": persistence.RedisAddr})
		}
		app.credentials = store
		return nil
	default:
		db, err := sql.Open(sqliteshim.ShimName, persistence.DSN)
		if err != nil {
			return err
		}

		app.bunDB = bun.NewDB(db, sqlitedialect.New())

		app.repo = repository.NewRepositoryManager(app.bunDB, cookie)
		app.repo.MustValidate()
		app.credentials = app.repo.Credentials()

		if err := app.repo.Migrate(ctx); err != nil {
			return err
		}

		purged, err := app.repo.Credentials().Purge(ctx)
		if err != nil {
			return err
		}
		if purged > 0 {
			app.GetLogger("persistence").Info("purged expired renewal credentials", "count", purged)
		}
		return nil
	}
}

func WithSession(ctx context.Context, app *App) error {
	opts := app.Config().Session.Options()
	if err := opts.Validate(); err != nil {
		return err
	}

	app.client = transport.New(transport.Config{
		BaseURL: app.Config().API.BaseURL,
		Timeout: app.Config().API.GetTimeout(),
		Logger:  app.GetLogger("transport"),
	})

	activity := app.GetLogger("activity")

	app.session = auth.NewManager(app.client, app.credentials, opts,
		auth.WithManagerLogger(app.GetLogger("session")),
		auth.WithManagerActivitySink(auth.MultiActivitySink{
			auth.ActivitySinkFunc(func(ctx context.Context, event auth.ActivityEvent) error {
				activity.Info("session event",
					"event", event.EventType,
					"user_id", event.UserID,
					"role", event.Role,
					"metadata", print.MaybePrettyJSON(event.Metadata),
				)
				return nil
			}),
			app.metrics,
		}),
	)
	app.metrics.Observe(app.session.Store())

	app.client.OnUnauthorized(app.session.HandleUnauthorized)

	app.guards = auth.NewRouteGuards(app.session.Store(), opts)
	app.guards.Logger = app.GetLogger("guards")

	return nil
}

func WithHTTPServer(ctx context.Context, app *App) error {
	views, err := fs.Sub(viewsFS, "views")
	if err != nil {
		return err
	}

	engine := django.NewFileSystem(http.FS(views), ".html")
	engine.Reload(app.Config().Debug)

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			StrictRouting:     false,
			PassLocalsToViews: true,
			Views:             engine,
		}))
	})

	srv.Router().WithLogger(app.GetLogger("router"))

	app.srv = srv
	return nil
}

// WithMetricsServer exposes the session metrics on their own listener so
// they stay off the public dashboard address.
func WithMetricsServer(ctx context.Context, app *App) error {
	cfg := app.Config().Metrics
	if !cfg.Enabled() {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.GetPath(), app.metrics.Handler())

	app.metricsSrv = &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lgr := app.GetLogger("metrics")
	go func() {
		lgr.Info("metrics listening", "address", cfg.Address, "path", cfg.GetPath())
		if err := app.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lgr.Error("metrics server", "error", err)
		}
	}()

	return nil
}

func SessionRoutes(app *App) {
	sessionCfg := app.Config().Session

	limiter := rate.NewLimiter(rate.Limit(1), 5)
	if sessionCfg.LoginRatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(sessionCfg.LoginRatePerSecond), max(sessionCfg.LoginBurst, 1))
	}

	auth.RegisterSessionRoutes(app.srv.Router(), app.guards,
		auth.WithSessionManager(app.session),
		auth.WithSessionLogger(app.GetLogger("session:ctrl")),
		auth.WithLoginLimiter(limiter),
		auth.WithSessionDebug(app.Config().Debug),
	)
}

func DashboardRoutes(app *App) {
	r := app.srv.Router()
	g := app.guards

	r.Get("/", HomeRedirect(app), g.Protected())

	r.Get(auth.HomeAdmin, Page(app, "Administration"), g.Protected(auth.RoleAdmin))
	r.Get(auth.HomeRegulator, Page(app, "Regulator"), g.Protected(auth.RoleRegulator))
	r.Get(auth.HomeDashboard, Page(app, "Dashboard"),
		g.Protected(auth.RoleStartup, auth.RoleEnterprise, auth.RoleFintechUser))
}

// HomeRedirect sends a signed in identity to the home area of its role.
func HomeRedirect(app *App) router.HandlerFunc {
	return func(ctx router.Context) error {
		identity, ok := auth.IdentityFromRouter(ctx)
		if !ok {
			return ctx.Redirect(app.session.Config().GetSignInPath(), http.StatusFound)
		}

		home, ok := identity.HomeArea()
		if !ok {
			return ctx.Redirect(app.session.Config().GetSignInPath(), http.StatusFound)
		}
		return ctx.Redirect(home, http.StatusFound)
	}
}

func Page(app *App, title string) router.HandlerFunc {
	return func(ctx router.Context) error {
		identity, _ := auth.IdentityFromRouter(ctx)

		next := "-"
		if at := app.session.Scheduler().NextRenewal(); !at.IsZero() {
			next = at.Format(time.RFC1123)
		}

		return ctx.Render("page", router.ViewContext{
			"title":        title,
			"identity":     identity,
			"next_renewal": next,
		})
	}
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
