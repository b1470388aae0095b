package config

import (
	"fmt"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	auth "github.com/goliatone/go-dashboard-auth"
)

// BaseConfig is the dashboard configuration root.
type BaseConfig struct {
	Name        string      `koanf:"name" json:"name"`
	Debug       bool        `koanf:"debug" json:"debug"`
	Server      Server      `koanf:"server" json:"server"`
	API         API         `koanf:"api" json:"api"`
	Session     Session     `koanf:"session" json:"session"`
	Persistence Persistence `koanf:"persistence" json:"persistence"`
	Metrics     Metrics     `koanf:"metrics" json:"metrics"`
}

type Server struct {
	Address string `koanf:"address" json:"address"`
}

type API struct {
	BaseURL           string `koanf:"base_url" json:"base_url"`
	TimeoutExpression string `koanf:"timeout" json:"timeout"`
}

type Session struct {
	AccessLifetimeExpression string  `koanf:"access_lifetime" json:"access_lifetime"`
	RenewalLeadExpression    string  `koanf:"renewal_lead" json:"renewal_lead"`
	RenewalFloorExpression   string  `koanf:"renewal_floor" json:"renewal_floor"`
	RenewalTimeoutExpression string  `koanf:"renewal_timeout" json:"renewal_timeout"`
	SignInPath               string  `koanf:"sign_in_path" json:"sign_in_path"`
	SignOutPath              string  `koanf:"sign_out_path" json:"sign_out_path"`
	ReturnParam              string  `koanf:"return_param" json:"return_param"`
	CookieName               string  `koanf:"cookie_name" json:"cookie_name"`
	CookieMaxAgeExpression   string  `koanf:"cookie_max_age" json:"cookie_max_age"`
	LoginRatePerSecond       float64 `koanf:"login_rate" json:"login_rate"`
	LoginBurst               int     `koanf:"login_burst" json:"login_burst"`
}

const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

type Persistence struct {
	Driver      string `koanf:"driver" json:"driver"`
	DSN         string `koanf:"dsn" json:"dsn"`
	RedisAddr   string `koanf:"redis_addr" json:"redis_addr"`
	RedisPrefix string `koanf:"redis_prefix" json:"redis_prefix"`
}

// Metrics configures the Prometheus listener. An empty address disables it.
type Metrics struct {
	Address string `koanf:"address" json:"address"`
	Path    string `koanf:"path" json:"path"`
}

func (a BaseConfig) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Server),
		validation.Field(&a.API),
		validation.Field(&a.Persistence),
		validation.Field(&a.Session),
		validation.Field(&a.Metrics),
	)
}

func (s Server) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Address, validation.Required),
	)
}

func (a API) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.BaseURL, validation.Required, is.URL),
		validation.Field(&a.TimeoutExpression, validation.By(isDuration)),
	)
}

func (p Persistence) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Driver, validation.In(DriverSQLite, DriverRedis)),
		validation.Field(&p.DSN, validation.By(requiredFor(p.GetDriver() == DriverSQLite))),
		validation.Field(&p.RedisAddr, validation.By(requiredFor(p.GetDriver() == DriverRedis))),
	)
}

func (m Metrics) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Path, validation.Match(pathPattern)),
	)
}

// GetDriver defaults to sqlite.
func (p Persistence) GetDriver() string {
	if p.Driver == "" {
		return DriverSQLite
	}
	return p.Driver
}

func (m Metrics) Enabled() bool {
	return m.Address != ""
}

func (m Metrics) GetPath() string {
	if m.Path == "" {
		return "/metrics"
	}
	return m.Path
}

func (s Session) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.AccessLifetimeExpression, validation.By(isDuration)),
		validation.Field(&s.RenewalLeadExpression, validation.By(isDuration)),
		validation.Field(&s.RenewalFloorExpression, validation.By(isDuration)),
		validation.Field(&s.RenewalTimeoutExpression, validation.By(isDuration)),
		validation.Field(&s.CookieMaxAgeExpression, validation.By(isDuration)),
		validation.Field(&s.LoginRatePerSecond, validation.Min(0.0)),
		validation.Field(&s.LoginBurst, validation.Min(0)),
	)
}

func (a API) GetTimeout() time.Duration {
	return parseDuration(a.TimeoutExpression, 15*time.Second)
}

// Options builds the session options, keeping defaults for anything unset.
func (s Session) Options() auth.Options {
	opts := auth.DefaultOptions()
	opts.AccessLifetime = parseDuration(s.AccessLifetimeExpression, opts.AccessLifetime)
	opts.RenewalLead = parseDuration(s.RenewalLeadExpression, opts.RenewalLead)
	opts.RenewalFloor = parseDuration(s.RenewalFloorExpression, opts.RenewalFloor)
	opts.RenewalTimeout = parseDuration(s.RenewalTimeoutExpression, opts.RenewalTimeout)

	if s.SignInPath != "" {
		opts.SignInPath = s.SignInPath
	}
	if s.SignOutPath != "" {
		opts.SignOutPath = s.SignOutPath
	}
	if s.ReturnParam != "" {
		opts.ReturnParam = s.ReturnParam
	}
	if s.CookieName != "" {
		opts.RenewalCookie.Name = s.CookieName
	}
	opts.RenewalCookie.MaxAge = parseDuration(s.CookieMaxAgeExpression, opts.RenewalCookie.MaxAge)

	return opts
}

func requiredFor(active bool) validation.RuleFunc {
	return func(value any) error {
		if !active {
			return nil
		}
		return validation.Validate(value, validation.Required)
	}
}

var pathPattern = regexp.MustCompile(`^/[A-Za-z0-9/_-]*$`)

func isDuration(value any) error {
	expr, _ := value.(string)
	if expr == "" {
		return nil
	}
	if _, err := time.ParseDuration(expr); err != nil {
		return fmt.Errorf("invalid duration %q", expr)
	}
	return nil
}

func parseDuration(expr string, def time.Duration) time.Duration {
	if expr == "" {
		return def
	}
	dur, err := time.ParseDuration(expr)
	if err != nil {
		panic(
			fmt.Sprintf("unable to parse time: expr %s", expr),
		)
	}
	return dur
}
