package auth

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

const (
	// DefaultAccessLifetime is the lifetime the remote API gives access credentials
	DefaultAccessLifetime = 7 * 24 * time.Hour
	// DefaultRenewalLead renews this long before the access credential expires
	DefaultRenewalLead = 60 * time.Second
	// DefaultRenewalFloor is the shortest delay ever armed
	DefaultRenewalFloor = 30 * time.Second
	// DefaultRenewalTimeout bounds one background exchange
	DefaultRenewalTimeout = 30 * time.Second

	DefaultSignInPath  = "/login"
	DefaultSignOutPath = "/logout"
	DefaultReturnParam = "redirect"
)

// Config holds session options
type Config interface {
	GetAccessLifetime() time.Duration
	GetRenewalLead() time.Duration
	GetRenewalFloor() time.Duration
	GetRenewalTimeout() time.Duration
	GetSignInPath() string
	GetSignOutPath() string
	GetReturnParam() string
	GetRenewalCookie() RenewalCookie
}

var _ Config = Options{}

// Options is the plain struct implementation of Config.
type Options struct {
	AccessLifetime time.Duration `json:"access_lifetime"`
	RenewalLead    time.Duration `json:"renewal_lead"`
	RenewalFloor   time.Duration `json:"renewal_floor"`
	RenewalTimeout time.Duration `json:"renewal_timeout"`
	SignInPath     string        `json:"sign_in_path"`
	SignOutPath    string        `json:"sign_out_path"`
	ReturnParam    string        `json:"return_param"`
	RenewalCookie  RenewalCookie `json:"renewal_cookie"`
}

// DefaultOptions returns the deployment defaults: 7 day access credentials
// renewed a minute before expiry, never sooner than 30 seconds.
func DefaultOptions() Options {
	return Options{
		AccessLifetime: DefaultAccessLifetime,
		RenewalLead:    DefaultRenewalLead,
		RenewalFloor:   DefaultRenewalFloor,
		RenewalTimeout: DefaultRenewalTimeout,
		SignInPath:     DefaultSignInPath,
		SignOutPath:    DefaultSignOutPath,
		ReturnParam:    DefaultReturnParam,
		RenewalCookie:  DefaultRenewalCookie(),
	}
}

var sitePath = regexp.MustCompile(`^/($|[^/])`)

// Validate will run validation rules
func (o Options) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.AccessLifetime, validation.Required, validation.Min(int64(time.Second))),
		validation.Field(&o.RenewalFloor, validation.Required, validation.Min(int64(time.Second))),
		validation.Field(&o.RenewalLead, validation.Min(int64(0))),
		validation.Field(&o.SignInPath, validation.Required, validation.Match(sitePath)),
		validation.Field(&o.SignOutPath, validation.Required, validation.Match(sitePath)),
		validation.Field(&o.ReturnParam, validation.Required),
	)
}

func (o Options) GetAccessLifetime() time.Duration {
	return durationOr(o.AccessLifetime, DefaultAccessLifetime)
}

func (o Options) GetRenewalLead() time.Duration {
	if o.RenewalLead < 0 {
		return 0
	}
	return o.RenewalLead
}

func (o Options) GetRenewalFloor() time.Duration {
	return durationOr(o.RenewalFloor, DefaultRenewalFloor)
}

func (o Options) GetRenewalTimeout() time.Duration {
	return durationOr(o.RenewalTimeout, DefaultRenewalTimeout)
}

func (o Options) GetSignInPath() string {
	return stringOr(o.SignInPath, DefaultSignInPath)
}

func (o Options) GetSignOutPath() string {
	return stringOr(o.SignOutPath, DefaultSignOutPath)
}

func (o Options) GetReturnParam() string {
	return stringOr(o.ReturnParam, DefaultReturnParam)
}

func (o Options) GetRenewalCookie() RenewalCookie {
	if o.RenewalCookie.Name == "" {
		return DefaultRenewalCookie()
	}
	return o.RenewalCookie
}

func durationOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func stringOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
