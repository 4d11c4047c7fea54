package certs

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultInterval = 60 * time.Second
	DefaultMaxAge   = 24 * time.Hour
)

type Resolver interface {
	Resolve(ctx context.Context) (netip.Addr, error)
}

type Issuer interface {
	Ping(ctx context.Context, token string, ip netip.Addr) (Credential, error)
}

type Store interface {
	Save(credential Credential) error
}

// State is what the last fully successful cycle registered. The zero value
// means nothing has been registered since the process started.
type State struct {
	Addr      netip.Addr
	UpdatedAt time.Time
}

func (s State) IsSet() bool {
	return s.Addr.IsValid()
}

// Warranted reports whether ip must be registered now.
func (s State) Warranted(ip netip.Addr, now time.Time, maxAge time.Duration) bool {
	if !s.IsSet() {
		return true
	}
	if ip != s.Addr {
		return true
	}

	return now.Sub(s.UpdatedAt) >= maxAge
}

type Outcome int

const (
	Skipped Outcome = iota
	Updated
)

type Updater struct {
	resolver Resolver
	issuer   Issuer
	store    Store
	token    string
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	state State
}

type Option func(*Updater)

// WithInterval sets the wait between the end of a cycle and the next one.
func WithInterval(interval time.Duration) Option {
	return func(u *Updater) { u.interval = interval }
}

// WithMaxAge sets how old a registration may get before it is renewed
// without an address change.
func WithMaxAge(maxAge time.Duration) Option {
	return func(u *Updater) { u.maxAge = maxAge }
}

func WithClock(now func() time.Time) Option {
	return func(u *Updater) { u.now = now }
}

func NewUpdater(resolver Resolver, issuer Issuer, store Store, token string, logger zerolog.Logger, opts ...Option) *Updater {
	u := &Updater{
		resolver: resolver,
		issuer:   issuer,
		store:    store,
		token:    token,
		interval: DefaultInterval,
		maxAge:   DefaultMaxAge,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(u)
	}

	return u
}

func (u *Updater) State() State {
	return u.state
}

// Run performs a cycle immediately, then waits the interval after each cycle
// ends. It returns the first fatal error, or ctx.Err() once ctx is done.
func (u *Updater) Run(ctx context.Context) error {
	for {
		if _, err := u.Tick(ctx); err != nil {
			var cycleErr *Error
			if errors.As(err, &cycleErr) && cycleErr.Fatal() {
				return err
			}
			u.logCycleError(err)
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		timer := time.NewTimer(u.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Tick runs one resolve, decide, contact, persist cycle. State only changes
// when every step succeeded.
func (u *Updater) Tick(ctx context.Context) (Outcome, error) {
	ip, err := u.resolver.Resolve(ctx)
	if err != nil {
		return Skipped, &Error{Kind: KindResolution, Err: err}
	}

	if !u.state.Warranted(ip, u.now(), u.maxAge) {
		return Skipped, nil
	}

	u.logger.Info().Str("ip", ip.String()).Msg("Updating")

	credential, err := u.issuer.Ping(ctx, u.token, ip)
	if err != nil {
		return Skipped, &Error{Kind: KindService, Err: err}
	}

	if err := u.store.Save(credential); err != nil {
		return Skipped, &Error{Kind: KindIO, Err: err}
	}

	u.state = State{Addr: ip, UpdatedAt: u.now()}
	u.logger.Info().Str("ip", ip.String()).Msg("Certificate updated")

	return Updated, nil
}

// statusError is satisfied by service errors carrying an HTTP response.
type statusError interface {
	error
	HTTPStatus() (int, string)
}

func (u *Updater) logCycleError(err error) {
	event := u.logger.Error().Err(err)

	var withStatus statusError
	if errors.As(err, &withStatus) {
		if code, body := withStatus.HTTPStatus(); code != 0 {
			event = event.Int("status", code).Str("body", body)
		}
	}

	var cycleErr *Error
	if errors.As(err, &cycleErr) && cycleErr.Kind == KindResolution {
		event.Msg("Could not determine local IP address")
		return
	}

	event.Msg("Error while talking to selfserv.net")
}
