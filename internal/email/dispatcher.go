package email

import (
	"context"
	"fmt"
	"time"

	"github.com/contactrelay/contactrelay/internal/logger"
	"github.com/contactrelay/contactrelay/internal/model"
	"github.com/contactrelay/contactrelay/internal/spool"
)

// Retry defaults.
const (
	DefaultAttempts  = 3
	DefaultBaseDelay = 1 * time.Second
)

// SendError is returned once every delivery attempt has failed.
type SendError struct {
	Attempts int
	Err      error
}

func (e *SendError) Error() string {
	if e.Attempts == 0 {
		return "Failed to send email: attachments could not be staged"
	}
	return fmt.Sprintf("Failed to send email after %d attempts", e.Attempts)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Backoff returns the wait after failed attempt n (1-based): base, 2*base, 4*base...
func Backoff(base time.Duration, n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return base << (n - 1)
}

// DispatcherConfig holds the dispatch policy.
type DispatcherConfig struct {
	Addresses Addresses
	// Attempts caps the number of deliveries tried. Zero means DefaultAttempts.
	Attempts int
	// BaseDelay is the first backoff wait. Zero means DefaultBaseDelay.
	BaseDelay time.Duration
	// AttemptTimeout bounds a single delivery. Zero disables it.
	AttemptTimeout time.Duration
	// SpoolDir is where attachments are staged during delivery.
	SpoolDir string
}

// Dispatcher stages attachments, builds the message and delivers it with
// bounded retry.
type Dispatcher struct {
	transport Transport
	cfg       DispatcherConfig
	log       *logger.Logger
	sleep     Sleeper
	now       func() time.Time
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(transport Transport, cfg DispatcherConfig, log *logger.Logger) *Dispatcher {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	return &Dispatcher{
		transport: transport,
		cfg:       cfg,
		log:       log.WithComponent("dispatcher"),
		sleep:     sleepWithContext,
		now:       time.Now,
	}
}

// WithSleeper replaces the backoff wait, used for testing.
func (d *Dispatcher) WithSleeper(s Sleeper) *Dispatcher {
	d.sleep = s
	return d
}

// Transport returns the configured delivery backend.
func (d *Dispatcher) Transport() Transport {
	return d.transport
}

// Send delivers msg. It blocks until delivery succeeds or every attempt has
// failed, in which case the error is a *SendError. Staged attachments are
// released before Send returns; a failed release is logged, never returned.
func (d *Dispatcher) Send(ctx context.Context, msg model.OutboundMessage) error {
	batch, err := spool.Stage(d.cfg.SpoolDir, msg.Attachments)
	if err != nil {
		return &SendError{Attempts: 0, Err: err}
	}
	defer func() {
		if err := batch.Release(); err != nil {
			d.log.Warn().Err(err).Str("dir", batch.Dir).Msg("failed to release spooled attachments")
		}
	}()

	env := Envelope{
		From: d.cfg.Addresses.From.Address,
		To:   []string{d.cfg.Addresses.To.Address},
	}

	var lastErr error
	for attempt := 1; attempt <= d.cfg.Attempts; attempt++ {
		lastErr = d.attempt(ctx, env, msg, batch.Paths)
		if lastErr == nil {
			if attempt > 1 {
				d.log.Info().Int("attempt", attempt).Msg("email sent after retry")
			}
			return nil
		}

		d.log.Warn().
			Err(lastErr).
			Int("attempt", attempt).
			Int("max_attempts", d.cfg.Attempts).
			Str("transport", d.transport.Name()).
			Msg("email send attempt failed")

		if attempt == d.cfg.Attempts {
			break
		}
		if err := d.sleep(ctx, Backoff(d.cfg.BaseDelay, attempt)); err != nil {
			return &SendError{Attempts: attempt, Err: fmt.Errorf("%w (retry aborted: %w)", lastErr, err)}
		}
	}

	return &SendError{Attempts: d.cfg.Attempts, Err: lastErr}
}

func (d *Dispatcher) attempt(ctx context.Context, env Envelope, msg model.OutboundMessage, paths []string) error {
	if d.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.AttemptTimeout)
		defer cancel()
	}

	raw, err := BuildMIME(d.cfg.Addresses, msg, paths, d.now())
	if err != nil {
		return err
	}
	env.Raw = raw

	return d.transport.Deliver(ctx, env)
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
