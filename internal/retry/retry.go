// Package retry provides bounded retries with exponential backoff and
// a transient-vs-permanent error classification shared by the HTTP
// integrations and the backend gateway.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"
)

// Config configures retry behavior.
type Config struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int
	// InitialDelay is the delay after the first failure.
	InitialDelay time.Duration
	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration
	// Factor is the backoff multiplier.
	Factor float64
	// Jitter randomizes delays to avoid thundering herds.
	Jitter bool
}

// DefaultConfig returns the retry settings used for network calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Factor:       2.0,
		Jitter:       true,
	}
}

// Permanent marks an error as not worth retrying.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// MarkPermanent wraps err so Do stops immediately.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &Permanent{Err: err}
}

// IsPermanent reports whether err was marked permanent.
func IsPermanent(err error) bool {
	var p *Permanent
	return errors.As(err, &p)
}

// IsTransient reports whether err looks like a transient network
// failure (timeouts, temporary resolver errors, connection resets).
// HTTP status classification is the caller's job; this only inspects
// transport-level errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsPermanent(err) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && (dnsErr.IsTemporary || dnsErr.IsTimeout) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Do runs op until it succeeds, is marked permanent, exhausts the
// attempt budget, or ctx is cancelled. It returns the last error.
func Do(ctx context.Context, cfg Config, op func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 200 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.Factor <= 1 {
		cfg.Factor = 2.0
	}

	delay := cfg.InitialDelay
	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err = op(); err == nil {
			return nil
		}
		if IsPermanent(err) || attempt == cfg.MaxAttempts {
			break
		}

		sleep := delay
		if cfg.Jitter {
			sleep = delay/2 + time.Duration(rand.Int63n(int64(delay/2)+1))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		delay = time.Duration(float64(delay) * cfg.Factor)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return err
}
