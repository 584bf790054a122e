// Package lockout enforces brute-force protection: a per-identity counter of
// failed authentication attempts inside a lockout window.
package lockout

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/jrsteele09/school-auth/internal/errors"
)

const (
	DefaultMaxFailedAttempts = 5
	DefaultLockoutDuration   = 15 * time.Minute
)

// Record tracks failures for one identity key within the current window.
type Record struct {
	Key             string    `json:"key"`
	Count           int       `json:"count"`
	WindowStartedAt time.Time `json:"window_started_at"`
	LastFailureAt   time.Time `json:"last_failure_at"`
}

// Status is the outcome of a lockout check.
type Status struct {
	Allowed    bool
	Count      int
	RetryAfter time.Duration // zero while allowed
}

// Store is the shared counter storage. Implementations must make Increment
// atomic across every process sharing the store.
type Store interface {
	// Get returns apperrors.ErrNotFound when the key has no record.
	Get(ctx context.Context, key string) (*Record, error)

	// Increment adds one failure. When no record exists, or the existing window
	// started at or before now-window, a new window starting at now is opened.
	Increment(ctx context.Context, key string, now time.Time, window time.Duration) (*Record, error)

	// Delete removes the record unconditionally.
	Delete(ctx context.Context, key string) error

	// DeleteIfStartedBefore removes the record only if its window started at or
	// before cutoff, so a concurrent fresh window is not wiped.
	DeleteIfStartedBefore(ctx context.Context, key string, cutoff time.Time) error
}

// Policy applies the threshold and window to a Store.
type Policy struct {
	store           Store
	maxAttempts     int
	lockoutDuration time.Duration
	nowTime         func() time.Time
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithMaxAttempts sets the number of failures that locks an identity.
func WithMaxAttempts(max int) PolicyOption {
	return func(p *Policy) {
		if max > 0 {
			p.maxAttempts = max
		}
	}
}

// WithLockoutDuration sets the window length.
func WithLockoutDuration(d time.Duration) PolicyOption {
	return func(p *Policy) {
		if d > 0 {
			p.lockoutDuration = d
		}
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) PolicyOption {
	return func(p *Policy) {
		p.nowTime = nowFunc
	}
}

// NewPolicy creates a lockout policy over store.
func NewPolicy(store Store, options ...PolicyOption) (*Policy, error) {
	if store == nil {
		return nil, errors.New("[lockout.NewPolicy] store is required")
	}
	p := &Policy{
		store:           store,
		maxAttempts:     DefaultMaxFailedAttempts,
		lockoutDuration: DefaultLockoutDuration,
		nowTime:         time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

// MaxAttempts returns the configured threshold
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// Check reports whether the identity may attempt to authenticate. An elapsed
// window is discarded, implicitly unlocking the identity.
func (p *Policy) Check(ctx context.Context, key string) (Status, error) {
	if key == "" {
		return Status{}, apperrors.ErrMissingKey
	}
	rec, err := p.store.Get(ctx, key)
	if errors.Is(err, apperrors.ErrNotFound) {
		return Status{Allowed: true}, nil
	}
	if err != nil {
		return Status{}, apperrors.Wrapf(err, "[lockout.Check] get %s", key)
	}

	now := p.nowTime()
	windowEnd := rec.WindowStartedAt.Add(p.lockoutDuration)
	if !now.Before(windowEnd) {
		if err := p.store.DeleteIfStartedBefore(ctx, key, now.Add(-p.lockoutDuration)); err != nil {
			return Status{}, apperrors.Wrapf(err, "[lockout.Check] discard %s", key)
		}
		return Status{Allowed: true}, nil
	}
	return p.status(rec, now), nil
}

// RecordFailure counts one failed attempt and returns the resulting status.
func (p *Policy) RecordFailure(ctx context.Context, key string) (Status, error) {
	if key == "" {
		return Status{}, apperrors.ErrMissingKey
	}
	now := p.nowTime()
	rec, err := p.store.Increment(ctx, key, now, p.lockoutDuration)
	if err != nil {
		return Status{}, apperrors.Wrapf(err, "[lockout.RecordFailure] increment %s", key)
	}
	return p.status(rec, now), nil
}

// Reset clears the identity's failures, called after a successful login.
func (p *Policy) Reset(ctx context.Context, key string) error {
	if key == "" {
		return apperrors.ErrMissingKey
	}
	if err := p.store.Delete(ctx, key); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.Wrapf(err, "[lockout.Reset] delete %s", key)
	}
	return nil
}

func (p *Policy) status(rec *Record, now time.Time) Status {
	if rec.Count < p.maxAttempts {
		return Status{Allowed: true, Count: rec.Count}
	}
	retry := rec.WindowStartedAt.Add(p.lockoutDuration).Sub(now)
	if retry < 0 {
		retry = 0
	}
	return Status{Allowed: false, Count: rec.Count, RetryAfter: retry}
}
