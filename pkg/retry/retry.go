package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTransient marks failures worth retrying: rate limits and network blips.
// Backend clients wrap such errors with Transient so one policy can be
// applied uniformly at every call site.
var ErrTransient = errors.New("transient backend failure")

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

// IsTransient reports whether err was marked retryable.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Policy retries an operation with exponential backoff. The base delay
// doubles per attempt up to MaxDelay; non-retryable errors propagate
// immediately.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Retryable   func(error) bool
}

// DefaultPolicy matches the backend-call budget used across the pipeline.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
	}
}

// Do runs op, retrying per the policy. It returns the last error when
// attempts are exhausted, and the context error if ctx ends while waiting.
func (p Policy) Do(ctx context.Context, op func() error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var err error
	delay := p.BaseDelay
	for attempt := 1; ; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if !retryable(err) || attempt >= p.MaxAttempts {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}
