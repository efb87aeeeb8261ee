package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// jitterPercent is the percentage of jitter added to delays (+/- 25%).
const jitterPercent = 0.25

// Policy controls retry behavior for an operation.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultPolicy retries twice with exponential backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   2,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
}

// Do runs op, retrying on errors that retryable reports as transient.
// The final error is returned once retries are exhausted.
func Do(ctx context.Context, policy Policy, retryable func(error) bool, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt < policy.MaxRetries {
			if err := sleep(ctx, policy.backoff(attempt)); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", policy.MaxRetries+1, lastErr)
}

// backoff computes the delay for an attempt: exponential growth capped at
// MaxDelay, with jitter against thundering herds.
func (p Policy) backoff(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return addJitter(time.Duration(delay))
}

func addJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	jitter := (rand.Float64()*2 - 1) * jitterPercent * float64(d)
	return time.Duration(float64(d) + jitter)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
