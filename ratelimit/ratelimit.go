package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	urlutil "github.com/attestkit/harvester/url"
	"golang.org/x/time/rate"
)

// Limiter enforces a minimum interval between fetches to the same host.
// State is shared by all workflows in the process; waiters on the same host
// are served in FIFO order.
type Limiter struct {
	rps float64

	mu    sync.Mutex
	hosts map[string]*hostLimiter
}

type hostLimiter struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// New creates a limiter allowing rps requests per second per host.
// rps <= 0 disables rate limiting unless a crawl delay applies.
func New(rps float64) *Limiter {
	return &Limiter{
		rps:   rps,
		hosts: make(map[string]*hostLimiter),
	}
}

// Wait blocks until a fetch to urlStr's host is permitted. The effective
// spacing is the larger of the configured interval and crawlDelay.
func (l *Limiter) Wait(ctx context.Context, urlStr string, crawlDelay time.Duration) error {
	interval := l.interval(crawlDelay)
	if interval <= 0 {
		return nil
	}

	host, err := urlutil.ExtractHost(urlStr)
	if err != nil {
		return fmt.Errorf("failed to extract host: %w", err)
	}

	return l.hostLimiter(host, interval).Wait(ctx)
}

func (l *Limiter) interval(crawlDelay time.Duration) time.Duration {
	var interval time.Duration
	if l.rps > 0 {
		interval = time.Duration(float64(time.Second) / l.rps)
	}
	if crawlDelay > interval {
		interval = crawlDelay
	}
	return interval
}

// hostLimiter returns the limiter for a host, creating it lazily and
// re-tuning it when a robots crawl-delay changes the required spacing.
func (l *Limiter) hostLimiter(host string, interval time.Duration) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	hl, ok := l.hosts[host]
	if !ok {
		hl = &hostLimiter{
			limiter:  rate.NewLimiter(rate.Every(interval), 1),
			interval: interval,
		}
		l.hosts[host] = hl
		return hl.limiter
	}

	if hl.interval != interval {
		hl.limiter.SetLimit(rate.Every(interval))
		hl.interval = interval
	}

	return hl.limiter
}
