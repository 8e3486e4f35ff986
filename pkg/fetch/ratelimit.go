package fetch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RequestPacer spaces request starts to the same host at least delay apart.
// A caller books the next free start time for its host before sleeping, so
// workers that arrive together leave one by one instead of waking at once.
type RequestPacer struct {
	delay time.Duration
	mu    sync.Mutex
	next  map[string]time.Time // host -> earliest start of the next request
	log   *logrus.Entry
}

// NewRequestPacer creates a pacer. A non-positive delay makes Wait a no-op.
func NewRequestPacer(delay time.Duration, log *logrus.Entry) *RequestPacer {
	return &RequestPacer{
		delay: delay,
		next:  make(map[string]time.Time),
		log:   log,
	}
}

// Wait blocks until the caller's turn to contact host. It returns ctx.Err()
// if ctx ends first; the booked turn is not given back.
func (p *RequestPacer) Wait(ctx context.Context, host string) error {
	if p.delay <= 0 {
		return nil
	}
	wait := time.Until(p.reserve(host, time.Now()))
	if wait <= 0 {
		return nil
	}
	p.log.WithFields(logrus.Fields{"host": host, "wait": wait}).Debug("Pacing request")

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reserve books the first start for host at or after now.
func (p *RequestPacer) reserve(host string, now time.Time) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := now
	if next, ok := p.next[host]; ok && next.After(now) {
		start = next
	}
	p.next[host] = start.Add(p.delay + jitter(p.delay))
	return start
}

// jitter returns a random extra of up to a tenth of d. It never shortens the
// spacing below d.
func jitter(d time.Duration) time.Duration {
	if tenth := int64(d / 10); tenth > 0 {
		return time.Duration(rand.Int63n(tenth))
	}
	return 0
}
