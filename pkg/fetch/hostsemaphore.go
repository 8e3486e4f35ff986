package fetch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"wallpaper-scraper/pkg/utils"
)

// hostSlots is the semaphore of one host plus what eviction needs to know.
type hostSlots struct {
	sem      *semaphore.Weighted
	limit    int64
	users    int64     // holders and waiters
	lastUsed time.Time // zero until the first release
}

// HostSemaphorePool caps simultaneous item work per host. Item pages and
// download triggers hit the site itself while images may come from a CDN, so
// each host can carry its own cap. Hosts with no cap pass straight through.
type HostSemaphorePool struct {
	defaultLimit int64
	perHost      map[string]int64
	mu           sync.Mutex
	slots        map[string]*hostSlots
	log          *logrus.Entry
}

// NewHostSemaphorePool creates a pool. defaultLimit applies to every host
// without an entry in perHost; zero leaves such hosts unlimited. A perHost key
// also covers its subdomains and they share its slots, so "wallpapercave.com"
// caps the site and "static.wallpapercave.com" together unless the subdomain
// has an entry of its own.
func NewHostSemaphorePool(defaultLimit int, perHost map[string]int, log *logrus.Entry) *HostSemaphorePool {
	p := &HostSemaphorePool{
		perHost: make(map[string]int64, len(perHost)),
		slots:   make(map[string]*hostSlots),
		log:     log,
	}
	if defaultLimit > 0 {
		p.defaultLimit = int64(defaultLimit)
	}
	for host, limit := range perHost {
		host = strings.ToLower(strings.TrimSpace(host))
		if host == "" || limit <= 0 {
			log.Warnf("Ignoring host limit %q=%d", host, limit)
			continue
		}
		p.perHost[host] = int64(limit)
	}
	return p
}

// Enabled reports whether any host is capped at all.
func (p *HostSemaphorePool) Enabled() bool {
	return p.defaultLimit > 0 || len(p.perHost) > 0
}

// limitFor returns the slot key and cap for host, walking up parent domains
// for an entry. Hosts without an entry are keyed by themselves.
func (p *HostSemaphorePool) limitFor(host string) (string, int64) {
	host = strings.ToLower(host)
	for h := host; h != ""; {
		if limit, ok := p.perHost[h]; ok {
			return h, limit
		}
		dot := strings.IndexByte(h, '.')
		if dot < 0 {
			break
		}
		h = h[dot+1:]
	}
	return host, p.defaultLimit
}

// Do runs fn while holding one slot for host. It waits for a slot until ctx
// is done, in which case fn is not run.
func (p *HostSemaphorePool) Do(ctx context.Context, host string, fn func() error) error {
	key, limit := p.limitFor(host)
	if limit <= 0 {
		return fn()
	}
	if err := p.acquire(ctx, key, limit); err != nil {
		return fmt.Errorf("%w: host %s: %w", utils.ErrSemaphoreTimeout, host, err)
	}
	defer p.release(key)
	return fn()
}

func (p *HostSemaphorePool) acquire(ctx context.Context, key string, limit int64) error {
	p.mu.Lock()
	s, ok := p.slots[key]
	if !ok {
		s = &hostSlots{sem: semaphore.NewWeighted(limit), limit: limit}
		p.slots[key] = s
	}
	s.users++
	p.mu.Unlock()

	if s.sem.TryAcquire(1) {
		return nil
	}
	p.log.WithFields(logrus.Fields{
		"host":      key,
		"limit":     s.limit,
		"in_flight": p.inFlight(key),
	}).Debug("Waiting for host slot")

	if err := s.sem.Acquire(ctx, 1); err != nil {
		p.mu.Lock()
		s.users--
		p.mu.Unlock()
		return err
	}
	return nil
}

func (p *HostSemaphorePool) release(key string) {
	p.mu.Lock()
	s, ok := p.slots[key]
	if !ok {
		p.mu.Unlock()
		p.log.Errorf("Release for untracked host %s", key)
		return
	}
	s.users--
	s.lastUsed = time.Now()
	p.mu.Unlock()

	s.sem.Release(1)
}

// inFlight returns the number of holders and waiters for a slot key.
func (p *HostSemaphorePool) inFlight(key string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.slots[key]; ok {
		return s.users
	}
	return 0
}

// RunEviction drops semaphores of hosts that have been unused for interval.
// It blocks until ctx is done.
func (p *HostSemaphorePool) RunEviction(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := p.evictIdle(interval); n > 0 {
				p.log.Debugf("Dropped %d idle host semaphores", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// evictIdle removes unused hosts idle for at least maxIdle and returns how many went.
func (p *HostSemaphorePool) evictIdle(maxIdle time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	evicted := 0
	for host, s := range p.slots {
		if s.users == 0 && !s.lastUsed.IsZero() && time.Since(s.lastUsed) >= maxIdle {
			delete(p.slots, host)
			evicted++
		}
	}
	return evicted
}

// trackedHosts returns how many hosts currently hold a semaphore.
func (p *HostSemaphorePool) trackedHosts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}
