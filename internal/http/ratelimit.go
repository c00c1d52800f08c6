package http

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// rateLimiter counts requests per client in one-minute windows.
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	perMinute    int
	now          func() time.Time
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	windowStart time.Time
	requests    int
}

func newRateLimiter(perMinute int) *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		perMinute:   perMinute,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup(5 * time.Minute)
	return rl
}

func (rl *rateLimiter) startCleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries forgets clients idle for more than ten minutes.
func (rl *rateLimiter) cleanupStaleEntries() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-10 * time.Minute)
	removed := 0
	for ip, client := range rl.clients {
		if client.windowStart.Before(cutoff) {
			delete(rl.clients, ip)
			removed++
		}
	}
	return removed
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() { close(rl.stopCleanup) })
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	client, ok := rl.clients[clientIP]
	if !ok || now.Sub(client.windowStart) >= time.Minute {
		rl.clients[clientIP] = &clientInfo{windowStart: now, requests: 1}
		return true
	}
	client.requests++
	return client.requests <= rl.perMinute
}

// limit rejects requests above the per-client budget with 429.
func (rl *rateLimiter) limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rl != nil && !rl.allow(extractClientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(60))
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}
		next(w, r)
	}
}
