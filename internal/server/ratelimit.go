// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sentra Contributors

package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures per-principal rate limiting.
type RateLimitConfig struct {
	// PerMinute is the sustained request rate per principal. Zero
	// disables limiting.
	PerMinute int
	// Burst is the maximum burst size per principal.
	Burst int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimitMiddleware enforces per-principal limits on authenticated
// routes. Requests without a principal (public paths) pass through.
// The done channel stops the cleanup goroutine on shutdown.
func rateLimitMiddleware(cfg RateLimitConfig, log *slog.Logger, done <-chan struct{}) func(http.Handler) http.Handler {
	if cfg.PerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	var (
		mu       sync.Mutex
		visitors = make(map[string]*limiterEntry)
	)

	// Drop stale entries so the map stays bounded by the set of
	// recently active principals.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				mu.Lock()
				now := time.Now()
				for user, e := range visitors {
					if now.Sub(e.lastSeen) > 10*time.Minute {
						delete(visitors, user)
					}
				}
				mu.Unlock()
			case <-done:
				return
			}
		}
	}()

	perSecond := rate.Limit(float64(cfg.PerMinute) / 60.0)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFrom(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			mu.Lock()
			e, exists := visitors[principal.ID]
			if !exists {
				e = &limiterEntry{limiter: rate.NewLimiter(perSecond, cfg.Burst)}
				visitors[principal.ID] = e
			}
			e.lastSeen = time.Now()
			allowed := e.limiter.Allow()
			mu.Unlock()

			if !allowed {
				log.Warn("rate limit exceeded", "user", principal.ID, "path", r.URL.Path)
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
