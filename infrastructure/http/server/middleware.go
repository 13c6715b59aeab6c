package server

import (
	"chat-hub/auth"
	"chat-hub/errors"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn("Failed to write response", "error", err)
	}
}

// writeError maps err onto its status code.
// Internal faults keep their message for diagnostics.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error("Request failed", "error", err)
	}
	s.writeJSON(w, status, response{Success: false, Message: err.Error()})
}

const (
	limiterIdleTTL     = 10 * time.Minute
	limiterSweepPeriod = time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterPool keeps one token bucket per identity.
// Buckets idle for longer than ttl are dropped on a later call.
type limiterPool struct {
	mu        sync.Mutex
	m         map[string]*limiterEntry
	clock     clockwork.Clock
	rps       float64
	burst     int
	ttl       time.Duration
	lastSweep time.Time
}

func newLimiterPool(clock clockwork.Clock, rps float64, burst int) *limiterPool {
	return &limiterPool{
		m:         make(map[string]*limiterEntry),
		clock:     clock,
		rps:       rps,
		burst:     burst,
		ttl:       limiterIdleTTL,
		lastSweep: clock.Now(),
	}
}

func (p *limiterPool) Allow(key string) bool {
	if p.rps <= 0 {
		return true
	}
	now := p.clock.Now()
	p.mu.Lock()
	if now.Sub(p.lastSweep) >= limiterSweepPeriod {
		p.sweep(now)
	}
	e, ok := p.m[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(p.rps), max(p.burst, 1))}
		p.m[key] = e
	}
	e.lastSeen = now
	p.mu.Unlock()
	return e.limiter.AllowN(now, 1)
}

// sweep must be called with mu held.
func (p *limiterPool) sweep(now time.Time) {
	cutoff := now.Add(-p.ttl)
	for key, e := range p.m {
		if e.lastSeen.Before(cutoff) {
			delete(p.m, key)
		}
	}
	p.lastSweep = now
}

// rateLimit must run after authentication.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := auth.IdentityFromContext(r.Context())
		if !s.limiters.Allow(identity.ID) {
			s.writeError(w, errors.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.clock.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("Request served", "method", r.Method, "path", r.URL.Path, "duration", s.clock.Since(start))
	})
}
