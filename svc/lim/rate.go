// Package lim is the request-rate governor. Two scopes guard every
// store-mutating request: a global token bucket absorbs aggregate load, and
// a per-client sliding window stops any single identity from starving the
// rest. Global runs first; a rejection from either scope halts the request
// before it can touch the store.
package lim

import (
	"context"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/KazeTachinuu/copy-paste/cfg"
	"github.com/KazeTachinuu/copy-paste/metrics"
	"github.com/KazeTachinuu/copy-paste/svc/db"
	"github.com/KazeTachinuu/copy-paste/svc/util"
)

const (
	maxClients       = 10000
	adaptiveDuration = 60 * time.Second
)

const (
	ScopeGlobal = "global"
	ScopeClient = "client"
)

// Decision is the structured outcome of an admission check. RetryAfter is
// only meaningful when Allowed is false; it is always at least 1 second so
// callers can surface it directly as a Retry-After header.
type Decision struct {
	Allowed    bool
	Scope      string
	RetryAfter int
	Limit      int
	Remaining  int
}

type Governor struct {
	global       *rate.Limiter
	conservative *rate.Limiter
	shared       *db.Redis

	clientMax    int
	clientWindow time.Duration

	mu      sync.Mutex
	clients map[string]*clientWindow

	detector          *AnomalyDetector
	adaptiveModeUntil int64

	quit     chan struct{}
	stopOnce sync.Once
}

type clientWindow struct {
	times []time.Time
}

// New builds a governor from the rate config. When shared is non-nil the
// per-client window lives in Redis and is shared across instances; the
// local map remains as a fallback when Redis is unreachable.
func New(rc cfg.RateCfg, shared *db.Redis) *Governor {
	conservativeCap := rc.GlobalCapacity / 2
	if conservativeCap < 1 {
		conservativeCap = 1
	}
	g := &Governor{
		global:       rate.NewLimiter(rate.Limit(rc.GlobalRefillPerSec), rc.GlobalCapacity),
		conservative: rate.NewLimiter(rate.Limit(rc.GlobalRefillPerSec/2), conservativeCap),
		shared:       shared,
		clientMax:    rc.ClientMax,
		clientWindow: rc.ClientWindow,
		clients:      make(map[string]*clientWindow),
		quit:         make(chan struct{}),
	}
	g.detector = NewAnomalyDetector(g.TriggerAdaptiveMode)
	g.detector.Start()
	go g.cleanupLoop(rc.CleanupInterval)
	return g
}

// Admit checks both scopes in order and consumes budget only from scopes
// that pass. A global rejection leaves the client window untouched.
func (g *Governor) Admit(ctx context.Context, clientID string) Decision {
	if d := g.admitGlobal(); !d.Allowed {
		metrics.RateLimitRejected.WithLabelValues(ScopeGlobal).Inc()
		return d
	}
	d := g.admitClient(ctx, clientID)
	if !d.Allowed {
		metrics.RateLimitRejected.WithLabelValues(ScopeClient).Inc()
	}
	return d
}

func (g *Governor) admitGlobal() Decision {
	limiter := g.global
	limit := g.global.Burst()
	if g.isAdaptiveMode() {
		limiter = g.conservative
		limit = g.conservative.Burst()
	}
	r := limiter.Reserve()
	if !r.OK() {
		return Decision{Scope: ScopeGlobal, RetryAfter: 1, Limit: limit}
	}
	if delay := r.Delay(); delay > 0 {
		// The token is not available yet; hand it back and report when
		// one will be.
		r.Cancel()
		retryAfter := int(math.Ceil(delay.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		return Decision{Scope: ScopeGlobal, RetryAfter: retryAfter, Limit: limit}
	}
	remaining := int(limiter.Tokens())
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Scope: ScopeGlobal, Limit: limit, Remaining: remaining}
}

func (g *Governor) admitClient(ctx context.Context, clientID string) Decision {
	if g.shared != nil {
		allowed, count, retryAfter, err := g.shared.SlideWindow(ctx, clientID, g.clientMax, g.clientWindow)
		if err == nil {
			d := Decision{Allowed: allowed, Scope: ScopeClient, Limit: g.clientMax}
			if allowed {
				d.Remaining = g.clientMax - count
				if d.Remaining < 0 {
					d.Remaining = 0
				}
			} else {
				d.RetryAfter = retryAfter
			}
			return d
		}
		util.Warn().Err(err).Msg("shared rate limit unavailable, using local fallback")
	}
	return g.admitLocal(clientID, time.Now())
}

func (g *Governor) admitLocal(clientID string, now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	w, exists := g.clients[clientID]
	if !exists {
		if len(g.clients) >= maxClients {
			util.Warn().
				Int("clients", len(g.clients)).
				Msg("rate governor at identity capacity, rejecting request")
			return Decision{Scope: ScopeClient, RetryAfter: 1, Limit: g.clientMax}
		}
		w = &clientWindow{}
		g.clients[clientID] = w
	}

	cutoff := now.Add(-g.clientWindow)
	kept := w.times[:0]
	for _, t := range w.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.times = kept

	if len(w.times) >= g.clientMax {
		until := g.clientWindow - now.Sub(w.times[0])
		retryAfter := int(math.Ceil(until.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		return Decision{Scope: ScopeClient, RetryAfter: retryAfter, Limit: g.clientMax}
	}

	w.times = append(w.times, now)
	return Decision{
		Allowed:   true,
		Scope:     ScopeClient,
		Limit:     g.clientMax,
		Remaining: g.clientMax - len(w.times),
	}
}

func (g *Governor) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			g.evictIdleClients()
		case <-g.quit:
			return
		}
	}
}

func (g *Governor) evictIdleClients() {
	cutoff := time.Now().Add(-g.clientWindow)
	g.mu.Lock()
	evicted := 0
	for id, w := range g.clients {
		idle := true
		for _, t := range w.times {
			if t.After(cutoff) {
				idle = false
				break
			}
		}
		if idle {
			delete(g.clients, id)
			evicted++
		}
	}
	remaining := len(g.clients)
	g.mu.Unlock()
	if evicted > 0 {
		util.Debug().Int("evicted", evicted).Int("remaining", remaining).Msg("rate governor cleanup")
	}
}

func (g *Governor) Stop() {
	g.stopOnce.Do(func() {
		close(g.quit)
		g.detector.Stop()
	})
}

func (g *Governor) TriggerAdaptiveMode() {
	atomic.StoreInt64(&g.adaptiveModeUntil, time.Now().Add(adaptiveDuration).Unix())
}

func (g *Governor) isAdaptiveMode() bool {
	until := atomic.LoadInt64(&g.adaptiveModeUntil)
	return time.Now().Unix() < until
}

func (g *Governor) RecordRequest() {
	g.detector.RecordRequest()
}

func (g *Governor) RecordError() {
	g.detector.RecordError()
}

// GetRealIP resolves the client address, honouring X-Forwarded-For only
// when the request arrived through a trusted proxy. The rightmost address
// not belonging to a trusted proxy wins.
func GetRealIP(r *http.Request, trustedProxies []string) string {
	remoteIP := stripPort(r.RemoteAddr)
	if len(trustedProxies) == 0 || !isTrustedProxy(remoteIP, trustedProxies) {
		return remoteIP
	}
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return remoteIP
	}
	parts := strings.Split(xff, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		ipStr := strings.TrimSpace(parts[i])
		if ipStr == "" || net.ParseIP(ipStr) == nil {
			continue
		}
		if !isTrustedProxy(ipStr, trustedProxies) {
			return ipStr
		}
	}
	return remoteIP
}

func isTrustedProxy(ip string, trustedProxies []string) bool {
	for _, proxy := range trustedProxies {
		if ip == proxy {
			return true
		}
		if strings.Contains(proxy, "/") {
			_, subnet, err := net.ParseCIDR(proxy)
			if err == nil {
				parsedIP := net.ParseIP(ip)
				if parsedIP != nil && subnet.Contains(parsedIP) {
					return true
				}
			}
		}
	}
	return false
}

func stripPort(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
