package rate

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitError is returned when calls are blocked.
type RateLimitError struct {
	Provider string
	Reason   string
	RetryAt  time.Time
}

func (e RateLimitError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("%s rate limited: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s rate limited: %s (retry at %s)", e.Provider, e.Reason, e.RetryAt.UTC().Format(time.RFC3339))
}

type Decision struct {
	Allowed bool
	Reason  string
	RetryAt time.Time
}

type bucket struct {
	capacity int
	tokens   float64
	last     time.Time
}

func (b *bucket) refill(now time.Time, window Window) {
	elapsed := now.Sub(b.last)
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed.Seconds() * float64(b.capacity) / window.Duration().Seconds()
	if b.tokens > float64(b.capacity) {
		b.tokens = float64(b.capacity)
	}
	b.last = now
}

// Guard enforces a provider's request budget.
type Guard struct {
	decl Declaration
	now  func() time.Time

	mu         sync.Mutex
	buckets    map[Window]*bucket
	cooldown   time.Time
	lastStatus int
}

// NewGuard creates a guard with full buckets.
func NewGuard(decl Declaration) *Guard {
	g := &Guard{
		decl:    decl,
		now:     time.Now,
		buckets: make(map[Window]*bucket),
	}
	start := g.now()
	for window, limit := range decl.Limits() {
		g.buckets[window] = &bucket{capacity: limit, tokens: float64(limit), last: start}
	}
	return g
}

// WrapHTTP wraps an http.Client with rate-limit enforcement.
func WrapHTTP(decl Declaration, base *http.Client) *http.Client {
	return NewGuard(decl).Wrap(base)
}

// Wrap returns a copy of base whose transport consults the guard.
func (g *Guard) Wrap(base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	client := *base
	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client.Transport = &roundTripper{base: transport, guard: g}
	return &client
}

// ShouldCall reports whether a request may go out at now and consumes a
// token from every window when it may.
func (g *Guard) ShouldCall(now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if now.Before(g.cooldown) {
		return g.block("cooldown", g.cooldown)
	}
	for window, b := range g.buckets {
		b.refill(now, window)
		if b.tokens < 1 {
			wait := time.Duration((1 - b.tokens) * window.Duration().Seconds() / float64(b.capacity) * float64(time.Second))
			return g.block(window.String()+" budget exhausted", now.Add(wait))
		}
	}
	for _, b := range g.buckets {
		b.tokens--
	}
	return Decision{Allowed: true}
}

func (g *Guard) block(reason string, retryAt time.Time) Decision {
	blockedCounter.WithLabelValues(g.decl.ProviderName(), reason).Inc()
	return Decision{Reason: reason, RetryAt: retryAt}
}

// RecordResponse applies the server-side cooldown carried by a 429 or 503.
func (g *Guard) RecordResponse(status int, header http.Header) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.lastStatus = status
	lastStatusGauge.WithLabelValues(g.decl.ProviderName()).Set(float64(status))
	if status != http.StatusTooManyRequests && status != http.StatusServiceUnavailable {
		return
	}
	seconds, ok := parseRetryAfter(header.Get(g.decl.retryAfter))
	if !ok {
		return
	}
	retryAfterGauge.WithLabelValues(g.decl.ProviderName()).Set(float64(seconds))
	until := g.now().Add(time.Duration(seconds) * time.Second)
	if until.After(g.cooldown) {
		g.cooldown = until
	}
}

// LastStatus returns the most recent HTTP status observed.
func (g *Guard) LastStatus() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastStatus
}

func parseRetryAfter(value string) (int, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return seconds, true
}

type roundTripper struct {
	base  http.RoundTripper
	guard *Guard
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	decision := rt.guard.ShouldCall(rt.guard.now())
	if !decision.Allowed {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, RateLimitError{
			Provider: rt.guard.decl.ProviderName(),
			Reason:   decision.Reason,
			RetryAt:  decision.RetryAt,
		}
	}

	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	rt.guard.RecordResponse(resp.StatusCode, resp.Header)
	return resp, nil
}
