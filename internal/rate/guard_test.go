package rate

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardExhaustsMinuteBudget(t *testing.T) {
	g := NewGuard(Provider("test").MaxRequestsPer(Minute, 2))
	now := time.Now()

	assert.True(t, g.ShouldCall(now).Allowed)
	assert.True(t, g.ShouldCall(now).Allowed)

	decision := g.ShouldCall(now)
	assert.False(t, decision.Allowed)
	assert.Contains(t, decision.Reason, "minute")
	assert.True(t, decision.RetryAt.After(now))

	assert.True(t, g.ShouldCall(now.Add(time.Minute)).Allowed)
}

func TestGuardUnlimited(t *testing.T) {
	g := NewGuard(Provider("test").MaxRequestsPer(Minute, 0))
	now := time.Now()
	for i := 0; i < 100; i++ {
		require.True(t, g.ShouldCall(now).Allowed)
	}
}

func TestGuardRetryAfterCooldown(t *testing.T) {
	g := NewGuard(Provider("test"))
	now := time.Now()
	g.now = func() time.Time { return now }

	g.RecordResponse(http.StatusTooManyRequests, http.Header{"Retry-After": []string{"30"}})
	assert.Equal(t, http.StatusTooManyRequests, g.LastStatus())

	decision := g.ShouldCall(now.Add(10 * time.Second))
	assert.False(t, decision.Allowed)
	assert.Equal(t, "cooldown", decision.Reason)
	assert.True(t, g.ShouldCall(now.Add(31*time.Second)).Allowed)
}

func TestWrapHTTPReturnsRateLimitError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := WrapHTTP(Provider("test").MaxRequestsPer(Minute, 1), server.Client())

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	_, err = client.Get(server.URL)
	require.Error(t, err)
	var limited RateLimitError
	assert.True(t, errors.As(err, &limited))
	assert.Equal(t, "test", limited.Provider)
	assert.Equal(t, 1, calls)
}
