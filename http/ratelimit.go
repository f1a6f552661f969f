package http

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// WalletRateLimiter enforces a sliding-window request cap per wallet.
type WalletRateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time

	window time.Duration
	max    int
	now    func() time.Time
}

// NewWalletRateLimiter builds a limiter allowing max requests per wallet
// within each window.
func NewWalletRateLimiter(window time.Duration, max int) *WalletRateLimiter {
	return &WalletRateLimiter{
		windows: make(map[string][]time.Time),
		window:  window,
		max:     max,
		now:     time.Now,
	}
}

// Allow records a request for wallet and reports whether it fits the window.
// remaining is the budget left after this request; reset is when the oldest
// in-window request falls out.
func (l *WalletRateLimiter) Allow(wallet string) (allowed bool, remaining int, reset time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := l.windows[wallet][:0]
	for _, t := range l.windows[wallet] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.max {
		l.windows[wallet] = recent
		return false, 0, recent[0].Add(l.window)
	}

	recent = append(recent, now)
	l.windows[wallet] = recent
	return true, l.max - len(recent), recent[0].Add(l.window)
}

// Sweep drops wallets whose entire window has expired and returns how many
// were removed.
func (l *WalletRateLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	removed := 0
	for wallet, times := range l.windows {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(l.windows, wallet)
			removed++
		}
	}
	return removed
}

// Reset clears all windows. For tests.
func (l *WalletRateLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows = make(map[string][]time.Time)
}

// WalletRateLimit throttles requests by the payer identity the auth gate
// attached. Requests admitted via demo mode, and requests without a payer,
// pass through unthrottled.
func WalletRateLimit(limiter *WalletRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		wallet := c.GetString(ContextPayer)
		if wallet == "" || c.GetString(ContextAuthMethod) == "demo" {
			c.Next()
			return
		}

		allowed, remaining, reset := limiter.Allow(wallet)
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.max))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Too Many Requests",
				"message": "rate limit exceeded for wallet",
				"retryAt": reset.UTC().Format(time.RFC3339),
			})
			return
		}
		c.Next()
	}
}
