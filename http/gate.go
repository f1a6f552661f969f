// Package http exposes the service over HTTP: the auth gate middleware, the
// payment and data routes, and the per-wallet rate limiter.
package http

import (
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	pulsar "github.com/psyto/pulsar"
)

// Headers consumed by the gate.
const (
	HeaderPaymentSignature = "x-payment-signature"
	HeaderPaymentNonce     = "x-payment-nonce"
	HeaderExpectedAmount   = "x-expected-amount"
	HeaderWalletSignature  = "x-wallet-signature"
	HeaderWalletAddress    = "x-wallet-address"
	HeaderMessage          = "x-message"
	HeaderTimestamp        = "x-timestamp"
	HeaderDemoMode         = "x-demo-mode"
)

// Context keys set on admitted requests.
const (
	ContextPayer      = "payer"
	ContextAmount     = "amount"
	ContextNonce      = "nonce"
	ContextAuthMethod = "authMethod"
)

// signatureSkewWindow bounds how far an x-timestamp may drift from the
// server clock, in either direction.
const signatureSkewWindow = 5 * time.Minute

// PaymentDetails advertises the payment requirement in 402 responses.
type PaymentDetails struct {
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Recipient string `json:"recipient"`
	Network   string `json:"network"`
	ProgramID string `json:"programId"`
}

// GateConfig configures the auth gate.
type GateConfig struct {
	// Payment advertises the default payment requirement.
	Payment PaymentDetails

	// TokenDecimals scales verified base-unit amounts back to human units
	// on the request context.
	TokenDecimals int32

	// AllowDemoMode admits requests carrying x-demo-mode: true without
	// credentials.
	AllowDemoMode bool

	// Now overrides the clock for tests. Defaults to time.Now.
	Now func() time.Time
}

// AuthGate admits a request through one of two paths, tried in fixed
// priority order: an on-chain payment signature (Path A) or a signed wallet
// message (Path B). On success the payer identity is attached to the request
// context; on failure the request is rejected with 402 (payment problems,
// no credentials) or 401 (bad wallet signature). The gate performs no
// retries; resubmitting with a fresh signature is the caller's job.
func AuthGate(verifier *pulsar.PaymentVerifier, cfg GateConfig) gin.HandlerFunc {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return func(c *gin.Context) {
		if cfg.AllowDemoMode && c.GetHeader(HeaderDemoMode) == "true" {
			c.Set(ContextPayer, "demo")
			c.Set(ContextAuthMethod, "demo")
			c.Next()
			return
		}

		if sig := c.GetHeader(HeaderPaymentSignature); sig != "" {
			admitPayment(c, verifier, cfg, sig)
			return
		}

		if hasAnyWalletHeader(c) {
			admitWalletSignature(c, now)
			return
		}

		rejectPaymentRequired(c, pulsar.ReasonMissingCredentials,
			"this endpoint requires payment via the x402 protocol", cfg.Payment)
	}
}

// admitPayment is Path A: verify the on-chain payment behind the signature.
func admitPayment(c *gin.Context, verifier *pulsar.PaymentVerifier, cfg GateConfig, sig string) {
	var expectedAmount *decimal.Decimal
	if raw := c.GetHeader(HeaderExpectedAmount); raw != "" {
		if amt, err := decimal.NewFromString(raw); err == nil && !amt.IsNegative() {
			expectedAmount = &amt
		}
	}

	var expectedNonce *uint64
	if raw := c.GetHeader(HeaderPaymentNonce); raw != "" {
		if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
			expectedNonce = &n
		}
	}

	verdict := verifier.Verify(c.Request.Context(), sig, expectedAmount, expectedNonce)
	if !verdict.Verified {
		rejectPaymentRequired(c, verdict.FailureReason,
			"payment verification failed", cfg.Payment)
		return
	}

	humanAmount := decimal.NewFromBigInt(new(big.Int).SetUint64(verdict.Amount), -cfg.TokenDecimals)
	c.Set(ContextPayer, verdict.Payer)
	c.Set(ContextAmount, humanAmount.String())
	c.Set(ContextNonce, verdict.Nonce)
	c.Set(ContextAuthMethod, "payment")
	c.Next()
}

// admitWalletSignature is Path B: verify a signed application-layer message
// with a bounded timestamp skew.
func admitWalletSignature(c *gin.Context, now func() time.Time) {
	sig := c.GetHeader(HeaderWalletSignature)
	wallet := c.GetHeader(HeaderWalletAddress)
	message := c.GetHeader(HeaderMessage)
	timestamp := c.GetHeader(HeaderTimestamp)

	if sig == "" || wallet == "" || message == "" || timestamp == "" {
		rejectUnauthorized(c, pulsar.ReasonMissingCredentials,
			"missing required authentication headers")
		return
	}

	requestMillis, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		rejectUnauthorized(c, pulsar.ReasonTimestampExpired, "malformed request timestamp")
		return
	}
	skew := now().UnixMilli() - requestMillis
	if skew < 0 {
		skew = -skew
	}
	if skew > signatureSkewWindow.Milliseconds() {
		rejectUnauthorized(c, pulsar.ReasonTimestampExpired, "request timestamp expired")
		return
	}

	if !pulsar.VerifyWalletSignature(message, sig, wallet) {
		rejectUnauthorized(c, pulsar.ReasonInvalidSignature, "invalid wallet signature")
		return
	}

	c.Set(ContextPayer, wallet)
	c.Set(ContextAuthMethod, "wallet-signature")
	c.Next()
}

func hasAnyWalletHeader(c *gin.Context) bool {
	return c.GetHeader(HeaderWalletSignature) != "" ||
		c.GetHeader(HeaderWalletAddress) != "" ||
		c.GetHeader(HeaderMessage) != "" ||
		c.GetHeader(HeaderTimestamp) != ""
}

func rejectPaymentRequired(c *gin.Context, reason, message string, payment PaymentDetails) {
	c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
		"error":   "Payment Required",
		"reason":  reason,
		"message": message,
		"payment": payment,
	})
}

func rejectUnauthorized(c *gin.Context, reason, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   "Unauthorized",
		"reason":  reason,
		"message": message,
	})
}
