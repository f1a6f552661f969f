package pulsar

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/psyto/pulsar/ledger"
	"github.com/psyto/pulsar/logger"
	"github.com/psyto/pulsar/metrics"
)

// PaymentVerifier combines the ledger client, transaction decoder, replay
// guard and verification cache into a single idempotent Verify operation.
// All bookkeeping is in-process; a restart forgets consumed nonces and
// cached verdicts.
type PaymentVerifier struct {
	ledger  ledger.Client
	decoder *Decoder
	guard   *ReplayGuard
	cache   *VerificationCache

	log      logger.Logger
	rec      metrics.Recorder
	network  string
	decimals int32
}

// VerifierOption configures a PaymentVerifier.
type VerifierOption func(*PaymentVerifier)

// WithLogger sets the verifier's logger.
func WithLogger(l logger.Logger) VerifierOption {
	return func(v *PaymentVerifier) { v.log = l }
}

// WithMetrics sets the verifier's metrics recorder.
func WithMetrics(r metrics.Recorder) VerifierOption {
	return func(v *PaymentVerifier) { v.rec = r }
}

// WithNetwork sets the network label used in logs and metrics.
func WithNetwork(network string) VerifierOption {
	return func(v *PaymentVerifier) { v.network = network }
}

// WithTokenDecimals sets the decimal scaling applied to human-unit expected
// amounts. Defaults to 6 (USDC).
func WithTokenDecimals(d int32) VerifierOption {
	return func(v *PaymentVerifier) { v.decimals = d }
}

// NewPaymentVerifier wires a verifier from its collaborators. The guard and
// cache are injected so tests can isolate state with fresh instances.
func NewPaymentVerifier(
	lc ledger.Client,
	decoder *Decoder,
	guard *ReplayGuard,
	cache *VerificationCache,
	opts ...VerifierOption,
) *PaymentVerifier {
	v := &PaymentVerifier{
		ledger:   lc,
		decoder:  decoder,
		guard:    guard,
		cache:    cache,
		log:      logger.NoopLogger{},
		rec:      metrics.NoopRecorder{},
		network:  "solana",
		decimals: 6,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify inspects the transaction behind signature and decides whether it
// constitutes valid, unused payment. expectedAmount is in human units and is
// scaled by the configured token decimals before comparison; expectedNonce
// pins the exact nonce. Either may be nil to skip its check. The decoded
// nonce is reserved regardless of whether expectedNonce was supplied.
//
// Verify never returns an error: every failure is classified on the Verdict.
func (v *PaymentVerifier) Verify(ctx context.Context, signature string, expectedAmount *decimal.Decimal, expectedNonce *uint64) *Verdict {
	start := time.Now()
	verdict := v.verify(ctx, signature, expectedAmount, expectedNonce)

	labels := map[string]string{"network": v.network}
	outcome := "verified"
	if !verdict.Verified {
		outcome = verdict.FailureReason
	}
	v.rec.IncCounter("verify_"+outcome, labels)
	v.rec.ObserveLatency("verify", time.Since(start), labels)

	return verdict
}

func (v *PaymentVerifier) verify(ctx context.Context, signature string, expectedAmount *decimal.Decimal, expectedNonce *uint64) *Verdict {
	// Cached verdicts are pre-replay-check snapshots. The economic event on
	// the ledger is immutable, but "already used" is a mutable property this
	// verifier owns, so the replay check runs again on every cache hit.
	if cached, ok := v.cache.Get(signature); ok && cached.Verified {
		payer, err := solana.PublicKeyFromBase58(cached.Payer)
		if err == nil {
			switch v.guard.CheckAndReserve(payer, cached.Nonce, signature) {
			case ReservationNew, ReservationHeld:
				return cached
			case ReservationConflict:
				v.log.Warn("replay detected on cached verdict", map[string]any{
					"signature": signature,
					"payer":     cached.Payer,
					"nonce":     cached.Nonce,
				})
				return v.rejectFields(signature, cached.Payer, cached.Amount, cached.Nonce, cached.ObservedAt,
					ReasonReplayDetected, "nonce already consumed by another transaction")
			}
		}
	}

	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return v.reject(signature, ReasonNotFound, "malformed transaction signature")
	}

	rec, err := v.ledger.GetTransaction(ctx, sig)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return v.reject(signature, ReasonNotFound, "transaction not found on ledger")
		}
		v.log.Error("ledger fetch failed", map[string]any{
			"signature": signature,
			"error":     err.Error(),
		})
		return v.reject(signature, ReasonVerificationFailed, "ledger lookup failed")
	}

	ev, err := v.decoder.Decode(rec)
	if err != nil {
		var verr *VerificationError
		if errors.As(err, &verr) {
			return v.reject(signature, verr.Code, verr.Message)
		}
		return v.reject(signature, ReasonDecodeFailed, err.Error())
	}

	// Cheap shape checks run before the irreversible replay reservation so a
	// malformed request never consumes a legitimate nonce.
	if expectedAmount != nil {
		required := expectedAmount.Shift(v.decimals)
		got := decimal.NewFromBigInt(new(big.Int).SetUint64(ev.Amount), 0)
		if got.LessThan(required) {
			return v.rejectEvent(signature, ev, ReasonInsufficientAmount,
				fmt.Sprintf("insufficient payment: expected at least %s base units, got %d", required.String(), ev.Amount))
		}
	}
	if expectedNonce != nil && ev.Nonce != *expectedNonce {
		return v.rejectEvent(signature, ev, ReasonNonceMismatch,
			fmt.Sprintf("nonce mismatch: expected %d, got %d", *expectedNonce, ev.Nonce))
	}

	if v.guard.CheckAndReserve(ev.Payer, ev.Nonce, signature) == ReservationConflict {
		v.log.Warn("replay detected", map[string]any{
			"signature": signature,
			"payer":     ev.Payer.String(),
			"nonce":     ev.Nonce,
		})
		return v.rejectEvent(signature, ev, ReasonReplayDetected,
			"nonce already used (replay attack detected)")
	}

	if !v.decoder.TargetsProgram(rec) {
		return v.rejectEvent(signature, ev, ReasonWrongProgram,
			"transaction does not target the payment program")
	}

	verdict := &Verdict{
		Verified:   true,
		Signature:  signature,
		Payer:      ev.Payer.String(),
		Amount:     ev.Amount,
		Nonce:      ev.Nonce,
		ObservedAt: ev.ObservedAt,
	}
	v.cache.Put(signature, verdict)

	v.log.Info("payment verified", map[string]any{
		"signature":     signature,
		"payer":         verdict.Payer,
		"amount":        verdict.Amount,
		"nonce":         verdict.Nonce,
		"nonce_derived": ev.NonceDerived,
	})

	return verdict
}

// CachedVerdict returns the cached verdict for a signature without
// re-verifying. Diagnostics only.
func (v *PaymentVerifier) CachedVerdict(signature string) (*Verdict, bool) {
	return v.cache.Get(signature)
}

// Reset clears the verification cache and replay ledger. For tests.
func (v *PaymentVerifier) Reset() {
	v.cache.Reset()
	v.guard.Reset()
}

func (v *PaymentVerifier) reject(signature, code, message string) *Verdict {
	return v.rejectFields(signature, "", 0, 0, 0, code, message)
}

func (v *PaymentVerifier) rejectEvent(signature string, ev PaymentEvent, code, message string) *Verdict {
	return v.rejectFields(signature, ev.Payer.String(), ev.Amount, ev.Nonce, ev.ObservedAt, code, message)
}

func (v *PaymentVerifier) rejectFields(signature, payer string, amount, nonce uint64, observedAt int64, code, message string) *Verdict {
	v.log.Debug("payment rejected", map[string]any{
		"signature": signature,
		"reason":    code,
		"message":   message,
	})
	return &Verdict{
		Signature:     signature,
		Payer:         payer,
		Amount:        amount,
		Nonce:         nonce,
		ObservedAt:    observedAt,
		FailureReason: code,
	}
}
