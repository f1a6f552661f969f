package pulsar

import (
	"context"
	"errors"
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psyto/pulsar/ledger"
)

type fakeLedger struct {
	records map[string]*ledger.Record
	err     error
	fetches int
}

func (f *fakeLedger) GetTransaction(_ context.Context, sig solana.Signature) (*ledger.Record, error) {
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	rec, ok := f.records[sig.String()]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return rec, nil
}

func (f *fakeLedger) GetLatestBlockhash(context.Context) (*ledger.Blockhash, error) {
	return &ledger.Blockhash{LastValidBlockHeight: 100}, nil
}

var _ ledger.Client = (*fakeLedger)(nil)

func newTestVerifier(lc ledger.Client, programID solana.PublicKey) *PaymentVerifier {
	return NewPaymentVerifier(lc,
		NewDecoder(programID),
		NewReplayGuard(),
		NewVerificationCache(0),
	)
}

func TestVerifySuccess(t *testing.T) {
	programID := testKey(9)
	payer := testKey(1)
	sig := testSig(3)

	fl := &fakeLedger{records: map[string]*ledger.Record{
		sig.String(): paymentRecord(programID, payer, sig, 1_000_000, 42),
	}}
	v := newTestVerifier(fl, programID)

	amount := decimal.RequireFromString("1.0")
	nonce := uint64(42)
	verdict := v.Verify(context.Background(), sig.String(), &amount, &nonce)

	require.True(t, verdict.Verified)
	assert.Empty(t, verdict.FailureReason)
	assert.Equal(t, payer.String(), verdict.Payer)
	assert.Equal(t, uint64(1_000_000), verdict.Amount)
	assert.Equal(t, uint64(42), verdict.Nonce)
}

func TestVerifyIdempotentForSameSignature(t *testing.T) {
	programID := testKey(9)
	sig := testSig(3)

	fl := &fakeLedger{records: map[string]*ledger.Record{
		sig.String(): paymentRecord(programID, testKey(1), sig, 1_000_000, 42),
	}}
	v := newTestVerifier(fl, programID)

	first := v.Verify(context.Background(), sig.String(), nil, nil)
	second := v.Verify(context.Background(), sig.String(), nil, nil)

	require.True(t, first.Verified)
	require.True(t, second.Verified)
	assert.Equal(t, first, second)
	// The second call is served from the cache.
	assert.Equal(t, 1, fl.fetches)
}

func TestVerifyReplayAcrossSignatures(t *testing.T) {
	programID := testKey(9)
	payer := testKey(1)
	sigA := testSig(3)
	sigB := testSig(4)

	fl := &fakeLedger{records: map[string]*ledger.Record{
		sigA.String(): paymentRecord(programID, payer, sigA, 1_000_000, 42),
		sigB.String(): paymentRecord(programID, payer, sigB, 1_000_000, 42),
	}}
	v := newTestVerifier(fl, programID)

	first := v.Verify(context.Background(), sigA.String(), nil, nil)
	require.True(t, first.Verified)

	second := v.Verify(context.Background(), sigB.String(), nil, nil)
	require.False(t, second.Verified)
	assert.Equal(t, ReasonReplayDetected, second.FailureReason)

	// The original transaction still re-verifies.
	again := v.Verify(context.Background(), sigA.String(), nil, nil)
	assert.True(t, again.Verified)
}

func TestVerifyInsufficientAmountDoesNotReserve(t *testing.T) {
	programID := testKey(9)
	payer := testKey(1)
	sig := testSig(3)

	fl := &fakeLedger{records: map[string]*ledger.Record{
		sig.String(): paymentRecord(programID, payer, sig, 500_000, 42),
	}}
	guard := NewReplayGuard()
	v := NewPaymentVerifier(fl, NewDecoder(programID), guard, NewVerificationCache(0))

	amount := decimal.RequireFromString("1.0")
	verdict := v.Verify(context.Background(), sig.String(), &amount, nil)

	require.False(t, verdict.Verified)
	assert.Equal(t, ReasonInsufficientAmount, verdict.FailureReason)
	assert.False(t, guard.IsUsed(payer, 42))
}

func TestVerifyNonceMismatch(t *testing.T) {
	programID := testKey(9)
	sig := testSig(3)

	fl := &fakeLedger{records: map[string]*ledger.Record{
		sig.String(): paymentRecord(programID, testKey(1), sig, 1_000_000, 42),
	}}
	v := newTestVerifier(fl, programID)

	nonce := uint64(43)
	verdict := v.Verify(context.Background(), sig.String(), nil, &nonce)

	require.False(t, verdict.Verified)
	assert.Equal(t, ReasonNonceMismatch, verdict.FailureReason)
}

func TestVerifyWrongProgram(t *testing.T) {
	programID := testKey(9)
	payer := testKey(1)
	sig := testSig(3)

	// Log evidence but no instruction targeting the payment program.
	rec := &ledger.Record{
		Signature:   sig,
		BlockTime:   1700000000,
		LogMessages: []string{"Program log: PaymentProcessed"},
		Envelope: &ledger.LegacyEnvelope{
			Signatures:            []solana.Signature{sig},
			NumRequiredSignatures: 1,
			AccountKeys:           []solana.PublicKey{payer},
		},
	}
	fl := &fakeLedger{records: map[string]*ledger.Record{sig.String(): rec}}
	v := newTestVerifier(fl, programID)

	verdict := v.Verify(context.Background(), sig.String(), nil, nil)
	require.False(t, verdict.Verified)
	assert.Equal(t, ReasonWrongProgram, verdict.FailureReason)
}

func TestVerifyNotFound(t *testing.T) {
	programID := testKey(9)
	fl := &fakeLedger{records: map[string]*ledger.Record{}}
	v := newTestVerifier(fl, programID)

	verdict := v.Verify(context.Background(), testSig(3).String(), nil, nil)
	require.False(t, verdict.Verified)
	assert.Equal(t, ReasonNotFound, verdict.FailureReason)

	// A string that does not even parse as a signature is also "not found".
	verdict = v.Verify(context.Background(), "!!not-base58!!", nil, nil)
	require.False(t, verdict.Verified)
	assert.Equal(t, ReasonNotFound, verdict.FailureReason)
}

func TestVerifyLedgerErrorNotCached(t *testing.T) {
	programID := testKey(9)
	sig := testSig(3)

	fl := &fakeLedger{err: errors.New("rpc timeout")}
	v := newTestVerifier(fl, programID)

	verdict := v.Verify(context.Background(), sig.String(), nil, nil)
	require.False(t, verdict.Verified)
	assert.Equal(t, ReasonVerificationFailed, verdict.FailureReason)

	_, ok := v.CachedVerdict(sig.String())
	assert.False(t, ok)
}

func TestVerifyFailedTransactionNotCached(t *testing.T) {
	programID := testKey(9)
	sig := testSig(3)

	rec := paymentRecord(programID, testKey(1), sig, 1_000_000, 42)
	rec.Failed = true
	rec.ExecutionErr = "InstructionError"

	fl := &fakeLedger{records: map[string]*ledger.Record{sig.String(): rec}}
	v := newTestVerifier(fl, programID)

	verdict := v.Verify(context.Background(), sig.String(), nil, nil)
	require.False(t, verdict.Verified)
	assert.Equal(t, ReasonTransactionFailed, verdict.FailureReason)

	_, ok := v.CachedVerdict(sig.String())
	assert.False(t, ok)
}

func TestVerifyCachedHitStillChecksReplay(t *testing.T) {
	programID := testKey(9)
	payer := testKey(1)
	sigA := testSig(3)
	sigB := testSig(4)

	fl := &fakeLedger{records: map[string]*ledger.Record{
		sigA.String(): paymentRecord(programID, payer, sigA, 1_000_000, 42),
		sigB.String(): paymentRecord(programID, payer, sigB, 1_000_000, 42),
	}}
	guard := NewReplayGuard()
	cache := NewVerificationCache(0)
	v := NewPaymentVerifier(fl, NewDecoder(programID), guard, cache)

	require.True(t, v.Verify(context.Background(), sigA.String(), nil, nil).Verified)

	// Simulate a restart of the replay ledger only: the cached verdict for
	// sigA survives, but the nonce is then consumed by sigB.
	guard.Reset()
	require.True(t, v.Verify(context.Background(), sigB.String(), nil, nil).Verified)

	verdict := v.Verify(context.Background(), sigA.String(), nil, nil)
	require.False(t, verdict.Verified)
	assert.Equal(t, ReasonReplayDetected, verdict.FailureReason)
}
