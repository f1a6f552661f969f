package http

import (
	"bytes"
	"context"
	"testing"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"

	pulsar "github.com/psyto/pulsar"
	"github.com/psyto/pulsar/ledger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeLedger struct {
	records map[string]*ledger.Record
}

func (f *fakeLedger) GetTransaction(_ context.Context, sig solana.Signature) (*ledger.Record, error) {
	rec, ok := f.records[sig.String()]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return rec, nil
}

func (f *fakeLedger) GetLatestBlockhash(context.Context) (*ledger.Blockhash, error) {
	return &ledger.Blockhash{LastValidBlockHeight: 12345}, nil
}

var _ ledger.Client = (*fakeLedger)(nil)

func testKey(b byte) solana.PublicKey {
	return solana.PublicKeyFromBytes(bytes.Repeat([]byte{b}, 32))
}

func testSig(b byte) solana.Signature {
	var sig solana.Signature
	copy(sig[:], bytes.Repeat([]byte{b}, 64))
	return sig
}

func paymentRecord(t *testing.T, programID, payer solana.PublicKey, sig solana.Signature, amount, nonce uint64) *ledger.Record {
	t.Helper()
	data, err := pulsar.EncodePaymentInstruction(pulsar.PaymentInstruction{
		Amount: amount,
		Nonce:  nonce,
	})
	if err != nil {
		t.Fatal(err)
	}
	return &ledger.Record{
		Signature: sig,
		BlockTime: 1700000000,
		Envelope: &ledger.LegacyEnvelope{
			Signatures:            []solana.Signature{sig},
			NumRequiredSignatures: 1,
			AccountKeys:           []solana.PublicKey{payer, programID},
			Raw: []ledger.Instruction{
				{ProgramIDIndex: 1, Data: data},
			},
		},
	}
}

type routerFixture struct {
	router   *gin.Engine
	verifier *pulsar.PaymentVerifier
	ledger   *fakeLedger
	limiter  *WalletRateLimiter
}

type fixtureOption func(*GateConfig, *routerFixture)

func withDemoMode() fixtureOption {
	return func(gc *GateConfig, _ *routerFixture) { gc.AllowDemoMode = true }
}

func withClock(now func() time.Time) fixtureOption {
	return func(gc *GateConfig, _ *routerFixture) { gc.Now = now }
}

func withLimiter(l *WalletRateLimiter) fixtureOption {
	return func(_ *GateConfig, f *routerFixture) { f.limiter = l }
}

func newFixture(programID solana.PublicKey, records map[string]*ledger.Record, opts ...fixtureOption) *routerFixture {
	fl := &fakeLedger{records: records}
	verifier := pulsar.NewPaymentVerifier(fl,
		pulsar.NewDecoder(programID),
		pulsar.NewReplayGuard(),
		pulsar.NewVerificationCache(0),
	)

	gate := GateConfig{
		Payment: PaymentDetails{
			Amount:    "0.01",
			Currency:  "USDC",
			Recipient: testKey(2).String(),
			Network:   "solana",
			ProgramID: programID.String(),
		},
		TokenDecimals: 6,
	}
	f := &routerFixture{
		verifier: verifier,
		ledger:   fl,
		limiter:  NewWalletRateLimiter(time.Minute, 100),
	}
	for _, opt := range opts {
		opt(&gate, f)
	}

	f.router = NewRouter(RouterConfig{
		Verifier: verifier,
		Ledger:   fl,
		Gate:     gate,
		Limiter:  f.limiter,
	})
	return f
}
