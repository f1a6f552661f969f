package pulsar

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"

	"github.com/psyto/pulsar/ledger"
)

// paymentLogMarkers are log fragments emitted when the payment program's
// process_payment instruction runs.
var paymentLogMarkers = []string{
	"PaymentProcessed",
	"process_payment",
	"ProcessPayment",
}

// paymentInstructionLen is the fixed size of the payment instruction data:
// 8-byte discriminator, 8-byte little-endian amount, 8-byte little-endian
// nonce.
const paymentInstructionLen = 24

// PaymentInstruction is the binary layout of the payment program's
// process_payment instruction data.
type PaymentInstruction struct {
	Discriminator [8]byte
	Amount        uint64
	Nonce         uint64
}

// EncodePaymentInstruction serializes the instruction into its fixed 24-byte
// wire layout.
func EncodePaymentInstruction(ix PaymentInstruction) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := bin.NewBinEncoder(buf).Encode(ix); err != nil {
		return nil, fmt.Errorf("encode payment instruction: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePaymentInstruction parses the fixed 24-byte payment instruction
// layout.
func DecodePaymentInstruction(data []byte) (PaymentInstruction, error) {
	var ix PaymentInstruction
	if len(data) < paymentInstructionLen {
		return ix, fmt.Errorf("payment instruction data too short: %d bytes", len(data))
	}
	if err := bin.NewBinDecoder(data).Decode(&ix); err != nil {
		return ix, fmt.Errorf("decode payment instruction: %w", err)
	}
	return ix, nil
}

// Decoder extracts PaymentEvents from fetched ledger records. It handles
// both envelope encodings and three extraction strategies: the instruction
// payload, token-balance diffs, and the log-message probe.
type Decoder struct {
	programID           solana.PublicKey
	requirePayloadNonce bool
	now                 func() time.Time
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithRequirePayloadNonce makes the absence of an instruction-payload nonce a
// hard decode failure instead of falling back to a signature-derived nonce.
// Recommended for production deployments; the fallback nonce is
// collision-prone.
func WithRequirePayloadNonce() DecoderOption {
	return func(d *Decoder) { d.requirePayloadNonce = true }
}

func withClock(now func() time.Time) DecoderOption {
	return func(d *Decoder) { d.now = now }
}

// NewDecoder creates a decoder for the given payment program identity.
func NewDecoder(programID solana.PublicKey, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		programID: programID,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode extracts a PaymentEvent from the record. It returns a
// VerificationError classified as transaction_failed when the ledger
// reported an execution error, or decode_failed when the record carries no
// recognizable payment evidence. Both are terminal; the caller must not
// retry with the same signature.
func (d *Decoder) Decode(rec *ledger.Record) (PaymentEvent, error) {
	if rec.Failed {
		return PaymentEvent{}, NewVerificationError(ReasonTransactionFailed,
			fmt.Sprintf("transaction failed on ledger: %s", rec.ExecutionErr))
	}
	if !d.hasLogEvidence(rec) && !d.TargetsProgram(rec) {
		return PaymentEvent{}, NewVerificationError(ReasonDecodeFailed,
			"no payment instruction or log evidence in transaction")
	}

	payer, ok := rec.Envelope.Payer()
	if !ok {
		return PaymentEvent{}, NewVerificationError(ReasonDecodeFailed,
			"transaction has no required signers")
	}

	ev := PaymentEvent{Payer: payer}

	if ix, ok := d.paymentInstruction(rec); ok {
		ev.Amount = ix.Amount
		ev.Nonce = ix.Nonce
	}

	// Instruction payload absent, malformed, or zero: fall back to summing
	// the payer-side negative token balance deltas.
	if ev.Amount == 0 {
		ev.Amount = sumOutgoingTokenDeltas(rec)
	}

	if ev.Nonce == 0 {
		if d.requirePayloadNonce {
			return PaymentEvent{}, NewVerificationError(ReasonDecodeFailed,
				"payment instruction carries no nonce")
		}
		sig, ok := rec.Envelope.PrimarySignature()
		if !ok {
			return PaymentEvent{}, NewVerificationError(ReasonDecodeFailed,
				"transaction has no signature to derive a nonce from")
		}
		ev.Nonce = fallbackNonce(sig)
		ev.NonceDerived = true
	}

	if rec.BlockTime != 0 {
		ev.ObservedAt = rec.BlockTime
	} else {
		ev.ObservedAt = d.now().Unix()
	}

	return ev, nil
}

// TargetsProgram reports whether any instruction in the record invokes the
// configured payment program.
func (d *Decoder) TargetsProgram(rec *ledger.Record) bool {
	for _, ix := range rec.Envelope.Instructions() {
		if ix.ProgramID.Equals(d.programID) {
			return true
		}
	}
	return false
}

func (d *Decoder) hasLogEvidence(rec *ledger.Record) bool {
	for _, log := range rec.LogMessages {
		for _, marker := range paymentLogMarkers {
			if strings.Contains(log, marker) {
				return true
			}
		}
	}
	return false
}

func (d *Decoder) paymentInstruction(rec *ledger.Record) (PaymentInstruction, bool) {
	for _, ix := range rec.Envelope.Instructions() {
		if !ix.ProgramID.Equals(d.programID) {
			continue
		}
		decoded, err := DecodePaymentInstruction(ix.Data)
		if err != nil {
			continue
		}
		return decoded, true
	}
	return PaymentInstruction{}, false
}

// sumOutgoingTokenDeltas sums the negative balance changes across matching
// pre/post token-account pairs. A negative delta is an outgoing transfer,
// which for the payment transaction equals the amount paid.
func sumOutgoingTokenDeltas(rec *ledger.Record) uint64 {
	var total uint64
	for _, pre := range rec.PreTokenBalances {
		for _, post := range rec.PostTokenBalances {
			if post.AccountIndex != pre.AccountIndex || !post.Mint.Equals(pre.Mint) {
				continue
			}
			if post.Amount < pre.Amount {
				total += pre.Amount - post.Amount
			}
			break
		}
	}
	return total
}

// fallbackNonce derives a nonce from the first 8 bytes of the primary
// signature. Collisions are possible; this exists only to keep exact replays
// of payload-less transactions detectable.
func fallbackNonce(sig solana.Signature) uint64 {
	var sum uint64
	for _, b := range sig[:8] {
		sum += uint64(b)
	}
	return sum
}
