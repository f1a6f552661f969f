// Package ledger provides read access to the Solana ledger and the core's
// view of a fetched transaction.
//
// The ledger returns transactions in one of two wire encodings: legacy (a
// flat account-key list) and versioned (static keys plus address-table
// lookups). Rather than passing loosely-typed RPC payloads around, the
// package maps each into an explicit Envelope variant; unknown shapes are
// rejected at the mapping boundary instead of falling through silently.
package ledger

import (
	solana "github.com/gagliardetto/solana-go"
)

// Encoding tags the wire encoding of a transaction envelope.
type Encoding string

const (
	EncodingLegacy    Encoding = "legacy"
	EncodingVersioned Encoding = "versioned"
)

// Instruction is a compiled instruction as carried in the message, with its
// program referenced by index into the envelope's account-key list.
type Instruction struct {
	ProgramIDIndex uint16
	Data           []byte
}

// ResolvedInstruction is an instruction whose program identity has been
// resolved against the envelope's keys.
type ResolvedInstruction struct {
	ProgramID solana.PublicKey
	Data      []byte
}

// TokenBalance is a token-account balance snapshot from transaction metadata,
// taken before or after execution.
type TokenBalance struct {
	AccountIndex uint16
	Mint         solana.PublicKey
	Amount       uint64
}

// Envelope is one of the two transaction wire encodings. Callers must not
// assume which variant a record carries.
type Envelope interface {
	Encoding() Encoding

	// Payer returns the first required signer, the identity that paid.
	Payer() (solana.PublicKey, bool)

	// PrimarySignature returns the transaction's first signature.
	PrimarySignature() (solana.Signature, bool)

	// Instructions returns the instructions whose program identity could be
	// resolved from the envelope's own keys.
	Instructions() []ResolvedInstruction
}

// LegacyEnvelope is the legacy encoding: a single signer-prefixed account-key
// list that every instruction indexes into.
type LegacyEnvelope struct {
	Signatures            []solana.Signature
	NumRequiredSignatures uint8
	AccountKeys           []solana.PublicKey
	Raw                   []Instruction
}

func (e *LegacyEnvelope) Encoding() Encoding { return EncodingLegacy }

func (e *LegacyEnvelope) Payer() (solana.PublicKey, bool) {
	if len(e.AccountKeys) == 0 || e.NumRequiredSignatures == 0 {
		return solana.PublicKey{}, false
	}
	return e.AccountKeys[0], true
}

func (e *LegacyEnvelope) PrimarySignature() (solana.Signature, bool) {
	if len(e.Signatures) == 0 {
		return solana.Signature{}, false
	}
	return e.Signatures[0], true
}

func (e *LegacyEnvelope) Instructions() []ResolvedInstruction {
	return resolveInstructions(e.Raw, e.AccountKeys)
}

// VersionedEnvelope is the versioned encoding: static account keys plus
// address-table lookups. Table-loaded keys are not resolved here; a program
// invoked directly is always a static key, so instructions referencing loaded
// keys are skipped during resolution.
type VersionedEnvelope struct {
	Signatures            []solana.Signature
	NumRequiredSignatures uint8
	StaticAccountKeys     []solana.PublicKey
	Raw                   []Instruction
	AddressTableCount     int
}

func (e *VersionedEnvelope) Encoding() Encoding { return EncodingVersioned }

func (e *VersionedEnvelope) Payer() (solana.PublicKey, bool) {
	if len(e.StaticAccountKeys) == 0 || e.NumRequiredSignatures == 0 {
		return solana.PublicKey{}, false
	}
	return e.StaticAccountKeys[0], true
}

func (e *VersionedEnvelope) PrimarySignature() (solana.Signature, bool) {
	if len(e.Signatures) == 0 {
		return solana.Signature{}, false
	}
	return e.Signatures[0], true
}

func (e *VersionedEnvelope) Instructions() []ResolvedInstruction {
	return resolveInstructions(e.Raw, e.StaticAccountKeys)
}

func resolveInstructions(raw []Instruction, keys []solana.PublicKey) []ResolvedInstruction {
	out := make([]ResolvedInstruction, 0, len(raw))
	for _, ix := range raw {
		if int(ix.ProgramIDIndex) >= len(keys) {
			continue
		}
		out = append(out, ResolvedInstruction{
			ProgramID: keys[ix.ProgramIDIndex],
			Data:      ix.Data,
		})
	}
	return out
}

// Record is a fetched transaction together with its execution metadata.
type Record struct {
	Signature solana.Signature
	Slot      uint64

	// BlockTime is Unix seconds, or zero when the ledger omitted it.
	BlockTime int64

	// Failed reports a ledger-side execution error; ExecutionErr carries its
	// rendering.
	Failed       bool
	ExecutionErr string

	LogMessages       []string
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance

	Envelope Envelope
}
