// Package pulsar implements payment verification and replay protection for a
// pay-per-call data API gated by on-chain payments.
//
// A caller either completes a payment transaction against the configured
// payment program and presents its signature, or signs an application-layer
// message with their wallet key. The core of the package is the
// PaymentVerifier, which fetches the transaction from the ledger, extracts a
// PaymentEvent from it, enforces one-time nonce use through the ReplayGuard,
// and caches the resulting Verdict.
package pulsar

import (
	solana "github.com/gagliardetto/solana-go"
)

// PaymentEvent is the economic fact extracted from a ledger transaction.
// It is constructed fresh per verification attempt and never mutated.
type PaymentEvent struct {
	// Payer is the first required signer of the transaction.
	Payer solana.PublicKey

	// Amount is the transferred token amount in smallest units.
	Amount uint64

	// Nonce is the caller-chosen uniqueness token from the instruction
	// payload, or a value derived from the transaction signature when the
	// payload carried none.
	Nonce uint64

	// NonceDerived is true when Nonce was derived from signature bytes
	// rather than read from the instruction payload. Derived nonces are
	// collision-prone and give weaker replay protection.
	NonceDerived bool

	// ObservedAt is the block time in Unix seconds, or the wall clock at
	// verification when the ledger reported no block time.
	ObservedAt int64
}

// Verdict is the outcome of a verification attempt for one transaction
// signature. Verdicts are immutable once created; re-verification of a
// rejected signature derives a new Verdict rather than mutating an old one.
type Verdict struct {
	Verified   bool   `json:"verified"`
	Signature  string `json:"signature"`
	Payer      string `json:"payer,omitempty"`
	Amount     uint64 `json:"amount"`
	Nonce      uint64 `json:"nonce"`
	ObservedAt int64  `json:"observedAt"`

	// FailureReason carries one of the Reason* codes when Verified is false.
	FailureReason string `json:"failureReason,omitempty"`
}
