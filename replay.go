package pulsar

import (
	"sync"

	solana "github.com/gagliardetto/solana-go"
)

// ReservationStatus is the outcome of a check-and-reserve call.
type ReservationStatus int

const (
	// ReservationNew means the nonce was free and is now reserved for the
	// owner signature.
	ReservationNew ReservationStatus = iota

	// ReservationHeld means the nonce is already reserved under the same
	// owner signature. Re-verification of the same transaction lands here.
	ReservationHeld

	// ReservationConflict means the nonce was consumed under a different
	// signature: a replay.
	ReservationConflict
)

// ReplayGuard tracks consumed (payer, nonce) pairs for the lifetime of the
// process. Reservations are tagged with the transaction signature that
// consumed them so that re-verifying the same transaction stays idempotent
// while a different transaction reusing the nonce is rejected.
//
// State grows monotonically until process restart and is lost with it; this
// is a best-effort in-memory guard by design.
type ReplayGuard struct {
	mu   sync.Mutex
	used map[string]map[uint64]string // payer -> nonce -> owner signature
}

// NewReplayGuard creates an empty guard.
func NewReplayGuard() *ReplayGuard {
	return &ReplayGuard{
		used: make(map[string]map[uint64]string),
	}
}

// CheckAndReserve atomically checks and reserves a (payer, nonce) pair for
// the owner signature. Under concurrent callers exactly one reservation for
// a free pair returns ReservationNew; every other caller observes Held or
// Conflict depending on ownership.
func (g *ReplayGuard) CheckAndReserve(payer solana.PublicKey, nonce uint64, owner string) ReservationStatus {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := payer.String()
	nonces := g.used[key]
	if nonces == nil {
		nonces = make(map[uint64]string)
		g.used[key] = nonces
	}

	if holder, ok := nonces[nonce]; ok {
		if holder == owner {
			return ReservationHeld
		}
		return ReservationConflict
	}

	nonces[nonce] = owner
	return ReservationNew
}

// IsUsed is a non-reserving peek for diagnostics. Authorization decisions
// must go through CheckAndReserve; peek-then-mark is a race.
func (g *ReplayGuard) IsUsed(payer solana.PublicKey, nonce uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	nonces, ok := g.used[payer.String()]
	if !ok {
		return false
	}
	_, used := nonces[nonce]
	return used
}

// Reset clears all reservations. For tests.
func (g *ReplayGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.used = make(map[string]map[uint64]string)
}
