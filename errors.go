package pulsar

import "fmt"

// Rejection reason codes. Every failed verification is classified under one
// of these and surfaced to the HTTP layer as a structured payload; none are
// fatal process errors.
const (
	ReasonNotFound           = "transaction_not_found"
	ReasonTransactionFailed  = "transaction_failed"
	ReasonDecodeFailed       = "decode_failed"
	ReasonInsufficientAmount = "insufficient_amount"
	ReasonNonceMismatch      = "nonce_mismatch"
	ReasonReplayDetected     = "replay_detected"
	ReasonWrongProgram       = "wrong_program"
	ReasonInvalidSignature   = "invalid_signature"
	ReasonTimestampExpired   = "timestamp_expired"
	ReasonMissingCredentials = "missing_credentials"

	// ReasonVerificationFailed covers unexpected ledger client failures
	// (network errors and the like). Retry policy belongs to the caller.
	ReasonVerificationFailed = "verification_failed"
)

// VerificationError classifies a verification failure.
type VerificationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewVerificationError creates a classified verification error.
func NewVerificationError(code, message string) *VerificationError {
	return &VerificationError{Code: code, Message: message}
}
