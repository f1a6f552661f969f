package pulsar

import (
	"crypto/ed25519"
	"encoding/base64"

	solana "github.com/gagliardetto/solana-go"
)

// VerifyDetached reports whether signature is a valid Ed25519 signature of
// message under publicKey. It fails closed: malformed input (wrong-length
// key or signature) yields false, never a panic into caller logic.
func VerifyDetached(message, signature, publicKey []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature)
}

// VerifyWalletSignature checks a base64-encoded detached signature over
// message for a base58 wallet address. Any decoding failure yields false.
func VerifyWalletSignature(message, signatureB64, walletAddress string) bool {
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false
	}
	key, err := solana.PublicKeyFromBase58(walletAddress)
	if err != nil {
		return false
	}
	return VerifyDetached([]byte(message), sig, key.Bytes())
}
