package validation

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// ValidateWalletAddress checks that an address is well-formed base58
// decoding to exactly 32 bytes. Off-curve points are legal addresses
// (program-derived accounts live off the curve), so curve membership is
// not required here; use IsOnCurve when the distinction matters.
func ValidateWalletAddress(addr string) error {
	raw, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("not valid base58: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("decoded to %d bytes, want 32", len(raw))
	}
	return nil
}

// IsOnCurve reports whether the address decodes to a valid ed25519 point,
// meaning it can be a signing wallet rather than a derived account.
func IsOnCurve(addr string) bool {
	raw, err := base58.Decode(addr)
	if err != nil || len(raw) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}
