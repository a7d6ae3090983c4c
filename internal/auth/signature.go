package auth

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/collateral-pay/backend/internal/keys"
)

// SignInPrefix отделяет подпись входа от любых других подписей тем же ключом.
const SignInPrefix = "collateral-pay-signin/"

var ErrInvalidSignature = errors.New("invalid signature")

// SignInMessage is what the wallet signs for a challenge.
func SignInMessage(challenge string) []byte {
	return []byte(SignInPrefix + challenge)
}

// VerifySignIn проверяет ed25519 подпись challenge ключом addr.
// Адрес и есть публичный ключ, поэтому адрес вне кривой подписать нельзя.
func VerifySignIn(addr keys.Address, challenge, signatureHex string) error {
	if !addr.IsOnCurve() {
		return fmt.Errorf("address %s has no public key: %w", addr, ErrInvalidSignature)
	}

	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return fmt.Errorf("%w: not hex: %v", ErrInvalidSignature, err)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: size %d", ErrInvalidSignature, len(sig))
	}

	if !ed25519.Verify(addr.PublicKey(), SignInMessage(challenge), sig) {
		return ErrInvalidSignature
	}
	return nil
}
