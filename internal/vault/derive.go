package vault

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/collateral-pay/backend/internal/keys"
)

const (
	// MaxSeeds и MaxSeedLength ограничивают входы деривации.
	MaxSeeds      = 16
	MaxSeedLength = 32

	derivationMarker = "ProgramDerivedAddress"
)

var (
	ErrOnCurve        = errors.New("derived address lies on the ed25519 curve")
	ErrMaxSeedLength  = errors.New("seed exceeds maximum length")
	ErrTooManySeeds   = errors.New("too many seeds")
	ErrNoValidAddress = errors.New("no off-curve address for any nonce")
)

// CreateAddress derives the vault address for the given seeds and nonce:
//
//	sha256(seed_1 || ... || seed_n || nonce || program || "ProgramDerivedAddress")
//
// A digest that decodes as a curve point is rejected: someone could hold its key.
func CreateAddress(program keys.Address, seeds [][]byte, nonce uint8) (keys.Address, error) {
	if len(seeds) > MaxSeeds {
		return keys.Zero, ErrTooManySeeds
	}

	h := sha256.New()
	for _, s := range seeds {
		if len(s) > MaxSeedLength {
			return keys.Zero, fmt.Errorf("%w: %d bytes", ErrMaxSeedLength, len(s))
		}
		h.Write(s)
	}
	h.Write([]byte{nonce})
	h.Write(program[:])
	h.Write([]byte(derivationMarker))

	var addr keys.Address
	copy(addr[:], h.Sum(nil))

	if addr.IsOnCurve() {
		return keys.Zero, ErrOnCurve
	}
	return addr, nil
}

// FindAddress walks nonces from 255 down and returns the first valid address.
func FindAddress(program keys.Address, seeds [][]byte) (keys.Address, uint8, error) {
	var addr keys.Address
	nonce, err := Scan(program, seeds, func(a keys.Address, _ uint8) bool {
		addr = a
		return true
	})
	if err != nil {
		return keys.Zero, 0, err
	}
	return addr, nonce, nil
}

// Scan calls accept for every valid (address, nonce) pair in descending nonce
// order until accept returns true. It returns the accepted nonce.
func Scan(program keys.Address, seeds [][]byte, accept func(keys.Address, uint8) bool) (uint8, error) {
	for n := 255; n >= 0; n-- {
		nonce := uint8(n)
		addr, err := CreateAddress(program, seeds, nonce)
		if errors.Is(err, ErrOnCurve) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if accept(addr, nonce) {
			return nonce, nil
		}
	}
	return 0, ErrNoValidAddress
}

// BuyerSeeds returns the seed set used for a channel vault.
func BuyerSeeds(buyer keys.Address) [][]byte {
	return [][]byte{buyer.Bytes()}
}
