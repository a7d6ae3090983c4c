package keys

import (
	"crypto/ed25519"
	"database/sql/driver"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// AddressSize - длина адреса в байтах (ed25519 public key или derived address).
const AddressSize = 32

// Address identifies a party, a token account or a vault.
// Text form is base58, storage form is 32 raw bytes.
type Address [AddressSize]byte

// Zero is the unset address.
var Zero Address

func FromPublicKey(pub ed25519.PublicKey) (Address, error) {
	var a Address
	if len(pub) != ed25519.PublicKeySize {
		return a, fmt.Errorf("invalid public key size: %d", len(pub))
	}
	copy(a[:], pub)
	return a, nil
}

func FromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressSize {
		return a, fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// ParseAddress декодирует base58 строку.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Zero, fmt.Errorf("empty address")
	}
	b, err := base58.Decode(s)
	if err != nil {
		return Zero, fmt.Errorf("invalid base58 address %q: %w", s, err)
	}
	return FromBytes(b)
}

func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string {
	return base58.Encode(a[:])
}

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) IsZero() bool {
	return a == Zero
}

// IsOnCurve reports whether the address decodes to an ed25519 point,
// i.e. whether a private key can exist for it.
func (a Address) IsOnCurve() bool {
	_, err := new(edwards25519.Point).SetBytes(a[:])
	return err == nil
}

// PublicKey returns the address as an ed25519 verification key.
func (a Address) PublicKey() ed25519.PublicKey {
	pub := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(pub, a[:])
	return pub
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value stores the address as bytea.
func (a Address) Value() (driver.Value, error) {
	return a[:], nil
}

func (a *Address) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		parsed, err := FromBytes(v)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	case nil:
		*a = Zero
		return nil
	default:
		return fmt.Errorf("cannot scan %T into keys.Address", src)
	}
}
