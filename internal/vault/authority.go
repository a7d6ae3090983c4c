package vault

import (
	"errors"

	"github.com/collateral-pay/backend/internal/keys"
)

var ErrAuthorityMismatch = errors.New("re-derived vault authority does not match vault address")

// Authority is the signing capability of a derived vault. It carries no key:
// it is re-computed from the seeds and nonce each time funds leave the vault.
// The zero value is invalid.
type Authority struct {
	program keys.Address
	address keys.Address
	nonce   uint8
	valid   bool
}

// Sign re-derives the vault authority. Only code that has already validated
// the request should call it.
func Sign(program keys.Address, seeds [][]byte, nonce uint8) (Authority, error) {
	addr, err := CreateAddress(program, seeds, nonce)
	if err != nil {
		return Authority{}, err
	}
	return Authority{program: program, address: addr, nonce: nonce, valid: true}, nil
}

// SignFor re-derives the authority and checks it against the stored vault address.
func SignFor(program keys.Address, seeds [][]byte, nonce uint8, expected keys.Address) (Authority, error) {
	auth, err := Sign(program, seeds, nonce)
	if err != nil {
		return Authority{}, errors.Join(ErrAuthorityMismatch, err)
	}
	if auth.address != expected {
		return Authority{}, ErrAuthorityMismatch
	}
	return auth, nil
}

func (a Authority) Address() keys.Address { return a.address }

func (a Authority) Program() keys.Address { return a.program }

func (a Authority) Nonce() uint8 { return a.nonce }

func (a Authority) Valid() bool { return a.valid }
