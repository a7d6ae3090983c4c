package models

import "errors"

// Channel operation errors. Every one of them aborts the operation with no
// record change and no transfer.
var (
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInvalidParty            = errors.New("invalid party address")
	ErrVaultAddressMismatch    = errors.New("vault address does not match derivation")
	ErrVaultDerivationMismatch = errors.New("vault authority re-derivation mismatch")
	ErrVaultInUse              = errors.New("vault address already bound to a channel")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrAlreadyLocked           = errors.New("collateral already locked")
	ErrNothingLocked           = errors.New("no collateral locked")
	ErrAlreadyWithdrawn        = errors.New("collateral already withdrawn")
	ErrOverpayment             = errors.New("payment exceeds amount owed")
	ErrNotFullyPaid            = errors.New("cannot withdraw before full payment")
	ErrChannelNotFound         = errors.New("channel not found")
)

// Ledger errors, propagated verbatim from the transfer primitives.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotFound   = errors.New("account not found")
	ErrMintMismatch      = errors.New("token accounts have different mints")
)

// ErrorCode maps an error to a stable machine-readable code.
func ErrorCode(err error) string {
	for _, e := range codedErrors {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "internal"
}

var codedErrors = []struct {
	err  error
	code string
}{
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInvalidParty, "invalid_party"},
	{ErrVaultAddressMismatch, "vault_address_mismatch"},
	{ErrVaultDerivationMismatch, "vault_derivation_mismatch"},
	{ErrVaultInUse, "vault_in_use"},
	{ErrUnauthorized, "unauthorized"},
	{ErrAlreadyLocked, "already_locked"},
	{ErrNothingLocked, "nothing_locked"},
	{ErrAlreadyWithdrawn, "already_withdrawn"},
	{ErrOverpayment, "overpayment"},
	{ErrNotFullyPaid, "not_fully_paid"},
	{ErrChannelNotFound, "channel_not_found"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrAccountNotFound, "account_not_found"},
	{ErrMintMismatch, "mint_mismatch"},
}
