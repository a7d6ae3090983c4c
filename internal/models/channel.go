package models

import (
	"time"

	"github.com/collateral-pay/backend/internal/keys"
	"github.com/google/uuid"
)

// Channel phases. Display only: validation works on the flags and AmountPaid.
const (
	PhaseCreated          = "created"
	PhaseCollateralLocked = "collateral_locked"
	PhasePartiallyPaid    = "partially_paid"
	PhaseFullyPaid        = "fully_paid"
	PhaseWithdrawn        = "withdrawn"
)

// PaymentChannel is the record of one buyer↔seller payment relationship.
type PaymentChannel struct {
	ID                  uuid.UUID    `json:"id"`
	Buyer               keys.Address `json:"buyer"`
	Seller              keys.Address `json:"seller"`
	SellerPayoutAddress keys.Address `json:"seller_payout_address"`
	AmountOwed          uint64       `json:"amount_owed"`
	AmountPaid          uint64       `json:"amount_paid"`
	VaultAddress        keys.Address `json:"vault_address"`
	VaultNonce          uint8        `json:"vault_nonce"`
	CollateralLocked    bool         `json:"collateral_locked"`
	CollateralWithdrawn bool         `json:"collateral_withdrawn"`
	LockedAmount        uint64       `json:"locked_amount"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// Remaining - сколько ещё осталось заплатить.
func (c *PaymentChannel) Remaining() uint64 {
	if c.AmountPaid >= c.AmountOwed {
		return 0
	}
	return c.AmountOwed - c.AmountPaid
}

func (c *PaymentChannel) FullyPaid() bool {
	return c.AmountPaid == c.AmountOwed
}

// ExpectedVaultBalance is what the vault must hold given the flags.
func (c *PaymentChannel) ExpectedVaultBalance() uint64 {
	if c.CollateralLocked && !c.CollateralWithdrawn {
		return c.LockedAmount
	}
	return 0
}

func (c *PaymentChannel) Phase() string {
	switch {
	case c.CollateralWithdrawn:
		return PhaseWithdrawn
	case c.FullyPaid():
		return PhaseFullyPaid
	case c.AmountPaid > 0:
		return PhasePartiallyPaid
	case c.CollateralLocked:
		return PhaseCollateralLocked
	default:
		return PhaseCreated
	}
}

// IsParty reports whether addr is the buyer or the seller.
func (c *PaymentChannel) IsParty(addr keys.Address) bool {
	return addr == c.Buyer || addr == c.Seller
}

// Clone returns an independent copy.
func (c *PaymentChannel) Clone() *PaymentChannel {
	cp := *c
	return &cp
}

// ChannelFilter selects channels for listing.
type ChannelFilter struct {
	Buyer  *keys.Address
	Seller *keys.Address
	// Party matches either side.
	Party  *keys.Address
	Locked *bool
	// After включает keyset-обход по (created_at, id) по возрастанию; Offset тогда не используется.
	After  *ChannelCursor
	Limit  int
	Offset int
}

// ChannelCursor is the (CreatedAt, ID) of the last row of the previous page.
// Rows inserted while paging sort after the cursor, so no row is returned twice.
type ChannelCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// CursorOf returns the cursor that continues after ch.
func CursorOf(ch *PaymentChannel) *ChannelCursor {
	return &ChannelCursor{CreatedAt: ch.CreatedAt, ID: ch.ID}
}
