package models

import "github.com/collateral-pay/backend/internal/keys"

// NativeAccount holds native currency (collateral).
type NativeAccount struct {
	Address keys.Address `json:"address"`
	Balance uint64       `json:"balance"`
}

// TokenAccount holds payment currency of a single mint.
type TokenAccount struct {
	Address keys.Address `json:"address"`
	Owner   keys.Address `json:"owner"`
	Mint    keys.Address `json:"mint"`
	Balance uint64       `json:"balance"`
}
