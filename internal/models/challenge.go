package models

import (
	"time"

	"github.com/collateral-pay/backend/internal/keys"
	"github.com/google/uuid"
)

// AuthChallenge - одноразовый nonce для входа по подписи.
type AuthChallenge struct {
	ID        uuid.UUID    `json:"id"`
	Address   keys.Address `json:"address"`
	Challenge string       `json:"challenge"`
	CreatedAt time.Time    `json:"-"`
	ExpiresAt time.Time    `json:"expires_at"`
	Used      bool         `json:"-"`
}
