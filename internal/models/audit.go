package models

import (
	"time"

	"github.com/collateral-pay/backend/internal/keys"
	"github.com/google/uuid"
)

// Audit actions
const (
	AuditChannelCreated      = "channel_created"
	AuditCollateralLocked    = "collateral_locked"
	AuditPaymentApplied      = "payment_applied"
	AuditCollateralWithdrawn = "collateral_withdrawn"
)

type AuditLog struct {
	ID        uuid.UUID    `json:"id"`
	Actor     keys.Address `json:"actor"`
	ActorType string       `json:"actor_type"` // buyer/system
	Action    string       `json:"action"`
	ChannelID uuid.UUID    `json:"channel_id"`
	Meta      any          `json:"meta,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}
