package repositories

import (
	"context"
	"time"

	"github.com/collateral-pay/backend/internal/keys"
	"github.com/collateral-pay/backend/internal/models"
	"github.com/collateral-pay/backend/internal/vault"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Tx is one atomic unit of work. Nothing done through it is visible
// outside until the enclosing InTx returns nil.
type Tx interface {
	InsertChannel(ctx context.Context, ch *models.PaymentChannel) error
	// GetChannelForUpdate loads the record and holds it until commit.
	GetChannelForUpdate(ctx context.Context, id uuid.UUID) (*models.PaymentChannel, error)
	UpdateChannel(ctx context.Context, ch *models.PaymentChannel) error
	VaultBound(ctx context.Context, vaultAddr keys.Address) (bool, error)

	NativeBalance(ctx context.Context, addr keys.Address) (uint64, error)
	// TransferNative moves native currency out of a key-holding account.
	// Derived (off-curve) sources are refused with ErrUnauthorized.
	TransferNative(ctx context.Context, from, to keys.Address, amount uint64) error
	// TransferNativeSigned moves native currency out of a derived vault.
	TransferNativeSigned(ctx context.Context, authority vault.Authority, to keys.Address, amount uint64) error
	TransferToken(ctx context.Context, from, to keys.Address, amount uint64, authority keys.Address) error

	LogAudit(ctx context.Context, entry models.AuditLog) error
}

// Store is the persistent state behind the channel state machine.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetChannel(ctx context.Context, id uuid.UUID) (*models.PaymentChannel, error)
	ListChannels(ctx context.Context, filter models.ChannelFilter) ([]models.PaymentChannel, error)
	ListAudit(ctx context.Context, channelID uuid.UUID, limit, offset int) ([]models.AuditLog, error)
	IsVaultBound(ctx context.Context, vaultAddr keys.Address) (bool, error)

	NativeBalance(ctx context.Context, addr keys.Address) (uint64, error)
	GetTokenAccount(ctx context.Context, addr keys.Address) (*models.TokenAccount, error)
}

// ChallengeStore keeps one-time sign-in challenges.
type ChallengeStore interface {
	CreateChallenge(ctx context.Context, addr keys.Address, ttl time.Duration) (*models.AuthChallenge, error)
	ConsumeChallenge(ctx context.Context, addr keys.Address, challenge string) (*models.AuthChallenge, error)
	PurgeExpiredChallenges(ctx context.Context) (int64, error)
}
