package repositories

import (
	"context"

	"github.com/collateral-pay/backend/internal/keys"
	"github.com/collateral-pay/backend/internal/models"
	"github.com/collateral-pay/backend/internal/vault"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is the Postgres-backed Store. Each InTx runs in one database
// transaction; the channel row is locked with SELECT ... FOR UPDATE.
type PgStore struct {
	pool     *pgxpool.Pool
	channels *ChannelRepo
	ledger   *LedgerRepo
	audit    *AuditRepo
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{
		pool:     pool,
		channels: NewChannelRepo(pool),
		ledger:   NewLedgerRepo(pool),
		audit:    NewAuditRepo(pool),
	}
}

func (s *PgStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{
			channels: NewChannelRepo(tx),
			ledger:   NewLedgerRepo(tx),
			audit:    NewAuditRepo(tx),
		})
	})
}

func (s *PgStore) GetChannel(ctx context.Context, id uuid.UUID) (*models.PaymentChannel, error) {
	return s.channels.GetByID(ctx, id)
}

func (s *PgStore) ListChannels(ctx context.Context, filter models.ChannelFilter) ([]models.PaymentChannel, error) {
	return s.channels.List(ctx, filter)
}

func (s *PgStore) ListAudit(ctx context.Context, channelID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	return s.audit.GetByChannel(ctx, channelID, limit, offset)
}

func (s *PgStore) IsVaultBound(ctx context.Context, vaultAddr keys.Address) (bool, error) {
	return s.channels.VaultBound(ctx, vaultAddr)
}

func (s *PgStore) NativeBalance(ctx context.Context, addr keys.Address) (uint64, error) {
	return s.ledger.NativeBalance(ctx, addr)
}

func (s *PgStore) GetTokenAccount(ctx context.Context, addr keys.Address) (*models.TokenAccount, error) {
	return s.ledger.GetTokenAccount(ctx, addr)
}

type pgTx struct {
	channels *ChannelRepo
	ledger   *LedgerRepo
	audit    *AuditRepo
}

func (t *pgTx) InsertChannel(ctx context.Context, ch *models.PaymentChannel) error {
	return t.channels.Create(ctx, ch)
}

func (t *pgTx) GetChannelForUpdate(ctx context.Context, id uuid.UUID) (*models.PaymentChannel, error) {
	return t.channels.GetForUpdate(ctx, id)
}

func (t *pgTx) UpdateChannel(ctx context.Context, ch *models.PaymentChannel) error {
	return t.channels.Update(ctx, ch)
}

func (t *pgTx) VaultBound(ctx context.Context, vaultAddr keys.Address) (bool, error) {
	return t.channels.VaultBound(ctx, vaultAddr)
}

func (t *pgTx) NativeBalance(ctx context.Context, addr keys.Address) (uint64, error) {
	return t.ledger.NativeBalance(ctx, addr)
}

func (t *pgTx) TransferNative(ctx context.Context, from, to keys.Address, amount uint64) error {
	return t.ledger.TransferNative(ctx, from, to, amount)
}

func (t *pgTx) TransferNativeSigned(ctx context.Context, authority vault.Authority, to keys.Address, amount uint64) error {
	return t.ledger.TransferNativeSigned(ctx, authority, to, amount)
}

func (t *pgTx) TransferToken(ctx context.Context, from, to keys.Address, amount uint64, authority keys.Address) error {
	return t.ledger.TransferToken(ctx, from, to, amount, authority)
}

func (t *pgTx) LogAudit(ctx context.Context, entry models.AuditLog) error {
	return t.audit.Log(ctx, entry)
}
