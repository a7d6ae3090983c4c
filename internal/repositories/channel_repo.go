package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/collateral-pay/backend/internal/keys"
	"github.com/collateral-pay/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const channelColumns = `id, buyer, seller, seller_payout_address, amount_owed, amount_paid,
		       vault_address, vault_nonce, collateral_locked, collateral_withdrawn,
		       locked_amount, created_at, updated_at`

type ChannelRepo struct {
	db DBTX
}

func NewChannelRepo(db DBTX) *ChannelRepo {
	return &ChannelRepo{db: db}
}

func (r *ChannelRepo) Create(ctx context.Context, ch *models.PaymentChannel) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO payment_channels (buyer, seller, seller_payout_address, amount_owed, amount_paid,
		                              vault_address, vault_nonce, collateral_locked, collateral_withdrawn, locked_amount)
		VALUES ($1, $2, $3, $4, 0, $5, $6, false, false, 0)
		RETURNING id, created_at, updated_at
	`, ch.Buyer, ch.Seller, ch.SellerPayoutAddress, int64(ch.AmountOwed),
		ch.VaultAddress, int16(ch.VaultNonce),
	).Scan(&ch.ID, &ch.CreatedAt, &ch.UpdatedAt)
	if isUniqueViolation(err) {
		return models.ErrVaultInUse
	}
	return err
}

func (r *ChannelRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentChannel, error) {
	return r.scanOne(r.db.QueryRow(ctx, `SELECT `+channelColumns+` FROM payment_channels WHERE id = $1`, id))
}

func (r *ChannelRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.PaymentChannel, error) {
	return r.scanOne(r.db.QueryRow(ctx, `SELECT `+channelColumns+` FROM payment_channels WHERE id = $1 FOR UPDATE`, id))
}

// Update writes the mutable part of the record. Parties, obligation and
// vault binding are never touched after creation.
func (r *ChannelRepo) Update(ctx context.Context, ch *models.PaymentChannel) error {
	err := r.db.QueryRow(ctx, `
		UPDATE payment_channels SET
			amount_paid = $2,
			collateral_locked = $3,
			collateral_withdrawn = $4,
			locked_amount = $5,
			updated_at = now()
		WHERE id = $1 AND amount_paid <= $2
		RETURNING updated_at
	`, ch.ID, int64(ch.AmountPaid), ch.CollateralLocked, ch.CollateralWithdrawn, int64(ch.LockedAmount)).Scan(&ch.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("update channel %s: %w", ch.ID, models.ErrChannelNotFound)
	}
	return err
}

func (r *ChannelRepo) VaultBound(ctx context.Context, vaultAddr keys.Address) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM payment_channels WHERE vault_address = $1)", vaultAddr,
	).Scan(&exists)
	return exists, err
}

func (r *ChannelRepo) List(ctx context.Context, filter models.ChannelFilter) ([]models.PaymentChannel, error) {
	where := []string{"1=1"}
	args := []any{}
	argN := 1

	if filter.Buyer != nil {
		where = append(where, fmt.Sprintf("buyer = $%d", argN))
		args = append(args, *filter.Buyer)
		argN++
	}
	if filter.Seller != nil {
		where = append(where, fmt.Sprintf("seller = $%d", argN))
		args = append(args, *filter.Seller)
		argN++
	}
	if filter.Party != nil {
		where = append(where, fmt.Sprintf("(buyer = $%d OR seller = $%d)", argN, argN))
		args = append(args, *filter.Party)
		argN++
	}
	if filter.Locked != nil {
		where = append(where, fmt.Sprintf("collateral_locked = $%d", argN))
		args = append(args, *filter.Locked)
		argN++
	}

	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	var query string
	if filter.After != nil {
		where = append(where, fmt.Sprintf("(created_at, id) > ($%d, $%d)", argN, argN+1))
		args = append(args, filter.After.CreatedAt, filter.After.ID)
		argN += 2
		query = fmt.Sprintf(`SELECT %s FROM payment_channels WHERE %s ORDER BY created_at, id LIMIT $%d`,
			channelColumns, strings.Join(where, " AND "), argN)
		args = append(args, filter.Limit)
	} else {
		query = fmt.Sprintf(`SELECT %s FROM payment_channels WHERE %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
			channelColumns, strings.Join(where, " AND "), argN, argN+1)
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []models.PaymentChannel
	for rows.Next() {
		ch, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, *ch)
	}
	return channels, rows.Err()
}

func (r *ChannelRepo) scanOne(row pgx.Row) (*models.PaymentChannel, error) {
	var ch models.PaymentChannel
	var owed, paid, locked int64
	var nonce int16
	err := row.Scan(&ch.ID, &ch.Buyer, &ch.Seller, &ch.SellerPayoutAddress, &owed, &paid,
		&ch.VaultAddress, &nonce, &ch.CollateralLocked, &ch.CollateralWithdrawn,
		&locked, &ch.CreatedAt, &ch.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrChannelNotFound
	}
	if err != nil {
		return nil, err
	}
	ch.AmountOwed = uint64(owed)
	ch.AmountPaid = uint64(paid)
	ch.LockedAmount = uint64(locked)
	ch.VaultNonce = uint8(nonce)
	return &ch, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
