package repositories

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/collateral-pay/backend/internal/keys"
	"github.com/collateral-pay/backend/internal/models"
	"github.com/collateral-pay/backend/internal/vault"
	"github.com/jackc/pgx/v5"
)

// LedgerRepo implements the native and token transfer primitives on top of
// native_accounts / token_accounts. It must run inside a transaction to be
// atomic with the channel update.
type LedgerRepo struct {
	db DBTX
}

func NewLedgerRepo(db DBTX) *LedgerRepo {
	return &LedgerRepo{db: db}
}

func (r *LedgerRepo) NativeBalance(ctx context.Context, addr keys.Address) (uint64, error) {
	var balance int64
	err := r.db.QueryRow(ctx, `SELECT balance FROM native_accounts WHERE address = $1`, addr).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(balance), nil
}

func (r *LedgerRepo) TransferNative(ctx context.Context, from, to keys.Address, amount uint64) error {
	if !from.IsOnCurve() {
		return fmt.Errorf("native transfer from derived address %s without authority: %w", from, models.ErrUnauthorized)
	}
	return r.moveNative(ctx, from, to, amount)
}

func (r *LedgerRepo) TransferNativeSigned(ctx context.Context, authority vault.Authority, to keys.Address, amount uint64) error {
	if !authority.Valid() {
		return fmt.Errorf("invalid vault authority: %w", models.ErrUnauthorized)
	}
	return r.moveNative(ctx, authority.Address(), to, amount)
}

func (r *LedgerRepo) moveNative(ctx context.Context, from, to keys.Address, amount uint64) error {
	if amount > math.MaxInt64 {
		return models.ErrInvalidAmount
	}
	if amount == 0 {
		return nil
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE native_accounts SET balance = balance - $2, updated_at = now()
		WHERE address = $1 AND balance >= $2
	`, from, int64(amount))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("native transfer of %d from %s: %w", amount, from, models.ErrInsufficientFunds)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO native_accounts (address, balance) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET
			balance = native_accounts.balance + EXCLUDED.balance,
			updated_at = now()
	`, to, int64(amount))
	return err
}

func (r *LedgerRepo) GetTokenAccount(ctx context.Context, addr keys.Address) (*models.TokenAccount, error) {
	return r.scanTokenAccount(r.db.QueryRow(ctx,
		`SELECT address, owner, mint, balance FROM token_accounts WHERE address = $1`, addr))
}

// TransferToken moves payment currency between two accounts of the same mint.
// authority must own the source account.
func (r *LedgerRepo) TransferToken(ctx context.Context, from, to keys.Address, amount uint64, authority keys.Address) error {
	if amount > math.MaxInt64 {
		return models.ErrInvalidAmount
	}

	src, err := r.scanTokenAccount(r.db.QueryRow(ctx,
		`SELECT address, owner, mint, balance FROM token_accounts WHERE address = $1 FOR UPDATE`, from))
	if err != nil {
		return fmt.Errorf("source token account %s: %w", from, err)
	}
	dst, err := r.scanTokenAccount(r.db.QueryRow(ctx,
		`SELECT address, owner, mint, balance FROM token_accounts WHERE address = $1 FOR UPDATE`, to))
	if err != nil {
		return fmt.Errorf("destination token account %s: %w", to, err)
	}

	if src.Owner != authority {
		return fmt.Errorf("token account %s not owned by %s: %w", from, authority, models.ErrUnauthorized)
	}
	if src.Mint != dst.Mint {
		return models.ErrMintMismatch
	}
	if src.Balance < amount {
		return fmt.Errorf("token transfer of %d from %s: %w", amount, from, models.ErrInsufficientFunds)
	}
	if amount == 0 || from == to {
		return nil
	}

	if _, err := r.db.Exec(ctx,
		`UPDATE token_accounts SET balance = balance - $2, updated_at = now() WHERE address = $1`,
		from, int64(amount)); err != nil {
		return err
	}
	_, err = r.db.Exec(ctx,
		`UPDATE token_accounts SET balance = balance + $2, updated_at = now() WHERE address = $1`,
		to, int64(amount))
	return err
}

func (r *LedgerRepo) scanTokenAccount(row pgx.Row) (*models.TokenAccount, error) {
	var acc models.TokenAccount
	var balance int64
	err := row.Scan(&acc.Address, &acc.Owner, &acc.Mint, &balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	acc.Balance = uint64(balance)
	return &acc, nil
}
