package repositories

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/collateral-pay/backend/internal/keys"
	"github.com/collateral-pay/backend/internal/models"
	"github.com/jackc/pgx/v5"
)

var ErrChallengeInvalid = errors.New("challenge unknown, used or expired")

type ChallengeRepo struct {
	db DBTX
}

func NewChallengeRepo(db DBTX) *ChallengeRepo {
	return &ChallengeRepo{db: db}
}

func (r *ChallengeRepo) CreateChallenge(ctx context.Context, addr keys.Address, ttl time.Duration) (*models.AuthChallenge, error) {
	c := &models.AuthChallenge{
		Address:   addr,
		Challenge: generateNonce(32),
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO auth_challenges (address, challenge, expires_at)
		VALUES ($1, $2, now() + make_interval(secs => $3))
		RETURNING id, created_at, expires_at
	`, addr, c.Challenge, ttl.Seconds()).Scan(&c.ID, &c.CreatedAt, &c.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ConsumeChallenge marks the challenge used. It succeeds once per challenge.
func (r *ChallengeRepo) ConsumeChallenge(ctx context.Context, addr keys.Address, challenge string) (*models.AuthChallenge, error) {
	var c models.AuthChallenge
	err := r.db.QueryRow(ctx, `
		UPDATE auth_challenges
		SET used = true
		WHERE challenge = $1 AND address = $2 AND used = false AND expires_at > now()
		RETURNING id, address, challenge, created_at, expires_at, used
	`, challenge, addr).Scan(&c.ID, &c.Address, &c.Challenge, &c.CreatedAt, &c.ExpiresAt, &c.Used)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrChallengeInvalid
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ChallengeRepo) PurgeExpiredChallenges(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM auth_challenges WHERE expires_at < now() OR used = true`)
	if err != nil {
		return 0, fmt.Errorf("purge challenges: %w", err)
	}
	return tag.RowsAffected(), nil
}

func generateNonce(bytes int) string {
	b := make([]byte, bytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
