package services

import (
	"context"
	"fmt"
	"time"

	"github.com/collateral-pay/backend/internal/auth"
	"github.com/collateral-pay/backend/internal/config"
	"github.com/collateral-pay/backend/internal/keys"
	"github.com/collateral-pay/backend/internal/models"
	"github.com/collateral-pay/backend/internal/repositories"
	"go.uber.org/zap"
)

type AuthService struct {
	challenges repositories.ChallengeStore
	cfg        *config.Config
	log        *zap.Logger
}

func NewAuthService(challenges repositories.ChallengeStore, cfg *config.Config, log *zap.Logger) *AuthService {
	return &AuthService{challenges: challenges, cfg: cfg, log: log}
}

// IssueChallenge создаёт одноразовый nonce, который кошелёк addr должен подписать.
func (s *AuthService) IssueChallenge(ctx context.Context, addr keys.Address) (*models.AuthChallenge, error) {
	// адрес вне кривой (vault) подписать ничего не может
	if addr.IsZero() || !addr.IsOnCurve() {
		return nil, fmt.Errorf("address %s cannot sign: %w", addr, models.ErrInvalidParty)
	}
	c, err := s.challenges.CreateChallenge(ctx, addr, s.cfg.ChallengeTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}
	return c, nil
}

type SignInResult struct {
	Token     string       `json:"token"`
	Address   keys.Address `json:"address"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Verify проверяет подпись challenge и выдаёт JWT с identity вызывающего.
func (s *AuthService) Verify(ctx context.Context, addr keys.Address, challenge, signatureHex string) (*SignInResult, error) {
	// 1. Consume challenge - защита от replay
	if _, err := s.challenges.ConsumeChallenge(ctx, addr, challenge); err != nil {
		return nil, fmt.Errorf("invalid or expired challenge: %w", err)
	}

	// 2. Подпись
	if err := auth.VerifySignIn(addr, challenge, signatureHex); err != nil {
		s.log.Warn("sign-in signature rejected", zap.String("address", addr.String()), zap.Error(err))
		return nil, fmt.Errorf("signature verification failed: %w", err)
	}

	// 3. JWT
	token, err := auth.GenerateJWT(s.cfg.JWTSecret, addr, s.cfg.JWTExpiration)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	s.log.Info("signed in", zap.String("address", addr.String()))
	return &SignInResult{
		Token:     token,
		Address:   addr,
		ExpiresAt: time.Now().Add(s.cfg.JWTExpiration),
	}, nil
}

// PurgeChallenges удаляет использованные и просроченные challenge.
func (s *AuthService) PurgeChallenges(ctx context.Context) (int64, error) {
	return s.challenges.PurgeExpiredChallenges(ctx)
}
