package handlers

import (
	"github.com/collateral-pay/backend/internal/auth"
	"github.com/collateral-pay/backend/internal/http/dto"
	"github.com/collateral-pay/backend/internal/keys"
	"github.com/collateral-pay/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService *services.AuthService
	log         *zap.Logger
}

func NewAuthHandler(authService *services.AuthService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, log: log}
}

// Challenge выдаёт nonce для входа по подписи.
func (h *AuthHandler) Challenge(c *fiber.Ctx) error {
	var req dto.ChallengeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	addr, err := keys.ParseAddress(req.Address)
	if err != nil {
		return badRequest(c, "invalid address")
	}

	ch, err := h.authService.IssueChallenge(c.Context(), addr)
	if err != nil {
		return writeError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.ChallengeResponse{
		Challenge: ch.Challenge,
		Message:   string(auth.SignInMessage(ch.Challenge)),
		ExpiresAt: ch.ExpiresAt,
	}})
}

func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	var req dto.VerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	addr, err := keys.ParseAddress(req.Address)
	if err != nil {
		return badRequest(c, "invalid address")
	}
	if req.Challenge == "" || req.Signature == "" {
		return badRequest(c, "challenge and signature are required")
	}

	res, err := h.authService.Verify(c.Context(), addr, req.Challenge, req.Signature)
	if err != nil {
		h.log.Debug("sign-in failed", zap.String("address", addr.String()), zap.Error(err))
		return writeError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: res})
}
