package handlers

import (
	"errors"

	"github.com/collateral-pay/backend/internal/auth"
	"github.com/collateral-pay/backend/internal/http/dto"
	"github.com/collateral-pay/backend/internal/middleware"
	"github.com/collateral-pay/backend/internal/models"
	"github.com/collateral-pay/backend/internal/repositories"
	"github.com/collateral-pay/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// StatusFor maps a domain error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrInvalidParty),
		errors.Is(err, services.ErrInvalidFilter),
		errors.Is(err, dto.ErrBadAmount):
		return fiber.StatusBadRequest
	case errors.Is(err, repositories.ErrChallengeInvalid),
		errors.Is(err, auth.ErrInvalidSignature):
		return fiber.StatusUnauthorized
	case errors.Is(err, models.ErrUnauthorized):
		return fiber.StatusForbidden
	case errors.Is(err, models.ErrChannelNotFound),
		errors.Is(err, models.ErrAccountNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, models.ErrAlreadyLocked),
		errors.Is(err, models.ErrNothingLocked),
		errors.Is(err, models.ErrAlreadyWithdrawn),
		errors.Is(err, models.ErrOverpayment),
		errors.Is(err, models.ErrNotFullyPaid),
		errors.Is(err, models.ErrVaultInUse):
		return fiber.StatusConflict
	case errors.Is(err, models.ErrInsufficientFunds),
		errors.Is(err, models.ErrMintMismatch),
		errors.Is(err, models.ErrVaultAddressMismatch),
		errors.Is(err, models.ErrVaultDerivationMismatch):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, services.ErrInvalidFilter):
		return "invalid_filter"
	case errors.Is(err, dto.ErrBadAmount):
		return "bad_amount"
	case errors.Is(err, repositories.ErrChallengeInvalid):
		return "challenge_invalid"
	case errors.Is(err, auth.ErrInvalidSignature):
		return "invalid_signature"
	}
	return models.ErrorCode(err)
}

// writeError renders err; internal errors are logged and not echoed to the client.
func writeError(c *fiber.Ctx, log *zap.Logger, err error) error {
	status := StatusFor(err)
	resp := dto.ErrorResponse{
		Error:     err.Error(),
		Code:      codeFor(err),
		RequestID: middleware.GetRequestID(c),
	}
	if status == fiber.StatusInternalServerError {
		log.Error("request failed",
			zap.String("request_id", resp.RequestID),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		resp.Error = "internal server error"
	}
	return c.Status(status).JSON(resp)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error:     msg,
		Code:      "bad_request",
		RequestID: middleware.GetRequestID(c),
	})
}
