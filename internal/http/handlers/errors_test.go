package handlers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/collateral-pay/backend/internal/auth"
	"github.com/collateral-pay/backend/internal/http/dto"
	"github.com/collateral-pay/backend/internal/models"
	"github.com/collateral-pay/backend/internal/repositories"
	"github.com/gofiber/fiber/v2"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrInvalidAmount, fiber.StatusBadRequest},
		{models.ErrInvalidParty, fiber.StatusBadRequest},
		{dto.ErrBadAmount, fiber.StatusBadRequest},
		{repositories.ErrChallengeInvalid, fiber.StatusUnauthorized},
		{auth.ErrInvalidSignature, fiber.StatusUnauthorized},
		{models.ErrUnauthorized, fiber.StatusForbidden},
		{models.ErrChannelNotFound, fiber.StatusNotFound},
		{models.ErrAccountNotFound, fiber.StatusNotFound},
		{models.ErrAlreadyLocked, fiber.StatusConflict},
		{models.ErrNothingLocked, fiber.StatusConflict},
		{models.ErrAlreadyWithdrawn, fiber.StatusConflict},
		{models.ErrOverpayment, fiber.StatusConflict},
		{models.ErrNotFullyPaid, fiber.StatusConflict},
		{models.ErrVaultInUse, fiber.StatusConflict},
		{models.ErrInsufficientFunds, fiber.StatusUnprocessableEntity},
		{models.ErrMintMismatch, fiber.StatusUnprocessableEntity},
		{models.ErrVaultAddressMismatch, fiber.StatusUnprocessableEntity},
		{models.ErrVaultDerivationMismatch, fiber.StatusUnprocessableEntity},
		{fmt.Errorf("pay amount: %w", models.ErrInsufficientFunds), fiber.StatusUnprocessableEntity},
		{errors.New("db down"), fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := StatusFor(tt.err); got != tt.want {
				t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
