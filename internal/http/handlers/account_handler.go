package handlers

import (
	"github.com/collateral-pay/backend/internal/config"
	"github.com/collateral-pay/backend/internal/http/dto"
	"github.com/collateral-pay/backend/internal/keys"
	"github.com/collateral-pay/backend/internal/repositories"
	"github.com/collateral-pay/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AccountHandler exposes read-only ledger balances.
type AccountHandler struct {
	store      repositories.Store
	reconciler *services.Reconciler
	cfg        *config.Config
	log        *zap.Logger
}

func NewAccountHandler(store repositories.Store, reconciler *services.Reconciler, cfg *config.Config, log *zap.Logger) *AccountHandler {
	return &AccountHandler{store: store, reconciler: reconciler, cfg: cfg, log: log}
}

func (h *AccountHandler) GetNativeAccount(c *fiber.Ctx) error {
	addr, err := keys.ParseAddress(c.Params("address"))
	if err != nil {
		return badRequest(c, "invalid address")
	}

	balance, err := h.store.NativeBalance(c.Context(), addr)
	if err != nil {
		return writeError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NativeAccountResponse{
		Address:     addr.String(),
		Balance:     balance,
		BalanceText: dto.FormatNativeAmount(balance),
	}})
}

func (h *AccountHandler) GetTokenAccount(c *fiber.Ctx) error {
	addr, err := keys.ParseAddress(c.Params("address"))
	if err != nil {
		return badRequest(c, "invalid address")
	}

	acc, err := h.store.GetTokenAccount(c.Context(), addr)
	if err != nil {
		return writeError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.TokenAccountResponse{
		TokenAccount: acc,
		BalanceText:  dto.FormatTokenAmount(acc.Balance, h.cfg.TokenDecimals),
	}})
}

// Reconcile запускает сверку немедленно (admin).
func (h *AccountHandler) Reconcile(c *fiber.Ctx) error {
	report, err := h.reconciler.Run(c.Context())
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: report})
}
