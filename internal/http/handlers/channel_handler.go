package handlers

import (
	"strconv"

	"github.com/collateral-pay/backend/internal/config"
	"github.com/collateral-pay/backend/internal/http/dto"
	"github.com/collateral-pay/backend/internal/keys"
	"github.com/collateral-pay/backend/internal/middleware"
	"github.com/collateral-pay/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ChannelHandler struct {
	channelService *services.ChannelService
	cfg            *config.Config
	log            *zap.Logger
}

func NewChannelHandler(channelService *services.ChannelService, cfg *config.Config, log *zap.Logger) *ChannelHandler {
	return &ChannelHandler{channelService: channelService, cfg: cfg, log: log}
}

func (h *ChannelHandler) CreateChannel(c *fiber.Ctx) error {
	var req dto.CreateChannelRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	owed, err := dto.ParseTokenAmount(req.AmountOwed, h.cfg.TokenDecimals)
	if err != nil {
		return writeError(c, h.log, err)
	}
	seller, err := keys.ParseAddress(req.Seller)
	if err != nil {
		return badRequest(c, "invalid seller")
	}
	payout, err := keys.ParseAddress(req.SellerPayoutAddress)
	if err != nil {
		return badRequest(c, "invalid seller_payout_address")
	}
	vaultAddr, err := keys.ParseAddress(req.VaultAddress)
	if err != nil {
		return badRequest(c, "invalid vault_address")
	}
	if req.VaultNonce == nil || *req.VaultNonce < 0 || *req.VaultNonce > 255 {
		return badRequest(c, "vault_nonce must be 0..255")
	}

	ch, err := h.channelService.CreateChannel(c.Context(), middleware.GetIdentity(c), services.CreateChannelInput{
		AmountOwed:          owed,
		Seller:              seller,
		SellerPayoutAddress: payout,
		VaultAddress:        vaultAddr,
		VaultNonce:          uint8(*req.VaultNonce),
	})
	if err != nil {
		return writeError(c, h.log, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: dto.NewChannelResponse(ch, h.cfg.TokenDecimals)})
}

func (h *ChannelHandler) ListChannels(c *fiber.Ctx) error {
	in := services.ListChannelsInput{
		Role:   c.Query("role"),
		Limit:  c.QueryInt("limit", 20),
		Offset: c.QueryInt("offset", 0),
	}
	if v := c.Query("locked"); v != "" {
		locked, err := strconv.ParseBool(v)
		if err != nil {
			return badRequest(c, "locked must be a boolean")
		}
		in.Locked = &locked
	}

	list, err := h.channelService.ListChannels(c.Context(), middleware.GetIdentity(c), in)
	if err != nil {
		return writeError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewChannelListResponse(list, h.cfg.TokenDecimals)})
}

func (h *ChannelHandler) GetChannel(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid channel id")
	}

	ch, err := h.channelService.GetChannel(c.Context(), middleware.GetIdentity(c), id)
	if err != nil {
		return writeError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewChannelResponse(ch, h.cfg.TokenDecimals)})
}

func (h *ChannelHandler) GetChannelEvents(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid channel id")
	}

	logs, err := h.channelService.ChannelHistory(c.Context(), middleware.GetIdentity(c), id,
		c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return writeError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: logs})
}

func (h *ChannelHandler) LockCollateral(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid channel id")
	}
	var req dto.LockCollateralRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	amount, err := dto.ParseNativeAmount(req.Amount)
	if err != nil {
		return writeError(c, h.log, err)
	}

	ch, err := h.channelService.LockCollateral(c.Context(), middleware.GetIdentity(c), id, amount)
	if err != nil {
		return writeError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewChannelResponse(ch, h.cfg.TokenDecimals)})
}

func (h *ChannelHandler) Pay(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid channel id")
	}
	var req dto.PayRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	amount, err := dto.ParseTokenAmount(req.Amount, h.cfg.TokenDecimals)
	if err != nil {
		return writeError(c, h.log, err)
	}
	source, err := keys.ParseAddress(req.SourceAccount)
	if err != nil {
		return badRequest(c, "invalid source_account")
	}

	ch, err := h.channelService.PayAmount(c.Context(), middleware.GetIdentity(c), id, amount, source)
	if err != nil {
		return writeError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewChannelResponse(ch, h.cfg.TokenDecimals)})
}

func (h *ChannelHandler) Withdraw(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid channel id")
	}

	ch, err := h.channelService.WithdrawLocked(c.Context(), middleware.GetIdentity(c), id)
	if err != nil {
		return writeError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewChannelResponse(ch, h.cfg.TokenDecimals)})
}

// SuggestVault подбирает свободный vault для вызывающего как покупателя.
func (h *ChannelHandler) SuggestVault(c *fiber.Ctx) error {
	addr, nonce, err := h.channelService.SuggestVault(c.Context(), middleware.GetIdentity(c))
	if err != nil {
		return writeError(c, h.log, err)
	}

	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.VaultSuggestionResponse{
		VaultAddress: addr.String(),
		VaultNonce:   nonce,
	}})
}
