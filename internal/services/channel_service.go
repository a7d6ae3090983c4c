package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/collateral-pay/backend/internal/config"
	"github.com/collateral-pay/backend/internal/events"
	"github.com/collateral-pay/backend/internal/keys"
	"github.com/collateral-pay/backend/internal/models"
	"github.com/collateral-pay/backend/internal/rbac"
	"github.com/collateral-pay/backend/internal/repositories"
	"github.com/collateral-pay/backend/internal/vault"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrInvalidFilter = errors.New("invalid filter")

// ChannelService is the channel state machine. Every mutation runs in one
// Store.InTx: record update, transfer and audit row commit together or not at all.
type ChannelService struct {
	store     repositories.Store
	publisher events.Publisher
	cfg       *config.Config
	log       *zap.Logger
}

func NewChannelService(
	store repositories.Store,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *ChannelService {
	return &ChannelService{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

type CreateChannelInput struct {
	AmountOwed          uint64
	Seller              keys.Address
	SellerPayoutAddress keys.Address
	VaultAddress        keys.Address
	VaultNonce          uint8
}

// CreateChannel opens a channel with caller as the buyer.
func (s *ChannelService) CreateChannel(ctx context.Context, caller keys.Address, in CreateChannelInput) (*models.PaymentChannel, error) {
	// 1. Сумма обязательства
	if !validAmount(in.AmountOwed) {
		return nil, models.ErrInvalidAmount
	}

	// 2. Стороны
	if in.Seller.IsZero() || in.SellerPayoutAddress.IsZero() {
		return nil, models.ErrInvalidParty
	}

	// 3. Vault должен выводиться из (buyer, nonce)
	derived, err := vault.CreateAddress(s.cfg.ProgramID, vault.BuyerSeeds(caller), in.VaultNonce)
	if err != nil || derived != in.VaultAddress {
		return nil, models.ErrVaultAddressMismatch
	}

	ch := &models.PaymentChannel{
		Buyer:               caller,
		Seller:              in.Seller,
		SellerPayoutAddress: in.SellerPayoutAddress,
		AmountOwed:          in.AmountOwed,
		VaultAddress:        in.VaultAddress,
		VaultNonce:          in.VaultNonce,
	}

	err = s.store.InTx(ctx, func(tx repositories.Tx) error {
		// 4. Один vault - один канал
		bound, err := tx.VaultBound(ctx, in.VaultAddress)
		if err != nil {
			return err
		}
		if bound {
			return models.ErrVaultInUse
		}
		if err := tx.InsertChannel(ctx, ch); err != nil {
			return err
		}
		return tx.LogAudit(ctx, models.AuditLog{
			Actor:     caller,
			ActorType: rbac.RoleBuyer,
			Action:    models.AuditChannelCreated,
			ChannelID: ch.ID,
			Meta: map[string]any{
				"amount_owed": ch.AmountOwed,
				"seller":      ch.Seller.String(),
				"vault":       ch.VaultAddress.String(),
				"vault_nonce": ch.VaultNonce,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("channel created",
		zap.String("channel_id", ch.ID.String()),
		zap.String("buyer", ch.Buyer.String()),
		zap.String("seller", ch.Seller.String()),
		zap.Uint64("amount_owed", ch.AmountOwed),
	)
	s.publish(ctx, events.EventChannelCreated, ch, map[string]any{
		"amount_owed": ch.AmountOwed,
	})

	return ch, nil
}

// LockCollateral moves amount of native currency from the buyer into the vault.
// Allowed once per channel, before or after payments.
func (s *ChannelService) LockCollateral(ctx context.Context, caller keys.Address, channelID uuid.UUID, amount uint64) (*models.PaymentChannel, error) {
	var ch *models.PaymentChannel
	err := s.store.InTx(ctx, func(tx repositories.Tx) error {
		var err error
		ch, err = s.loadForMutation(ctx, tx, caller, channelID, rbac.PermLockCollateral)
		if err != nil {
			return err
		}
		if ch.CollateralLocked {
			return models.ErrAlreadyLocked
		}
		if !validAmount(amount) {
			return models.ErrInvalidAmount
		}

		if err := tx.TransferNative(ctx, caller, ch.VaultAddress, amount); err != nil {
			return fmt.Errorf("lock collateral: %w", err)
		}

		ch.CollateralLocked = true
		ch.LockedAmount = amount
		if err := tx.UpdateChannel(ctx, ch); err != nil {
			return err
		}
		return tx.LogAudit(ctx, models.AuditLog{
			Actor:     caller,
			ActorType: rbac.RoleBuyer,
			Action:    models.AuditCollateralLocked,
			ChannelID: ch.ID,
			Meta:      map[string]any{"amount": amount},
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("collateral locked",
		zap.String("channel_id", ch.ID.String()),
		zap.Uint64("amount", amount),
	)
	s.publish(ctx, events.EventCollateralLocked, ch, map[string]any{
		"amount": amount,
	})

	return ch, nil
}

// PayAmount transfers amount of payment currency from source (owned by the
// buyer) to the seller's payout account. Overpayment is refused, never clamped.
func (s *ChannelService) PayAmount(ctx context.Context, caller keys.Address, channelID uuid.UUID, amount uint64, source keys.Address) (*models.PaymentChannel, error) {
	var ch *models.PaymentChannel
	err := s.store.InTx(ctx, func(tx repositories.Tx) error {
		var err error
		ch, err = s.loadForMutation(ctx, tx, caller, channelID, rbac.PermPay)
		if err != nil {
			return err
		}
		if amount == 0 {
			return models.ErrInvalidAmount
		}
		// amount > owed - paid; paid <= owed always, вычитание не переполняется
		if amount > ch.Remaining() {
			return models.ErrOverpayment
		}

		if err := tx.TransferToken(ctx, source, ch.SellerPayoutAddress, amount, caller); err != nil {
			return fmt.Errorf("pay amount: %w", err)
		}

		ch.AmountPaid += amount
		if err := tx.UpdateChannel(ctx, ch); err != nil {
			return err
		}
		return tx.LogAudit(ctx, models.AuditLog{
			Actor:     caller,
			ActorType: rbac.RoleBuyer,
			Action:    models.AuditPaymentApplied,
			ChannelID: ch.ID,
			Meta: map[string]any{
				"amount":      amount,
				"amount_paid": ch.AmountPaid,
				"source":      source.String(),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payment applied",
		zap.String("channel_id", ch.ID.String()),
		zap.Uint64("amount", amount),
		zap.Uint64("amount_paid", ch.AmountPaid),
		zap.Uint64("amount_owed", ch.AmountOwed),
	)
	s.publish(ctx, events.EventPaymentApplied, ch, map[string]any{
		"amount":      amount,
		"amount_paid": ch.AmountPaid,
		"remaining":   ch.Remaining(),
	})

	return ch, nil
}

// WithdrawLocked returns the vault's entire native balance to the buyer once
// the obligation is fully paid. The vault authority is re-derived from the
// stored nonce and must reproduce the stored vault address.
func (s *ChannelService) WithdrawLocked(ctx context.Context, caller keys.Address, channelID uuid.UUID) (*models.PaymentChannel, error) {
	var (
		ch       *models.PaymentChannel
		returned uint64
	)
	err := s.store.InTx(ctx, func(tx repositories.Tx) error {
		var err error
		ch, err = s.loadForMutation(ctx, tx, caller, channelID, rbac.PermWithdraw)
		if err != nil {
			return err
		}
		if !ch.FullyPaid() {
			return models.ErrNotFullyPaid
		}
		if !ch.CollateralLocked {
			return models.ErrNothingLocked
		}
		if ch.CollateralWithdrawn {
			return models.ErrAlreadyWithdrawn
		}

		authority, err := vault.SignFor(s.cfg.ProgramID, vault.BuyerSeeds(ch.Buyer), ch.VaultNonce, ch.VaultAddress)
		if err != nil {
			return errors.Join(models.ErrVaultDerivationMismatch, err)
		}

		returned, err = tx.NativeBalance(ctx, ch.VaultAddress)
		if err != nil {
			return err
		}
		if err := tx.TransferNativeSigned(ctx, authority, ch.Buyer, returned); err != nil {
			return fmt.Errorf("withdraw collateral: %w", err)
		}

		ch.CollateralWithdrawn = true
		if err := tx.UpdateChannel(ctx, ch); err != nil {
			return err
		}
		return tx.LogAudit(ctx, models.AuditLog{
			Actor:     caller,
			ActorType: rbac.RoleBuyer,
			Action:    models.AuditCollateralWithdrawn,
			ChannelID: ch.ID,
			Meta:      map[string]any{"amount": returned},
		})
	})
	if err != nil {
		return nil, err
	}

	if returned != ch.LockedAmount {
		s.log.Warn("vault balance differs from locked amount",
			zap.String("channel_id", ch.ID.String()),
			zap.Uint64("locked_amount", ch.LockedAmount),
			zap.Uint64("returned", returned),
		)
	}
	s.log.Info("collateral withdrawn",
		zap.String("channel_id", ch.ID.String()),
		zap.Uint64("amount", returned),
	)
	s.publish(ctx, events.EventCollateralWithdrawn, ch, map[string]any{
		"amount": returned,
	})

	return ch, nil
}

// GetChannel returns the record to its buyer, its seller or an admin.
func (s *ChannelService) GetChannel(ctx context.Context, viewer keys.Address, channelID uuid.UUID) (*models.PaymentChannel, error) {
	ch, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if !s.canView(ch, viewer) {
		return nil, models.ErrUnauthorized
	}
	return ch, nil
}

type ListChannelsInput struct {
	// Role: "buyer", "seller" или пусто (обе стороны).
	Role   string
	Locked *bool
	Limit  int
	Offset int
}

// ListChannels lists channels where viewer is a party.
func (s *ChannelService) ListChannels(ctx context.Context, viewer keys.Address, in ListChannelsInput) ([]models.PaymentChannel, error) {
	f := models.ChannelFilter{
		Locked: in.Locked,
		Limit:  in.Limit,
		Offset: in.Offset,
	}
	switch in.Role {
	case rbac.RoleBuyer:
		f.Buyer = &viewer
	case rbac.RoleSeller:
		f.Seller = &viewer
	case "":
		f.Party = &viewer
	default:
		return nil, fmt.Errorf("%w: role %q", ErrInvalidFilter, in.Role)
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.store.ListChannels(ctx, f)
}

// ChannelHistory returns the audit trail of a channel, oldest first.
func (s *ChannelService) ChannelHistory(ctx context.Context, viewer keys.Address, channelID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	if _, err := s.GetChannel(ctx, viewer, channelID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListAudit(ctx, channelID, limit, offset)
}

// SuggestVault finds the highest nonce whose vault address for buyer is still free.
func (s *ChannelService) SuggestVault(ctx context.Context, buyer keys.Address) (keys.Address, uint8, error) {
	var (
		found   keys.Address
		lookErr error
	)
	nonce, err := vault.Scan(s.cfg.ProgramID, vault.BuyerSeeds(buyer), func(addr keys.Address, _ uint8) bool {
		bound, err := s.store.IsVaultBound(ctx, addr)
		if err != nil {
			lookErr = err
			return true
		}
		if bound {
			return false
		}
		found = addr
		return true
	})
	if lookErr != nil {
		return keys.Zero, 0, lookErr
	}
	if err != nil {
		return keys.Zero, 0, err
	}
	return found, nonce, nil
}

// loadForMutation locks the record and checks that caller holds perm on it.
func (s *ChannelService) loadForMutation(ctx context.Context, tx repositories.Tx, caller keys.Address, channelID uuid.UUID, perm string) (*models.PaymentChannel, error) {
	ch, err := tx.GetChannelForUpdate(ctx, channelID)
	if err != nil {
		return nil, err
	}
	role := rbac.RoleOf(ch.Buyer, ch.Seller, caller)
	if !rbac.HasPermission(role, perm) {
		s.log.Warn("unauthorized channel operation",
			zap.String("channel_id", ch.ID.String()),
			zap.String("caller", caller.String()),
			zap.String("role", role),
			zap.String("permission", perm),
			zap.Bool("financial", rbac.IsFinancialOperation(perm)),
		)
		return nil, models.ErrUnauthorized
	}
	return ch, nil
}

func (s *ChannelService) canView(ch *models.PaymentChannel, viewer keys.Address) bool {
	if rbac.HasPermission(rbac.RoleOf(ch.Buyer, ch.Seller, viewer), rbac.PermViewChannel) {
		return true
	}
	return s.cfg.IsAdmin(viewer)
}

// publish is best effort: the state change is already committed.
func (s *ChannelService) publish(ctx context.Context, eventType string, ch *models.PaymentChannel, extra map[string]any) {
	payload := channelPayload(ch)
	for k, v := range extra {
		payload[k] = v
	}
	if err := s.publisher.Publish(ctx, events.StreamChannel, events.New(eventType, payload)); err != nil {
		s.log.Warn("failed to publish channel event",
			zap.String("type", eventType),
			zap.String("channel_id", ch.ID.String()),
			zap.Error(err),
		)
	}
}

func channelPayload(ch *models.PaymentChannel) map[string]any {
	return map[string]any{
		"channel_id": ch.ID.String(),
		"buyer":      ch.Buyer.String(),
		"seller":     ch.Seller.String(),
		"phase":      ch.Phase(),
	}
}

// validAmount: больше нуля и помещается в bigint.
func validAmount(amount uint64) bool {
	return amount > 0 && amount <= math.MaxInt64
}
