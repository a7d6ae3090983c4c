package dto

import (
	"time"

	"github.com/collateral-pay/backend/internal/models"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type ChallengeResponse struct {
	Challenge string    `json:"challenge"`
	Message   string    `json:"message"` // что подписывать
	ExpiresAt time.Time `json:"expires_at"`
}

type VaultSuggestionResponse struct {
	VaultAddress string `json:"vault_address"`
	VaultNonce   uint8  `json:"vault_nonce"`
}

// ChannelResponse is PaymentChannel with amounts rendered in display units
// next to the raw base units.
type ChannelResponse struct {
	*models.PaymentChannel
	Phase            string `json:"phase"`
	AmountOwedText   string `json:"amount_owed_text"`
	AmountPaidText   string `json:"amount_paid_text"`
	RemainingText    string `json:"remaining_text"`
	LockedAmountText string `json:"locked_amount_text"`
}

func NewChannelResponse(ch *models.PaymentChannel, tokenDecimals int) ChannelResponse {
	return ChannelResponse{
		PaymentChannel:   ch,
		Phase:            ch.Phase(),
		AmountOwedText:   FormatTokenAmount(ch.AmountOwed, tokenDecimals),
		AmountPaidText:   FormatTokenAmount(ch.AmountPaid, tokenDecimals),
		RemainingText:    FormatTokenAmount(ch.Remaining(), tokenDecimals),
		LockedAmountText: FormatNativeAmount(ch.LockedAmount),
	}
}

func NewChannelListResponse(list []models.PaymentChannel, tokenDecimals int) []ChannelResponse {
	out := make([]ChannelResponse, 0, len(list))
	for i := range list {
		out = append(out, NewChannelResponse(&list[i], tokenDecimals))
	}
	return out
}

type NativeAccountResponse struct {
	Address     string `json:"address"`
	Balance     uint64 `json:"balance"`
	BalanceText string `json:"balance_text"`
}

type TokenAccountResponse struct {
	*models.TokenAccount
	BalanceText string `json:"balance_text"`
}
