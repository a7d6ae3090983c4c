package dto

type ChallengeRequest struct {
	Address string `json:"address"`
}

type VerifyRequest struct {
	Address   string `json:"address"`
	Challenge string `json:"challenge"`
	Signature string `json:"signature"` // hex ed25519
}

type CreateChannelRequest struct {
	AmountOwed          string `json:"amount_owed"` // в единицах платёжной валюты, "12.5"
	Seller              string `json:"seller"`
	SellerPayoutAddress string `json:"seller_payout_address"`
	VaultAddress        string `json:"vault_address"`
	VaultNonce          *int   `json:"vault_nonce"`
}

type LockCollateralRequest struct {
	Amount string `json:"amount"` // в целых единицах нативной валюты, 9 знаков
}

type PayRequest struct {
	Amount        string `json:"amount"`
	SourceAccount string `json:"source_account"`
}
