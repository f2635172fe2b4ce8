package dto

type PlaceBetRequest struct {
	UserID      string `json:"userId"`
	Side        string `json:"side"` // "A" | "B"
	AmountCents int64  `json:"amount_cents"`
}

type ResolveRequest struct {
	Winner string `json:"winner"` // "A" | "B"
}

type ClaimRequest struct {
	UserID string `json:"userId"`
}

type PauseRequest struct {
	Paused bool `json:"paused"`
}

type DepositRequest struct {
	UserID      string `json:"userId"`
	AmountCents int64  `json:"amount_cents"`
	ExternalRef string `json:"external_ref,omitempty"` // idempotência; gerado se ausente
}
