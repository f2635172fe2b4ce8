package dto

type EventResponse struct {
	EventID     uint64 `json:"eventId"`
	Status      string `json:"status"`
	Winner      string `json:"winner,omitempty"` // presente apenas quando RESOLVED
	StartUnixMs int64  `json:"start_unix_ms"`
	TotalACents int64  `json:"total_a_cents"`
	TotalBCents int64  `json:"total_b_cents"`
	OddsA       int64  `json:"odds_a"`
	OddsB       int64  `json:"odds_b"`
}

type PlaceBetResponse struct {
	EventID     uint64 `json:"eventId"`
	Status      string `json:"status"` // ACCEPTED
	TotalACents int64  `json:"total_a_cents"`
	TotalBCents int64  `json:"total_b_cents"`
	OddsA       int64  `json:"odds_a"`
	OddsB       int64  `json:"odds_b"`
}

type OddsResponse struct {
	EventID uint64 `json:"eventId"`
	OddsA   int64  `json:"odds_a"`
	OddsB   int64  `json:"odds_b"`
}

type StakeResponse struct {
	EventID     uint64 `json:"eventId"`
	UserID      string `json:"userId"`
	Side        string `json:"side"`
	AmountCents int64  `json:"amount_cents"`
	Claimed     bool   `json:"claimed"`
}

type ClaimResponse struct {
	EventID      uint64 `json:"eventId"`
	UserID       string `json:"userId"`
	StakeCents   int64  `json:"stake_cents"`
	GrossCents   int64  `json:"gross_cents"`
	UserCents    int64  `json:"user_cents"`
	CharityCents int64  `json:"charity_cents"`
}

type AccountResponse struct {
	UserID       string `json:"userId"`
	AccountID    string `json:"accountId"`
	BalanceCents int64  `json:"balance_cents"`
}

type CancelResponse struct {
	EventID uint64 `json:"eventId"`
	Status  string `json:"status"` // CANCELLED
	Refunds int    `json:"refunds"`
}
