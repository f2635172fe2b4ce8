package events

type BetPlaced struct {
	EventID     uint64 `json:"event_id"`
	UserID      string `json:"user_id"`
	Side        string `json:"side"` // "A" | "B"
	AmountCents int64  `json:"amount_cents"`
	TotalACents int64  `json:"total_a_cents"`
	TotalBCents int64  `json:"total_b_cents"`
	OddsA       int64  `json:"odds_a"`
	OddsB       int64  `json:"odds_b"`
	TsUnixMs    int64  `json:"ts_unix_ms"`
}
