package events

type WinningsClaimed struct {
	EventID      uint64 `json:"event_id"`
	UserID       string `json:"user_id"`
	StakeCents   int64  `json:"stake_cents"`
	GrossCents   int64  `json:"gross_cents"`
	UserCents    int64  `json:"user_cents"`
	CharityCents int64  `json:"charity_cents"`
	TsUnixMs     int64  `json:"ts_unix_ms"`
}
