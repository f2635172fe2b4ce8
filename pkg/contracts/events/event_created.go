package events

// Evento publicado no tópico "event_created"
type EventCreated struct {
	EventID       uint64 `json:"event_id"`
	StartUnixMs   int64  `json:"start_unix_ms"`
	OddsA         int64  `json:"odds_a"`
	OddsB         int64  `json:"odds_b"`
	WindowSeconds int64  `json:"window_seconds"` // 0 = sem janela configurada
	TsUnixMs      int64  `json:"ts_unix_ms"`
}
