package events

// Evento publicado no tópico "event_settled", tanto para resolução quanto
// para cancelamento.
type EventSettled struct {
	EventID     uint64 `json:"event_id"`
	Status      string `json:"status"` // "RESOLVED" | "CANCELLED"
	Winner      string `json:"winner,omitempty"`
	TotalACents int64  `json:"total_a_cents"`
	TotalBCents int64  `json:"total_b_cents"`
	Refunds     int    `json:"refunds,omitempty"` // participantes devolvidos no cancelamento
	TsUnixMs    int64  `json:"ts_unix_ms"`
}
