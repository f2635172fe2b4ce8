package ws

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
// EventID: obrigatório para subscribe/unsubscribe
type ClientMsg struct {
	Type    string `json:"type"`    // subscribe | unsubscribe | ping
	EventID string `json:"eventId"` // requerido em subscribe/unsubscribe
}

// PoolUpdate é a atualização de pool/odds enviada aos clientes WebSocket.
// Kind: BET_PLACED | EVENT_SETTLED.
type PoolUpdate struct {
	EventID string      `json:"eventId"`
	Kind    string      `json:"kind"`
	Payload interface{} `json:"payload"`
}
