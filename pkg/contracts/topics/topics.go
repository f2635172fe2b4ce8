package topics

const (
	// Ciclo de vida de eventos
	EventCreated = "event_created"
	EventSettled = "event_settled"

	// Apostas e pagamentos
	BetPlaced       = "bet_placed"
	WinningsClaimed = "winnings_claimed"

	// DLQ do worker de auditoria
	SettlementAuditDLQ = "settlement_audit_dlq"
)
