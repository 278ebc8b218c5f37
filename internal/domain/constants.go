package domain

const (
	// ProtocolVersion is stamped on every outbound transfer message.
	ProtocolVersion = "1.0"

	TxStatusPending   = "PENDING"
	TxStatusCompleted = "COMPLETED"
	TxStatusRejected  = "REJECTED"

	AccountStatusActive  = "active"
	AccountStatusBlocked = "blocked"
	AccountStatusClosed  = "closed"

	AccountTypeChecking = "checking"
	AccountTypeSavings  = "savings"

	// Transfer kinds select the inbound sub-path on the counterpart bank.
	TransferKindIBAN  = "iban"
	TransferKindPhone = "phone"

	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
	DirectionLocal    = "local"
)
