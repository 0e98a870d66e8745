package enums

// TransferDirection tags a ledger transfer leg as outbound or inbound.
type TransferDirection string

const (
	TransferDirectionSend     TransferDirection = "send"
	TransferDirectionReceived TransferDirection = "received"
)

func (d TransferDirection) IsValid() bool {
	return d == TransferDirectionSend || d == TransferDirectionReceived
}
