package enums

// OutboxEventType enumerates the domain events this module emits.
type OutboxEventType string

const (
	EventOrderExpired      OutboxEventType = "order.expired"
	EventTransferInitiated OutboxEventType = "transfer.initiated"
	EventTransferConfirmed OutboxEventType = "transfer.confirmed"
	EventTransferExpired   OutboxEventType = "transfer.expired"
)

func (t OutboxEventType) IsValid() bool {
	switch t {
	case EventOrderExpired, EventTransferInitiated, EventTransferConfirmed, EventTransferExpired:
		return true
	}
	return false
}

// OutboxAggregateType identifies the aggregate an event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder  OutboxAggregateType = "order"
	AggregateVendor OutboxAggregateType = "vendor"
)
