package enums

// OrderCategory distinguishes student checkouts from vendor stock transfers.
type OrderCategory string

const (
	OrderCategoryCheckout OrderCategory = "checkout"
	OrderCategoryTransfer OrderCategory = "transfer"
)

func (c OrderCategory) IsValid() bool {
	switch c {
	case OrderCategoryCheckout, OrderCategoryTransfer:
		return true
	}
	return false
}

// OrderStatus is the order lifecycle state. Transitions are monotonic:
// once an order leaves a state it never returns to it.
type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusOnTheWay       OrderStatus = "on_the_way"
	OrderStatusCompleted      OrderStatus = "completed"
	OrderStatusFailed         OrderStatus = "failed"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPendingPayment, OrderStatusOnTheWay, OrderStatusCompleted,
		OrderStatusFailed, OrderStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusFailed, OrderStatusCancelled:
		return true
	}
	return false
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPendingPayment: {OrderStatusCompleted, OrderStatusFailed, OrderStatusCancelled},
	OrderStatusOnTheWay:       {OrderStatusCompleted, OrderStatusCancelled},
}

// CanTransitionTo reports whether the target status is a legal next state.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}
