package service

import (
	"fmt"

	"furniture-store/internal/model"
)

// statusRank orders the forward path. CANCELLED sits outside it.
var statusRank = map[model.OrderStatus]int{
	model.OrderStatusPending:    0,
	model.OrderStatusProcessing: 1,
	model.OrderStatusShipped:    2,
	model.OrderStatusDelivered:  3,
}

// checkTransition enforces PENDING→PROCESSING→SHIPPED→DELIVERED (forward only,
// steps may be skipped) with CANCELLED reachable from PENDING and PROCESSING.
func checkTransition(from, to model.OrderStatus) error {
	if from == model.OrderStatusCancelled {
		if to == model.OrderStatusCancelled {
			return ErrAlreadyCancelled
		}
		return fmt.Errorf("%w: order is cancelled", ErrInvalidTransition)
	}
	if from == model.OrderStatusDelivered {
		return fmt.Errorf("%w: order is already delivered", ErrInvalidTransition)
	}

	if to == model.OrderStatusCancelled {
		if from == model.OrderStatusPending || from == model.OrderStatusProcessing {
			return nil
		}
		return fmt.Errorf("%w: %s order cannot be cancelled", ErrInvalidTransition, from)
	}

	if statusRank[to] <= statusRank[from] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
