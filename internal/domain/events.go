package domain

import (
	"encoding/json"
	"time"
)

// OrderCommittedLine — позиция в событии order.committed.
type OrderCommittedLine struct {
	VariantID  int64 `json:"variant_id"`
	Count      int32 `json:"count"`
	PriceMinor int64 `json:"price_minor"`
}

// OrderCommittedEvent публикуется после успешного коммита заказа.
type OrderCommittedEvent struct {
	OrderID          string               `json:"order_id"`
	BuyerID          int64                `json:"buyer_id"`
	Status           string               `json:"status"`
	PayMethod        PayMethod            `json:"pay_method"`
	TotalCount       int32                `json:"total_count"`
	TotalAmountMinor int64                `json:"total_amount_minor"`
	FreightMinor     int64                `json:"freight_minor"`
	Lines            []OrderCommittedLine `json:"lines"`
	CommittedAt      time.Time            `json:"committed_at"`
}

// NewOrderCommittedMessage готовит outbox-сообщение по закоммиченному заказу.
func NewOrderCommittedMessage(order *Order) (OutboxMessage, error) {
	event := OrderCommittedEvent{
		OrderID:          order.ID,
		BuyerID:          order.BuyerID,
		Status:           order.Status.String(),
		PayMethod:        order.PayMethod,
		TotalCount:       order.TotalCount,
		TotalAmountMinor: order.TotalAmountMinor,
		FreightMinor:     order.FreightMinor,
		Lines:            make([]OrderCommittedLine, 0, len(order.Lines)),
		CommittedAt:      order.UpdatedAt,
	}
	for _, line := range order.Lines {
		event.Lines = append(event.Lines, OrderCommittedLine{
			VariantID:  line.VariantID,
			Count:      line.Count,
			PriceMinor: line.PriceMinor,
		})
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return OutboxMessage{}, err
	}

	return OutboxMessage{
		AggregateType: AggregateTypeOrder,
		AggregateID:   order.ID,
		EventType:     EventTypeOrderCommitted,
		Payload:       payload,
	}, nil
}
