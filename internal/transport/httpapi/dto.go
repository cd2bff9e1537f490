package httpapi

import (
	"time"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/service/checkout"
)

// commitOrderRequest — тело POST /orders/.
type commitOrderRequest struct {
	Address   int64 `json:"address"`
	PayMethod int16 `json:"pay_method"`
}

type orderLineResponse struct {
	SkuID      int64 `json:"sku_id"`
	Count      int32 `json:"count"`
	PriceMinor int64 `json:"price_minor"`
}

type orderResponse struct {
	OrderID          string              `json:"order_id"`
	BuyerID          int64               `json:"buyer_id"`
	AddressID        int64               `json:"address"`
	PayMethod        int16               `json:"pay_method"`
	Status           string              `json:"status"`
	TotalCount       int32               `json:"total_count"`
	TotalAmountMinor int64               `json:"total_amount_minor"`
	FreightMinor     int64               `json:"freight_minor"`
	Lines            []orderLineResponse `json:"lines"`
	CreatedAt        time.Time           `json:"created_at"`
}

type commitOrderResponse struct {
	OrderID string        `json:"order_id"`
	Order   orderResponse `json:"order"`
	Warning string        `json:"warning,omitempty"`
}

type settlementItemResponse struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	DefaultImageURL string `json:"default_image_url"`
	PriceMinor      int64  `json:"price_minor"`
	Count           int32  `json:"count"`
}

type settlementResponse struct {
	FreightMinor int64                    `json:"freight_minor"`
	Skus         []settlementItemResponse `json:"skus"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	VariantID int64  `json:"variant_id,omitempty"`
	Requested int32  `json:"requested,omitempty"`
	Available *int32 `json:"available,omitempty"`
}

func toOrderResponse(o domain.Order) orderResponse {
	lines := make([]orderLineResponse, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, orderLineResponse{SkuID: l.VariantID, Count: l.Count, PriceMinor: l.PriceMinor})
	}
	return orderResponse{
		OrderID:          o.ID,
		BuyerID:          o.BuyerID,
		AddressID:        o.AddressID,
		PayMethod:        int16(o.PayMethod),
		Status:           o.Status.String(),
		TotalCount:       o.TotalCount,
		TotalAmountMinor: o.TotalAmountMinor,
		FreightMinor:     o.FreightMinor,
		Lines:            lines,
		CreatedAt:        o.CreatedAt,
	}
}

func toSettlementResponse(s checkout.Settlement) settlementResponse {
	items := make([]settlementItemResponse, 0, len(s.Items))
	for _, it := range s.Items {
		items = append(items, settlementItemResponse{
			ID:              it.ID,
			Name:            it.Name,
			DefaultImageURL: it.DefaultImageURL,
			PriceMinor:      it.PriceMinor,
			Count:           it.Count,
		})
	}
	return settlementResponse{FreightMinor: s.FreightMinor, Skus: items}
}
