package checkout

import (
	"context"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// SettlementItem — строка предпросмотра оформления.
type SettlementItem struct {
	ID              int64
	Name            string
	DefaultImageURL string
	PriceMinor      int64
	Count           int32
}

// Settlement — то, что покупатель увидит перед подтверждением заказа.
type Settlement struct {
	FreightMinor int64
	Items        []SettlementItem
}

// Settlement собирает отмеченные позиции корзины с текущими ценами каталога.
// Ничего не списывает и не резервирует; варианты, исчезнувшие из каталога, пропускаются.
func (s *Service) Settlement(ctx context.Context, buyerID int64) (Settlement, error) {
	if buyerID <= 0 {
		return Settlement{}, domain.ErrBuyerRequired
	}

	sel, err := s.cart.LoadSelection(ctx, buyerID)
	if err != nil {
		return Settlement{}, domain.AsPersistence("load cart selection", err)
	}

	out := Settlement{FreightMinor: domain.FreightMinor, Items: []SettlementItem{}}
	if sel.Empty() {
		return out, nil
	}

	variants, err := s.catalog.GetVariants(ctx, sel.VariantIDs())
	if err != nil {
		return Settlement{}, domain.AsPersistence("load variants", err)
	}
	for _, v := range variants {
		out.Items = append(out.Items, SettlementItem{
			ID:              v.ID,
			Name:            v.Name,
			DefaultImageURL: v.DefaultImageURL,
			PriceMinor:      v.PriceMinor,
			Count:           sel.Counts[v.ID],
		})
	}
	return out, nil
}
