package domain

// ProductVariant (SKU) — конкретная конфигурация товара со своим остатком и ценой.
// Единственный разделяемый между оформлениями изменяемый ресурс.
type ProductVariant struct {
	ID              int64
	ProductID       int64
	Name            string
	DefaultImageURL string
	PriceMinor      int64
	Stock           int32
	Sales           int32
}

// Product (SPU) — родительская карточка товара с агрегированным счётчиком продаж.
type Product struct {
	ID    int64
	Name  string
	Sales int32
}

// ReserveOutcome — результат попытки условного списания остатка.
type ReserveOutcome int

const (
	// ReserveSuccess — списание применено.
	ReserveSuccess ReserveOutcome = iota + 1
	// ReserveInsufficient — запрошено больше, чем есть на складе.
	ReserveInsufficient
	// ReserveConflict — строку изменил другой коммит между чтением и записью.
	ReserveConflict
)

func (o ReserveOutcome) String() string {
	switch o {
	case ReserveSuccess:
		return "success"
	case ReserveInsufficient:
		return "insufficient_stock"
	case ReserveConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Reservation описывает итог одного вызова TryReserve.
type Reservation struct {
	Outcome ReserveOutcome
	// Variant — снимок строки на момент чтения (цена берётся отсюда).
	Variant  ProductVariant
	NewStock int32
	NewSales int32
}
