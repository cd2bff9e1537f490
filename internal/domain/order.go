package domain

import (
	"fmt"
	"time"
)

// FreightMinor — фиксированная стоимость доставки (10.00) в минимальных денежных единицах.
const FreightMinor int64 = 1000

// orderIDLayout задаёт временную часть идентификатора заказа.
const orderIDLayout = "20060102150405"

// PayMethod — способ оплаты, выбранный покупателем при оформлении.
type PayMethod int16

const (
	// PayMethodCash — оплата при получении.
	PayMethodCash PayMethod = 1
	// PayMethodAlipay — предоплата онлайн.
	PayMethodAlipay PayMethod = 2
)

// Valid сообщает, известен ли способ оплаты.
func (m PayMethod) Valid() bool {
	return m == PayMethodCash || m == PayMethodAlipay
}

// InitialStatus возвращает стартовый статус заказа. Статус не выбирается отдельно,
// он всегда выводится из способа оплаты.
func (m PayMethod) InitialStatus() OrderStatus {
	if m == PayMethodAlipay {
		return OrderStatusUnpaid
	}
	return OrderStatusUnsend
}

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus int16

const (
	// OrderStatusUnpaid — ожидает оплаты.
	OrderStatusUnpaid OrderStatus = 1
	// OrderStatusUnsend — ожидает отправки.
	OrderStatusUnsend OrderStatus = 2
	// OrderStatusUnreceived — отправлен, ожидает получения.
	OrderStatusUnreceived OrderStatus = 3
	// OrderStatusUncomment — получен, ожидает отзыва.
	OrderStatusUncomment OrderStatus = 4
	// OrderStatusFinished — завершён.
	OrderStatusFinished OrderStatus = 5
	// OrderStatusCanceled — отменён.
	OrderStatusCanceled OrderStatus = 6
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusUnpaid:
		return "UNPAID"
	case OrderStatusUnsend:
		return "UNSEND"
	case OrderStatusUnreceived:
		return "UNRECEIVED"
	case OrderStatusUncomment:
		return "UNCOMMENT"
	case OrderStatusFinished:
		return "FINISHED"
	case OrderStatusCanceled:
		return "CANCELED"
	default:
		return fmt.Sprintf("OrderStatus(%d)", int16(s))
	}
}

// NewOrderID строит сортируемый по времени идентификатор: момент коммита с точностью
// до секунды и номер покупателя, дополненный нулями до 9 знаков.
func NewOrderID(at time.Time, buyerID int64) string {
	return at.UTC().Format(orderIDLayout) + fmt.Sprintf("%09d", buyerID)
}

// OrderLineItem — позиция заказа. Цена копируется в момент коммита.
type OrderLineItem struct {
	OrderID    string
	VariantID  int64
	Count      int32
	PriceMinor int64
	CreatedAt  time.Time
}

// AmountMinor возвращает стоимость позиции.
func (l OrderLineItem) AmountMinor() int64 {
	return int64(l.Count) * l.PriceMinor
}

// Order агрегирует заголовок заказа, его позиции и накопленные итоги.
// Экземпляр принадлежит одному оформлению и не разделяется между горутинами.
type Order struct {
	ID               string
	BuyerID          int64
	AddressID        int64
	PayMethod        PayMethod
	Status           OrderStatus
	TotalCount       int32
	TotalAmountMinor int64
	FreightMinor     int64
	Lines            []OrderLineItem
	CreatedAt        time.Time
	UpdatedAt        time.Time

	freightApplied bool
}

// NewOrder создаёт заголовок заказа с нулевыми итогами и фиксированной доставкой.
func NewOrder(buyerID, addressID int64, method PayMethod, at time.Time) *Order {
	at = at.UTC()
	return &Order{
		ID:           NewOrderID(at, buyerID),
		BuyerID:      buyerID,
		AddressID:    addressID,
		PayMethod:    method,
		Status:       method.InitialStatus(),
		FreightMinor: FreightMinor,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

// AddLine добавляет закоммиченную позицию и обновляет промежуточные итоги.
func (o *Order) AddLine(line OrderLineItem) {
	line.OrderID = o.ID
	o.Lines = append(o.Lines, line)
	o.TotalCount += line.Count
	o.TotalAmountMinor += line.AmountMinor()
}

// ApplyFreight добавляет доставку к сумме. Повторный вызов ничего не меняет.
func (o *Order) ApplyFreight() {
	if o.freightApplied {
		return
	}
	o.TotalAmountMinor += o.FreightMinor
	o.freightApplied = true
}

// MarkFreightApplied помечает доставку учтённой, используется при чтении из хранилища.
func (o *Order) MarkFreightApplied() {
	o.freightApplied = true
}

// ValidateInvariants проверяет инварианты итогов и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.BuyerID <= 0 {
		errs = append(errs, ErrBuyerRequired)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrEmptySelection)
	}

	var (
		count  int32
		amount int64
	)
	for _, line := range o.Lines {
		if line.Count <= 0 {
			errs = append(errs, ErrQuantityInvalid)
		}
		if line.PriceMinor < 0 {
			errs = append(errs, ErrPriceInvalid)
		}
		count += line.Count
		amount += line.AmountMinor()
	}
	if count != o.TotalCount {
		errs = append(errs, ErrTotalCountMismatch)
	}
	if amount+o.FreightMinor != o.TotalAmountMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
