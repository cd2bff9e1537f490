package domain

import (
	"errors"
	"fmt"
)

// Классы ошибок. Конкретные ошибки оборачивают один из них, чтобы транспорт
// мог отличить «ничего не произошло» от «заказ создан, корзина не очищена».
var (
	// ErrValidation — некорректный запрос на оформление, повторять бессмысленно.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientStock — на складе меньше, чем запрошено; коммит отменён целиком.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrOptimisticConflict — строку варианта изменили параллельно; поглощается циклом повторов.
	ErrOptimisticConflict = errors.New("optimistic concurrency conflict")
	// ErrPersistence — сбой хранилища во время коммита; выполнен полный откат.
	ErrPersistence = errors.New("persistence failure")
	// ErrCartCleanup — заказ сохранён, но выбранные позиции не удалены из корзины.
	ErrCartCleanup = errors.New("cart cleanup failed")
)

var (
	// Ошибка отсутствующего покупателя.
	ErrBuyerRequired = fmt.Errorf("%w: buyer is required", ErrValidation)
	// Ошибка отсутствующего адреса доставки.
	ErrAddressRequired = fmt.Errorf("%w: address is required", ErrValidation)
	// Ошибка неизвестного способа оплаты.
	ErrPayMethodInvalid = fmt.Errorf("%w: pay_method is invalid", ErrValidation)
	// Ошибка пустого набора отмеченных позиций.
	ErrEmptySelection = fmt.Errorf("%w: no selected cart items", ErrValidation)
	// Ошибка некорректного количества (<= 0).
	ErrQuantityInvalid = fmt.Errorf("%w: quantity must be greater than zero", ErrValidation)
	// Ошибка отрицательной цены позиции.
	ErrPriceInvalid = fmt.Errorf("%w: price must be non-negative", ErrValidation)
	// Ошибка несоответствия общего количества сумме позиций.
	ErrTotalCountMismatch = errors.New("order total count does not match line items")
	// Ошибка несоответствия суммы заказа позициям и доставке.
	ErrAmountMismatch = errors.New("order amount does not match line items plus freight")

	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrVariantNotFound возвращается, если варианта товара нет в каталоге.
	ErrVariantNotFound = errors.New("product variant not found")
	// ErrOrderIDCollision — заказ с тем же идентификатором уже существует
	// (повторное оформление тем же покупателем в ту же секунду).
	ErrOrderIDCollision = fmt.Errorf("%w: order id collision", ErrPersistence)
	// ErrConflictRetriesExhausted — цикл повторов исчерпал попытки.
	ErrConflictRetriesExhausted = fmt.Errorf("%w: optimistic conflict retries exhausted", ErrPersistence)
	// ErrTxDone — единица работы уже закоммичена или откатана (в том числе
	// драйвером после отмены контекста).
	ErrTxDone = errors.New("unit of work already finished")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// InsufficientStockError уточняет, какой вариант не прошёл проверку остатка.
type InsufficientStockError struct {
	VariantID int64
	Requested int32
	Available int32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %d: requested %d, available %d",
		e.VariantID, e.Requested, e.Available)
}

// Unwrap позволяет использовать errors.Is(err, ErrInsufficientStock).
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// ErrorKind — класс ошибки для логов, метрик и HTTP-ответов.
type ErrorKind string

const (
	KindNone         ErrorKind = ""
	KindValidation   ErrorKind = "validation"
	KindInsufficient ErrorKind = "insufficient_stock"
	KindConflict     ErrorKind = "conflict"
	KindPersistence  ErrorKind = "persistence"
	KindCartCleanup  ErrorKind = "cart_cleanup"
	KindNotFound     ErrorKind = "not_found"
)

// KindOf классифицирует ошибку. Всё, что не распознано, считается сбоем хранилища.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficient
	case errors.Is(err, ErrCartCleanup):
		return KindCartCleanup
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrVariantNotFound):
		return KindNotFound
	case errors.Is(err, ErrOptimisticConflict):
		return KindConflict
	default:
		return KindPersistence
	}
}

// AsPersistence оборачивает ошибку хранилища в ErrPersistence, не трогая уже
// классифицированные бизнес-ошибки.
func AsPersistence(op string, err error) error {
	if err == nil {
		return nil
	}
	switch KindOf(err) {
	case KindValidation, KindInsufficient, KindNotFound:
		return err
	}
	if errors.Is(err, ErrPersistence) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
