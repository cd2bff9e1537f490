package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

// orderWriter пишет заказ внутри транзакции коммита.
type orderWriter struct {
	tx *sql.Tx
}

func (w *orderWriter) CreateHeader(ctx context.Context, order *domain.Order) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := w.tx.ExecContext(opCtx, `
		INSERT INTO orders (
			order_id, buyer_id, address_id, pay_method, status,
			total_count, total_amount_minor, freight_minor, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		order.ID, order.BuyerID, order.AddressID, int16(order.PayMethod), int16(order.Status),
		order.TotalCount, order.TotalAmountMinor, order.FreightMinor, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("order %s: %w", order.ID, domain.ErrOrderIDCollision)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (w *orderWriter) AddLineItem(ctx context.Context, line domain.OrderLineItem) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := w.tx.ExecContext(opCtx, `
		INSERT INTO order_goods (order_id, sku_id, count, price_minor, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, line.OrderID, line.VariantID, line.Count, line.PriceMinor, line.CreatedAt); err != nil {
		return fmt.Errorf("insert order line: %w", err)
	}
	return nil
}

func (w *orderWriter) FinalizeTotals(ctx context.Context, order *domain.Order) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := w.tx.ExecContext(opCtx, `
		UPDATE orders
		SET total_count = $2,
		    total_amount_minor = $3,
		    updated_at = $4
		WHERE order_id = $1
	`, order.ID, order.TotalCount, order.TotalAmountMinor, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update order totals: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("order %s: %w", order.ID, domain.ErrOrderNotFound)
	}
	return nil
}

type orderReader struct {
	db *sql.DB
}

// NewOrderReader создаёт PostgreSQL-реализацию OrderReader.
func NewOrderReader(store *Store) domain.OrderReader {
	return &orderReader{db: store.DB()}
}

func (r *orderReader) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		order     domain.Order
		payMethod int16
		status    int16
	)
	err := r.db.QueryRowContext(opCtx, `
		SELECT order_id, buyer_id, address_id, pay_method, status,
		       total_count, total_amount_minor, freight_minor, created_at, updated_at
		FROM orders
		WHERE order_id = $1
	`, id).Scan(
		&order.ID, &order.BuyerID, &order.AddressID, &payMethod, &status,
		&order.TotalCount, &order.TotalAmountMinor, &order.FreightMinor, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	order.PayMethod = domain.PayMethod(payMethod)
	order.Status = domain.OrderStatus(status)
	order.MarkFreightApplied()

	rows, err := r.db.QueryContext(opCtx, `
		SELECT sku_id, count, price_minor, created_at
		FROM order_goods
		WHERE order_id = $1
		ORDER BY sku_id ASC
	`, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		line := domain.OrderLineItem{OrderID: order.ID}
		if err := rows.Scan(&line.VariantID, &line.Count, &line.PriceMinor, &line.CreatedAt); err != nil {
			return domain.Order{}, fmt.Errorf("scan order line: %w", err)
		}
		order.Lines = append(order.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return domain.Order{}, fmt.Errorf("iterate order lines: %w", err)
	}

	return order, nil
}

var (
	_ domain.OrderWriter = (*orderWriter)(nil)
	_ domain.OrderReader = (*orderReader)(nil)
)
