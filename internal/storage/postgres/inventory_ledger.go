package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type inventoryLedger struct {
	tx *sql.Tx
}

// TryReserve читает строку SKU и применяет compare-and-swap по stock.
// Блокировок (FOR UPDATE) нет: гонку разрешает предикат stock = $origin.
func (l *inventoryLedger) TryReserve(ctx context.Context, variantID int64, qty int32) (domain.Reservation, error) {
	if qty <= 0 {
		return domain.Reservation{}, domain.ErrQuantityInvalid
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var origin domain.ProductVariant
	err := l.tx.QueryRowContext(opCtx, `
		SELECT id, product_id, name, default_image_url, price_minor, stock, sales
		FROM skus
		WHERE id = $1
	`, variantID).Scan(
		&origin.ID, &origin.ProductID, &origin.Name, &origin.DefaultImageURL,
		&origin.PriceMinor, &origin.Stock, &origin.Sales,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Reservation{}, fmt.Errorf("variant %d: %w", variantID, domain.ErrVariantNotFound)
		}
		return domain.Reservation{}, fmt.Errorf("select sku: %w", err)
	}

	if qty > origin.Stock {
		return domain.Reservation{Outcome: domain.ReserveInsufficient, Variant: origin}, nil
	}

	newStock := origin.Stock - qty
	newSales := origin.Sales + qty

	res, err := l.tx.ExecContext(opCtx, `
		UPDATE skus
		SET stock = $2,
		    sales = $3,
		    updated_at = NOW()
		WHERE id = $1
		  AND stock = $4
	`, variantID, newStock, newSales, origin.Stock)
	if err != nil {
		if isCheckViolation(err) {
			return domain.Reservation{Outcome: domain.ReserveInsufficient, Variant: origin}, nil
		}
		return domain.Reservation{}, fmt.Errorf("update sku stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.Reservation{Outcome: domain.ReserveConflict, Variant: origin}, nil
	}

	return domain.Reservation{
		Outcome:  domain.ReserveSuccess,
		Variant:  origin,
		NewStock: newStock,
		NewSales: newSales,
	}, nil
}

// AddProductSales наращивает продажи SPU без optimistic locking.
func (l *inventoryLedger) AddProductSales(ctx context.Context, productID int64, qty int32) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := l.tx.ExecContext(opCtx, `
		UPDATE products
		SET sales = sales + $2,
		    updated_at = NOW()
		WHERE id = $1
	`, productID, qty)
	if err != nil {
		return fmt.Errorf("update product sales: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("product %d not found", productID)
	}
	return nil
}

var _ domain.InventoryLedger = (*inventoryLedger)(nil)
