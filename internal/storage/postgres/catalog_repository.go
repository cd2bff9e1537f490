package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

type catalogReader struct {
	db *sql.DB
}

// NewCatalogReader создаёт PostgreSQL-реализацию CatalogReader.
func NewCatalogReader(store *Store) domain.CatalogReader {
	return &catalogReader{db: store.DB()}
}

// GetVariants возвращает найденные варианты в порядке возрастания id.
func (r *catalogReader) GetVariants(ctx context.Context, ids []int64) ([]domain.ProductVariant, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(opCtx, `
		SELECT id, product_id, name, default_image_url, price_minor, stock, sales
		FROM skus
		WHERE id = ANY($1)
		ORDER BY id ASC
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("select skus: %w", err)
	}
	defer rows.Close()

	result := make([]domain.ProductVariant, 0, len(ids))
	for rows.Next() {
		var v domain.ProductVariant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Name, &v.DefaultImageURL, &v.PriceMinor, &v.Stock, &v.Sales); err != nil {
			return nil, fmt.Errorf("scan sku: %w", err)
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate skus: %w", err)
	}
	return result, nil
}

var _ domain.CatalogReader = (*catalogReader)(nil)
