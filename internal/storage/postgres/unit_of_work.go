package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
)

var savepointNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// unitOfWork оборачивает *sql.Tx: заголовок, позиции, условные списания
// и outbox пишутся в одну транзакцию.
type unitOfWork struct {
	tx *sql.Tx
}

func (u *unitOfWork) Inventory() domain.InventoryLedger { return &inventoryLedger{tx: u.tx} }
func (u *unitOfWork) Orders() domain.OrderWriter         { return &orderWriter{tx: u.tx} }
func (u *unitOfWork) Outbox() domain.OutboxWriter        { return &outboxWriter{tx: u.tx} }

func (u *unitOfWork) Savepoint(ctx context.Context, name string) error {
	return u.execSavepoint(ctx, "SAVEPOINT", name)
}

func (u *unitOfWork) RollbackTo(ctx context.Context, name string) error {
	return u.execSavepoint(ctx, "ROLLBACK TO SAVEPOINT", name)
}

func (u *unitOfWork) Release(ctx context.Context, name string) error {
	return u.execSavepoint(ctx, "RELEASE SAVEPOINT", name)
}

func (u *unitOfWork) execSavepoint(ctx context.Context, stmt, name string) error {
	if !savepointNamePattern.MatchString(name) {
		return fmt.Errorf("invalid savepoint name %q", name)
	}
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := u.tx.ExecContext(opCtx, stmt+" "+pgx.Identifier{name}.Sanitize()); err != nil {
		return fmt.Errorf("%s %s: %w", stmt, name, txDone(err))
	}
	return nil
}

func (u *unitOfWork) Commit() error {
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", txDone(err))
	}
	return nil
}

// Rollback после отмены контекста возвращает domain.ErrTxDone: database/sql
// уже откатил транзакцию сам.
func (u *unitOfWork) Rollback() error {
	if err := u.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback tx: %w", txDone(err))
	}
	return nil
}

func txDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("%w: %w", domain.ErrTxDone, err)
	}
	return err
}

var _ domain.UnitOfWork = (*unitOfWork)(nil)
