package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "nil", err: nil, want: KindNone},
		{name: "address required", err: ErrAddressRequired, want: KindValidation},
		{name: "empty selection", err: fmt.Errorf("load: %w", ErrEmptySelection), want: KindValidation},
		{
			name: "typed insufficient stock",
			err:  fmt.Errorf("reserve: %w", &InsufficientStockError{VariantID: 2, Requested: 1}),
			want: KindInsufficient,
		},
		{name: "conflict", err: ErrOptimisticConflict, want: KindConflict},
		{name: "collision", err: ErrOrderIDCollision, want: KindPersistence},
		{name: "retries exhausted", err: ErrConflictRetriesExhausted, want: KindPersistence},
		{name: "unknown", err: errors.New("connection reset"), want: KindPersistence},
		{name: "cleanup", err: fmt.Errorf("%w: redis down", ErrCartCleanup), want: KindCartCleanup},
		{name: "not found", err: ErrOrderNotFound, want: KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAsPersistence(t *testing.T) {
	if AsPersistence("op", nil) != nil {
		t.Fatal("nil must stay nil")
	}

	raw := errors.New("driver: bad connection")
	wrapped := AsPersistence("insert order", raw)
	if !errors.Is(wrapped, ErrPersistence) || !errors.Is(wrapped, raw) {
		t.Fatalf("expected persistence wrap keeping cause, got %v", wrapped)
	}

	stock := &InsufficientStockError{VariantID: 1, Requested: 3, Available: 2}
	if got := AsPersistence("reserve", stock); got != stock {
		t.Fatalf("business errors must pass through unchanged, got %v", got)
	}

	collision := AsPersistence("insert", ErrOrderIDCollision)
	if !errors.Is(collision, ErrOrderIDCollision) {
		t.Fatalf("collision must remain detectable: %v", collision)
	}
}

func TestInsufficientStockErrorMessage(t *testing.T) {
	err := &InsufficientStockError{VariantID: 16, Requested: 3, Available: 1}
	want := "insufficient stock for variant 16: requested 3, available 1"
	if err.Error() != want {
		t.Fatalf("unexpected message: %s", err.Error())
	}
	var target *InsufficientStockError
	if !errors.As(fmt.Errorf("commit: %w", err), &target) || target.VariantID != 16 {
		t.Fatal("errors.As must find InsufficientStockError")
	}
}
