package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/mgiraldo-dev/canteen-backend/pkg/errors"
	"github.com/mgiraldo-dev/canteen-backend/pkg/enums"
	"github.com/mgiraldo-dev/canteen-backend/pkg/retry"
	"github.com/mgiraldo-dev/canteen-backend/pkg/store"
	"github.com/mgiraldo-dev/canteen-backend/pkg/store/gormstore"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestLedger(t *testing.T) (Ledger, store.Client) {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := gormstore.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st, err := gormstore.New(db, gormstore.Options{OpTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ledger, err := NewLedger(st, retry.Policy{MaxAttempts: 5, InitialBackoff: time.Millisecond, MaximumBackoff: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return ledger, st
}

func seedItem(t *testing.T, ledger Ledger, stock int) *Item {
	t.Helper()
	item, err := ledger.Create(context.Background(), Item{
		Name:         "arroz con pollo",
		CurrentStock: stock,
		ReorderPoint: 2,
		MaximumStock: 50,
	})
	if err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return item
}

func TestCreateRecordsOpeningBalance(t *testing.T) {
	t.Parallel()

	ledger, _ := newTestLedger(t)
	item := seedItem(t, ledger, 10)

	movements, err := ledger.Movements(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("movements: %v", err)
	}
	if len(movements) != 1 {
		t.Fatalf("expected one opening movement, got %d", len(movements))
	}
	if movements[0].Type != enums.MovementTypeRestock || movements[0].QuantityDelta != 10 {
		t.Fatalf("unexpected opening movement %+v", movements[0])
	}
}

func TestReserveDecrementsAndAppends(t *testing.T) {
	t.Parallel()

	ledger, st := newTestLedger(t)
	item := seedItem(t, ledger, 10)
	ctx := context.Background()

	err := st.RunTransaction(ctx, func(txn store.Txn) error {
		return ledger.Reserve(ctx, txn, item.ID, 4, "order-1")
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	got, err := ledger.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CurrentStock != 6 {
		t.Fatalf("expected stock 6, got %d", got.CurrentStock)
	}

	movements, err := ledger.Movements(ctx, item.ID)
	if err != nil {
		t.Fatalf("movements: %v", err)
	}
	if len(movements) != 2 {
		t.Fatalf("expected 2 movements, got %d", len(movements))
	}
	last := movements[1]
	if last.Type != enums.MovementTypeReservation || last.QuantityDelta != -4 || last.Sequence != 2 {
		t.Fatalf("unexpected movement %+v", last)
	}
}

func TestReserveFailsOnInsufficientStock(t *testing.T) {
	t.Parallel()

	ledger, st := newTestLedger(t)
	item := seedItem(t, ledger, 3)
	ctx := context.Background()

	err := st.RunTransaction(ctx, func(txn store.Txn) error {
		return ledger.Reserve(ctx, txn, item.ID, 4, "order-1")
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock) {
		t.Fatalf("expected INSUFFICIENT_STOCK, got %v", err)
	}

	// The failed transaction must leave no trace.
	got, err := ledger.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CurrentStock != 3 {
		t.Fatalf("stock changed on failed reserve: %d", got.CurrentStock)
	}
	movements, err := ledger.Movements(ctx, item.ID)
	if err != nil {
		t.Fatalf("movements: %v", err)
	}
	if len(movements) != 1 {
		t.Fatalf("movement appended on failed reserve: %d", len(movements))
	}
}

func TestReserveValidation(t *testing.T) {
	t.Parallel()

	ledger, st := newTestLedger(t)
	item := seedItem(t, ledger, 3)
	ctx := context.Background()

	err := st.RunTransaction(ctx, func(txn store.Txn) error {
		return ledger.Reserve(ctx, txn, item.ID, 0, "order-1")
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}

	err = st.RunTransaction(ctx, func(txn store.Txn) error {
		return ledger.Reserve(ctx, txn, "missing", 1, "order-1")
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestAdjustRejectsNegativeResult(t *testing.T) {
	t.Parallel()

	ledger, _ := newTestLedger(t)
	item := seedItem(t, ledger, 2)
	ctx := context.Background()

	_, err := ledger.Adjust(ctx, item.ID, AdjustInput{
		Delta: -5, Type: enums.MovementTypeWaste, Reason: "spoiled", Actor: "staff:ana",
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidAdjustment) {
		t.Fatalf("expected INVALID_ADJUSTMENT, got %v", err)
	}

	got, err := ledger.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CurrentStock != 2 {
		t.Fatalf("stock changed on rejected adjustment: %d", got.CurrentStock)
	}
}

func TestAdjustAppliesDeltaAndRecordsMovement(t *testing.T) {
	t.Parallel()

	ledger, _ := newTestLedger(t)
	item := seedItem(t, ledger, 2)
	ctx := context.Background()

	adjusted, err := ledger.Adjust(ctx, item.ID, AdjustInput{
		Delta: 8, Type: enums.MovementTypeRestock, Reason: "weekly delivery", Actor: "staff:ana",
	})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if adjusted.CurrentStock != 10 {
		t.Fatalf("expected stock 10, got %d", adjusted.CurrentStock)
	}

	movements, err := ledger.Movements(ctx, item.ID)
	if err != nil {
		t.Fatalf("movements: %v", err)
	}
	last := movements[len(movements)-1]
	if last.QuantityDelta != 8 || last.Actor != "staff:ana" || last.Reason != "weekly delivery" {
		t.Fatalf("unexpected movement %+v", last)
	}
}

func TestAdjustValidation(t *testing.T) {
	t.Parallel()

	ledger, _ := newTestLedger(t)
	item := seedItem(t, ledger, 2)
	ctx := context.Background()

	if _, err := ledger.Adjust(ctx, item.ID, AdjustInput{Delta: 0, Type: enums.MovementTypeWaste, Actor: "a"}); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("zero delta: expected VALIDATION_ERROR, got %v", err)
	}
	if _, err := ledger.Adjust(ctx, item.ID, AdjustInput{Delta: 1, Type: enums.MovementTypeReservation, Actor: "a"}); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("reservation type: expected VALIDATION_ERROR, got %v", err)
	}
	if _, err := ledger.Adjust(ctx, item.ID, AdjustInput{Delta: 1, Type: enums.MovementTypeRestock}); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("missing actor: expected VALIDATION_ERROR, got %v", err)
	}
}

func TestReleaseCapsAtMaximumStock(t *testing.T) {
	t.Parallel()

	ledger, st := newTestLedger(t)
	ctx := context.Background()
	item, err := ledger.Create(ctx, Item{Name: "flan", CurrentStock: 48, MaximumStock: 50})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	err = st.RunTransaction(ctx, func(txn store.Txn) error {
		return ledger.Release(ctx, txn, item.ID, 5, "order-9")
	})
	if err != nil {
		t.Fatalf("release: %v", err)
	}

	got, err := ledger.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CurrentStock != 50 {
		t.Fatalf("expected capped stock 50, got %d", got.CurrentStock)
	}
}

func TestVerifyStockMatchesHistoryReplay(t *testing.T) {
	t.Parallel()

	ledger, st := newTestLedger(t)
	item := seedItem(t, ledger, 10)
	ctx := context.Background()

	if err := st.RunTransaction(ctx, func(txn store.Txn) error {
		return ledger.Reserve(ctx, txn, item.ID, 3, "order-1")
	}); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := ledger.Adjust(ctx, item.ID, AdjustInput{Delta: -2, Type: enums.MovementTypeWaste, Reason: "dropped tray", Actor: "staff:leo"}); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if err := st.RunTransaction(ctx, func(txn store.Txn) error {
		return ledger.Release(ctx, txn, item.ID, 3, "order-1")
	}); err != nil {
		t.Fatalf("release: %v", err)
	}

	report, err := ledger.VerifyStock(ctx, item.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !report.Consistent {
		t.Fatalf("expected consistent report, got %+v", report)
	}
	if report.StoredStock != 8 || report.ComputedStock != 8 {
		t.Fatalf("unexpected totals %+v", report)
	}
	if report.MovementCount != 4 {
		t.Fatalf("expected 4 movements, got %d", report.MovementCount)
	}
}

func TestLowStock(t *testing.T) {
	t.Parallel()

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := ledger.Create(ctx, Item{Name: "well stocked", CurrentStock: 30, ReorderPoint: 5}); err != nil {
		t.Fatalf("create: %v", err)
	}
	short, err := ledger.Create(ctx, Item{Name: "running out", CurrentStock: 2, ReorderPoint: 5})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	low, err := ledger.LowStock(ctx)
	if err != nil {
		t.Fatalf("low stock: %v", err)
	}
	if len(low) != 1 || low[0].ID != short.ID {
		t.Fatalf("unexpected low stock set %+v", low)
	}
}
