package inventory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/mgiraldo-dev/canteen-backend/pkg/errors"
	"github.com/mgiraldo-dev/canteen-backend/pkg/enums"
	"github.com/mgiraldo-dev/canteen-backend/pkg/retry"
	"github.com/mgiraldo-dev/canteen-backend/pkg/store"
)

// Ledger owns every mutation of current stock. Reserve and Release run inside
// a caller-provided transaction so stock and the triggering record commit as
// one atomic unit; Adjust opens its own.
type Ledger interface {
	Reserve(ctx context.Context, txn store.Txn, itemID string, qty int, orderID string) error
	Release(ctx context.Context, txn store.Txn, itemID string, qty int, orderID string) error
	Adjust(ctx context.Context, itemID string, input AdjustInput) (*Item, error)
	Create(ctx context.Context, item Item) (*Item, error)
	Get(ctx context.Context, itemID string) (*Item, error)
	Movements(ctx context.Context, itemID string) ([]Movement, error)
	VerifyStock(ctx context.Context, itemID string) (*ConsistencyReport, error)
	LowStock(ctx context.Context) ([]Item, error)
}

type ledger struct {
	store store.Client
	retry retry.Policy
}

// NewLedger wires a stock ledger against the provided store.
func NewLedger(st store.Client, policy retry.Policy) (Ledger, error) {
	if st == nil {
		return nil, fmt.Errorf("store client required")
	}
	return &ledger{store: st, retry: policy}, nil
}

func (l *ledger) Reserve(ctx context.Context, txn store.Txn, itemID string, qty int, orderID string) error {
	if txn == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "reserve requires a transaction")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "reserve quantity must be positive").
			WithDetails(map[string]any{"item_id": itemID, "quantity": qty})
	}

	item, err := l.loadItem(ctx, txn, itemID)
	if err != nil {
		return err
	}
	// The decision is made on the value read inside this transaction, never
	// on a stale read: a concurrent commit invalidates our version and
	// aborts the whole transaction instead.
	if item.CurrentStock < qty {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock,
			fmt.Sprintf("item %s: requested %d, available %d", itemID, qty, item.CurrentStock)).
			WithDetails(map[string]any{"item_id": itemID, "requested": qty, "available": item.CurrentStock})
	}

	item.CurrentStock -= qty
	return l.writeMutation(ctx, txn, item, Movement{
		Type:          enums.MovementTypeReservation,
		QuantityDelta: -qty,
		Reason:        "order " + orderID,
		Actor:         "order-coordinator",
	})
}

func (l *ledger) Release(ctx context.Context, txn store.Txn, itemID string, qty int, orderID string) error {
	if txn == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "release requires a transaction")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "release quantity must be positive").
			WithDetails(map[string]any{"item_id": itemID, "quantity": qty})
	}

	item, err := l.loadItem(ctx, txn, itemID)
	if err != nil {
		return err
	}

	returned := qty
	if item.MaximumStock > 0 && item.CurrentStock+qty > item.MaximumStock {
		returned = item.MaximumStock - item.CurrentStock
	}
	if returned <= 0 {
		return nil
	}

	item.CurrentStock += returned
	return l.writeMutation(ctx, txn, item, Movement{
		Type:          enums.MovementTypeRelease,
		QuantityDelta: returned,
		Reason:        "cancelled order " + orderID,
		Actor:         "order-coordinator",
	})
}

func (l *ledger) Adjust(ctx context.Context, itemID string, input AdjustInput) (*Item, error) {
	if input.Delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment delta must be non-zero")
	}
	if !input.Type.IsValid() || input.Type == enums.MovementTypeReservation || input.Type == enums.MovementTypeRelease {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("invalid manual movement type %q", input.Type))
	}
	if input.Actor == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor required")
	}

	var adjusted *Item
	err := retry.Do(ctx, l.retry, func(ctx context.Context) error {
		return l.store.RunTransaction(ctx, func(txn store.Txn) error {
			item, err := l.loadItem(ctx, txn, itemID)
			if err != nil {
				return err
			}
			next := item.CurrentStock + input.Delta
			if next < 0 {
				return pkgerrors.New(pkgerrors.CodeInvalidAdjustment,
					fmt.Sprintf("item %s: delta %d would drive stock below zero (current %d)",
						itemID, input.Delta, item.CurrentStock)).
					WithDetails(map[string]any{"item_id": itemID, "delta": input.Delta, "current": item.CurrentStock})
			}
			item.CurrentStock = next
			if err := l.writeMutation(ctx, txn, item, Movement{
				Type:          input.Type,
				QuantityDelta: input.Delta,
				Reason:        input.Reason,
				Actor:         input.Actor,
			}); err != nil {
				return err
			}
			adjusted = item
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return adjusted, nil
}

func (l *ledger) Create(ctx context.Context, item Item) (*Item, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item name required")
	}
	if item.CurrentStock < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "initial stock must be non-negative")
	}

	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	err := retry.Do(ctx, l.retry, func(ctx context.Context) error {
		return l.store.RunTransaction(ctx, func(txn store.Txn) error {
			if _, err := txn.Get(ctx, CollectionItems, item.ID); err == nil {
				return pkgerrors.New(pkgerrors.CodeDuplicateIdentity,
					fmt.Sprintf("inventory item %s already exists", item.ID))
			} else if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
				return err
			}
			if item.CurrentStock > 0 {
				// The opening balance is itself a movement so a replay of
				// the history reproduces the stored value.
				item.MovementCount = 1
				movement := l.newMovement(&item, Movement{
					Type:          enums.MovementTypeRestock,
					QuantityDelta: item.CurrentStock,
					Reason:        "opening balance",
					Actor:         "system",
				})
				if err := txn.Set(ctx, CollectionMovements, movement.ID, item.ID, movement); err != nil {
					return err
				}
			}
			return txn.Set(ctx, CollectionItems, item.ID, "", item)
		})
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (l *ledger) Get(ctx context.Context, itemID string) (*Item, error) {
	rec, err := l.store.Get(ctx, CollectionItems, itemID)
	if err != nil {
		return nil, err
	}
	var item Item
	if err := rec.Decode(&item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "decoding inventory item")
	}
	return &item, nil
}

func (l *ledger) Movements(ctx context.Context, itemID string) ([]Movement, error) {
	if _, err := l.Get(ctx, itemID); err != nil {
		return nil, err
	}
	return l.movements(ctx, l.store, itemID)
}

func (l *ledger) VerifyStock(ctx context.Context, itemID string) (*ConsistencyReport, error) {
	var report *ConsistencyReport
	// Item and history are read in one transaction so the check never
	// compares values from two different commits.
	err := l.store.RunTransaction(ctx, func(txn store.Txn) error {
		item, err := l.loadItem(ctx, txn, itemID)
		if err != nil {
			return err
		}
		movements, err := l.movements(ctx, txn, itemID)
		if err != nil {
			return err
		}
		computed := 0
		for _, movement := range movements {
			computed += movement.QuantityDelta
		}
		report = &ConsistencyReport{
			ItemID:        itemID,
			StoredStock:   item.CurrentStock,
			ComputedStock: computed,
			MovementCount: len(movements),
			Consistent:    computed == item.CurrentStock,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (l *ledger) LowStock(ctx context.Context) ([]Item, error) {
	recs, err := l.store.Query(ctx, store.Query{Collection: CollectionItems})
	if err != nil {
		return nil, err
	}
	var low []Item
	for _, rec := range recs {
		var item Item
		if err := rec.Decode(&item); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "decoding inventory item")
		}
		if item.CurrentStock <= item.ReorderPoint {
			low = append(low, item)
		}
	}
	return low, nil
}

func (l *ledger) loadItem(ctx context.Context, r store.Reader, itemID string) (*Item, error) {
	rec, err := r.Get(ctx, CollectionItems, itemID)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound,
				fmt.Sprintf("inventory item %s not found", itemID)).
				WithDetails(map[string]any{"item_id": itemID})
		}
		return nil, err
	}
	var item Item
	if err := rec.Decode(&item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "decoding inventory item")
	}
	return &item, nil
}

// writeMutation persists the updated item plus one movement record inside
// the open transaction.
func (l *ledger) writeMutation(ctx context.Context, txn store.Txn, item *Item, movement Movement) error {
	item.MovementCount++
	item.UpdatedAt = time.Now().UTC()
	if err := txn.Update(ctx, CollectionItems, item.ID, item); err != nil {
		return err
	}
	record := l.newMovement(item, movement)
	return txn.Set(ctx, CollectionMovements, record.ID, item.ID, record)
}

func (l *ledger) newMovement(item *Item, movement Movement) Movement {
	movement.ID = uuid.NewString()
	movement.ItemID = item.ID
	movement.Sequence = item.MovementCount
	movement.RecordedAt = time.Now().UTC()
	return movement
}

func (l *ledger) movements(ctx context.Context, r store.Reader, itemID string) ([]Movement, error) {
	recs, err := r.Query(ctx, store.Query{Collection: CollectionMovements, Ref: itemID})
	if err != nil {
		return nil, err
	}
	movements := make([]Movement, 0, len(recs))
	for _, rec := range recs {
		var movement Movement
		if err := rec.Decode(&movement); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "decoding stock movement")
		}
		movements = append(movements, movement)
	}
	sort.Slice(movements, func(i, j int) bool { return movements[i].Sequence < movements[j].Sequence })
	return movements, nil
}
