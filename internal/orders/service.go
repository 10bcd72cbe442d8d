package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mgiraldo-dev/canteen-backend/internal/inventory"
	pkgerrors "github.com/mgiraldo-dev/canteen-backend/pkg/errors"
	"github.com/mgiraldo-dev/canteen-backend/pkg/enums"
	"github.com/mgiraldo-dev/canteen-backend/pkg/retry"
	"github.com/mgiraldo-dev/canteen-backend/pkg/store"
	"github.com/shopspring/decimal"
)

// Coordinator drives order placement and lifecycle transitions. Placement
// and stock reservation commit as one atomic unit; nothing in between is
// ever observable.
type Coordinator interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*Order, error)
	UpdateStatus(ctx context.Context, input StatusUpdateInput) (*Order, error)
	Get(ctx context.Context, orderID string) (*Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
	ListByStatus(ctx context.Context, status enums.OrderStatus) ([]Order, error)
}

type coordinator struct {
	store  store.Client
	ledger inventory.Ledger
	retry  retry.Policy
}

// NewCoordinator wires an order coordinator with its dependencies.
func NewCoordinator(st store.Client, ledger inventory.Ledger, policy retry.Policy) (Coordinator, error) {
	if st == nil {
		return nil, fmt.Errorf("store client required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	return &coordinator{store: st, ledger: ledger, retry: policy}, nil
}

// PlaceOrder validates the input, then commits order plus stock decrement in
// one transaction. Re-invoking with the same order id after a success is a
// no-op returning the stored order: retries after a network timeout must not
// decrement twice. Conflicts with concurrent placements retry with backoff;
// business rejections surface immediately.
func (c *coordinator) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*Order, error) {
	if err := validatePlaceOrder(&input); err != nil {
		return nil, err
	}

	var placed *Order
	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.store.RunTransaction(ctx, func(txn store.Txn) error {
			existing, err := txn.Get(ctx, CollectionOrders, input.ID)
			if err == nil {
				var prior Order
				if derr := existing.Decode(&prior); derr != nil {
					return pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, derr, "decoding existing order")
				}
				placed = &prior
				return nil
			}
			if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
				return err
			}

			// Stock is re-read and checked inside this transaction for
			// every line; the first shortfall aborts the whole placement.
			for _, line := range input.Lines {
				if err := c.ledger.Reserve(ctx, txn, line.ItemID, line.Quantity, input.ID); err != nil {
					return err
				}
			}

			now := time.Now().UTC()
			order := Order{
				ID:          input.ID,
				CustomerID:  input.CustomerID,
				Lines:       input.Lines,
				Status:      enums.OrderStatusPending,
				FinalAmount: totalAmount(input.Lines),
				PlacedAt:    now,
				UpdatedAt:   now,
			}
			if input.PreAuthorized {
				order.Status = enums.OrderStatusConfirmed
				order.ConfirmedAt = &now
			}

			if err := txn.Set(ctx, CollectionOrders, order.ID, order.CustomerID, order); err != nil {
				return err
			}
			placed = &order
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

// UpdateStatus validates the transition against the lifecycle state machine
// and stamps the matching timestamp. Cancelling an order whose food has not
// been started (pending or confirmed) returns its reserved stock in the same
// transaction. Stock is never decremented here; reservation happens at
// placement only.
func (c *coordinator) UpdateStatus(ctx context.Context, input StatusUpdateInput) (*Order, error) {
	if input.OrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("invalid order status %q", input.Status))
	}

	var updated *Order
	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.store.RunTransaction(ctx, func(txn store.Txn) error {
			rec, err := txn.Get(ctx, CollectionOrders, input.OrderID)
			if err != nil {
				return err
			}
			var order Order
			if err := rec.Decode(&order); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "decoding order")
			}

			if !enums.CanTransition(order.Status, input.Status) {
				return pkgerrors.New(pkgerrors.CodeInvalidTransition,
					fmt.Sprintf("order %s: %s -> %s", order.ID, order.Status, input.Status)).
					WithDetails(map[string]any{"order_id": order.ID, "from": order.Status, "to": input.Status})
			}

			if input.Status == enums.OrderStatusCancelled && releasesStock(order.Status) {
				for _, line := range order.Lines {
					if err := c.ledger.Release(ctx, txn, line.ItemID, line.Quantity, order.ID); err != nil {
						return err
					}
				}
			}

			now := time.Now().UTC()
			order.Status = input.Status
			order.UpdatedAt = now
			order.UpdatedBy = input.Actor
			stampStatus(&order, input.Status, now)

			if err := txn.Update(ctx, CollectionOrders, order.ID, order); err != nil {
				return err
			}
			updated = &order
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (c *coordinator) Get(ctx context.Context, orderID string) (*Order, error) {
	rec, err := c.store.Get(ctx, CollectionOrders, orderID)
	if err != nil {
		return nil, err
	}
	var order Order
	if err := rec.Decode(&order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "decoding order")
	}
	return &order, nil
}

func (c *coordinator) ListByCustomer(ctx context.Context, customerID string) ([]Order, error) {
	if customerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	recs, err := c.store.Query(ctx, store.Query{Collection: CollectionOrders, Ref: customerID})
	if err != nil {
		return nil, err
	}
	return decodeOrders(recs, func(Order) bool { return true })
}

func (c *coordinator) ListByStatus(ctx context.Context, status enums.OrderStatus) ([]Order, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("invalid order status %q", status))
	}
	recs, err := c.store.Query(ctx, store.Query{Collection: CollectionOrders})
	if err != nil {
		return nil, err
	}
	return decodeOrders(recs, func(o Order) bool { return o.Status == status })
}

func decodeOrders(recs []store.Record, keep func(Order) bool) ([]Order, error) {
	orders := make([]Order, 0, len(recs))
	for _, rec := range recs {
		var order Order
		if err := rec.Decode(&order); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "decoding order")
		}
		if keep(order) {
			orders = append(orders, order)
		}
	}
	return orders, nil
}

func validatePlaceOrder(input *PlaceOrderInput) error {
	if input.ID == "" {
		input.ID = uuid.NewString()
	}
	if input.CustomerID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if len(input.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order contains no lines")
	}
	seen := make(map[string]struct{}, len(input.Lines))
	for i, line := range input.Lines {
		if line.ItemID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("line %d: item id required", i))
		}
		if line.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("line %d: quantity must be positive", i)).
				WithDetails(map[string]any{"item_id": line.ItemID, "quantity": line.Quantity})
		}
		if line.UnitPrice.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("line %d: unit price must not be negative", i))
		}
		if _, dup := seen[line.ItemID]; dup {
			return pkgerrors.New(pkgerrors.CodeDuplicateIdentity,
				fmt.Sprintf("item %s appears in more than one line", line.ItemID)).
				WithDetails(map[string]any{"item_id": line.ItemID})
		}
		seen[line.ItemID] = struct{}{}
	}
	return nil
}

func totalAmount(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

// releasesStock reports whether cancelling from the given status returns
// reserved stock. Once preparation started the ingredients are spent.
func releasesStock(from enums.OrderStatus) bool {
	return from == enums.OrderStatusPending || from == enums.OrderStatusConfirmed
}

func stampStatus(order *Order, status enums.OrderStatus, now time.Time) {
	switch status {
	case enums.OrderStatusConfirmed:
		order.ConfirmedAt = &now
	case enums.OrderStatusPreparing:
		order.PreparingAt = &now
	case enums.OrderStatusReady:
		order.ReadyAt = &now
	case enums.OrderStatusDelivered:
		order.DeliveredAt = &now
	case enums.OrderStatusCancelled:
		order.CancelledAt = &now
	}
}
