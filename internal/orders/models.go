package orders

import (
	"time"

	"github.com/mgiraldo-dev/canteen-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

const CollectionOrders = "orders"

// Line is one order position with the unit price frozen at placement time.
type Line struct {
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Order is the persisted order document. Every lifecycle stage carries its
// own timestamp; reaching a stage stamps the matching field exactly once.
type Order struct {
	ID          string            `json:"id"`
	CustomerID  string            `json:"customer_id"`
	Lines       []Line            `json:"lines"`
	Status      enums.OrderStatus `json:"status"`
	FinalAmount decimal.Decimal   `json:"final_amount"`
	PlacedAt    time.Time         `json:"placed_at"`
	ConfirmedAt *time.Time        `json:"confirmed_at,omitempty"`
	PreparingAt *time.Time        `json:"preparing_at,omitempty"`
	ReadyAt     *time.Time        `json:"ready_at,omitempty"`
	DeliveredAt *time.Time        `json:"delivered_at,omitempty"`
	CancelledAt *time.Time        `json:"cancelled_at,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
	UpdatedBy   string            `json:"updated_by,omitempty"`
}

// PlaceOrderInput carries everything needed to place an order. ID doubles as
// the idempotency key: retrying with the same id never reserves twice.
type PlaceOrderInput struct {
	ID            string
	CustomerID    string
	Lines         []Line
	PreAuthorized bool
}

// StatusUpdateInput captures a staff-driven lifecycle transition.
type StatusUpdateInput struct {
	OrderID string
	Status  enums.OrderStatus
	Actor   string
}
