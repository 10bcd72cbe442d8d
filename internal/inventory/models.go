package inventory

import (
	"time"

	"github.com/mgiraldo-dev/canteen-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

const (
	CollectionItems     = "inventory_items"
	CollectionMovements = "stock_movements"
)

// Item is one tracked inventory position. CurrentStock mutates only through
// the ledger operations; MovementCount sequences the audit trail.
type Item struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	CurrentStock    int             `json:"current_stock"`
	ReorderPoint    int             `json:"reorder_point"`
	ReorderQuantity int             `json:"reorder_quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	MaximumStock    int             `json:"maximum_stock"`
	MovementCount   int64           `json:"movement_count"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Movement is one append-only audit record. Records are never edited or
// removed; replaying them must reproduce the stored stock value.
type Movement struct {
	ID            string             `json:"id"`
	ItemID        string             `json:"item_id"`
	Type          enums.MovementType `json:"type"`
	QuantityDelta int                `json:"quantity_delta"`
	Reason        string             `json:"reason"`
	Actor         string             `json:"actor"`
	Sequence      int64              `json:"sequence"`
	RecordedAt    time.Time          `json:"recorded_at"`
}

// AdjustInput captures a manual stock correction outside the order flow.
type AdjustInput struct {
	Delta  int
	Type   enums.MovementType
	Reason string
	Actor  string
}

// ConsistencyReport compares the stored stock value against a replay of the
// movement history.
type ConsistencyReport struct {
	ItemID        string `json:"item_id"`
	StoredStock   int    `json:"stored_stock"`
	ComputedStock int    `json:"computed_stock"`
	MovementCount int    `json:"movement_count"`
	Consistent    bool   `json:"consistent"`
}
