package menu

import (
	"time"

	"github.com/shopspring/decimal"
)

const CollectionMenuItems = "menu_items"

// FoodItem is a dish on the canteen menu. RatingHundredths and ReviewCount
// are derived caches recomputed from the review set; they are never a source
// of truth.
type FoodItem struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Available   bool            `json:"available"`

	// Average rating scaled by 100 so two decimals survive storage exactly.
	RatingHundredths int `json:"rating_hundredths"`
	ReviewCount      int `json:"review_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Rating returns the average rating with two-decimal precision.
func (f FoodItem) Rating() decimal.Decimal {
	return decimal.NewFromInt(int64(f.RatingHundredths)).Div(decimal.NewFromInt(100))
}

type UpdateInput struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Available   *bool            `json:"available,omitempty"`
}
