package reviews

import "time"

const CollectionReviews = "reviews"

// Review is a customer rating for a menu item. Only approved reviews count
// toward the item's derived rating.
type Review struct {
	ID         string    `json:"id"`
	FoodItemID string    `json:"food_item_id"`
	CustomerID string    `json:"customer_id"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	Approved   bool      `json:"approved"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type CreateInput struct {
	ID         string `json:"id,omitempty"`
	FoodItemID string `json:"food_item_id"`
	CustomerID string `json:"customer_id"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment,omitempty"`
}

type UpdateInput struct {
	Rating  *int    `json:"rating,omitempty"`
	Comment *string `json:"comment,omitempty"`
}
