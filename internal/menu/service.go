package menu

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/mgiraldo-dev/canteen-backend/pkg/errors"
	"github.com/mgiraldo-dev/canteen-backend/pkg/retry"
	"github.com/mgiraldo-dev/canteen-backend/pkg/store"
)

// Repository manages menu items. Mutation of the derived rating fields is
// reserved for ApplyRating, which the review aggregator calls after each
// recompute.
type Repository interface {
	Create(ctx context.Context, item FoodItem) (*FoodItem, error)
	Get(ctx context.Context, itemID string) (*FoodItem, error)
	List(ctx context.Context) ([]FoodItem, error)
	ListByCategory(ctx context.Context, category string) ([]FoodItem, error)
	Update(ctx context.Context, itemID string, input UpdateInput) (*FoodItem, error)
	Delete(ctx context.Context, itemID string) error
	ApplyRating(ctx context.Context, itemID string, ratingHundredths, reviewCount int) (*FoodItem, error)
}

type repository struct {
	store store.Client
	retry retry.Policy
}

func NewRepository(st store.Client, policy retry.Policy) (Repository, error) {
	if st == nil {
		return nil, fmt.Errorf("store client required")
	}
	return &repository{store: st, retry: policy}, nil
}

func (r *repository) Create(ctx context.Context, item FoodItem) (*FoodItem, error) {
	if item.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "menu item name required")
	}
	if item.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "menu item price must not be negative")
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	item.RatingHundredths = 0
	item.ReviewCount = 0

	err := retry.Do(ctx, r.retry, func(ctx context.Context) error {
		return r.store.RunTransaction(ctx, func(txn store.Txn) error {
			if _, err := txn.Get(ctx, CollectionMenuItems, item.ID); err == nil {
				return pkgerrors.New(pkgerrors.CodeDuplicateIdentity,
					fmt.Sprintf("menu item %s already exists", item.ID)).
					WithDetails(map[string]any{"item_id": item.ID})
			} else if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
				return err
			}
			return txn.Set(ctx, CollectionMenuItems, item.ID, item.Category, item)
		})
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) Get(ctx context.Context, itemID string) (*FoodItem, error) {
	rec, err := r.store.Get(ctx, CollectionMenuItems, itemID)
	if err != nil {
		return nil, err
	}
	var item FoodItem
	if err := rec.Decode(&item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "decoding menu item")
	}
	return &item, nil
}

func (r *repository) List(ctx context.Context) ([]FoodItem, error) {
	recs, err := r.store.Query(ctx, store.Query{Collection: CollectionMenuItems})
	if err != nil {
		return nil, err
	}
	return decodeItems(recs)
}

func (r *repository) ListByCategory(ctx context.Context, category string) ([]FoodItem, error) {
	if category == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category required")
	}
	recs, err := r.store.Query(ctx, store.Query{Collection: CollectionMenuItems, Ref: category})
	if err != nil {
		return nil, err
	}
	return decodeItems(recs)
}

func (r *repository) Update(ctx context.Context, itemID string, input UpdateInput) (*FoodItem, error) {
	if input.Name != nil && *input.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "menu item name must not be empty")
	}
	if input.Price != nil && input.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "menu item price must not be negative")
	}

	var updated *FoodItem
	err := retry.Do(ctx, r.retry, func(ctx context.Context) error {
		return r.store.RunTransaction(ctx, func(txn store.Txn) error {
			rec, err := txn.Get(ctx, CollectionMenuItems, itemID)
			if err != nil {
				return err
			}
			var item FoodItem
			if err := rec.Decode(&item); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "decoding menu item")
			}
			if input.Name != nil {
				item.Name = *input.Name
			}
			if input.Description != nil {
				item.Description = *input.Description
			}
			if input.Category != nil {
				item.Category = *input.Category
			}
			if input.Price != nil {
				item.Price = *input.Price
			}
			if input.Available != nil {
				item.Available = *input.Available
			}
			item.UpdatedAt = time.Now().UTC()
			if err := txn.Update(ctx, CollectionMenuItems, itemID, item); err != nil {
				return err
			}
			updated = &item
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *repository) Delete(ctx context.Context, itemID string) error {
	return r.store.Delete(ctx, CollectionMenuItems, itemID)
}

// ApplyRating writes the derived rating fields computed by the review
// aggregator. Concurrent recomputes race last-write-wins, which is safe
// because the fields are reconstructable from the review set.
func (r *repository) ApplyRating(ctx context.Context, itemID string, ratingHundredths, reviewCount int) (*FoodItem, error) {
	var updated *FoodItem
	err := retry.Do(ctx, r.retry, func(ctx context.Context) error {
		return r.store.RunTransaction(ctx, func(txn store.Txn) error {
			rec, err := txn.Get(ctx, CollectionMenuItems, itemID)
			if err != nil {
				return err
			}
			var item FoodItem
			if err := rec.Decode(&item); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "decoding menu item")
			}
			item.RatingHundredths = ratingHundredths
			item.ReviewCount = reviewCount
			item.UpdatedAt = time.Now().UTC()
			if err := txn.Update(ctx, CollectionMenuItems, itemID, item); err != nil {
				return err
			}
			updated = &item
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func decodeItems(recs []store.Record) ([]FoodItem, error) {
	items := make([]FoodItem, 0, len(recs))
	for _, rec := range recs {
		var item FoodItem
		if err := rec.Decode(&item); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "decoding menu item")
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}
