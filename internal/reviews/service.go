package reviews

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mgiraldo-dev/canteen-backend/internal/menu"
	pkgerrors "github.com/mgiraldo-dev/canteen-backend/pkg/errors"
	"github.com/mgiraldo-dev/canteen-backend/pkg/retry"
	"github.com/mgiraldo-dev/canteen-backend/pkg/store"
	"github.com/shopspring/decimal"
)

// Aggregator owns reviews and the derived rating cache on menu items. Every
// write path ends in Recompute, a pure re-derivation over the approved
// review set, so concurrent triggers for the same item are safe regardless
// of interleaving.
type Aggregator interface {
	Create(ctx context.Context, input CreateInput) (*Review, error)
	Update(ctx context.Context, reviewID string, input UpdateInput) (*Review, error)
	Delete(ctx context.Context, reviewID string) error
	Approve(ctx context.Context, reviewID string) (*Review, error)
	Get(ctx context.Context, reviewID string) (*Review, error)
	ListForItem(ctx context.Context, foodItemID string) ([]Review, error)
	Recompute(ctx context.Context, foodItemID string) (*menu.FoodItem, error)
}

type aggregator struct {
	store store.Client
	menu  menu.Repository
	retry retry.Policy
}

func NewAggregator(st store.Client, menuRepo menu.Repository, policy retry.Policy) (Aggregator, error) {
	if st == nil {
		return nil, fmt.Errorf("store client required")
	}
	if menuRepo == nil {
		return nil, fmt.Errorf("menu repository required")
	}
	return &aggregator{store: st, menu: menuRepo, retry: policy}, nil
}

func (a *aggregator) Create(ctx context.Context, input CreateInput) (*Review, error) {
	if input.FoodItemID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "food item id required")
	}
	if err := validateRating(input.Rating); err != nil {
		return nil, err
	}
	if _, err := a.menu.Get(ctx, input.FoodItemID); err != nil {
		return nil, err
	}
	if input.ID == "" {
		input.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	review := Review{
		ID:         input.ID,
		FoodItemID: input.FoodItemID,
		CustomerID: input.CustomerID,
		Rating:     input.Rating,
		Comment:    input.Comment,
		Approved:   false,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := retry.Do(ctx, a.retry, func(ctx context.Context) error {
		return a.store.RunTransaction(ctx, func(txn store.Txn) error {
			if _, err := txn.Get(ctx, CollectionReviews, review.ID); err == nil {
				return pkgerrors.New(pkgerrors.CodeDuplicateIdentity,
					fmt.Sprintf("review %s already exists", review.ID)).
					WithDetails(map[string]any{"review_id": review.ID})
			} else if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
				return err
			}
			return txn.Set(ctx, CollectionReviews, review.ID, review.FoodItemID, review)
		})
	})
	if err != nil {
		return nil, err
	}
	if _, err := a.Recompute(ctx, review.FoodItemID); err != nil {
		return nil, err
	}
	return &review, nil
}

func (a *aggregator) Update(ctx context.Context, reviewID string, input UpdateInput) (*Review, error) {
	if input.Rating != nil {
		if err := validateRating(*input.Rating); err != nil {
			return nil, err
		}
	}

	var updated *Review
	err := retry.Do(ctx, a.retry, func(ctx context.Context) error {
		return a.store.RunTransaction(ctx, func(txn store.Txn) error {
			review, err := a.load(ctx, txn, reviewID)
			if err != nil {
				return err
			}
			if input.Rating != nil {
				review.Rating = *input.Rating
			}
			if input.Comment != nil {
				review.Comment = *input.Comment
			}
			review.UpdatedAt = time.Now().UTC()
			if err := txn.Update(ctx, CollectionReviews, reviewID, review); err != nil {
				return err
			}
			updated = review
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if _, err := a.Recompute(ctx, updated.FoodItemID); err != nil {
		return nil, err
	}
	return updated, nil
}

func (a *aggregator) Delete(ctx context.Context, reviewID string) error {
	review, err := a.Get(ctx, reviewID)
	if err != nil {
		return err
	}
	if err := a.store.Delete(ctx, CollectionReviews, reviewID); err != nil {
		return err
	}
	_, err = a.Recompute(ctx, review.FoodItemID)
	return err
}

// Approve flips the moderation flag. Only from this point does the review
// count toward the item's rating.
func (a *aggregator) Approve(ctx context.Context, reviewID string) (*Review, error) {
	var approved *Review
	err := retry.Do(ctx, a.retry, func(ctx context.Context) error {
		return a.store.RunTransaction(ctx, func(txn store.Txn) error {
			review, err := a.load(ctx, txn, reviewID)
			if err != nil {
				return err
			}
			if review.Approved {
				approved = review
				return nil
			}
			review.Approved = true
			review.UpdatedAt = time.Now().UTC()
			if err := txn.Update(ctx, CollectionReviews, reviewID, review); err != nil {
				return err
			}
			approved = review
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if _, err := a.Recompute(ctx, approved.FoodItemID); err != nil {
		return nil, err
	}
	return approved, nil
}

func (a *aggregator) Get(ctx context.Context, reviewID string) (*Review, error) {
	return a.load(ctx, a.store, reviewID)
}

func (a *aggregator) ListForItem(ctx context.Context, foodItemID string) ([]Review, error) {
	if foodItemID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "food item id required")
	}
	recs, err := a.store.Query(ctx, store.Query{Collection: CollectionReviews, Ref: foodItemID})
	if err != nil {
		return nil, err
	}
	reviews := make([]Review, 0, len(recs))
	for _, rec := range recs {
		var review Review
		if err := rec.Decode(&review); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "decoding review")
		}
		reviews = append(reviews, review)
	}
	sort.Slice(reviews, func(i, j int) bool { return reviews[i].CreatedAt.Before(reviews[j].CreatedAt) })
	return reviews, nil
}

// Recompute re-derives the item's rating and review count from its approved
// reviews. The mean is rounded to two decimals and stored as hundredths. The
// result depends only on the review set, never on call order, so repeated or
// concurrent invocations converge on the same values.
func (a *aggregator) Recompute(ctx context.Context, foodItemID string) (*menu.FoodItem, error) {
	if foodItemID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "food item id required")
	}
	reviews, err := a.ListForItem(ctx, foodItemID)
	if err != nil {
		return nil, err
	}

	sum, count := 0, 0
	for _, review := range reviews {
		if !review.Approved {
			continue
		}
		sum += review.Rating
		count++
	}

	hundredths := 0
	if count > 0 {
		mean := decimal.NewFromInt(int64(sum)).
			Div(decimal.NewFromInt(int64(count))).
			Round(2)
		hundredths = int(mean.Mul(decimal.NewFromInt(100)).IntPart())
	}
	return a.menu.ApplyRating(ctx, foodItemID, hundredths, count)
}

func (a *aggregator) load(ctx context.Context, r store.Reader, reviewID string) (*Review, error) {
	if reviewID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "review id required")
	}
	rec, err := r.Get(ctx, CollectionReviews, reviewID)
	if err != nil {
		return nil, err
	}
	var review Review
	if err := rec.Decode(&review); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, "decoding review")
	}
	return &review, nil
}

func validateRating(rating int) error {
	if rating < 1 || rating > 5 {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("rating %d outside 1..5", rating)).
			WithDetails(map[string]any{"rating": rating})
	}
	return nil
}
