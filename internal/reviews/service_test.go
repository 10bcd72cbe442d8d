package reviews

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mgiraldo-dev/canteen-backend/internal/menu"
	pkgerrors "github.com/mgiraldo-dev/canteen-backend/pkg/errors"
	"github.com/mgiraldo-dev/canteen-backend/pkg/retry"
	"github.com/mgiraldo-dev/canteen-backend/pkg/store/gormstore"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestAggregator(t *testing.T) (Aggregator, menu.Repository, *menu.FoodItem) {
	t.Helper()
	dsn := "file:reviews_" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
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

	policy := retry.Policy{MaxAttempts: 20, InitialBackoff: time.Millisecond, MaximumBackoff: 20 * time.Millisecond}
	menuRepo, err := menu.NewRepository(st, policy)
	if err != nil {
		t.Fatalf("new menu repository: %v", err)
	}
	aggregator, err := NewAggregator(st, menuRepo, policy)
	if err != nil {
		t.Fatalf("new aggregator: %v", err)
	}

	item, err := menuRepo.Create(context.Background(), menu.FoodItem{
		Name:      "paella",
		Price:     decimal.RequireFromString("6.00"),
		Available: true,
	})
	if err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return aggregator, menuRepo, item
}

func approvedReview(t *testing.T, aggregator Aggregator, itemID string, rating int) *Review {
	t.Helper()
	review, err := aggregator.Create(context.Background(), CreateInput{
		FoodItemID: itemID,
		CustomerID: "cust-1",
		Rating:     rating,
	})
	if err != nil {
		t.Fatalf("create review: %v", err)
	}
	if _, err := aggregator.Approve(context.Background(), review.ID); err != nil {
		t.Fatalf("approve review: %v", err)
	}
	return review
}

func TestUnapprovedReviewsDoNotCount(t *testing.T) {
	t.Parallel()

	aggregator, menuRepo, item := newTestAggregator(t)
	ctx := context.Background()

	review, err := aggregator.Create(ctx, CreateInput{FoodItemID: item.ID, CustomerID: "cust-1", Rating: 5})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if review.Approved {
		t.Fatal("new review must start unapproved")
	}

	got, err := menuRepo.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got.ReviewCount != 0 || got.RatingHundredths != 0 {
		t.Fatalf("unapproved review leaked into rating: %+v", got)
	}
}

func TestApproveUpdatesDerivedRating(t *testing.T) {
	t.Parallel()

	aggregator, menuRepo, item := newTestAggregator(t)
	ctx := context.Background()

	for _, rating := range []int{4, 5, 5} {
		approvedReview(t, aggregator, item.ID, rating)
	}

	got, err := menuRepo.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	// mean(4,5,5) = 4.666..., rounded to 4.67
	if got.ReviewCount != 3 || got.RatingHundredths != 467 {
		t.Fatalf("expected 3 reviews at 4.67, got count=%d rating=%d", got.ReviewCount, got.RatingHundredths)
	}
}

func TestRecomputeIsIdempotent(t *testing.T) {
	t.Parallel()

	aggregator, _, item := newTestAggregator(t)
	ctx := context.Background()

	approvedReview(t, aggregator, item.ID, 3)
	approvedReview(t, aggregator, item.ID, 4)

	first, err := aggregator.Recompute(ctx, item.ID)
	if err != nil {
		t.Fatalf("first recompute: %v", err)
	}
	second, err := aggregator.Recompute(ctx, item.ID)
	if err != nil {
		t.Fatalf("second recompute: %v", err)
	}
	if first.RatingHundredths != second.RatingHundredths || first.ReviewCount != second.ReviewCount {
		t.Fatalf("recompute drifted: %+v vs %+v", first, second)
	}
	if second.RatingHundredths != 350 || second.ReviewCount != 2 {
		t.Fatalf("expected 3.50 over 2 reviews, got %+v", second)
	}
}

func TestConcurrentRecomputesConverge(t *testing.T) {
	t.Parallel()

	aggregator, menuRepo, item := newTestAggregator(t)
	ctx := context.Background()

	ratings := []int{1, 2, 3, 4, 5}
	for _, rating := range ratings {
		approvedReview(t, aggregator, item.ID, rating)
	}

	var wg sync.WaitGroup
	for n := 0; n < 4; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := aggregator.Recompute(ctx, item.ID); err != nil {
				t.Errorf("recompute: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := menuRepo.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got.ReviewCount != 5 || got.RatingHundredths != 300 {
		t.Fatalf("expected 3.00 over 5 reviews regardless of interleaving, got %+v", got)
	}
}

func TestUpdateAndDeleteRetrigger(t *testing.T) {
	t.Parallel()

	aggregator, menuRepo, item := newTestAggregator(t)
	ctx := context.Background()

	kept := approvedReview(t, aggregator, item.ID, 5)
	dropped := approvedReview(t, aggregator, item.ID, 1)

	rating := 4
	if _, err := aggregator.Update(ctx, kept.ID, UpdateInput{Rating: &rating}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := menuRepo.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	// mean(4,1) = 2.50
	if got.RatingHundredths != 250 || got.ReviewCount != 2 {
		t.Fatalf("expected 2.50 over 2, got %+v", got)
	}

	if err := aggregator.Delete(ctx, dropped.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = menuRepo.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got.RatingHundredths != 400 || got.ReviewCount != 1 {
		t.Fatalf("expected 4.00 over 1 after delete, got %+v", got)
	}
}

func TestValidation(t *testing.T) {
	t.Parallel()

	aggregator, _, item := newTestAggregator(t)
	ctx := context.Background()

	if _, err := aggregator.Create(ctx, CreateInput{FoodItemID: item.ID, Rating: 0}); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR for rating 0, got %v", err)
	}
	if _, err := aggregator.Create(ctx, CreateInput{FoodItemID: item.ID, Rating: 6}); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR for rating 6, got %v", err)
	}
	if _, err := aggregator.Create(ctx, CreateInput{FoodItemID: "missing", Rating: 3}); !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND for unknown item, got %v", err)
	}
	if _, err := aggregator.Approve(ctx, "missing"); !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND for unknown review, got %v", err)
	}
	if err := aggregator.Delete(ctx, "missing"); !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND for unknown review, got %v", err)
	}
}
