package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mgiraldo-dev/canteen-backend/api/responses"
	"github.com/mgiraldo-dev/canteen-backend/api/validators"
	reviewsvc "github.com/mgiraldo-dev/canteen-backend/internal/reviews"
	"github.com/mgiraldo-dev/canteen-backend/pkg/logger"
	"github.com/mgiraldo-dev/canteen-backend/pkg/metrics"
)

type createReviewRequest struct {
	ID         string `json:"id,omitempty"`
	FoodItemID string `json:"food_item_id" validate:"required"`
	CustomerID string `json:"customer_id" validate:"required"`
	Rating     int    `json:"rating" validate:"required,min=1,max=5"`
	Comment    string `json:"comment,omitempty"`
}

func CreateReview(svc reviewsvc.Aggregator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createReviewRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		review, err := svc.Create(r.Context(), reviewsvc.CreateInput{
			ID:         payload.ID,
			FoodItemID: payload.FoodItemID,
			CustomerID: payload.CustomerID,
			Rating:     payload.Rating,
			Comment:    payload.Comment,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, review)
	}
}

type updateReviewRequest struct {
	Rating  *int    `json:"rating,omitempty" validate:"omitempty,min=1,max=5"`
	Comment *string `json:"comment,omitempty"`
}

func UpdateReview(svc reviewsvc.Aggregator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload updateReviewRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		review, err := svc.Update(r.Context(), chi.URLParam(r, "reviewId"), reviewsvc.UpdateInput{
			Rating:  payload.Rating,
			Comment: payload.Comment,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, review)
	}
}

func DeleteReview(svc reviewsvc.Aggregator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Delete(r.Context(), chi.URLParam(r, "reviewId")); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

func ApproveReview(svc reviewsvc.Aggregator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		review, err := svc.Approve(r.Context(), chi.URLParam(r, "reviewId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, review)
	}
}

func ListItemReviews(svc reviewsvc.Aggregator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reviews, err := svc.ListForItem(r.Context(), chi.URLParam(r, "itemId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reviews)
	}
}

// RecomputeRating forces a from-scratch re-derivation of the item's rating.
// Safe to call at any time; the result depends only on the stored reviews.
func RecomputeRating(svc reviewsvc.Aggregator, eng *metrics.EngineMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := svc.Recompute(r.Context(), chi.URLParam(r, "itemId"))
		if err != nil {
			eng.IncRecompute("error")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		eng.IncRecompute("ok")
		responses.WriteSuccess(w, item)
	}
}
