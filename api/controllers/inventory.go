package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mgiraldo-dev/canteen-backend/api/middleware"
	"github.com/mgiraldo-dev/canteen-backend/api/responses"
	"github.com/mgiraldo-dev/canteen-backend/api/validators"
	"github.com/mgiraldo-dev/canteen-backend/internal/inventory"
	"github.com/mgiraldo-dev/canteen-backend/pkg/enums"
	pkgerrors "github.com/mgiraldo-dev/canteen-backend/pkg/errors"
	"github.com/mgiraldo-dev/canteen-backend/pkg/logger"
	"github.com/mgiraldo-dev/canteen-backend/pkg/metrics"
	"github.com/mgiraldo-dev/canteen-backend/pkg/pagination"
)

type createItemRequest struct {
	ID              string          `json:"id,omitempty"`
	Name            string          `json:"name" validate:"required"`
	CurrentStock    int             `json:"current_stock" validate:"min=0"`
	ReorderPoint    int             `json:"reorder_point" validate:"min=0"`
	ReorderQuantity int             `json:"reorder_quantity" validate:"min=0"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	MaximumStock    int             `json:"maximum_stock" validate:"min=0"`
}

func CreateInventoryItem(svc inventory.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.Create(r.Context(), inventory.Item{
			ID:              payload.ID,
			Name:            payload.Name,
			CurrentStock:    payload.CurrentStock,
			ReorderPoint:    payload.ReorderPoint,
			ReorderQuantity: payload.ReorderQuantity,
			UnitCost:        payload.UnitCost,
			MaximumStock:    payload.MaximumStock,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, item)
	}
}

func InventoryItemDetail(svc inventory.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := svc.Get(r.Context(), chi.URLParam(r, "itemId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

type adjustStockRequest struct {
	Type   string `json:"type" validate:"required,oneof=restock waste correction"`
	Delta  int    `json:"delta" validate:"required"`
	Reason string `json:"reason" validate:"required"`
	Actor  string `json:"actor,omitempty"`
}

// AdjustStock applies a manual stock correction. The actor defaults to the
// authenticated principal when the body omits it.
func AdjustStock(svc inventory.Ledger, eng *metrics.EngineMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload adjustStockRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor := payload.Actor
		if actor == "" {
			actor = middleware.ActorFromContext(r.Context())
		}

		item, err := svc.Adjust(r.Context(), chi.URLParam(r, "itemId"), inventory.AdjustInput{
			Type:   enums.MovementType(payload.Type),
			Delta:  payload.Delta,
			Reason: payload.Reason,
			Actor:  actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		eng.IncAdjustment(payload.Type)
		responses.WriteSuccess(w, item)
	}
}

// ItemMovements pages through an item's movement history in sequence order.
// The cursor names the last sequence already seen.
func ItemMovements(svc inventory.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit = pagination.NormalizeLimit(limit)

		after := int64(-1)
		if cursor := r.URL.Query().Get("cursor"); cursor != "" {
			seq, err := pagination.DecodeSequenceCursor(cursor)
			if err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor"))
				return
			}
			after = seq
		}

		movements, err := svc.Movements(r.Context(), chi.URLParam(r, "itemId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page := make([]inventory.Movement, 0, limit)
		for _, movement := range movements {
			if movement.Sequence <= after {
				continue
			}
			page = append(page, movement)
			if len(page) == limit {
				break
			}
		}

		payload := map[string]any{"movements": page}
		if len(page) == limit && page[len(page)-1].Sequence < movements[len(movements)-1].Sequence {
			payload["next_cursor"] = pagination.EncodeSequenceCursor(page[len(page)-1].Sequence)
		}
		responses.WriteSuccess(w, payload)
	}
}

func VerifyItemStock(svc inventory.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.VerifyStock(r.Context(), chi.URLParam(r, "itemId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

func LowStockItems(svc inventory.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.LowStock(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}
