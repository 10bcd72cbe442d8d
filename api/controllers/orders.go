package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mgiraldo-dev/canteen-backend/api/middleware"
	"github.com/mgiraldo-dev/canteen-backend/api/responses"
	"github.com/mgiraldo-dev/canteen-backend/api/validators"
	ordersvc "github.com/mgiraldo-dev/canteen-backend/internal/orders"
	"github.com/mgiraldo-dev/canteen-backend/pkg/enums"
	pkgerrors "github.com/mgiraldo-dev/canteen-backend/pkg/errors"
	"github.com/mgiraldo-dev/canteen-backend/pkg/logger"
	"github.com/mgiraldo-dev/canteen-backend/pkg/metrics"
)

type placeOrderRequest struct {
	ID            string             `json:"id,omitempty"`
	CustomerID    string             `json:"customer_id" validate:"required"`
	PreAuthorized bool               `json:"pre_authorized,omitempty"`
	Lines         []orderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type orderLineRequest struct {
	ItemID    string          `json:"item_id" validate:"required"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity" validate:"required,min=1"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// PlaceOrder handles order placement. The optional id field is the caller's
// idempotency key; resubmitting it returns the already-placed order.
func PlaceOrder(svc ordersvc.Coordinator, eng *metrics.EngineMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload placeOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lines := make([]ordersvc.Line, 0, len(payload.Lines))
		for _, line := range payload.Lines {
			lines = append(lines, ordersvc.Line{
				ItemID:    line.ItemID,
				Name:      line.Name,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPrice,
			})
		}

		start := time.Now()
		order, err := svc.PlaceOrder(r.Context(), ordersvc.PlaceOrderInput{
			ID:            payload.ID,
			CustomerID:    payload.CustomerID,
			PreAuthorized: payload.PreAuthorized,
			Lines:         lines,
		})
		eng.ObserveOrder(placementOutcome(err), time.Since(start))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

func placementOutcome(err error) string {
	switch {
	case err == nil:
		return "placed"
	case pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock):
		return "insufficient_stock"
	case pkgerrors.HasCode(err, pkgerrors.CodeValidation),
		pkgerrors.HasCode(err, pkgerrors.CodeDuplicateIdentity):
		return "rejected"
	default:
		return "error"
	}
}

func OrderDetail(svc ordersvc.Coordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, err := svc.Get(r.Context(), chi.URLParam(r, "orderId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// ListOrders filters by customer_id or status, exactly one of which is
// required.
func ListOrders(svc ordersvc.Coordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID := r.URL.Query().Get("customer_id")
		status := r.URL.Query().Get("status")

		switch {
		case customerID != "" && status != "":
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "filter by customer_id or status, not both"))
		case customerID != "":
			orders, err := svc.ListByCustomer(r.Context(), customerID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, orders)
		case status != "":
			parsed, err := enums.ParseOrderStatus(status)
			if err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			orders, err := svc.ListByStatus(r.Context(), parsed)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, orders)
		default:
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "customer_id or status query parameter required"))
		}
	}
}

type statusUpdateRequest struct {
	Status string `json:"status" validate:"required"`
}

func UpdateOrderStatus(svc ordersvc.Coordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload statusUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status"))
			return
		}

		order, err := svc.UpdateStatus(r.Context(), ordersvc.StatusUpdateInput{
			OrderID: chi.URLParam(r, "orderId"),
			Status:  status,
			Actor:   middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func CancelOrder(svc ordersvc.Coordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, err := svc.UpdateStatus(r.Context(), ordersvc.StatusUpdateInput{
			OrderID: chi.URLParam(r, "orderId"),
			Status:  enums.OrderStatusCancelled,
			Actor:   middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
