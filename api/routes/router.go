package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mgiraldo-dev/canteen-backend/api/controllers"
	"github.com/mgiraldo-dev/canteen-backend/api/middleware"
	"github.com/mgiraldo-dev/canteen-backend/internal/inventory"
	menusvc "github.com/mgiraldo-dev/canteen-backend/internal/menu"
	ordersvc "github.com/mgiraldo-dev/canteen-backend/internal/orders"
	reviewsvc "github.com/mgiraldo-dev/canteen-backend/internal/reviews"
	"github.com/mgiraldo-dev/canteen-backend/pkg/config"
	"github.com/mgiraldo-dev/canteen-backend/pkg/logger"
	"github.com/mgiraldo-dev/canteen-backend/pkg/metrics"
	"github.com/mgiraldo-dev/canteen-backend/pkg/redis"
	"github.com/mgiraldo-dev/canteen-backend/pkg/store"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Store    store.Client
	Bus      *redis.Client
	Registry *prometheus.Registry
	Metrics  *metrics.EngineMetrics

	Orders  ordersvc.Coordinator
	Ledger  inventory.Ledger
	Menu    menusvc.Repository
	Reviews reviewsvc.Aggregator
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(d.Logger),
		middleware.RequestID(d.Logger),
		middleware.Logging(d.Logger),
		middleware.CORS(),
		middleware.Actor(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(d.Config))
		r.Get("/ready", controllers.HealthReady(d.Config, d.Logger, d.Store, d.Bus))
	})

	if d.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.PlaceOrder(d.Orders, d.Metrics, d.Logger))
			r.Get("/", controllers.ListOrders(d.Orders, d.Logger))
			r.Get("/{orderId}", controllers.OrderDetail(d.Orders, d.Logger))
			r.Post("/{orderId}/status", controllers.UpdateOrderStatus(d.Orders, d.Logger))
			r.Post("/{orderId}/cancel", controllers.CancelOrder(d.Orders, d.Logger))
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Post("/", controllers.CreateInventoryItem(d.Ledger, d.Logger))
			r.Get("/low-stock", controllers.LowStockItems(d.Ledger, d.Logger))
			r.Get("/{itemId}", controllers.InventoryItemDetail(d.Ledger, d.Logger))
			r.Post("/{itemId}/adjust", controllers.AdjustStock(d.Ledger, d.Metrics, d.Logger))
			r.Get("/{itemId}/movements", controllers.ItemMovements(d.Ledger, d.Logger))
			r.Get("/{itemId}/verify", controllers.VerifyItemStock(d.Ledger, d.Logger))
		})

		r.Route("/menu", func(r chi.Router) {
			r.Post("/", controllers.CreateMenuItem(d.Menu, d.Logger))
			r.Get("/", controllers.ListMenu(d.Menu, d.Logger))
			r.Get("/{itemId}", controllers.MenuItemDetail(d.Menu, d.Logger))
			r.Patch("/{itemId}", controllers.UpdateMenuItem(d.Menu, d.Logger))
			r.Delete("/{itemId}", controllers.DeleteMenuItem(d.Menu, d.Logger))
			r.Get("/{itemId}/reviews", controllers.ListItemReviews(d.Reviews, d.Logger))
			r.Post("/{itemId}/recompute-rating", controllers.RecomputeRating(d.Reviews, d.Metrics, d.Logger))
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Post("/", controllers.CreateReview(d.Reviews, d.Logger))
			r.Patch("/{reviewId}", controllers.UpdateReview(d.Reviews, d.Logger))
			r.Delete("/{reviewId}", controllers.DeleteReview(d.Reviews, d.Logger))
			r.Post("/{reviewId}/approve", controllers.ApproveReview(d.Reviews, d.Logger))
		})
	})

	return r
}
