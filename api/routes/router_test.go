package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mgiraldo-dev/canteen-backend/internal/inventory"
	menusvc "github.com/mgiraldo-dev/canteen-backend/internal/menu"
	ordersvc "github.com/mgiraldo-dev/canteen-backend/internal/orders"
	reviewsvc "github.com/mgiraldo-dev/canteen-backend/internal/reviews"
	"github.com/mgiraldo-dev/canteen-backend/pkg/config"
	"github.com/mgiraldo-dev/canteen-backend/pkg/metrics"
	"github.com/mgiraldo-dev/canteen-backend/pkg/retry"
	"github.com/mgiraldo-dev/canteen-backend/pkg/store/gormstore"
	"github.com/mgiraldo-dev/canteen-backend/pkg/types"
)

func newTestRouter(t *testing.T) (http.Handler, inventory.Ledger) {
	t.Helper()
	dsn := "file:router_" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := gormstore.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st, err := gormstore.New(gdb, gormstore.Options{OpTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	policy := retry.Policy{MaxAttempts: 10, InitialBackoff: time.Millisecond, MaximumBackoff: 10 * time.Millisecond}
	ledger, err := inventory.NewLedger(st, policy)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	coordinator, err := ordersvc.NewCoordinator(st, ledger, policy)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	menuRepo, err := menusvc.NewRepository(st, policy)
	if err != nil {
		t.Fatalf("new menu repo: %v", err)
	}
	aggregator, err := reviewsvc.NewAggregator(st, menuRepo, policy)
	if err != nil {
		t.Fatalf("new aggregator: %v", err)
	}

	registry := prometheus.NewRegistry()
	handler := NewRouter(Deps{
		Config:   &config.Config{App: config.AppConfig{Env: config.AppEnvTest}},
		Store:    st,
		Registry: registry,
		Metrics:  metrics.NewEngineMetrics(registry),
		Orders:   coordinator,
		Ledger:   ledger,
		Menu:     menuRepo,
		Reviews:  aggregator,
	})
	return handler, ledger
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	handler, _ := newTestRouter(t)

	if rec := doJSON(t, handler, http.MethodGet, "/health/live", nil); rec.Code != http.StatusOK {
		t.Fatalf("live: expected 200, got %d", rec.Code)
	}
	rec := doJSON(t, handler, http.MethodGet, "/health/ready", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ready: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Canteen-Env") != "test" {
		t.Fatalf("missing env header")
	}
}

func TestPlaceOrderOverHTTP(t *testing.T) {
	t.Parallel()

	handler, ledger := newTestRouter(t)
	item, err := ledger.Create(context.Background(), inventory.Item{Name: "cocido", CurrentStock: 5, MaximumStock: 50})
	if err != nil {
		t.Fatalf("seed item: %v", err)
	}

	body := map[string]any{
		"customer_id": "cust-1",
		"lines": []map[string]any{
			{"item_id": item.ID, "quantity": 2, "unit_price": "4.75"},
		},
	}
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/orders", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Data ordersvc.Order `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.ID == "" || envelope.Data.Status != "pending" {
		t.Fatalf("unexpected order %+v", envelope.Data)
	}

	detail := doJSON(t, handler, http.MethodGet, "/api/v1/orders/"+envelope.Data.ID, nil)
	if detail.Code != http.StatusOK {
		t.Fatalf("detail: expected 200, got %d", detail.Code)
	}

	// Oversized follow-up order must be rejected with the stock error.
	body["lines"] = []map[string]any{{"item_id": item.ID, "quantity": 10, "unit_price": "4.75"}}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	var errEnvelope types.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &errEnvelope); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if errEnvelope.Error.Code != "INSUFFICIENT_STOCK" {
		t.Fatalf("expected INSUFFICIENT_STOCK, got %s", errEnvelope.Error.Code)
	}
}

func TestPlaceOrderRejectsMalformedBody(t *testing.T) {
	t.Parallel()

	handler, _ := newTestRouter(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/orders", map[string]any{"lines": []any{}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStatusUpdateAndCancelOverHTTP(t *testing.T) {
	t.Parallel()

	handler, ledger := newTestRouter(t)
	item, err := ledger.Create(context.Background(), inventory.Item{Name: "migas", CurrentStock: 10, MaximumStock: 50})
	if err != nil {
		t.Fatalf("seed item: %v", err)
	}

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/orders", map[string]any{
		"customer_id": "cust-1",
		"lines":       []map[string]any{{"item_id": item.ID, "quantity": 3, "unit_price": "2.00"}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("place: expected 201, got %d", rec.Code)
	}
	var envelope struct {
		Data ordersvc.Order `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	orderID := envelope.Data.ID

	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/orders/%s/status", orderID), map[string]any{"status": "confirmed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/orders/%s/cancel", orderID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	got, err := ledger.Get(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got.CurrentStock != 10 {
		t.Fatalf("cancel did not release stock: %d", got.CurrentStock)
	}

	// A second cancel hits the terminal-state rule.
	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/orders/%s/cancel", orderID), nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestReviewLifecycleOverHTTP(t *testing.T) {
	t.Parallel()

	handler, _ := newTestRouter(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/menu", map[string]any{
		"name": "croquetas", "price": "3.20", "available": true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("menu create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var menuEnvelope struct {
		Data menusvc.FoodItem `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &menuEnvelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	itemID := menuEnvelope.Data.ID

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/reviews", map[string]any{
		"food_item_id": itemID, "customer_id": "cust-1", "rating": 5,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("review create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var reviewEnvelope struct {
		Data reviewsvc.Review `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &reviewEnvelope); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/reviews/"+reviewEnvelope.Data.ID+"/approve", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/menu/"+itemID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("menu detail: expected 200, got %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &menuEnvelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if menuEnvelope.Data.ReviewCount != 1 || menuEnvelope.Data.RatingHundredths != 500 {
		t.Fatalf("rating not derived: %+v", menuEnvelope.Data)
	}

	rec = doJSON(t, handler, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
}

func TestAdjustStockOverHTTP(t *testing.T) {
	t.Parallel()

	handler, ledger := newTestRouter(t)
	item, err := ledger.Create(context.Background(), inventory.Item{Name: "pan", CurrentStock: 20, MaximumStock: 100})
	if err != nil {
		t.Fatalf("seed item: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/inventory/"+item.ID+"/adjust",
		bytes.NewBufferString(`{"type":"waste","delta":-4,"reason":"dropped tray"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor", "staff:ana")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("adjust: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	got, err := ledger.Get(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got.CurrentStock != 16 {
		t.Fatalf("expected stock 16, got %d", got.CurrentStock)
	}

	movements, err := ledger.Movements(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("movements: %v", err)
	}
	last := movements[len(movements)-1]
	if last.Actor != "staff:ana" || last.QuantityDelta != -4 {
		t.Fatalf("unexpected movement %+v", last)
	}
}
