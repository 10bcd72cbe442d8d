package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mgiraldo-dev/canteen-backend/pkg/logger"
)

const requestIDHeader = "X-Request-Id"

// maxRequestIDLen guards against clients stuffing arbitrary blobs into the
// header; anything longer is replaced with a generated id.
const maxRequestIDLen = 64

// RequestID tags every request with an id, echoing a well-formed inbound
// X-Request-Id so callers can correlate across services.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(requestIDHeader)
			if reqID == "" || len(reqID) > maxRequestIDLen {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
