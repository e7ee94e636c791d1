package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/pharmly/credit-ledger/credit"
)

// Headers set by the authenticating gateway in front of this service.
const (
	HeaderStoreID = "X-Store-ID"
	HeaderStaffID = "X-Staff-ID"
)

type ctxKey int

const (
	storeKey ctxKey = iota
	staffKey
)

// Tenant puts the acting store and staff member into the request context.
// Requests without both headers are rejected with 401.
func Tenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		storeID := r.Header.Get(HeaderStoreID)
		staffID := r.Header.Get(HeaderStaffID)
		if storeID == "" || staffID == "" {
			writeError(w, http.StatusUnauthorized, "store and staff identity required")
			return
		}

		ctx := context.WithValue(r.Context(), storeKey, credit.StoreID(storeID))
		ctx = context.WithValue(ctx, staffKey, credit.StaffID(staffID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func storeFrom(ctx context.Context) credit.StoreID {
	id, _ := ctx.Value(storeKey).(credit.StoreID)
	return id
}

func staffFrom(ctx context.Context) credit.StaffID {
	id, _ := ctx.Value(staffKey).(credit.StaffID)
	return id
}

// RequestLogger logs one line per request through slog.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.InfoContext(r.Context(), "http request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start))
		})
	}
}
