package middleware

import (
	"context"
	"net/http"

	"github.com/rpattn/verstore/internal/latestloader"
	"github.com/rpattn/verstore/internal/repository"
)

type ctxKey string

const latestLoaderKey ctxKey = "latestLoader"

// LatestLoaderMiddleware attaches a fresh latest-version loader to each
// request so lookups within the request share batches and cache.
func LatestLoaderMiddleware(store repository.VersionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loader := latestloader.NewLatestLoader(store)
			ctx := context.WithValue(r.Context(), latestLoaderKey, loader)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LatestLoaderFromContext retrieves the request's loader, or nil.
func LatestLoaderFromContext(ctx context.Context) *latestloader.LatestLoader {
	if l, ok := ctx.Value(latestLoaderKey).(*latestloader.LatestLoader); ok {
		return l
	}
	return nil
}
