package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/topsis/internal/core"
	"github.com/JonMunkholm/topsis/internal/web/middleware"
)

// WithRequestMetadata records the client IP and User-Agent of r on ctx.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.WithClient(ctx, core.ClientInfo{
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
}
