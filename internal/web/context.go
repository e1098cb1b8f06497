package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/registrysync/internal/core"
)

// WithRequestMetadata tags ctx with the caller's IP and User-Agent and marks
// the change as coming from the HTTP API, for the import journal.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithSource(ctx, "http")
	ctx = core.ContextWithIPAddress(ctx, clientIP(r))
	ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
	return ctx
}
