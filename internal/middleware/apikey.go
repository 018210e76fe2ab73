package middleware

import (
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/shortlinks/internal/handlers"
	"go.uber.org/zap"
)

// Callers recorded on requests authenticated with an API key.
const (
	CallerShorten = "api"
	CallerAdmin   = "admin"
)

// APIKeyConfig lists the keys accepted on operations that require one.
// Admin keys are accepted wherever shorten keys are.
type APIKeyConfig struct {
	Enabled     bool
	ShortenKeys []string
	AdminKeys   []string
}

// ParseKeys splits a comma separated key list, dropping blanks.
func ParseKeys(raw string) []string {
	var keys []string

	for _, key := range strings.Split(raw, ",") {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}

	return keys
}

// APIKeyAuth rejects requests to operations marked with
// handlers.MetadataRequiresAPIKey unless they carry a known X-API-Key.
func APIKeyAuth(api huma.API, cfg APIKeyConfig, logger *zap.Logger) func(ctx huma.Context, next func(huma.Context)) {
	callers := make(map[string]string, len(cfg.ShortenKeys)+len(cfg.AdminKeys))
	for _, key := range cfg.ShortenKeys {
		callers[key] = CallerShorten
	}

	for _, key := range cfg.AdminKeys {
		callers[key] = CallerAdmin
	}

	return func(ctx huma.Context, next func(huma.Context)) {
		if !cfg.Enabled || !requiresAPIKey(ctx.Operation()) {
			next(ctx)

			return
		}

		key := strings.TrimSpace(ctx.Header("X-API-Key"))
		if key == "" {
			logger.Warn("request rejected: missing API key", zap.String("path", getOperationPath(ctx)))
			_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, "API key required")

			return
		}

		caller, ok := callers[key]
		if !ok {
			logger.Warn("request rejected: invalid API key", zap.String("path", getOperationPath(ctx)))
			_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, "Invalid API key")

			return
		}

		meta := handlers.RequestMetaFromContext(ctx.Context())
		meta.Caller = caller
		ctx = huma.WithContext(ctx, handlers.ContextWithRequestMeta(ctx.Context(), meta))

		next(ctx)
	}
}

func requiresAPIKey(op *huma.Operation) bool {
	if op == nil {
		return false
	}

	required, _ := op.Metadata[handlers.MetadataRequiresAPIKey].(bool)

	return required
}

// getOperationPath extracts the path from the operation, if available.
func getOperationPath(ctx huma.Context) string {
	if op := ctx.Operation(); op != nil {
		return op.Path
	}

	return ""
}
