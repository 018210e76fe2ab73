package handlers

import "context"

// MetadataRequiresAPIKey marks operations that need an X-API-Key when API
// authentication is enabled.
const MetadataRequiresAPIKey = "requiresApiKey"

type requestMetaKey struct{}

// RequestMeta holds HTTP request metadata gathered by middleware.
type RequestMeta struct {
	ClientIP  string
	UserAgent string
	Referrer  string
	// Caller names the kind of API key the request authenticated with.
	Caller string
}

// ContextWithRequestMeta adds request metadata to context.
func ContextWithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFromContext extracts request metadata from context.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	if v, ok := ctx.Value(requestMetaKey{}).(RequestMeta); ok {
		return v
	}

	return RequestMeta{}
}
