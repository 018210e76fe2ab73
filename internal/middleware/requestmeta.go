package middleware

import (
	"net/netip"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/shortlinks/internal/handlers"
)

const unknownIP = "unknown"

// clientIPHeaders are consulted in order after Forwarded and before the
// remote address.
var clientIPHeaders = []string{
	"X-Real-IP",
	"X-Client-IP",
	"CF-Connecting-IP",
	"True-Client-IP",
}

// RequestMeta is a middleware that adds client IP, user-agent, and referrer to the request context.
func RequestMeta(_ huma.API) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		meta := handlers.RequestMeta{
			ClientIP:  ClientIP(ctx),
			UserAgent: ctx.Header("User-Agent"),
			Referrer:  ctx.Header("Referer"),
		}

		newCtx := handlers.ContextWithRequestMeta(ctx.Context(), meta)
		ctx = huma.WithContext(ctx, newCtx)

		next(ctx)
	}
}

// ClientIP returns the address of the original client, trusting proxy
// headers in the order X-Azure-ClientIP, Forwarded, X-Forwarded-For,
// X-Real-IP, X-Client-IP, CF-Connecting-IP, True-Client-IP.
func ClientIP(ctx huma.Context) string {
	if ip := strings.TrimSpace(ctx.Header("X-Azure-ClientIP")); ip != "" {
		return normalizeIP(ip)
	}

	if ip, ok := forwardedFor(ctx.Header("Forwarded")); ok {
		return normalizeIP(ip)
	}

	if xff := ctx.Header("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return normalizeIP(first)
		}
	}

	for _, header := range clientIPHeaders {
		if ip := strings.TrimSpace(ctx.Header(header)); ip != "" {
			return normalizeIP(ip)
		}
	}

	return normalizeIP(ctx.RemoteAddr())
}

// forwardedFor extracts the for= parameter of the first RFC 7239 element.
func forwardedFor(header string) (string, bool) {
	if strings.TrimSpace(header) == "" {
		return "", false
	}

	element, _, _ := strings.Cut(header, ",")

	for _, pair := range strings.Split(element, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if ok && strings.EqualFold(key, "for") {
			return value, true
		}
	}

	return "", false
}

// normalizeIP strips quotes, brackets and ports, and unmaps IPv4-mapped IPv6
// addresses. Values that are not addresses are kept verbatim.
func normalizeIP(raw string) string {
	ip := strings.Trim(strings.TrimSpace(raw), `"`)
	if ip == "" {
		return unknownIP
	}

	if addrPort, err := netip.ParseAddrPort(ip); err == nil {
		return addrPort.Addr().Unmap().String()
	}

	ip = strings.TrimSuffix(strings.TrimPrefix(ip, "["), "]")

	if addr, err := netip.ParseAddr(ip); err == nil {
		return addr.Unmap().String()
	}

	return ip
}
