package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/serroba/shortlinks/internal/shortener"
	"go.uber.org/zap"
)

// Shortener creates and resolves links. *shortener.Service implements it.
type Shortener interface {
	Shorten(ctx context.Context, req shortener.ShortenRequest) (*shortener.ShortenResult, error)
	Resolve(ctx context.Context, alias, clientIP string) (*shortener.ShortURL, error)
}

// URLHandler handles URL shortening operations.
type URLHandler struct {
	service Shortener
	baseURL string
	rootURL string
	logger  *zap.Logger
}

// NewURLHandler creates a new URL handler. Short URLs are built on baseURL;
// requests for "/" are sent to rootURL.
func NewURLHandler(service Shortener, baseURL, rootURL string, logger *zap.Logger) *URLHandler {
	return &URLHandler{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		rootURL: rootURL,
		logger:  logger,
	}
}

func (h *URLHandler) CreateShortURL(ctx context.Context, req *ShortenRequest) (*ShortenResponse, error) {
	meta := RequestMetaFromContext(ctx)

	result, err := h.service.Shorten(ctx, shortener.ShortenRequest{
		LongURL:          req.Body.LongURL,
		ExpiresInSeconds: req.Body.ExpiresInSeconds,
		CustomAlias:      req.Body.CustomAlias,
		ClientIP:         meta.ClientIP,
		CreatedBy:        meta.Caller,
	})
	if err != nil {
		return nil, h.shortenError(err)
	}

	record := result.Record
	shortURL := h.baseURL + "/" + string(record.Alias)

	resp := &ShortenResponse{Status: http.StatusOK}
	if result.Created {
		resp.Status = http.StatusCreated
	}

	resp.Headers.Location = shortURL
	resp.Body = ShortURLBody{
		Alias:     string(record.Alias),
		ShortURL:  shortURL,
		LongURL:   record.TargetURL,
		CreatedAt: record.CreatedAt,
		ExpiresAt: record.ExpiresAt,
	}

	return resp, nil
}

func (h *URLHandler) RedirectToURL(ctx context.Context, req *RedirectRequest) (*RedirectResponse, error) {
	meta := RequestMetaFromContext(ctx)

	record, err := h.service.Resolve(ctx, req.Alias, meta.ClientIP)
	if err != nil {
		return nil, h.redirectError(req.Alias, err)
	}

	resp := &RedirectResponse{Status: http.StatusFound}
	resp.Headers.Location = record.TargetURL

	return resp, nil
}

func (h *URLHandler) RedirectToRoot(_ context.Context, _ *struct{}) (*RedirectResponse, error) {
	resp := &RedirectResponse{Status: http.StatusMovedPermanently}
	resp.Headers.Location = h.rootURL

	return resp, nil
}
