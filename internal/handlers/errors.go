package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/shortlinks/internal/shortener"
	"go.uber.org/zap"
)

const tooManyRequestsMessage = "Too many requests. Please try again later."

// RateLimitError is the 429 body. The Retry-After header carries the same
// number of seconds.
type RateLimitError struct {
	Status            int    `json:"status"`
	Message           string `json:"error"`
	RetryAfterSeconds int64  `json:"retryAfterSeconds"`
}

func (e *RateLimitError) Error() string {
	return e.Message
}

func (e *RateLimitError) GetStatus() int {
	return e.Status
}

func rateLimited(err *shortener.RateLimitedError) error {
	retryAfter := max(err.RetryAfterSeconds(), 0)

	return huma.ErrorWithHeaders(
		&RateLimitError{
			Status:            http.StatusTooManyRequests,
			Message:           tooManyRequestsMessage,
			RetryAfterSeconds: retryAfter,
		},
		http.Header{"Retry-After": []string{strconv.FormatInt(retryAfter, 10)}},
	)
}

func (h *URLHandler) shortenError(err error) error {
	var (
		validationErr *shortener.ValidationError
		rateErr       *shortener.RateLimitedError
	)

	switch {
	case errors.As(err, &validationErr):
		return huma.Error400BadRequest(validationErr.Message)
	case errors.As(err, &rateErr):
		return rateLimited(rateErr)
	case errors.Is(err, shortener.ErrConflict):
		return huma.Error409Conflict("alias already exists")
	case errors.Is(err, shortener.ErrAliasExhausted):
		return huma.Error500InternalServerError("failed to generate a unique alias")
	default:
		h.logger.Error("failed to shorten url", zap.Error(err))

		return huma.Error500InternalServerError("failed to save url")
	}
}

func (h *URLHandler) redirectError(alias string, err error) error {
	var (
		rateErr  *shortener.RateLimitedError
		storeErr *shortener.StoreError
	)

	switch {
	case errors.As(err, &rateErr):
		return rateLimited(rateErr)
	case errors.Is(err, shortener.ErrNotFound):
		return huma.Error404NotFound("short url not found")
	case errors.Is(err, shortener.ErrGone):
		return huma.Error410Gone("short url is no longer available")
	case errors.As(err, &storeErr):
		h.logger.Error("alias lookup failed", zap.String("alias", alias), zap.Error(err))

		return huma.Error502BadGateway("failed to get url")
	default:
		h.logger.Error("redirect failed", zap.String("alias", alias), zap.Error(err))

		return huma.Error500InternalServerError("failed to get url")
	}
}
