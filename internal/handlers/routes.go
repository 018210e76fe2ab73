package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// RegisterRoutes registers the shorten and redirect routes.
func RegisterRoutes(api huma.API, urlHandler *URLHandler) {
	huma.Register(api, huma.Operation{
		OperationID:   "shorten",
		Method:        http.MethodPost,
		Path:          "/api/shorten",
		Summary:       "Create short URL",
		Description:   "Creates a short alias for a URL, or returns the live alias already created for it.",
		Tags:          []string{"URLs"},
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest, http.StatusUnauthorized, http.StatusConflict,
			http.StatusTooManyRequests, http.StatusInternalServerError,
		},
		Metadata: map[string]any{
			MetadataRequiresAPIKey: true,
		},
	}, urlHandler.CreateShortURL)

	huma.Register(api, huma.Operation{
		OperationID: "redirect-root",
		Method:      http.MethodGet,
		Path:        "/",
		Summary:     "Redirect to the home page",
		Tags:        []string{"URLs"},
		Hidden:      true,
	}, urlHandler.RedirectToRoot)

	huma.Register(api, huma.Operation{
		OperationID: "redirect",
		Method:      http.MethodGet,
		Path:        "/{alias}",
		Summary:     "Redirect to original URL",
		Description: "Redirects to the URL behind the alias.",
		Tags:        []string{"URLs"},
		Errors: []int{
			http.StatusNotFound, http.StatusGone, http.StatusTooManyRequests, http.StatusBadGateway,
		},
	}, urlHandler.RedirectToURL)
}
