package handlers

import "time"

// ShortenRequest is the request for creating a short URL.
type ShortenRequest struct {
	APIKey string `doc:"API key, required when API authentication is enabled" header:"X-API-Key"`
	Body   struct {
		LongURL          string `doc:"The URL to shorten"                        example:"https://example.com/very/long/path" json:"longUrl,omitempty"`
		ExpiresInSeconds *int64 `doc:"Lifetime of the link, defaults to the maximum" example:"86400"                           json:"expiresInSeconds,omitempty"`
		CustomAlias      string `doc:"Alias to use instead of a generated one"  example:"my-link"                            json:"customAlias,omitempty"`
	}
}

// ShortURLBody describes a short link.
type ShortURLBody struct {
	Alias     string     `doc:"The alias"                     example:"aB3xY9"                             json:"alias"`
	ShortURL  string     `doc:"The full short URL"            example:"http://localhost:8888/aB3xY9"       json:"shortUrl"`
	LongURL   string     `doc:"The target URL"                example:"https://example.com/very/long/path" json:"longUrl"`
	CreatedAt time.Time  `doc:"When the request was served"   json:"createdAtUtc"`
	ExpiresAt *time.Time `doc:"When the link stops resolving" json:"expiresAtUtc,omitempty"`
}

// ShortenResponse is 201 for a new link and 200 when an existing one is
// returned for the same URL.
type ShortenResponse struct {
	Status  int
	Headers struct {
		Location string `doc:"The short URL location" header:"Location"`
	}
	Body ShortURLBody
}

// RedirectRequest is the request for redirecting a short URL.
type RedirectRequest struct {
	Alias string `doc:"The alias" example:"aB3xY9" path:"alias"`
}

// RedirectResponse redirects to the target URL.
type RedirectResponse struct {
	Status  int
	Headers struct {
		Location string `doc:"The target URL" header:"Location"`
	}
}
