package shortener

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	customAliasPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)
	aliasFormatPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)
)

// ValidateLongURL checks that raw is an absolute http(s) URL no longer than
// MaxURLLength characters. With HTTPSOnly set, plain http is rejected too.
func (c Config) ValidateLongURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return invalid("longUrl", "longUrl is required")
	}

	if utf8.RuneCountInString(raw) > c.MaxURLLength {
		return invalid("longUrl", "longUrl must not exceed %d characters", c.MaxURLLength)
	}

	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return invalid("longUrl", "longUrl must be a valid absolute URL")
	}

	scheme := strings.ToLower(u.Scheme)

	switch {
	case c.HTTPSOnly && scheme != "https":
		return invalid("longUrl", "longUrl must use https scheme")
	case scheme != "http" && scheme != "https":
		return invalid("longUrl", "longUrl must use http or https scheme")
	}

	if u.Host == "" {
		return invalid("longUrl", "longUrl must be a valid absolute URL")
	}

	return nil
}

// ValidateExpiresIn checks an optional TTL against [MinTTLSeconds, MaxTTLSeconds].
func (c Config) ValidateExpiresIn(seconds *int64) error {
	if seconds == nil {
		return nil
	}

	if *seconds < c.MinTTLSeconds {
		return invalid("expiresInSeconds", "expiresInSeconds must be at least %d seconds", c.MinTTLSeconds)
	}

	if *seconds > c.MaxTTLSeconds {
		return invalid("expiresInSeconds", "expiresInSeconds must not exceed %d seconds", c.MaxTTLSeconds)
	}

	return nil
}

// ValidateCustomAlias checks an optional requested alias. Empty means none.
func ValidateCustomAlias(alias string) error {
	if alias == "" || customAliasPattern.MatchString(alias) {
		return nil
	}

	return invalid("customAlias",
		"customAlias must be 3-32 characters and contain only letters, numbers, hyphens, and underscores")
}

// IsAliasFormat reports whether alias could name a link at all. Anything else
// is answered with not found without touching a store.
func IsAliasFormat(alias string) bool {
	return aliasFormatPattern.MatchString(alias)
}
