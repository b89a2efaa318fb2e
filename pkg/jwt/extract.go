package jwt

import (
	"net/http"
	"strings"
)

// Extractor pulls a raw token from a request.
type Extractor func(r *http.Request) (string, error)

func BearerTokenExtractor(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:]), nil
	}
	return "", ErrTokenNotFound
}

func CookieTokenExtractor(name string) Extractor {
	return func(r *http.Request) (string, error) {
		c, err := r.Cookie(name)
		if err != nil || c.Value == "" {
			return "", ErrTokenNotFound
		}
		return c.Value, nil
	}
}

// FirstOf returns the first token any extractor finds.
func FirstOf(extractors ...Extractor) Extractor {
	return func(r *http.Request) (string, error) {
		for _, ex := range extractors {
			if tok, err := ex(r); err == nil && tok != "" {
				return tok, nil
			}
		}
		return "", ErrTokenNotFound
	}
}
