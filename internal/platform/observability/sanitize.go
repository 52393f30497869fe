package observability

import (
	"strings"
	"unicode"
)

const defaultStringLimit = 256

// sanitizeString drops control characters and caps the rune length to keep log lines single-line.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultStringLimit
	}
	var b strings.Builder
	n := 0
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		if n == limit {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// SanitizeRoute cleans a route pattern for logs and metric labels.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

// SanitizeMethod cleans an HTTP method.
func SanitizeMethod(method string) string {
	return sanitizeString(method, 10)
}

// SanitizeUserID caps user identifiers.
func SanitizeUserID(uid string) string {
	return sanitizeString(uid, 64)
}

// MaskSecret keeps the scheme of an Authorization-style value and the last four
// characters of the credential.
func MaskSecret(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	scheme, credential, found := strings.Cut(value, " ")
	if !found {
		scheme, credential = "", value
	}
	masked := "****"
	if len(credential) > 8 {
		masked += credential[len(credential)-4:]
	}
	if scheme == "" {
		return masked
	}
	return scheme + " " + masked
}
