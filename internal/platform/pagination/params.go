package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultLimit is used when the client omits limit.
	DefaultLimit = 10
	// MaxLimit caps limit.
	MaxLimit = 100
)

// ErrInvalidParams is returned for non-numeric or non-positive page and limit values.
var ErrInvalidParams = errors.New("pagination: invalid parameters")

// Params is the offset pagination requested by a client.
type Params struct {
	Page  int
	Limit int
}

// Offset returns the zero-based index of the first item on the page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Parse reads ?page=&limit=. Missing values default to page 1 and DefaultLimit, and a
// limit above MaxLimit is capped.
func Parse(values url.Values) (Params, error) {
	page, err := positiveInt(values, "page", 1)
	if err != nil {
		return Params{}, err
	}
	limit, err := positiveInt(values, "limit", DefaultLimit)
	if err != nil {
		return Params{}, err
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Params{Page: page, Limit: limit}, nil
}

// Pages returns the number of pages needed for total items.
func Pages(total, limit int) int {
	if total <= 0 || limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// Values returns the comma-separated and repeated values of key, trimmed and de-duplicated.
func Values(values url.Values, key string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, raw := range values[key] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}

func positiveInt(values url.Values, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", ErrInvalidParams, key)
	}
	return n, nil
}
