package storage

import (
	"fmt"
	"strings"
	"time"
)

const callbackArchivePrefix = "payment-callbacks"

// CallbackPathParams identify one archived gateway callback.
type CallbackPathParams struct {
	ReceivedAt time.Time
	Reason     string
	ID         string
}

// BuildCallbackPath returns payment-callbacks/{yyyy}/{mm}/{dd}/{reason}/{id}.json.
// The date is taken in UTC.
func BuildCallbackPath(params CallbackPathParams) (string, error) {
	if params.ReceivedAt.IsZero() {
		return "", fmt.Errorf("storage: receivedAt is required")
	}
	reason, err := validateSegment("reason", strings.ToLower(params.Reason))
	if err != nil {
		return "", err
	}
	id, err := validateSegment("id", params.ID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s/%s.json", callbackArchivePrefix, params.ReceivedAt.UTC().Format("2006/01/02"), reason, id), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
