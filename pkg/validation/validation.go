package validation

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	MinConcurrency = 1
	MaxConcurrency = 64
)

// StoreKinds lists the accepted values of the --store flag.
var StoreKinds = []string{"sqlite", "redis", "memory"}

func ValidateConcurrency(workers int) error {
	if workers < MinConcurrency || workers > MaxConcurrency {
		return fmt.Errorf("concurrency must be between %d and %d, got %d", MinConcurrency, MaxConcurrency, workers)
	}
	return nil
}

func ValidateCount(count int) error {
	if count <= 0 {
		return fmt.Errorf("request count must be a positive integer, got %d", count)
	}
	return nil
}

func ValidateNonEmptyString(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	return nil
}

func ValidateStoreKind(kind string) error {
	for _, k := range StoreKinds {
		if k == kind {
			return nil
		}
	}
	return fmt.Errorf("invalid store: %s (must be one of: %s)", kind, strings.Join(StoreKinds, ", "))
}

// ValidateBaseURL accepts absolute http and https URLs.
func ValidateBaseURL(fieldName, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", fieldName, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid %s: %q is not an absolute http(s) URL", fieldName, raw)
	}
	return nil
}
