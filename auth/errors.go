package auth

import (
	"errors"
	"net/http"
)

// StatusCoder is implemented by errors that carry a response status code.
type StatusCoder interface {
	StatusCode() int
}

// ErrRefreshPanicked is what joined callers observe when the goroutine running the shared refresh panics.
var ErrRefreshPanicked = errors.New("token refresh panicked")

// StatusCode returns the status code carried by err (or any error it wraps), and false if there is none.
func StatusCode(err error) (int, bool) {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode(), true
	}
	return 0, false
}

// IsUnauthorized reports whether err carries a 401 status code.
func IsUnauthorized(err error) bool {
	code, ok := StatusCode(err)
	return ok && code == http.StatusUnauthorized
}
