package client

import (
	"fmt"
	"net/http"
)

const maxErrorBody = 512

// APIError is returned for responses with a non-2xx status code.
type APIError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: unexpected HTTP status: %d %s", e.Method, e.URL, e.Status, http.StatusText(e.Status))
}

// StatusCode implements auth.StatusCoder, which is how the executor recognises a 401.
func (e *APIError) StatusCode() int { return e.Status }

func newAPIError(req *http.Request, status int, body []byte) *APIError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &APIError{Method: req.Method, URL: req.URL.String(), Status: status, Body: string(body)}
}
