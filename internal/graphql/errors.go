package graphql

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrNoFiles is returned by EncodeMultipart when no variable is a File.
	ErrNoFiles = errors.New("operation has no file variables")
	// ErrNestedFile is returned when a File appears below the top level.
	ErrNestedFile = errors.New("files are only supported as top-level variables")
	// ErrFileInJSONBody is returned when a File is sent without multipart encoding.
	ErrFileInJSONBody = errors.New("file variables require a multipart request")
	// ErrMalformedResponse is returned when a successful HTTP response is not a
	// GraphQL response.
	ErrMalformedResponse = errors.New("malformed GraphQL response")
)

// ServerError is one entry of a GraphQL "errors" array.
type ServerError struct {
	Message   string     `json:"message"`
	Path      []any      `json:"path,omitempty"`
	Locations []Location `json:"locations,omitempty"`
}

// Location of a ServerError in the query text.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// NetworkError is returned when the request did not produce an HTTP response.
type NetworkError struct {
	Err error
}

func (n *NetworkError) Error() string { return "network error: " + n.Err.Error() }
func (n *NetworkError) Unwrap() error { return n.Err }

// HTTPError is returned for non-2xx responses. Message is the best
// server-provided description of the failure.
type HTTPError struct {
	Status  int
	Message string
	Errors  []ServerError
}

func (h *HTTPError) Error() string { return h.Message }

// ResponseError is returned for 2xx responses carrying GraphQL errors.
type ResponseError struct {
	Message string
	Errors  []ServerError
}

func (r *ResponseError) Error() string { return r.Message }

const maxMessageLength = 1024

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxMessageLength {
		cut := maxMessageLength
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		return s[:cut] + "…"
	}
	return s
}

func statusMessage(status int) string {
	return fmt.Sprintf("HTTP %d", status)
}
