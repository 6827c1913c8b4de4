// Package apierror maps transport failures onto the small taxonomy every
// caller renders from.
package apierror

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alecthomas/types/optional"

	"github.com/block/storefront/internal/graphql"
)

// Kind of API failure.
type Kind int

const (
	Unknown Kind = iota
	// NetworkUnavailable means the request never reached the server.
	NetworkUnavailable
	// HTTPError is a non-2xx response.
	HTTPError
	// GraphQLError is a 2xx response with a GraphQL "errors" array.
	GraphQLError
	// ValidationFailure is a successful response whose payload reported
	// "success: false".
	ValidationFailure
)

func (k Kind) String() string {
	switch k {
	case NetworkUnavailable:
		return "NetworkUnavailable"
	case HTTPError:
		return "HTTPError"
	case GraphQLError:
		return "GraphQLError"
	case ValidationFailure:
		return "ValidationFailure"
	case Unknown:
	}
	return "Unknown"
}

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Status  optional.Option[int]
	Message string
	// Details are extra messages, eg. per-field validation errors.
	Details []string
	Err     error
}

var _ error = (*Error)(nil)

func (e *Error) Error() string {
	if len(e.Details) > 0 {
		return e.Message + ": " + strings.Join(e.Details, "; ")
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same Kind, so callers can write
// errors.Is(err, &apierror.Error{Kind: apierror.ValidationFailure}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Message == ""
}

// Classify returns nil for a nil error, the error itself if it has already
// been classified, and a new *Error otherwise.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	var (
		netErr  *graphql.NetworkError
		httpErr *graphql.HTTPError
		respErr *graphql.ResponseError
	)
	switch {
	case errors.As(err, &httpErr):
		return &Error{Kind: HTTPError, Status: optional.Some(httpErr.Status), Message: httpErr.Message, Err: err}
	case errors.As(err, &respErr):
		return &Error{Kind: GraphQLError, Message: respErr.Message, Err: err}
	case errors.As(err, &netErr) && !errors.Is(err, context.Canceled):
		return &Error{Kind: NetworkUnavailable, Message: netErr.Error(), Err: err}
	default:
		return &Error{Kind: Unknown, Message: err.Error(), Err: err}
	}
}

// KindOf classifies err and returns its Kind.
func KindOf(err error) Kind {
	if c := Classify(err); c != nil {
		return c.Kind
	}
	return Unknown
}

// Validation builds a ValidationFailure.
func Validation(message string, details ...string) *Error {
	return &Error{Kind: ValidationFailure, Message: message, Details: details}
}

// CheckSuccess converts a "success: false" mutation payload into a
// ValidationFailure. Mutations report validation problems this way rather
// than through the GraphQL errors array.
func CheckSuccess(success bool, action string, details ...string) error {
	if success {
		return nil
	}
	return Validation(fmt.Sprintf("%s was rejected", action), details...)
}
