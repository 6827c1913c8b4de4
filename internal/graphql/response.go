package graphql

import (
	"encoding/json"
	"fmt"
)

type wireResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []ServerError   `json:"errors"`
}

// decodeResponse classifies a response body that has already been read as
// text. In order: non-2xx status, GraphQL errors, data.
func decodeResponse(status int, text []byte) (json.RawMessage, error) {
	var (
		resp      wireResponse
		isObject  bool
		bareText  string
		hasString bool
	)
	if len(text) > 0 {
		var probe any
		if err := json.Unmarshal(text, &probe); err != nil {
			bareText, hasString = string(text), true
		} else {
			switch probe := probe.(type) {
			case string:
				bareText, hasString = probe, true
			case map[string]any:
				isObject = true
				// Errors with unexpected shapes leave resp.Errors empty.
				_ = json.Unmarshal(text, &resp) //nolint:errcheck
			}
		}
	}

	if status < 200 || status > 299 {
		herr := &HTTPError{Status: status, Errors: resp.Errors, Message: statusMessage(status)}
		switch {
		case len(resp.Errors) > 0 && resp.Errors[0].Message != "":
			herr.Message = resp.Errors[0].Message
		case hasString && truncate(bareText) != "":
			herr.Message = truncate(bareText)
		}
		return nil, herr
	}

	if len(resp.Errors) > 0 {
		msg := resp.Errors[0].Message
		if msg == "" {
			msg = "GraphQL error"
		}
		return nil, &ResponseError{Message: msg, Errors: resp.Errors}
	}
	if !isObject {
		if hasString {
			return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, truncate(bareText))
		}
		return nil, fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}
	if len(resp.Data) == 0 {
		return json.RawMessage("null"), nil
	}
	return resp.Data, nil
}
