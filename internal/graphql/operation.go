package graphql

import (
	"encoding/json"
	"regexp"
)

var operationNameRe = regexp.MustCompile(`^\s*(?:query|mutation|subscription)\s+([_A-Za-z][_0-9A-Za-z]*)`)
var rootFieldRe = regexp.MustCompile(`\{\s*([_A-Za-z][_0-9A-Za-z]*)`)

// Operation is a single query or mutation. It is immutable once built.
type Operation struct {
	query     string
	variables Variables
}

// NewOperation copies vars so later changes to the caller's map are not
// observed.
func NewOperation(query string, vars Variables) Operation {
	if vars == nil {
		vars = Variables{}
	}
	return Operation{query: query, variables: vars.clone()}
}

func (o Operation) Query() string { return o.query }

// Variables returns a copy of the operation's variables.
func (o Operation) Variables() Variables { return o.variables.clone() }

// Name returns the operation name, falling back to the first root field, so
// anonymous operations still log usefully.
func (o Operation) Name() string {
	if m := operationNameRe.FindStringSubmatch(o.query); m != nil {
		return m[1]
	}
	if m := rootFieldRe.FindStringSubmatch(o.query); m != nil {
		return m[1]
	}
	return "anonymous"
}

type wireOperation struct {
	Query     string    `json:"query"`
	Variables Variables `json:"variables"`
}

func (o Operation) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireOperation{Query: o.query, Variables: o.variables})
}
