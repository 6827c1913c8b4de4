package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/titanous/json5"

	"github.com/block/storefront/internal/graphql"
	"github.com/block/storefront/internal/terminal"
)

type queryCmd struct {
	Document  string            `arg:"" help:"GraphQL document, or @FILE to read it from a file."`
	Variables string            `arg:"" optional:"" help:"JSON5 variables." default:"{}"`
	Mutation  bool              `help:"Send as a mutation. Mutations are never retried." short:"m"`
	Upload    map[string]string `help:"Upload a file as a top-level variable. Implies --mutation." placeholder:"VAR=PATH" mapsep:","`
}

func (q *queryCmd) Run(ctx context.Context, client graphql.Executor, term *terminal.Terminal) error {
	document := q.Document
	if path, ok := strings.CutPrefix(document, "@"); ok {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read document: %w", err)
		}
		document = string(content)
	}
	raw := map[string]any{}
	if err := json5.Unmarshal([]byte(q.Variables), &raw); err != nil {
		return fmt.Errorf("invalid variables: %w", err)
	}
	vars, err := graphql.VariablesFromMap(raw)
	if err != nil {
		return fmt.Errorf("invalid variables: %w", err)
	}

	var data json.RawMessage
	switch {
	case len(q.Upload) > 0:
		for name, path := range q.Upload {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open upload %s: %w", name, err)
			}
			defer f.Close() //nolint:errcheck
			vars[name] = graphql.NewFile(filepath.Base(path), f)
		}
		data, err = client.MutateMultipart(ctx, document, vars)
	case q.Mutation:
		data, err = client.Mutate(ctx, document, vars)
	default:
		data, err = client.Query(ctx, document, vars)
	}
	if err != nil {
		return err
	}
	term.PrintJSON(data)
	return nil
}
