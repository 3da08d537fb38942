// Package graph serves the trip collections over GraphQL. The executable
// schema is written against gqlgen's runtime directly: root fields resolve
// to plain values that are projected onto the request's selection set.
package graph

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"tripsync/db/db"
	"tripsync/planner"
	"tripsync/prompt"
	"tripsync/upload"
)

//go:embed schema.graphqls
var schemaSource string

var parsedSchema = gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphqls", Input: schemaSource})

type Config struct {
	Resolvers *Resolver
}

type executableSchema struct {
	// complexity limits are not enabled, so Complexity is never called
	graphql.ExecutableSchema

	query        map[string]fieldFunc
	mutation     map[string]fieldFunc
	subscription map[string]feed
	store        db.Subscriber
}

func NewExecutableSchema(cfg Config) graphql.ExecutableSchema {
	r := cfg.Resolvers
	return &executableSchema{
		query:        r.queryFields(),
		mutation:     r.mutationFields(),
		subscription: r.subscriptionFeeds(),
		store:        r.Store,
	}
}

func (e *executableSchema) Schema() *ast.Schema {
	return parsedSchema
}

func (e *executableSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	oc := graphql.GetOperationContext(ctx)
	switch oc.Operation.Operation {
	case ast.Query:
		return graphql.OneShot(execRoot(ctx, oc, "Query", e.query))
	case ast.Mutation:
		return graphql.OneShot(execRoot(ctx, oc, "Mutation", e.mutation))
	case ast.Subscription:
		return e.subscribe(ctx, oc)
	default:
		return graphql.OneShot(graphql.ErrorResponse(ctx, "unsupported operation %s", oc.Operation.Operation))
	}
}

// subscribe streams one response per store snapshot of the subscribed
// collection until the client stops or the snapshot channel closes.
func (e *executableSchema) subscribe(ctx context.Context, oc *graphql.OperationContext) graphql.ResponseHandler {
	fields := graphql.CollectFields(oc, oc.Operation.SelectionSet, []string{"Subscription"})
	if len(fields) != 1 {
		return graphql.OneShot(graphql.ErrorResponse(ctx, "a subscription selects exactly one field"))
	}
	name := fields[0].Name
	src, ok := e.subscription[name]
	if !ok {
		return graphql.OneShot(graphql.ErrorResponse(ctx, "unknown subscription %s", name))
	}

	id, snaps, err := e.store.Subscribe(ctx, src.query)
	if err != nil {
		return graphql.OneShot(graphql.ErrorResponse(ctx, "subscribe %s: %v", name, err))
	}
	go func() {
		<-ctx.Done()
		// the store may already have dropped it
		_ = e.store.DeSubscribe(id)
	}()

	return func(ctx context.Context) *graphql.Response {
		select {
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			if snap.Err != nil {
				return &graphql.Response{
					Data:   json.RawMessage("null"),
					Errors: gqlerror.List{fieldError(fields[0].Alias, snap.Err)},
				}
			}
			return execRoot(ctx, oc, "Subscription", map[string]fieldFunc{
				name: func(_ context.Context, args map[string]any) (any, error) {
					return src.rows(snap.Docs, args), nil
				},
			})
		case <-ctx.Done():
			return nil
		}
	}
}

// execRoot resolves the root fields of an operation in document order.
// A failing field is null in data and reported in errors.
func execRoot(ctx context.Context, oc *graphql.OperationContext, typeName string, resolvers map[string]fieldFunc) *graphql.Response {
	var buf bytes.Buffer
	var errs gqlerror.List
	buf.WriteByte('{')
	for i, f := range graphql.CollectFields(oc, oc.Operation.SelectionSet, []string{typeName}) {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSON(&buf, f.Alias)
		buf.WriteByte(':')
		if f.Name == "__typename" {
			writeJSON(&buf, typeName)
			continue
		}
		fn, ok := resolvers[f.Name]
		if !ok {
			// __schema and __type end up here
			errs = append(errs, fieldError(f.Alias, fmt.Errorf("field %s is not served", f.Name)))
			buf.WriteString("null")
			continue
		}
		v, err := fn(ctx, f.ArgumentMap(oc.Variables))
		if err == nil {
			v, err = toGeneric(v)
		}
		if err != nil {
			errs = append(errs, fieldError(f.Alias, err))
			buf.WriteString("null")
			continue
		}
		writeValue(&buf, oc, v, f.Selections, f.Definition.Type.Name())
	}
	buf.WriteByte('}')
	return &graphql.Response{Data: buf.Bytes(), Errors: errs}
}

// writeValue projects a decoded JSON value onto sel. typeName is the named
// type of the field, used for fragments and __typename.
func writeValue(buf *bytes.Buffer, oc *graphql.OperationContext, v any, sel ast.SelectionSet, typeName string) {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case []any:
		buf.WriteByte('[')
		for i, el := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeValue(buf, oc, el, sel, typeName)
		}
		buf.WriteByte(']')
	case map[string]any:
		if len(sel) == 0 {
			writeJSON(buf, val)
			return
		}
		buf.WriteByte('{')
		for i, f := range graphql.CollectFields(oc, sel, []string{typeName}) {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeJSON(buf, f.Alias)
			buf.WriteByte(':')
			if f.Name == "__typename" {
				writeJSON(buf, typeName)
				continue
			}
			writeValue(buf, oc, val[f.Name], f.Selections, f.Definition.Type.Name())
		}
		buf.WriteByte('}')
	default:
		writeJSON(buf, val)
	}
}

func writeJSON(buf *bytes.Buffer, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		buf.WriteString("null")
		return
	}
	buf.Write(b)
}

// toGeneric turns a resolver result into maps, slices and scalars keyed by
// the JSON names, which match the schema's field names.
func toGeneric(v any) (any, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return out, nil
}

func fieldError(alias string, err error) *gqlerror.Error {
	return &gqlerror.Error{
		Message:    err.Error(),
		Path:       ast.Path{ast.PathName(alias)},
		Extensions: map[string]any{"code": codeOf(err)},
	}
}

// codeOf classifies domain errors for the errors[].extensions.code field.
func codeOf(err error) string {
	var uploadErr *upload.UploadError
	switch {
	case errors.Is(err, planner.ErrValidation):
		return "BAD_USER_INPUT"
	case errors.Is(err, prompt.ErrCancelled):
		return "CANCELLED"
	case errors.Is(err, db.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, db.ErrInvalidQuery):
		return "INVALID_QUERY"
	case errors.As(err, &uploadErr):
		return "UPLOAD_FAILED"
	case errors.Is(err, db.ErrUnavailable):
		return "UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}
