// Package querytext parses the query strings dashboards embed in their
// requests, of the form db.<collection>.aggregate(<pipeline>[, <options>]).
//
// Bracket matching is a plain scan for the first ')' after the first '('.
// A ')' inside a string argument therefore ends the argument list early and
// the query fails to decode; nested calls are not understood either.
package querytext

import (
	"strings"

	"mongo-bridge/internal/document"
	"mongo-bridge/internal/domain"
)

const prefix = "db."

// Parse turns query text into a descriptor. Every problem found is collected
// into the returned *domain.ParseError; a non-nil error means the descriptor
// must not be executed.
func Parse(text string) (*domain.QueryDescriptor, error) {
	query := strings.TrimSpace(text)
	perr := &domain.ParseError{}

	if !strings.HasPrefix(query, prefix) {
		perr.Add("Query must start with db.")
		return nil, perr
	}

	open := strings.IndexByte(query[len(prefix):], '(')
	if open == -1 {
		perr.Add("Can't find opening bracket")
		return nil, perr
	}
	open += len(prefix)

	q := &domain.QueryDescriptor{}

	// Collection names may contain dots, so only the last segment is the
	// operation.
	parts := strings.Split(query[len(prefix):open], ".")
	hasOperation := len(parts) >= 2
	if hasOperation {
		q.Operation = strings.TrimSpace(parts[len(parts)-1])
		q.Collection = strings.Join(parts[:len(parts)-1], ".")
	} else {
		perr.Add("Invalid collection and operation syntax")
	}

	closing := strings.IndexByte(query[open:], ')')
	if closing == -1 {
		perr.Add("Can't find last bracket")
	} else {
		args := query[open+1 : open+closing]
		switch {
		case q.Operation == domain.OperationAggregate:
			parseAggregateArgs(q, args, perr)
		case hasOperation:
			perr.AddUnsupported(q.Operation)
		}
	}

	if !perr.Empty() {
		return nil, perr
	}
	return q, nil
}

// parseAggregateArgs decodes "<pipeline>[, <options>]" by wrapping it in a
// JSON array.
func parseAggregateArgs(q *domain.QueryDescriptor, args string, perr *domain.ParseError) {
	v, err := document.ParseJSON([]byte("[" + args + "]"))
	if err != nil {
		perr.Add("Invalid aggregate arguments: %v", err)
		return
	}
	items, _ := v.AsArray()

	switch {
	case len(items) == 0:
		perr.Add("Missing pipeline argument")
		return
	case len(items) > 2:
		perr.Add("Too many arguments to aggregate")
		return
	}

	stages, ok := items[0].AsArray()
	if !ok {
		perr.Add("Pipeline must be an array of stages")
		return
	}
	q.Pipeline = make([]*document.Document, 0, len(stages))
	for i, stage := range stages {
		d, ok := stage.AsDocument()
		if !ok {
			perr.Add("Pipeline stage %d must be an object", i)
			return
		}
		q.Pipeline = append(q.Pipeline, d)
	}

	if len(items) == 2 {
		opts, ok := items[1].AsDocument()
		if !ok {
			perr.Add("Aggregation options must be an object")
			return
		}
		q.Options = opts
	}
}
