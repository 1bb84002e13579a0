package server

import (
	"context"
	"net/http"
	"time"

	eventbus "github.com/kotoba/kotoba-server/internal/eventbus"
	events "github.com/kotoba/kotoba-server/internal/events"
	executor "github.com/kotoba/kotoba-server/internal/executor"
	graph "github.com/kotoba/kotoba-server/internal/graph"
	language "github.com/kotoba/kotoba-server/internal/language"
	querycache "github.com/kotoba/kotoba-server/internal/querycache"
)

func (h *Handler) serveQuery(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		setCORSHeaders(w, r, h.opt.CORS)
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet, http.MethodPost:
	default:
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		writeJSON(w, http.StatusMethodNotAllowed, messageResult("method not allowed"), h.opt.Pretty)
		return
	}
	setCORSHeaders(w, r, h.opt.CORS)

	reqs, batch, rerr := parseRequest(r, h.opt.MaxBodyBytes)
	if rerr != nil {
		writeJSON(w, rerr.status, messageResult(rerr.message), h.opt.Pretty)
		return
	}

	ctx := r.Context()
	if batch {
		out := make([]any, len(reqs))
		for i := range reqs {
			out[i] = h.executeOne(ctx, reqs[i], h.document(ctx, reqs[i].Query))
		}
		writeJSON(w, http.StatusOK, out, h.opt.Pretty)
		return
	}

	req := reqs[0]
	doc := h.document(ctx, req.Query)
	if r.Method == http.MethodGet && doc.Query != nil && isMutation(doc.Query, req.OperationName) {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, messageResult("mutations are only allowed over POST"), h.opt.Pretty)
		return
	}
	writeJSON(w, http.StatusOK, h.executeOne(ctx, req, doc), h.opt.Pretty)
}

// executeOne runs one operation with a fresh ExecutionContext and returns its
// response body.
func (h *Handler) executeOne(ctx context.Context, req GraphQLRequest, doc querycache.Document) any {
	start := time.Now()
	opType := ""
	if doc.Query != nil {
		if op := selectOperation(doc.Query, req.OperationName); op != nil {
			opType = string(op.Operation)
		}
	}
	eventbus.Publish(ctx, events.GraphQLStart{Query: req.Query, OperationName: req.OperationName, OperationType: opType})

	var (
		body any
		errs []error
	)
	if len(doc.Errors) > 0 {
		body = documentErrors(doc.Errors)
		errs = make([]error, len(doc.Errors))
		for i := range doc.Errors {
			errs[i] = doc.Errors[i]
		}
	} else {
		ec := graph.NewRequestContext(h.app)
		result := h.schema.Execute(ctx, ec, executor.Request{
			Document:      doc.Query,
			OperationName: req.OperationName,
			Variables:     req.Variables,
		})
		body = toWireResult(result)
		errs = make([]error, len(result.Errors))
		for i := range result.Errors {
			errs[i] = result.Errors[i]
		}
	}

	eventbus.Publish(ctx, events.GraphQLFinish{
		Query:         req.Query,
		OperationName: req.OperationName,
		OperationType: opType,
		Errors:        errs,
		Duration:      time.Since(start),
	})
	return body
}

// document parses and validates source, going through the query cache.
func (h *Handler) document(ctx context.Context, source string) querycache.Document {
	return h.opt.QueryCache.Load(ctx, source, func(source string) querycache.Document {
		q, err := language.ParseQuery(source)
		if err != nil {
			return querycache.Document{Errors: language.ErrorList{language.AsError(err)}}
		}
		if errs := h.schema.Validate(q); len(errs) > 0 {
			return querycache.Document{Errors: errs}
		}
		return querycache.Document{Query: q}
	})
}

func selectOperation(doc *language.QueryDocument, name string) *language.OperationDefinition {
	if name == "" {
		if len(doc.Operations) == 1 {
			return doc.Operations[0]
		}
		return nil
	}
	return doc.Operations.ForName(name)
}

func isMutation(doc *language.QueryDocument, name string) bool {
	op := selectOperation(doc, name)
	return op != nil && op.Operation == language.Mutation
}
