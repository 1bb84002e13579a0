package server

import (
	"encoding/json"
	"net/http"

	executor "github.com/kotoba/kotoba-server/internal/executor"
	language "github.com/kotoba/kotoba-server/internal/language"
)

type wireLocation struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type wireError struct {
	Message    string         `json:"message"`
	Locations  []wireLocation `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// wireResult is a response that reached execution. data is always present.
type wireResult struct {
	Data   any         `json:"data"`
	Errors []wireError `json:"errors,omitempty"`
}

// errorResult is a response that failed before execution, so data is absent.
type errorResult struct {
	Errors []wireError `json:"errors"`
}

func messageResult(msg string) errorResult {
	return errorResult{Errors: []wireError{{Message: msg}}}
}

func documentErrors(errs language.ErrorList) errorResult {
	out := errorResult{Errors: make([]wireError, len(errs))}
	for i, e := range errs {
		se := wireError{Message: e.Message, Extensions: e.Extensions}
		for _, loc := range e.Locations {
			se.Locations = append(se.Locations, wireLocation{Line: loc.Line, Column: loc.Column})
		}
		for _, pe := range e.Path {
			se.Path = append(se.Path, pe)
		}
		out.Errors[i] = se
	}
	return out
}

func toWireResult(res *executor.ExecutionResult) wireResult {
	out := wireResult{Data: res.OrderedData()}
	if len(res.Errors) == 0 {
		return out
	}
	out.Errors = make([]wireError, len(res.Errors))
	for i, e := range res.Errors {
		se := wireError{Message: e.Message, Extensions: e.Extensions}
		for _, loc := range e.Locations {
			se.Locations = append(se.Locations, wireLocation{Line: loc.Line, Column: loc.Column})
		}
		if len(e.Path) > 0 {
			se.Path = make([]any, len(e.Path))
			for j, pe := range e.Path {
				switch v := pe.(type) {
				case string, int:
					se.Path[j] = v
				default:
					se.Path[j] = toString(v)
				}
			}
		}
		out.Errors[i] = se
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

func toString(v any) string { b, _ := json.Marshal(v); return string(b) }
