package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"unicode/utf8"
)

var (
	errNilApp    = errors.New("server: nil app")
	errNilSchema = errors.New("server: nil schema")
)

// GraphQLRequest is one operation request, as sent in a GET query string or
// a POST body.
type GraphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

// requestError is a transport level failure. It never reaches execution.
type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string { return e.message }

func badRequest(msg string) *requestError {
	return &requestError{status: http.StatusBadRequest, message: msg}
}

const errBodyTooLargeMessage = "body too large"

// parseRequest decodes r into one or more operation requests. batch reports
// whether the body was a JSON array.
func parseRequest(r *http.Request, maxBody int64) (reqs []GraphQLRequest, batch bool, rerr *requestError) {
	if r.Method == http.MethodGet {
		req, qerr := parseQueryString(r.URL.RawQuery)
		if qerr != nil {
			return nil, false, qerr
		}
		return []GraphQLRequest{req}, false, nil
	}

	ct := r.Header.Get("Content-Type")
	mediaType := "application/json"
	if ct != "" {
		var err error
		if mediaType, _, err = mime.ParseMediaType(ct); err != nil {
			return nil, false, &requestError{status: http.StatusUnsupportedMediaType, message: "malformed Content-Type"}
		}
	}
	if mediaType != "application/json" && mediaType != "application/graphql" {
		return nil, false, &requestError{status: http.StatusUnsupportedMediaType, message: "unsupported Content-Type " + mediaType}
	}

	body, berr := readBody(r, maxBody)
	if berr != nil {
		return nil, false, berr
	}

	if mediaType == "application/graphql" {
		if len(body) == 0 {
			return nil, false, badRequest("missing 'query'")
		}
		if !utf8.Valid(body) {
			return nil, false, badRequest("'query' is not valid UTF-8")
		}
		opName := r.URL.Query().Get("operationName")
		if !utf8.ValidString(opName) {
			return nil, false, badRequest("'operationName' is not valid UTF-8")
		}
		return []GraphQLRequest{{
			Query:         string(body),
			OperationName: opName,
			Variables:     map[string]any{},
		}}, false, nil
	}

	if trimmed := bytes.TrimLeft(body, " \t\r\n"); len(trimmed) > 0 && trimmed[0] == '[' {
		var arr []GraphQLRequest
		if err := json.Unmarshal(body, &arr); err != nil {
			return nil, false, badRequest("invalid JSON")
		}
		if len(arr) == 0 {
			return nil, false, badRequest("empty batch")
		}
		for i := range arr {
			if arr[i].Query == "" {
				return nil, false, badRequest("missing 'query'")
			}
			if arr[i].Variables == nil {
				arr[i].Variables = map[string]any{}
			}
		}
		return arr, true, nil
	}

	var req GraphQLRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, false, badRequest("invalid JSON")
	}
	if req.Query == "" {
		return nil, false, badRequest("missing 'query'")
	}
	if req.Variables == nil {
		req.Variables = map[string]any{}
	}
	return []GraphQLRequest{req}, false, nil
}

func parseQueryString(raw string) (GraphQLRequest, *requestError) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return GraphQLRequest{}, badRequest("malformed query string")
	}
	q := values.Get("query")
	if q == "" {
		return GraphQLRequest{}, badRequest("missing 'query'")
	}
	if !utf8.ValidString(q) {
		return GraphQLRequest{}, badRequest("'query' is not valid UTF-8")
	}
	opName := values.Get("operationName")
	if !utf8.ValidString(opName) {
		return GraphQLRequest{}, badRequest("'operationName' is not valid UTF-8")
	}
	vars := map[string]any{}
	if v := values.Get("variables"); v != "" {
		// null decodes to a nil map and counts as absent
		if err := json.Unmarshal([]byte(v), &vars); err != nil {
			return GraphQLRequest{}, badRequest("invalid 'variables' JSON")
		}
		if vars == nil {
			vars = map[string]any{}
		}
	}
	return GraphQLRequest{Query: q, Variables: vars, OperationName: opName}, nil
}

func readBody(r *http.Request, maxBody int64) ([]byte, *requestError) {
	defer r.Body.Close()
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, badRequest("failed to read body")
	}
	if maxBody > 0 && int64(len(body)) > maxBody {
		return nil, badRequest(errBodyTooLargeMessage)
	}
	return body, nil
}
