package executor

import language "github.com/kotoba/kotoba-server/internal/language"

// GraphQLError is a field or request error produced during execution.
type GraphQLError struct {
	Message    string              `json:"message"`
	Locations  []language.Location `json:"locations,omitempty"`
	Path       Path                `json:"path,omitempty"`
	Extensions map[string]any      `json:"extensions,omitempty"`
}

func (e GraphQLError) Error() string {
	return e.Message
}

// ExecutionResult is the outcome of one operation. Data is nil when the
// operation could not start (unknown operation, bad variables).
type ExecutionResult struct {
	Data   any            `json:"data"`
	Errors []GraphQLError `json:"errors,omitempty"`

	keyOrder keyOrder
}

// OrderedData returns Data prepared for JSON encoding with object keys in
// selection order.
func (r *ExecutionResult) OrderedData() any {
	if r.keyOrder == nil {
		return r.Data
	}
	return r.keyOrder.ordered(r.Data)
}
