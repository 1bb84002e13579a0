// Package language wraps gqlparser for parsing and validating GraphQL documents.
package language

import (
	"errors"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
)

// ParseQuery parses an executable document. Syntax errors are returned as *Error.
func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, AsError(err)
	}
	return doc, nil
}

// LoadSchema parses and validates SDL sources into a schema definition. The
// GraphQL prelude (built-in scalars, directives and introspection types) is
// added automatically.
func LoadSchema(sources ...*Source) (*SchemaDefinition, error) {
	return gqlparser.LoadSchema(sources...)
}

// Validate checks doc against the schema using the standard validation rules.
func Validate(schema *SchemaDefinition, doc *QueryDocument) ErrorList {
	return validator.Validate(schema, doc)
}

// AsError converts err into a GraphQL error, keeping locations when err
// already is one.
func AsError(err error) *Error {
	var ge *gqlerror.Error
	if errors.As(err, &ge) {
		return ge
	}
	return gqlerror.Wrap(err)
}

// Errorf builds a GraphQL error without location information.
func Errorf(format string, args ...any) *Error {
	return gqlerror.Errorf(format, args...)
}
