package graph

import (
	"context"
	"fmt"
	"sort"

	schema "github.com/kotoba/kotoba-server/internal/schema"
)

// FieldFunc resolves one field. source is the parent value (nil for root
// fields) and args holds the coerced arguments. Returned errors become
// GraphQL errors located at the field.
type FieldFunc func(ctx context.Context, ec ExecutionContext, source any, args map[string]any) (any, error)

type fieldKey struct {
	objectType string
	field      string
}

type binding struct {
	fn    FieldFunc
	async bool
}

// Resolvers maps schema fields to their implementations. Fields of the root
// operation types must all be bound; fields of other object types fall back
// to reading the key of the same name from a map[string]any source.
type Resolvers struct {
	fields map[fieldKey]binding
}

func NewResolvers() *Resolvers {
	return &Resolvers{fields: make(map[fieldKey]binding)}
}

// Field binds a synchronous resolver. It runs inline and must not block.
func (r *Resolvers) Field(objectType, field string, fn FieldFunc) *Resolvers {
	r.fields[fieldKey{objectType, field}] = binding{fn: fn}
	return r
}

// AsyncField binds a resolver that may block. Async fields of one execution
// depth run concurrently.
func (r *Resolvers) AsyncField(objectType, field string, fn FieldFunc) *Resolvers {
	r.fields[fieldKey{objectType, field}] = binding{fn: fn, async: true}
	return r
}

func (r *Resolvers) lookup(objectType, field string) (binding, bool) {
	b, ok := r.fields[fieldKey{objectType, field}]
	return b, ok
}

// bind marks async fields in sch and checks that every root field has a
// resolver and every resolver names an existing field.
func (r *Resolvers) bind(sch *schema.Schema) error {
	var unbound []string
	for _, root := range []*schema.Type{sch.GetQueryType(), sch.GetMutationType(), sch.GetSubscriptionType()} {
		if root == nil {
			continue
		}
		for _, f := range root.Fields {
			if _, ok := r.lookup(root.Name, f.Name); !ok {
				unbound = append(unbound, root.Name+"."+f.Name)
			}
		}
	}
	if len(unbound) > 0 {
		return fmt.Errorf("fields without resolver: %v", unbound)
	}

	keys := make([]fieldKey, 0, len(r.fields))
	for k := range r.fields {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].objectType != keys[j].objectType {
			return keys[i].objectType < keys[j].objectType
		}
		return keys[i].field < keys[j].field
	})
	for _, k := range keys {
		typ := sch.Types[k.objectType]
		if typ == nil || typ.Kind != schema.TypeKindObject {
			return fmt.Errorf("resolver bound to unknown object type %s", k.objectType)
		}
		f := typ.Field(k.field)
		if f == nil {
			return fmt.Errorf("resolver bound to unknown field %s.%s", k.objectType, k.field)
		}
		f.SetAsync(r.fields[k].async)
	}
	return nil
}
