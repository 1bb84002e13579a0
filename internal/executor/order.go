package executor

import (
	"bytes"
	"encoding/json"
	"reflect"
	"sort"
)

// keyOrder remembers the response-key order of every object the executor
// built, keyed by map identity.
type keyOrder map[uintptr][]string

func mapID(m map[string]any) uintptr { return reflect.ValueOf(m).Pointer() }

func (o keyOrder) record(m map[string]any, fields []collectedField) {
	keys := make([]string, len(fields))
	for i, cf := range fields {
		keys[i] = cf.ResponseName
	}
	o[mapID(m)] = keys
}

// orderedObject marshals an object with its keys in selection order. Keys
// without a recorded position follow in sorted order.
type orderedObject struct {
	keys   []string
	values map[string]any
}

func (o orderedObject) MarshalJSON() ([]byte, error) {
	seen := make(map[string]struct{}, len(o.values))
	keys := make([]string, 0, len(o.values))
	for _, k := range o.keys {
		if _, ok := o.values[k]; !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	var rest []string
	for k := range o.values {
		if _, ok := seen[k]; !ok {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	keys = append(keys, rest...)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ordered wraps the objects of an executor result so that JSON encoding
// follows the recorded key order. Values the executor did not build, such
// as custom scalar payloads, are returned unchanged.
func (o keyOrder) ordered(v any) any {
	switch v := v.(type) {
	case map[string]any:
		keys, ok := o[mapID(v)]
		if !ok {
			return v
		}
		values := make(map[string]any, len(v))
		for k, item := range v {
			values[k] = o.ordered(item)
		}
		return orderedObject{keys: keys, values: values}
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = o.ordered(item)
		}
		return out
	default:
		return v
	}
}
