package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Render produces SDL from the Schema. Built-in scalars and directives are
// omitted. Types and directives are sorted by name; fields keep their
// declaration order.
func Render(s *Schema) string {
	if s == nil {
		return ""
	}
	var b strings.Builder

	for _, name := range sortedKeys(s.Types) {
		typ := s.Types[name]
		if IsBuiltinType(typ) {
			continue
		}
		renderType(&b, typ)
	}
	for _, name := range sortedKeys(s.Directives) {
		d := s.Directives[name]
		if IsBuiltinDirective(d) {
			continue
		}
		renderDirective(&b, d)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func renderType(b *strings.Builder, typ *Type) {
	renderDescription(b, "", typ.Description)
	switch typ.Kind {
	case TypeKindScalar:
		b.WriteString("scalar " + typ.Name)
		if typ.SpecifiedByURL != nil {
			b.WriteString(" @specifiedBy(url: " + strconv.Quote(*typ.SpecifiedByURL) + ")")
		}
		b.WriteString("\n\n")
	case TypeKindEnum:
		b.WriteString("enum " + typ.Name + " {\n")
		for _, v := range typ.EnumValues {
			renderDescription(b, "  ", v.Description)
			b.WriteString("  " + v.Name)
			renderDeprecation(b, v.IsDeprecated, v.DeprecationReason)
			b.WriteString("\n")
		}
		b.WriteString("}\n\n")
	case TypeKindInputObject:
		b.WriteString("input " + typ.Name)
		if typ.OneOf {
			b.WriteString(" @oneOf")
		}
		b.WriteString(" {\n")
		for _, f := range typ.InputFields {
			renderDescription(b, "  ", f.Description)
			b.WriteString("  " + renderInputValue(f))
			renderDeprecation(b, f.IsDeprecated, f.DeprecationReason)
			b.WriteString("\n")
		}
		b.WriteString("}\n\n")
	case TypeKindObject, TypeKindInterface:
		keyword := "type "
		if typ.Kind == TypeKindInterface {
			keyword = "interface "
		}
		b.WriteString(keyword + typ.Name)
		if len(typ.Interfaces) > 0 {
			b.WriteString(" implements " + strings.Join(typ.Interfaces, " & "))
		}
		b.WriteString(" {\n")
		for _, f := range typ.Fields {
			renderField(b, f)
		}
		b.WriteString("}\n\n")
	case TypeKindUnion:
		b.WriteString("union " + typ.Name + " = " + strings.Join(typ.PossibleTypes, " | ") + "\n\n")
	}
}

func renderField(b *strings.Builder, f *Field) {
	renderDescription(b, "  ", f.Description)
	b.WriteString("  " + f.Name)
	renderArguments(b, f.Arguments)
	b.WriteString(": " + f.Type.String())
	renderDeprecation(b, f.IsDeprecated, f.DeprecationReason)
	b.WriteString("\n")
}

func renderDirective(b *strings.Builder, d *Directive) {
	renderDescription(b, "", d.Description)
	b.WriteString("directive @" + d.Name)
	renderArguments(b, d.Arguments)
	if d.IsRepeatable {
		b.WriteString(" repeatable")
	}
	b.WriteString(" on " + strings.Join(d.Locations, " | ") + "\n\n")
}

func renderArguments(b *strings.Builder, args []*InputValue) {
	if len(args) == 0 {
		return
	}
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = renderInputValue(arg)
	}
	b.WriteString("(" + strings.Join(parts, ", ") + ")")
}

func renderInputValue(v *InputValue) string {
	out := v.Name + ": " + v.Type.String()
	if v.DefaultValue != nil {
		out += " = " + FormatValue(v.DefaultValue)
	}
	return out
}

func renderDeprecation(b *strings.Builder, deprecated bool, reason string) {
	if !deprecated {
		return
	}
	b.WriteString(" @deprecated")
	if reason != "" && reason != defaultDeprecationReason {
		b.WriteString("(reason: " + strconv.Quote(reason) + ")")
	}
}

func renderDescription(b *strings.Builder, indent, desc string) {
	if desc == "" {
		return
	}
	b.WriteString(indent + `"""` + "\n")
	for _, line := range strings.Split(strings.ReplaceAll(desc, `"""`, `\"""`), "\n") {
		b.WriteString(indent + line + "\n")
	}
	b.WriteString(indent + `"""` + "\n")
}

// FormatValue renders a Go value as a GraphQL literal, as used for default
// values in SDL and introspection.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = FormatValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + FormatValue(v[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(v)
	}
}
