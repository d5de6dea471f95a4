package generate

import (
	"fmt"
	"strings"
)

// FieldType is the declared JSON type of a response field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeArray   FieldType = "array"
	TypeObject  FieldType = "object"
)

// Field declares one key of the expected response object.
type Field struct {
	Name     string
	Type     FieldType
	Optional bool
	// Elem describes array items or object members.
	Elem []Field
}

// ResponseShape enumerates the fields the generator must return.
type ResponseShape struct {
	Fields []Field
}

// FragmentShape is the shape every story fragment response must satisfy.
var FragmentShape = ResponseShape{Fields: []Field{
	{Name: "chapterTitle", Type: TypeString},
	{Name: "content", Type: TypeString},
	{Name: "choices", Type: TypeArray, Elem: []Field{
		{Name: "id", Type: TypeString},
		{Name: "text", Type: TypeString},
		{Name: "tone", Type: TypeString},
	}},
	{Name: "characterUpdates", Type: TypeArray, Elem: []Field{
		{Name: "name", Type: TypeString},
		{Name: "role", Type: TypeString, Optional: true},
		{Name: "affinity", Type: TypeInteger, Optional: true},
		{Name: "status", Type: TypeString, Optional: true},
		{Name: "description", Type: TypeString, Optional: true},
	}},
	{Name: "stats", Type: TypeObject, Elem: []Field{
		{Name: "tension", Type: TypeInteger},
		{Name: "mystery", Type: TypeInteger},
		{Name: "romance", Type: TypeInteger},
		{Name: "hope", Type: TypeInteger},
	}},
	{Name: "summary", Type: TypeString},
	{Name: "backgroundImagePrompt", Type: TypeString, Optional: true},
}}

// Describe renders the shape as a JSON-like template for the system prompt.
func (s ResponseShape) Describe() string {
	var b strings.Builder
	describeObject(&b, s.Fields, "")
	return b.String()
}

func describeObject(b *strings.Builder, fields []Field, indent string) {
	b.WriteString("{\n")
	for i, f := range fields {
		b.WriteString(indent + "  \"" + f.Name + "\": ")
		switch f.Type {
		case TypeArray:
			if len(f.Elem) > 0 {
				b.WriteString("[")
				describeObject(b, f.Elem, indent+"  ")
				b.WriteString("]")
			} else {
				b.WriteString("[]")
			}
		case TypeObject:
			describeObject(b, f.Elem, indent+"  ")
		default:
			b.WriteString(string(f.Type))
		}
		if f.Optional {
			b.WriteString(" (optional)")
		}
		if i < len(fields)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(indent + "}")
}

// Check lists every missing or mistyped field in a decoded JSON object.
// An empty result means v satisfies the shape.
func (s ResponseShape) Check(v map[string]any) []string {
	return checkFields(s.Fields, v, "")
}

func checkFields(fields []Field, v map[string]any, prefix string) []string {
	var problems []string
	for _, f := range fields {
		path := prefix + f.Name
		raw, ok := v[f.Name]
		if !ok || raw == nil {
			if !f.Optional {
				problems = append(problems, path+": missing")
			}
			continue
		}
		if !typeMatches(f.Type, raw) {
			problems = append(problems, fmt.Sprintf("%s: want %s", path, f.Type))
			continue
		}
		switch f.Type {
		case TypeObject:
			problems = append(problems, checkFields(f.Elem, raw.(map[string]any), path+".")...)
		case TypeArray:
			if len(f.Elem) == 0 {
				continue
			}
			for i, item := range raw.([]any) {
				obj, ok := item.(map[string]any)
				if !ok {
					problems = append(problems, fmt.Sprintf("%s[%d]: want object", path, i))
					continue
				}
				problems = append(problems, checkFields(f.Elem, obj, fmt.Sprintf("%s[%d].", path, i))...)
			}
		}
	}
	return problems
}

func typeMatches(t FieldType, v any) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeInteger:
		n, ok := v.(float64)
		return ok && n == float64(int64(n))
	case TypeArray:
		_, ok := v.([]any)
		return ok
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	}
	return false
}
