package catalog

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// RenderDeclarations synthesizes the full .d.ts text for a Catalog snapshot,
// per spec.md §4.2: one `declare namespace <upstream>` block per upstream,
// each function typed from its input/output JSON Schema. Output is
// canonical: upstreams and tools both sorted by name, so two calls against
// an unchanged Catalog produce byte-identical text (spec.md §8).
func RenderDeclarations(c *Catalog) string {
	var b strings.Builder
	for _, upstream := range c.Upstreams() {
		entry := c.Entry(upstream)
		if entry == nil || len(entry.Tools) == 0 {
			continue
		}
		renderNamespace(&b, upstream, entry.Tools)
	}
	return b.String()
}

// TypeManifest maps a fully-qualified "<namespace>.<tool>" name to that
// function's declared input schema, letting the type-check VM validate a
// call site's argument literal structurally without re-parsing the
// rendered .d.ts text RenderDeclarations produces for humans and the
// execution sandbox's declaration listing.
type TypeManifest map[string]json.RawMessage

// BuildTypeManifest derives a TypeManifest from a Catalog snapshot.
func BuildTypeManifest(c *Catalog) TypeManifest {
	manifest := make(TypeManifest)
	for _, upstream := range c.Upstreams() {
		entry := c.Entry(upstream)
		if entry == nil {
			continue
		}
		for _, t := range entry.Tools {
			schema := t.InputSchema
			if len(schema) == 0 {
				schema = json.RawMessage(`{"type":"object"}`)
			}
			manifest[upstream+"."+t.Name] = schema
		}
	}
	return manifest
}

func renderNamespace(b *strings.Builder, name string, tools []ToolDescriptor) {
	fmt.Fprintf(b, "declare namespace %s {\n", name)
	for _, t := range tools {
		if t.Description != "" {
			fmt.Fprintf(b, "  /** %s */\n", t.Description)
		}
		argsType := typeSignatureForInput(t.InputSchema)
		retType := "any"
		if len(t.OutputSchema) > 0 {
			retType = typeSignature(t.OutputSchema, true)
		}
		fmt.Fprintf(b, "  function %s(args: %s): Promise<%s>;\n", t.Name, argsType, retType)
	}
	b.WriteString("}\n")
}

// typeSignatureForInput renders an input schema as the single object-literal
// parameter type agent code passes to a generated wrapper.
func typeSignatureForInput(schema json.RawMessage) string {
	if len(schema) == 0 {
		return "Record<string, any>"
	}
	return typeSignature(schema, true)
}

// typeSignature recursively maps one JSON Schema node to a TypeScript type
// expression. Grounded on codegen/src/schema_type.rs's SchemaType::
// type_signature — this is a direct, single-pass Go port operating on
// decoded map[string]any rather than a typed schema AST, since the gateway
// has no use for the richer SchemaType enum beyond signature rendering.
//
// Unknown or unhandled schema constructs degrade to "any" per spec.md §4.2;
// this includes `$ref` (followed one level against the same document, per
// SPEC_FULL.md §9.1's Open-Question decision) and `allOf` (rendered as an
// intersection of its branches).
func typeSignature(raw json.RawMessage, required bool) string {
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return "any"
	}
	return typeSignatureOf(schema, required, raw)
}

func typeSignatureOf(schema map[string]any, required bool, root json.RawMessage) string {
	sig := baseSignature(schema, root)

	if isNullable(schema) {
		sig += " | null"
	}
	if !required {
		sig += " | undefined"
	}
	return sig
}

func baseSignature(schema map[string]any, root json.RawMessage) string {
	if ref, ok := schema["$ref"].(string); ok {
		if resolved := followRef(ref, root); resolved != nil {
			// A nil root stops further refs inside the definition from
			// resolving, so they render as any (one level deep).
			return baseSignature(resolved, nil)
		}
		return "any"
	}

	if enumVals, ok := schema["enum"].([]any); ok && len(enumVals) > 0 {
		return enumSignature(enumVals)
	}

	if subs, ok := unionBranches(schema); ok {
		parts := make([]string, 0, len(subs))
		for _, s := range subs {
			if m, ok := s.(map[string]any); ok {
				parts = append(parts, typeSignatureOf(m, true, root))
			}
		}
		if len(parts) == 0 {
			return "any"
		}
		return strings.Join(parts, " | ")
	}

	if allOf, ok := schema["allOf"].([]any); ok && len(allOf) > 0 {
		parts := make([]string, 0, len(allOf))
		for _, s := range allOf {
			if m, ok := s.(map[string]any); ok {
				parts = append(parts, typeSignatureOf(m, true, root))
			}
		}
		if len(parts) == 0 {
			return "any"
		}
		return strings.Join(parts, " & ")
	}

	switch schemaInstanceType(schema) {
	case "boolean":
		return "boolean"
	case "integer", "number":
		return "number"
	case "string":
		return "string"
	case "array":
		items, ok := schema["items"].(map[string]any)
		if !ok {
			return "any[]"
		}
		return typeSignatureOf(items, true, root) + "[]"
	case "object":
		return objectSignature(schema, root)
	default:
		return "any"
	}
}

// unionBranches returns the branches of a oneOf/anyOf node, if present.
func unionBranches(schema map[string]any) ([]any, bool) {
	if v, ok := schema["oneOf"].([]any); ok && len(v) > 0 {
		return v, true
	}
	if v, ok := schema["anyOf"].([]any); ok && len(v) > 0 {
		return v, true
	}
	return nil, false
}

// objectSignature renders an object schema: a property-literal type when
// `properties` is non-empty, otherwise an index signature (map), per
// spec.md §4.2's "object -> an inline type literal ... additionalProperties
// true or absent widens to [key: string]: any".
func objectSignature(schema map[string]any, root json.RawMessage) string {
	props, _ := schema["properties"].(map[string]any)
	if len(props) == 0 {
		valueType := "any"
		if ap, ok := schema["additionalProperties"].(map[string]any); ok {
			valueType = typeSignatureOf(ap, true, root)
		}
		return fmt.Sprintf("{ [key: string]: %s }", valueType)
	}

	required := map[string]bool{}
	if req, ok := schema["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("{ ")
	for i, name := range names {
		propSchema, _ := props[name].(map[string]any)
		sig := typeSignatureOf(propSchema, true, root)
		if !required[name] {
			b.WriteString(name + "?: " + sig)
		} else {
			b.WriteString(name + ": " + sig)
		}
		if i < len(names)-1 {
			b.WriteString("; ")
		}
	}
	b.WriteString(" }")

	if additionalFree(schema) {
		// additionalProperties true/absent widens the literal with an index
		// signature alongside the known properties.
		return strings.TrimSuffix(b.String(), " }") + "; [key: string]: any }"
	}
	return b.String()
}

func additionalFree(schema map[string]any) bool {
	v, present := schema["additionalProperties"]
	if !present {
		return true
	}
	b, ok := v.(bool)
	return ok && b
}

func enumSignature(values []any) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		encoded, err := json.Marshal(v)
		if err != nil {
			continue
		}
		parts = append(parts, string(encoded))
	}
	if len(parts) == 0 {
		return "any"
	}
	return strings.Join(parts, " | ")
}

// schemaInstanceType extracts a schema's "type" as a single string, treating
// a ["T", "null"] array the way the original's check_nullable/instance_type
// logic does: the non-null member drives the base type, nullability is
// handled separately by isNullable.
func schemaInstanceType(schema map[string]any) string {
	switch t := schema["type"].(type) {
	case string:
		return t
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && s != "null" {
				return s
			}
		}
	}
	if _, ok := schema["properties"]; ok {
		return "object"
	}
	return ""
}

func isNullable(schema map[string]any) bool {
	switch t := schema["type"].(type) {
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && s == "null" {
				return true
			}
		}
	}
	if n, ok := schema["nullable"].(bool); ok {
		return n
	}
	return false
}

// followRef resolves a local "#/$defs/Name" or "#/definitions/Name"
// reference against the same schema document, one level deep (SPEC_FULL.md
// §9.1's Open-Question decision: richer cross-document resolution degrades
// to any, matching spec.md §9's stated safe default).
func followRef(ref string, root json.RawMessage) map[string]any {
	const defsPrefix = "#/$defs/"
	const definitionsPrefix = "#/definitions/"

	var key string
	switch {
	case strings.HasPrefix(ref, defsPrefix):
		key = ref[len(defsPrefix):]
	case strings.HasPrefix(ref, definitionsPrefix):
		key = ref[len(definitionsPrefix):]
	default:
		return nil
	}

	var doc struct {
		Defs        map[string]map[string]any `json:"$defs"`
		Definitions map[string]map[string]any `json:"definitions"`
	}
	if err := json.Unmarshal(root, &doc); err != nil {
		return nil
	}
	if v, ok := doc.Defs[key]; ok {
		return v
	}
	if v, ok := doc.Definitions[key]; ok {
		return v
	}
	return nil
}
