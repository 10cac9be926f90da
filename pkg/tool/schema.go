package tool

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// NormalizeStrictSchemaNode recursively enforces strict JSON-schema object
// rules so every tool schema handed to a provider is closed and total:
//   - object nodes get additionalProperties: false
//   - optional object properties are made nullable and promoted into
//     required, since several providers (OpenAI's "strict" tool mode in
//     particular) reject schemas with optional properties outright.
//
// Carried over from the teacher's pkg/schema/strict.go unchanged; this is
// the one piece of the teacher's code that needed no generalization at
// all; the logic already operates on generic map[string]any schema nodes.
func NormalizeStrictSchemaNode(node any) any {
	switch n := node.(type) {
	case map[string]any:
		normalizeStrictObjectIfPresent(n)
		for _, k := range []string{"anyOf", "oneOf", "allOf"} {
			if raw, ok := n[k].([]any); ok {
				for i := range raw {
					raw[i] = NormalizeStrictSchemaNode(raw[i])
				}
				n[k] = raw
			}
		}
		if raw, ok := n["items"]; ok {
			n["items"] = NormalizeStrictSchemaNode(raw)
		}
		if raw, ok := n["prefixItems"].([]any); ok {
			for i := range raw {
				raw[i] = NormalizeStrictSchemaNode(raw[i])
			}
			n["prefixItems"] = raw
		}
		if raw, ok := n["properties"].(map[string]any); ok {
			for name, prop := range raw {
				raw[name] = NormalizeStrictSchemaNode(prop)
			}
			n["properties"] = raw
		}
		if raw, ok := n["additionalProperties"]; ok {
			n["additionalProperties"] = NormalizeStrictSchemaNode(raw)
		}
		return n
	case []any:
		for i := range n {
			n[i] = NormalizeStrictSchemaNode(n[i])
		}
		return n
	default:
		return node
	}
}

func normalizeStrictObjectIfPresent(schema map[string]any) {
	typ, _ := schema["type"].(string)
	if typ == "" && (schema["properties"] != nil || schema["required"] != nil) {
		schema["type"] = "object"
		typ = "object"
	}
	hasObjectType := typ == "object"
	if !hasObjectType {
		if tarr, ok := schema["type"].([]any); ok {
			for _, v := range tarr {
				if s, ok := v.(string); ok && s == "object" {
					hasObjectType = true
					break
				}
			}
		}
	}
	if !hasObjectType {
		return
	}

	if ap, ok := schema["additionalProperties"]; !ok || ap != false {
		schema["additionalProperties"] = false
	}

	props, ok := schema["properties"].(map[string]any)
	if !ok || len(props) == 0 {
		return
	}

	requiredSet := map[string]bool{}
	required := []any{}
	if raw, ok := schema["required"].([]any); ok {
		for _, v := range raw {
			s, ok := v.(string)
			if !ok || s == "" || requiredSet[s] {
				continue
			}
			requiredSet[s] = true
			required = append(required, s)
		}
	}

	for name, prop := range props {
		if requiredSet[name] {
			continue
		}
		props[name] = makeSchemaNullable(prop)
		requiredSet[name] = true
		required = append(required, name)
	}

	schema["properties"] = props
	schema["required"] = required
}

func makeSchemaNullable(prop any) any {
	m, ok := prop.(map[string]any)
	if !ok {
		return map[string]any{
			"anyOf": []any{prop, map[string]any{"type": "null"}},
		}
	}

	if rawType, ok := m["type"]; ok {
		switch t := rawType.(type) {
		case string:
			if t != "null" {
				m["type"] = []any{t, "null"}
			}
			return m
		case []any:
			for _, v := range t {
				if s, ok := v.(string); ok && s == "null" {
					return m
				}
			}
			m["type"] = append(t, "null")
			return m
		}
	}

	if rawAnyOf, ok := m["anyOf"].([]any); ok {
		for _, v := range rawAnyOf {
			if mm, ok := v.(map[string]any); ok {
				if s, _ := mm["type"].(string); s == "null" {
					return m
				}
			}
		}
		m["anyOf"] = append(rawAnyOf, map[string]any{"type": "null"})
		return m
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return map[string]any{
		"anyOf": []any{out, map[string]any{"type": "null"}},
	}
}

// ValidateArguments compiles a tool's JSON-schema parameters (pre-strict
// normalization; validation happens against the schema as registered, the
// normalized strict form is what providers see, not what we validate
// against — this matters since strict-mode nullability changes rejection
// behavior) and checks raw JSON arguments against it, using
// santhosh-tekuri/jsonschema/v6 the way goadesign-goa-ai's tool registry
// validates payloads against tool schemas before dispatch.
func ValidateArguments(schema map[string]any, rawArgs []byte) error {
	if schema == nil {
		return nil
	}

	var args any
	if len(rawArgs) == 0 {
		args = map[string]any{}
	} else if err := json.Unmarshal(rawArgs, &args); err != nil {
		return fmt.Errorf("tool: arguments are not valid JSON: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schema); err != nil {
		return fmt.Errorf("tool: add schema resource: %w", err)
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("tool: compile schema: %w", err)
	}
	if err := compiled.Validate(args); err != nil {
		return fmt.Errorf("tool: arguments failed schema validation: %w", err)
	}
	return nil
}
