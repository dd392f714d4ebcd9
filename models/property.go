package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Well-known subType values.
const (
	SubTypeImage    = "image"
	SubTypeMulti    = "multi"
	SubTypeDateTime = "datetime"
)

// Choice is a single selectable option of a TextChoices property.
type Choice struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// TypeArgs carries type-specific arguments of a property. Keys other than
// subType and choices are kept in Extra so they survive schema merges.
type TypeArgs struct {
	SubType string
	Choices []Choice
	Extra   map[string]any
}

// IsEmpty reports whether the type args carry nothing worth persisting.
func (a *TypeArgs) IsEmpty() bool {
	return a == nil || (a.SubType == "" && len(a.Choices) == 0 && len(a.Extra) == 0)
}

// Clone returns a deep-enough copy: choices and extra keys are copied.
func (a *TypeArgs) Clone() *TypeArgs {
	if a == nil {
		return nil
	}
	out := &TypeArgs{SubType: a.SubType}
	if a.Choices != nil {
		out.Choices = append([]Choice(nil), a.Choices...)
	}
	if a.Extra != nil {
		out.Extra = make(map[string]any, len(a.Extra))
		for k, v := range a.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

func (a TypeArgs) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(a.Extra)+2)
	for k, v := range a.Extra {
		m[k] = v
	}
	if a.SubType != "" {
		m["subType"] = a.SubType
	}
	if a.Choices != nil {
		m["choices"] = a.Choices
	}
	return marshalUnescaped(m)
}

func (a *TypeArgs) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = TypeArgs{}
	for k, v := range raw {
		switch k {
		case "subType":
			if err := json.Unmarshal(v, &a.SubType); err != nil {
				return fmt.Errorf("invalid subType: %w", err)
			}
		case "choices":
			if err := json.Unmarshal(v, &a.Choices); err != nil {
				return fmt.Errorf("invalid choices: %w", err)
			}
		default:
			var anyVal any
			if err := json.Unmarshal(v, &anyVal); err != nil {
				return err
			}
			if a.Extra == nil {
				a.Extra = make(map[string]any)
			}
			a.Extra[k] = anyVal
		}
	}
	return nil
}

// Property is a single named, typed value attached to a block through a tag.
type Property struct {
	Name     string       `json:"name"`
	Type     PropertyType `json:"type"`
	Value    any          `json:"value"`
	TypeArgs *TypeArgs    `json:"typeArgs,omitempty"`
}

// SubType returns the subType from the type args, or "".
func (p Property) SubType() string {
	if p.TypeArgs == nil {
		return ""
	}
	return p.TypeArgs.SubType
}

// StringValue returns the value when it is a string.
func (p Property) StringValue() (string, bool) {
	s, ok := p.Value.(string)
	return s, ok
}

// JSON has no NaN or Inf; non-finite numbers are written as null.
func (p Property) MarshalJSON() ([]byte, error) {
	type plain Property
	out := plain(p)
	if f, ok := out.Value.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		out.Value = nil
	}
	if out.TypeArgs.IsEmpty() {
		out.TypeArgs = nil
	}
	return marshalUnescaped(out)
}

// marshalUnescaped is json.Marshal without HTML escaping, so URLs keep
// their '&' whatever encoder the caller uses.
func marshalUnescaped(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// FindProperty returns the first property with the given name.
func FindProperty(props []Property, name string) (Property, bool) {
	for _, p := range props {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// PropertyFromMap converts a loosely typed object, as produced by an
// extraction script, into a Property.
func PropertyFromMap(m map[string]any) (Property, error) {
	name, ok := m["name"].(string)
	if !ok || name == "" {
		return Property{}, fmt.Errorf("property is missing a string name")
	}

	var typ PropertyType
	switch v := m["type"].(type) {
	case int64:
		typ = PropertyType(v)
	case int:
		typ = PropertyType(v)
	case float64:
		if v != math.Trunc(v) {
			return Property{}, fmt.Errorf("property %q has a fractional type %v", name, v)
		}
		typ = PropertyType(int(v))
	case string:
		parsed, err := ParsePropertyType(v)
		if err != nil {
			return Property{}, fmt.Errorf("property %q: %w", name, err)
		}
		typ = parsed
	case nil:
		return Property{}, fmt.Errorf("property %q is missing a type", name)
	default:
		return Property{}, fmt.Errorf("property %q has an invalid type %T", name, v)
	}
	if !typ.Valid() {
		return Property{}, fmt.Errorf("property %q has an unknown type %d", name, int(typ))
	}

	prop := Property{Name: name, Type: typ, Value: m["value"]}

	if rawArgs, ok := m["typeArgs"]; ok && rawArgs != nil {
		argsMap, ok := rawArgs.(map[string]any)
		if !ok {
			return Property{}, fmt.Errorf("property %q has non-object typeArgs", name)
		}
		data, err := json.Marshal(argsMap)
		if err != nil {
			return Property{}, fmt.Errorf("property %q: failed to encode typeArgs: %w", name, err)
		}
		args := &TypeArgs{}
		if err := json.Unmarshal(data, args); err != nil {
			return Property{}, fmt.Errorf("property %q: failed to decode typeArgs: %w", name, err)
		}
		if !args.IsEmpty() {
			prop.TypeArgs = args
		}
	}
	return prop, nil
}
