package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// PropertyType is the declared type of a property. The numeric values are
// part of the wire format and must not be reordered.
type PropertyType int

const (
	PropertyTypeJSON PropertyType = iota
	PropertyTypeText
	PropertyTypeBlockRefs
	PropertyTypeNumber
	PropertyTypeBoolean
	PropertyTypeDateTime
	PropertyTypeTextChoices
)

var propertyTypeNames = []string{
	"JSON",
	"Text",
	"BlockRefs",
	"Number",
	"Boolean",
	"DateTime",
	"TextChoices",
}

// PropertyTypeEnum returns the name -> value table handed to extraction scripts.
func PropertyTypeEnum() map[string]int {
	enum := make(map[string]int, len(propertyTypeNames))
	for i, name := range propertyTypeNames {
		enum[name] = i
	}
	return enum
}

// Valid reports whether t is one of the known property types.
func (t PropertyType) Valid() bool {
	return t >= PropertyTypeJSON && t <= PropertyTypeTextChoices
}

func (t PropertyType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("PropertyType(%d)", int(t))
	}
	return propertyTypeNames[t]
}

// ParsePropertyType accepts either a type name (case-insensitive) or its
// numeric wire value.
func ParsePropertyType(s string) (PropertyType, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		t := PropertyType(n)
		if !t.Valid() {
			return 0, fmt.Errorf("unknown property type: %d", n)
		}
		return t, nil
	}
	for i, name := range propertyTypeNames {
		if strings.EqualFold(name, s) {
			return PropertyType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown property type: %q", s)
}

func (t PropertyType) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(t))
}

func (t *PropertyType) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		parsed := PropertyType(n)
		if !parsed.Valid() {
			return fmt.Errorf("unknown property type: %d", n)
		}
		*t = parsed
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("property type must be a number or a name: %w", err)
	}
	parsed, err := ParsePropertyType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t *PropertyType) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParsePropertyType(node.Value)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
