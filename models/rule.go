package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultTitleProperty is the property used as a block's primary label when
// a rule does not name one.
const DefaultTitleProperty = "title"

// Rule pairs a URL pattern with an extraction script and target tag metadata.
type Rule struct {
	Name          string      `json:"name" yaml:"name"`
	Enabled       bool        `json:"enabled" yaml:"enabled"`
	URLPattern    string      `json:"urlPattern" yaml:"urlPattern"`
	TagName       string      `json:"tagName" yaml:"tagName"`
	DownloadCover bool        `json:"downloadCover" yaml:"downloadCover"`
	Script        ScriptLines `json:"script,omitempty" yaml:"script,omitempty"`
	Fields        []FieldSpec `json:"fields,omitempty" yaml:"fields,omitempty"`
	TitleProperty string      `json:"titleProperty,omitempty" yaml:"titleProperty,omitempty"`
}

// Title returns the name of the rule's primary label property.
func (r Rule) Title() string {
	if r.TitleProperty == "" {
		return DefaultTitleProperty
	}
	return r.TitleProperty
}

// ScriptLines holds an extraction script as source lines. A single string
// is accepted too and kept as one line.
type ScriptLines []string

// Source joins the lines into a function body.
func (s ScriptLines) Source() string {
	return strings.Join(s, "\n")
}

// IsEmpty reports whether the script has no code at all.
func (s ScriptLines) IsEmpty() bool {
	return strings.TrimSpace(s.Source()) == ""
}

func (s *ScriptLines) UnmarshalJSON(data []byte) error {
	var lines []string
	if err := json.Unmarshal(data, &lines); err == nil {
		*s = lines
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("script must be a string or a list of strings: %w", err)
	}
	*s = ScriptLines{single}
	return nil
}

func (s *ScriptLines) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = ScriptLines{node.Value}
		return nil
	case yaml.SequenceNode:
		var lines []string
		if err := node.Decode(&lines); err != nil {
			return err
		}
		*s = lines
		return nil
	default:
		return fmt.Errorf("line %d: script must be a string or a list of strings", node.Line)
	}
}

// FieldSpec declares one property of a declarative (script-free) rule.
type FieldSpec struct {
	Name     string       `json:"name" yaml:"name"`
	Type     PropertyType `json:"type" yaml:"type"`
	Selector string       `json:"selector,omitempty" yaml:"selector,omitempty"`
	// Attr selects what is read from matched elements: "" or "text" for the
	// text content, "html" for inner HTML, "outer" for outer HTML, anything
	// else names an attribute.
	Attr    string   `json:"attr,omitempty" yaml:"attr,omitempty"`
	From    string   `json:"from,omitempty" yaml:"from,omitempty"`
	All     bool     `json:"all,omitempty" yaml:"all,omitempty"`
	SubType string   `json:"subType,omitempty" yaml:"subType,omitempty"`
	Filters []string `json:"filters,omitempty" yaml:"filters,omitempty"`
}
