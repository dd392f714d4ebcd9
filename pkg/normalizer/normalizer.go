// Package normalizer coerces extracted property values to the runtime shape
// their declared type requires.
package normalizer

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/dtnitsch/linkmeta/models"
)

// truthy is the closed set of strings read as true.
var truthy = map[string]bool{"true": true, "yes": true, "1": true, "ok": true}

// leadingNumber mirrors the prefix a permissive float parser accepts:
// "20.00元" reads as 20, "abc" reads as nothing.
var leadingNumber = regexp.MustCompile(`^[+-]?(Infinity|\d+\.?\d*(?:[eE][+-]?\d+)?|\.\d+(?:[eE][+-]?\d+)?)`)

var cjkDate = strings.NewReplacer("年", "-", "月", "-", "日", "", "号", "")

type Normalizer struct {
	loc    *time.Location
	logger *slog.Logger
}

// New returns a normalizer that interprets zone-less dates in loc
// (UTC when nil).
func New(loc *time.Location, logger *slog.Logger) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{loc: loc, logger: logger}
}

// Normalize returns formatted copies of props. The input is not modified.
func (n *Normalizer) Normalize(props []models.Property) []models.Property {
	out := make([]models.Property, 0, len(props))
	for _, p := range props {
		out = append(out, n.Property(p))
	}
	return out
}

// Property formats a single property by its declared type.
func (n *Normalizer) Property(p models.Property) models.Property {
	p.TypeArgs = p.TypeArgs.Clone()

	switch p.Type {
	case models.PropertyTypeDateTime:
		if t, ok := n.ParseDate(p.Value); ok {
			p.Value = t
			break
		}
		n.logger.Debug("date not parseable, keeping original", "property", p.Name, "value", p.Value)
		if p.SubType() == "" {
			if p.TypeArgs == nil {
				p.TypeArgs = &models.TypeArgs{}
			}
			p.TypeArgs.SubType = models.SubTypeDateTime
		}
	case models.PropertyTypeNumber:
		p.Value = ParseNumber(p.Value)
	case models.PropertyTypeBoolean:
		p.Value = ParseBoolean(p.Value)
	case models.PropertyTypeTextChoices:
		values := Choices(p.Value)
		p.Value = values

		args := p.TypeArgs
		if args == nil {
			args = &models.TypeArgs{}
		}
		args.SubType = models.SubTypeMulti
		args.Choices = make([]models.Choice, 0, len(values))
		for _, v := range values {
			args.Choices = append(args.Choices, models.Choice{Name: v, Color: ""})
		}
		p.TypeArgs = args
	}

	if p.TypeArgs.IsEmpty() {
		p.TypeArgs = nil
	}
	return p
}

// ParseDate accepts time values and any string layout dateparse knows,
// including CJK year/month/day markers.
func (n *Normalizer) ParseDate(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		if parsed, err := dateparse.ParseIn(s, n.loc); err == nil {
			return parsed, true
		}
		if alt := strings.TrimSuffix(cjkDate.Replace(s), "-"); alt != s {
			if parsed, err := dateparse.ParseIn(alt, n.loc); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

// ParseNumber returns v as float64. Strings are read by their leading
// numeric prefix; anything unreadable is NaN.
func ParseNumber(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	case string:
		return parseLeadingFloat(x)
	case fmt.Stringer:
		return parseLeadingFloat(x.String())
	}
	return math.NaN()
}

func parseLeadingFloat(s string) float64 {
	m := leadingNumber.FindString(strings.TrimSpace(s))
	if m == "" {
		return math.NaN()
	}
	switch strings.TrimLeft(m, "+-") {
	case "Infinity":
		if strings.HasPrefix(m, "-") {
			return math.Inf(-1)
		}
		return math.Inf(1)
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// ParseBoolean reports whether v reads as one of the recognized true words.
func ParseBoolean(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case nil:
		return false
	case string:
		return truthy[strings.ToLower(x)]
	}
	return truthy[strings.ToLower(fmt.Sprint(v))]
}

// Choices returns the ordered unique non-empty strings of v. A string is
// split on whitespace; a sequence is taken item by item.
func Choices(v any) []string {
	var raw []string
	switch x := v.(type) {
	case nil:
	case string:
		raw = strings.Fields(x)
	case []string:
		raw = x
	case []any:
		for _, item := range x {
			if item == nil {
				continue
			}
			if s, ok := item.(string); ok {
				raw = append(raw, s)
				continue
			}
			raw = append(raw, fmt.Sprint(item))
		}
	default:
		raw = strings.Fields(fmt.Sprint(x))
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
