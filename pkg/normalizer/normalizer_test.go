package normalizer

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/dtnitsch/linkmeta/models"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   any
		want float64
	}{
		{"9.4", 9.4},
		{" 191 ", 191},
		{"20.00元", 20},
		{"-3.5e2x", -350},
		{".5", 0.5},
		{"Infinity", math.Inf(1)},
		{float64(7), 7},
		{int64(3), 3},
		{42, 42},
	}
	for _, tt := range tests {
		if got := ParseNumber(tt.in); got != tt.want {
			t.Errorf("ParseNumber(%#v) = %v, want %v", tt.in, got, tt.want)
		}
	}

	for _, in := range []any{"", "abc", "元20", nil, true, []any{1}} {
		if got := ParseNumber(in); !math.IsNaN(got) {
			t.Errorf("ParseNumber(%#v) = %v, want NaN", in, got)
		}
	}
}

func TestParseBoolean(t *testing.T) {
	tests := []struct {
		in   any
		want bool
	}{
		{"true", true},
		{"YES", true},
		{"1", true},
		{"Ok", true},
		{true, true},
		{int64(1), true},
		{"false", false},
		{"y", false},
		{"", false},
		{" yes", false},
		{nil, false},
		{false, false},
	}
	for _, tt := range tests {
		if got := ParseBoolean(tt.in); got != tt.want {
			t.Errorf("ParseBoolean(%#v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestChoices(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []string
	}{
		{"whitespace split", "fiction  nonfiction\tfiction", []string{"fiction", "nonfiction"}},
		{"sequence kept as items", []any{"science fiction", "", "science fiction", "drama"}, []string{"science fiction", "drama"}},
		{"string slice", []string{"a", "b", "a"}, []string{"a", "b"}},
		{"non-string items", []any{int64(1), nil, "1"}, []string{"1"}},
		{"nil", nil, []string{}},
		{"empty string", "   ", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Choices(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Choices(%#v) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestProperty_DateTime(t *testing.T) {
	n := New(time.UTC, nil)

	got := n.Property(models.Property{Name: "published", Type: models.PropertyTypeDateTime, Value: "2012-08-01"})
	want := time.Date(2012, 8, 1, 0, 0, 0, 0, time.UTC)
	if ts, ok := got.Value.(time.Time); !ok || !ts.Equal(want) {
		t.Errorf("value = %#v, want %v", got.Value, want)
	}
	if got.TypeArgs != nil {
		t.Errorf("typeArgs = %#v, want nil", got.TypeArgs)
	}

	cjk := n.Property(models.Property{Name: "published", Type: models.PropertyTypeDateTime, Value: "2012年08月01日"})
	if ts, ok := cjk.Value.(time.Time); !ok || !ts.Equal(want) {
		t.Errorf("CJK value = %#v, want %v", cjk.Value, want)
	}

	bad := n.Property(models.Property{Name: "published", Type: models.PropertyTypeDateTime, Value: "sometime soon"})
	if bad.Value != "sometime soon" {
		t.Errorf("unparseable value = %#v, want original", bad.Value)
	}
	if bad.SubType() != models.SubTypeDateTime {
		t.Errorf("subType = %q, want datetime", bad.SubType())
	}

	kept := n.Property(models.Property{
		Name: "published", Type: models.PropertyTypeDateTime, Value: "??",
		TypeArgs: &models.TypeArgs{SubType: "date"},
	})
	if kept.SubType() != "date" {
		t.Errorf("existing subType overwritten: %q", kept.SubType())
	}
}

func TestProperty_TextChoices(t *testing.T) {
	n := New(nil, nil)
	in := models.Property{
		Name:  "tags",
		Type:  models.PropertyTypeTextChoices,
		Value: "fiction nonfiction fiction",
		TypeArgs: &models.TypeArgs{
			Choices: []models.Choice{{Name: "stale", Color: "red"}},
			Extra:   map[string]any{"order": "asc"},
		},
	}

	got := n.Property(in)
	if !reflect.DeepEqual(got.Value, []string{"fiction", "nonfiction"}) {
		t.Errorf("value = %#v", got.Value)
	}
	wantChoices := []models.Choice{{Name: "fiction"}, {Name: "nonfiction"}}
	if !reflect.DeepEqual(got.TypeArgs.Choices, wantChoices) {
		t.Errorf("choices = %#v, want %#v", got.TypeArgs.Choices, wantChoices)
	}
	if got.SubType() != models.SubTypeMulti {
		t.Errorf("subType = %q, want multi", got.SubType())
	}
	if got.TypeArgs.Extra["order"] != "asc" {
		t.Errorf("extra typeArgs dropped: %#v", got.TypeArgs.Extra)
	}
	if in.TypeArgs.Choices[0].Name != "stale" {
		t.Error("input typeArgs were mutated")
	}

	again := n.Property(got)
	if !reflect.DeepEqual(again, got) {
		t.Errorf("second pass changed property:\n got %#v\nwant %#v", again, got)
	}
}

func TestNormalize(t *testing.T) {
	n := New(time.UTC, nil)
	props := []models.Property{
		{Name: "title", Type: models.PropertyTypeText, Value: "活着"},
		{Name: "rating", Type: models.PropertyTypeNumber, Value: "9.4"},
		{Name: "pages", Type: models.PropertyTypeNumber, Value: "n/a"},
		{Name: "read", Type: models.PropertyTypeBoolean, Value: "yes"},
		{Name: "raw", Type: models.PropertyTypeJSON, Value: map[string]any{"a": 1.0}},
		{Name: "cover", Type: models.PropertyTypeText, Value: "https://x/y.jpg", TypeArgs: &models.TypeArgs{SubType: models.SubTypeImage}},
	}

	out := n.Normalize(props)
	if len(out) != len(props) {
		t.Fatalf("Normalize() returned %d properties, want %d", len(out), len(props))
	}
	if out[0].Value != "活着" {
		t.Errorf("text changed: %#v", out[0].Value)
	}
	if out[1].Value != 9.4 {
		t.Errorf("rating = %#v, want 9.4", out[1].Value)
	}
	if f, _ := out[2].Value.(float64); !math.IsNaN(f) {
		t.Errorf("pages = %#v, want NaN", out[2].Value)
	}
	if out[3].Value != true {
		t.Errorf("read = %#v, want true", out[3].Value)
	}
	if !reflect.DeepEqual(out[4].Value, map[string]any{"a": 1.0}) {
		t.Errorf("JSON value changed: %#v", out[4].Value)
	}
	if out[5].SubType() != models.SubTypeImage {
		t.Errorf("cover subType = %q", out[5].SubType())
	}
	if props[1].Value != "9.4" {
		t.Error("input slice was modified")
	}
}
