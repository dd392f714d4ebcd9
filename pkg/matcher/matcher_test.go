package matcher

import (
	"testing"

	"github.com/dtnitsch/linkmeta/models"
)

func testRules() []models.Rule {
	return []models.Rule{
		{Name: "Douban Book", Enabled: true, URLPattern: `/^https?:\/\/book\.douban\.com\/subject\/\d+/i`, TagName: "Book"},
		{Name: "Disabled", Enabled: false, URLPattern: "example", TagName: "Nope"},
		{Name: "Generic", Enabled: true, URLPattern: ".*", TagName: "Link"},
	}
}

func TestCompile(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		input   string
		want    bool
		wantErr bool
	}{
		{"bare pattern is case-insensitive", `douban\.com`, "https://BOOK.DOUBAN.COM/x", true, false},
		{"literal without i is case-sensitive", `/douban/`, "https://DOUBAN.com", false, false},
		{"literal with i", `/douban/i`, "https://DOUBAN.com", true, false},
		{"literal with ignored g flag", `/douban/gi`, "https://douban.com", true, false},
		{"unterminated literal", `/douban`, "", false, true},
		{"unknown flag", `/douban/x`, "", false, true},
		{"invalid body", `(unclosed`, "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re, err := Compile(tt.pattern)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Compile(%q) error = %v, wantErr %v", tt.pattern, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got := re.MatchString(tt.input); got != tt.want {
				t.Errorf("Compile(%q).MatchString(%q) = %v, want %v", tt.pattern, tt.input, got, tt.want)
			}
		})
	}
}

func TestMatch_DoubanBeforeGeneric(t *testing.T) {
	m := New()
	rule, ok := m.Match("https://book.douban.com/subject/1234567/", testRules())
	if !ok {
		t.Fatal("Match() found no rule")
	}
	if rule.Name != "Douban Book" {
		t.Errorf("Match() = %q, want %q", rule.Name, "Douban Book")
	}
}

func TestMatch_SkipsDisabled(t *testing.T) {
	m := New()
	rule, ok := m.Match("https://example.com/", testRules())
	if !ok {
		t.Fatal("Match() found no rule")
	}
	if rule.Name != "Generic" {
		t.Errorf("Match() = %q, want %q", rule.Name, "Generic")
	}
}

func TestMatch_FallbackCoversEveryURL(t *testing.T) {
	m := New()
	urls := []string{
		"https://book.douban.com/subject/1/",
		"http://localhost:8080/",
		"https://例子.测试/路径",
		"",
		"not even a url",
	}
	for _, u := range urls {
		if _, ok := m.Match(u, testRules()); !ok {
			t.Errorf("Match(%q) found no rule despite catch-all", u)
		}
	}
}

func TestMatch_Deterministic(t *testing.T) {
	m := New()
	rules := testRules()
	first, _ := m.Match("https://book.douban.com/subject/42/", rules)
	for i := 0; i < 10; i++ {
		got, _ := m.Match("https://book.douban.com/subject/42/", rules)
		if got.Name != first.Name {
			t.Fatalf("Match() iteration %d = %q, want %q", i, got.Name, first.Name)
		}
	}
}

func TestMatch_MalformedPatternSkipped(t *testing.T) {
	m := New()
	rules := []models.Rule{
		{Name: "Broken", Enabled: true, URLPattern: "/book\\.douban", TagName: "Book"},
		{Name: "Generic", Enabled: true, URLPattern: ".*", TagName: "Link"},
	}
	rule, ok := m.Match("https://book.douban.com/subject/1/", rules)
	if !ok || rule.Name != "Generic" {
		t.Errorf("Match() = %q, %v, want Generic, true", rule.Name, ok)
	}
}

func TestMatch_NoRule(t *testing.T) {
	m := New()
	rules := []models.Rule{{Name: "Only", Enabled: true, URLPattern: "douban", TagName: "Book"}}
	if _, ok := m.Match("https://example.com", rules); ok {
		t.Error("Match() found a rule, want none")
	}
}

func TestValidate(t *testing.T) {
	m := New()
	rules := []models.Rule{
		{Name: "Broken", Enabled: true, URLPattern: "/x", TagName: "A"},
		{Name: "NoTag", Enabled: true, URLPattern: "x"},
		{Name: "Generic", Enabled: true, URLPattern: ".*", TagName: "Link"},
		{Name: "Late", Enabled: true, URLPattern: "late", TagName: "Late"},
		{Name: "Late", Enabled: false, URLPattern: "late", TagName: "Late"},
	}

	problems := m.Validate(rules)
	want := map[string]bool{
		"Broken":  true,
		"NoTag":   true,
		"Late":    true,
		"Generic": false,
	}
	got := make(map[string]bool)
	for _, p := range problems {
		got[p.Rule] = true
	}
	for name, expect := range want {
		if got[name] != expect {
			t.Errorf("Validate() problem for %q = %v, want %v (problems: %v)", name, got[name], expect, problems)
		}
	}
}

func TestFind(t *testing.T) {
	if _, ok := Find("Disabled", testRules()); !ok {
		t.Error("Find() did not return disabled rule")
	}
	if _, ok := Find("Missing", testRules()); ok {
		t.Error("Find() returned a rule for unknown name")
	}
}
