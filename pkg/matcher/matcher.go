// Package matcher selects the rule responsible for a URL.
package matcher

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/dtnitsch/linkmeta/models"
)

// Compile turns a rule urlPattern into a regexp. A pattern delimited as
// "/body/flags" uses the embedded flags; anything else is matched
// case-insensitively.
func Compile(pattern string) (*regexp.Regexp, error) {
	if !strings.HasPrefix(pattern, "/") {
		return regexp.Compile("(?i)" + pattern)
	}

	end := strings.LastIndex(pattern, "/")
	if end == 0 {
		return nil, fmt.Errorf("unterminated pattern literal %q", pattern)
	}
	body, flags := pattern[1:end], pattern[end+1:]

	var inline strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			if !strings.ContainsRune(inline.String(), f) {
				inline.WriteRune(f)
			}
		case 'g', 'u', 'y', 'd':
			// no meaning for a single match test
		default:
			return nil, fmt.Errorf("unsupported flag %q in pattern %q", f, pattern)
		}
	}
	if inline.Len() > 0 {
		body = "(?" + inline.String() + ")" + body
	}
	return regexp.Compile(body)
}

type compiled struct {
	re  *regexp.Regexp
	err error
}

// Matcher caches compiled patterns. The zero value is ready to use and safe
// for concurrent use.
type Matcher struct {
	mu    sync.RWMutex
	cache map[string]compiled
}

// New returns an empty Matcher.
func New() *Matcher {
	return &Matcher{}
}

func (m *Matcher) compile(pattern string) (*regexp.Regexp, error) {
	m.mu.RLock()
	c, ok := m.cache[pattern]
	m.mu.RUnlock()
	if ok {
		return c.re, c.err
	}

	re, err := Compile(pattern)
	m.mu.Lock()
	if m.cache == nil {
		m.cache = make(map[string]compiled)
	}
	m.cache[pattern] = compiled{re: re, err: err}
	m.mu.Unlock()
	return re, err
}

// Match returns the first enabled rule, in list order, whose pattern matches
// rawURL. Rules whose pattern does not compile never match.
func (m *Matcher) Match(rawURL string, rules []models.Rule) (models.Rule, bool) {
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		re, err := m.compile(rule.URLPattern)
		if err != nil {
			continue
		}
		if re.MatchString(rawURL) {
			return rule, true
		}
	}
	return models.Rule{}, false
}

// Find returns the rule named name, enabled or not.
func Find(name string, rules []models.Rule) (models.Rule, bool) {
	for _, rule := range rules {
		if rule.Name == name {
			return rule, true
		}
	}
	return models.Rule{}, false
}

// Problem is a configuration issue found by Validate.
type Problem struct {
	Rule    string
	Message string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: %s", p.Rule, p.Message)
}

// Validate reports rules that can never match or carry no tag. Enabled rules
// after an enabled catch-all are reported as shadowed.
func (m *Matcher) Validate(rules []models.Rule) []Problem {
	var problems []Problem
	seen := make(map[string]bool)
	catchAll := ""

	for _, rule := range rules {
		if seen[rule.Name] {
			problems = append(problems, Problem{Rule: rule.Name, Message: "duplicate rule name"})
		}
		seen[rule.Name] = true

		if _, err := m.compile(rule.URLPattern); err != nil {
			problems = append(problems, Problem{Rule: rule.Name, Message: fmt.Sprintf("pattern does not compile: %v", err)})
			continue
		}
		if rule.TagName == "" {
			problems = append(problems, Problem{Rule: rule.Name, Message: "missing tagName"})
		}
		if !rule.Enabled {
			continue
		}
		if catchAll != "" {
			problems = append(problems, Problem{Rule: rule.Name, Message: fmt.Sprintf("shadowed by catch-all rule %q", catchAll)})
		}
		if isCatchAll(rule.URLPattern) {
			catchAll = rule.Name
		}
	}
	return problems
}

func isCatchAll(pattern string) bool {
	switch strings.TrimSpace(pattern) {
	case ".*", "^.*$", "/.*/", "/.*/i", "":
		return true
	}
	return false
}
