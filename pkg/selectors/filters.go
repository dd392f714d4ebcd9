package selectors

import (
	"fmt"
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/dtnitsch/linkmeta/pkg/locator"
	"github.com/dtnitsch/linkmeta/pkg/parser"
)

// filter is one parsed step of a field's filter chain.
type filter struct {
	name string
	arg  string
	re   *regexp.Regexp
}

// parseFilter accepts "name" or "name:arg".
func parseFilter(spec string) (filter, error) {
	name, arg, _ := strings.Cut(spec, ":")
	f := filter{name: strings.TrimSpace(name), arg: arg}

	switch f.name {
	case "trim", "collapse", "clean_url", "absolute", "markdown", "language", "first", "split":
	case "join", "prefix", "after", "before":
		if arg == "" {
			return filter{}, fmt.Errorf("filter %q needs an argument", f.name)
		}
	case "replace":
		if !strings.Contains(arg, "=>") {
			return filter{}, fmt.Errorf("filter replace needs old=>new, got %q", arg)
		}
	case "regex":
		re, err := regexp.Compile(arg)
		if err != nil {
			return filter{}, fmt.Errorf("filter regex: %w", err)
		}
		f.re = re
	default:
		return filter{}, fmt.Errorf("unknown filter %q", f.name)
	}
	return f, nil
}

func (f filter) apply(ev *evaluation, values []string) ([]string, error) {
	switch f.name {
	case "first":
		if len(values) > 1 {
			return values[:1], nil
		}
		return values, nil
	case "join":
		if len(values) == 0 {
			return values, nil
		}
		return []string{strings.Join(values, f.arg)}, nil
	case "split":
		var out []string
		for _, v := range values {
			if f.arg == "" {
				out = append(out, strings.Fields(v)...)
				continue
			}
			for _, part := range strings.Split(v, f.arg) {
				out = append(out, strings.TrimSpace(part))
			}
		}
		return out, nil
	case "regex":
		var out []string
		for _, v := range values {
			m := f.re.FindStringSubmatch(v)
			switch {
			case m == nil:
			case len(m) > 1:
				out = append(out, m[1])
			default:
				out = append(out, m[0])
			}
		}
		return out, nil
	}

	out := make([]string, 0, len(values))
	for _, v := range values {
		mapped, err := f.mapOne(ev, v)
		if err != nil {
			return nil, err
		}
		out = append(out, mapped)
	}
	return out, nil
}

func (f filter) mapOne(ev *evaluation, v string) (string, error) {
	switch f.name {
	case "trim":
		return strings.TrimSpace(v), nil
	case "collapse":
		return parser.NormalizeText(v), nil
	case "clean_url":
		return locator.CleanURL(strings.TrimSpace(v)), nil
	case "absolute":
		return parser.ResolveURL(ev.doc.URL, strings.TrimSpace(v)), nil
	case "prefix":
		return f.arg + v, nil
	case "after":
		if _, rest, ok := strings.Cut(v, f.arg); ok {
			return rest, nil
		}
		return "", nil
	case "before":
		before, _, _ := strings.Cut(v, f.arg)
		return before, nil
	case "replace":
		oldStr, newStr, _ := strings.Cut(f.arg, "=>")
		return strings.ReplaceAll(v, oldStr, newStr), nil
	case "markdown":
		md, err := htmltomarkdown.ConvertString(v)
		if err != nil {
			return "", fmt.Errorf("converting HTML to markdown: %w", err)
		}
		return md, nil
	case "language":
		lang, ok := ev.e.languageDetector().DetectLanguageOf(v)
		if !ok {
			return "", nil
		}
		return strings.ToLower(lang.IsoCode639_1().String()), nil
	}
	return v, nil
}
