// Package selectors evaluates declarative rules: each field maps a CSS
// selector (or a page-level source) through a chain of string filters to a
// typed property. Nothing in a rule is executed as code.
package selectors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/dtnitsch/linkmeta/models"
	"github.com/dtnitsch/linkmeta/pkg/fetcher"
	"github.com/dtnitsch/linkmeta/pkg/parser"
	"github.com/go-shiori/go-readability"
	"github.com/pemistahl/lingua-go"
)

const (
	sourceURL     = "url"
	articlePrefix = "article."
)

var articleKeys = map[string]func(a readability.Article) string{
	"title":    func(a readability.Article) string { return a.Title },
	"byline":   func(a readability.Article) string { return a.Byline },
	"excerpt":  func(a readability.Article) string { return a.Excerpt },
	"siteName": func(a readability.Article) string { return a.SiteName },
	"image":    func(a readability.Article) string { return a.Image },
	"favicon":  func(a readability.Article) string { return a.Favicon },
	"publishedTime": func(a readability.Article) string {
		if a.PublishedTime == nil {
			return ""
		}
		return a.PublishedTime.Format("2006-01-02T15:04:05Z07:00")
	},
	"content": func(a readability.Article) string { return a.Content },
}

// Evaluator runs declarative rules. It is safe for concurrent use.
type Evaluator struct {
	logger *slog.Logger

	detectorOnce sync.Once
	detector     lingua.LanguageDetector
}

func New(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{logger: logger}
}

// Validate checks selectors, sources and filters of every field.
func (e *Evaluator) Validate(rule models.Rule) error {
	var errs []error
	for i, f := range rule.Fields {
		if err := validateField(f); err != nil {
			errs = append(errs, fmt.Errorf("field %d (%s): %w", i, f.Name, err))
		}
	}
	return errors.Join(errs...)
}

func validateField(f models.FieldSpec) error {
	if f.Name == "" {
		return errors.New("missing name")
	}
	if !f.Type.Valid() {
		return fmt.Errorf("unknown type %d", int(f.Type))
	}
	switch {
	case f.Selector != "" && f.From != "":
		return errors.New("selector and from are mutually exclusive")
	case f.Selector != "":
		if _, err := cascadia.Compile(f.Selector); err != nil {
			return fmt.Errorf("invalid selector %q: %w", f.Selector, err)
		}
	case f.From == sourceURL:
	case strings.HasPrefix(f.From, articlePrefix):
		if _, ok := articleKeys[strings.TrimPrefix(f.From, articlePrefix)]; !ok {
			return fmt.Errorf("unknown article key in %q", f.From)
		}
	case f.From != "":
		return fmt.Errorf("unknown source %q", f.From)
	default:
		return errors.New("one of selector or from is required")
	}
	for _, spec := range f.Filters {
		if _, err := parseFilter(spec); err != nil {
			return err
		}
	}
	return nil
}

// Run evaluates the rule's fields against doc. baseMeta entries whose names
// the rule does not define are appended. Failures are *models.ScriptError.
func (e *Evaluator) Run(ctx context.Context, rule models.Rule, doc *fetcher.Document, baseMeta []models.Property) ([]models.Property, error) {
	if err := e.Validate(rule); err != nil {
		return nil, &models.ScriptError{Rule: rule.Name, Err: err}
	}

	eval := &evaluation{e: e, doc: doc}
	props := make([]models.Property, 0, len(rule.Fields)+len(baseMeta))
	defined := make(map[string]bool, len(rule.Fields))

	for _, f := range rule.Fields {
		if err := ctx.Err(); err != nil {
			return nil, &models.ScriptError{Rule: rule.Name, Err: err}
		}
		defined[f.Name] = true

		values, err := eval.read(f)
		if err != nil {
			return nil, &models.ScriptError{Rule: rule.Name, Err: fmt.Errorf("field %s: %w", f.Name, err)}
		}
		for _, spec := range f.Filters {
			filter, _ := parseFilter(spec)
			values, err = filter.apply(eval, values)
			if err != nil {
				return nil, &models.ScriptError{Rule: rule.Name, Err: fmt.Errorf("field %s: filter %q: %w", f.Name, spec, err)}
			}
		}
		values = nonEmpty(values)
		if len(values) == 0 {
			e.logger.Debug("field produced no value", "rule", rule.Name, "field", f.Name)
			continue
		}

		prop := models.Property{Name: f.Name, Type: f.Type}
		switch {
		case f.Type == models.PropertyTypeTextChoices:
			prop.Value = values
		case f.All:
			prop.Value = strings.Join(values, "\n")
		default:
			prop.Value = values[0]
		}
		if f.SubType != "" {
			prop.TypeArgs = &models.TypeArgs{SubType: f.SubType}
		}
		props = append(props, prop)
	}

	for _, p := range baseMeta {
		if !defined[p.Name] {
			props = append(props, p)
		}
	}
	return props, nil
}

// evaluation holds per-run lazily computed page state.
type evaluation struct {
	e   *Evaluator
	doc *fetcher.Document

	article    *readability.Article
	articleErr error
}

func (ev *evaluation) read(f models.FieldSpec) ([]string, error) {
	switch {
	case f.From == sourceURL:
		return []string{ev.doc.URL}, nil
	case strings.HasPrefix(f.From, articlePrefix):
		article, err := ev.readArticle()
		if err != nil {
			return nil, err
		}
		return []string{articleKeys[strings.TrimPrefix(f.From, articlePrefix)](*article)}, nil
	}

	matched := ev.doc.Doc.Find(f.Selector)
	if !f.All {
		matched = matched.First()
	}
	var values []string
	matched.Each(func(_ int, s *goquery.Selection) {
		values = append(values, readSelection(s, f.Attr))
	})
	return values, nil
}

func (ev *evaluation) readArticle() (*readability.Article, error) {
	if ev.article == nil && ev.articleErr == nil {
		html := ev.doc.HTML
		if html == "" {
			html, _ = ev.doc.Doc.Html()
		}
		article, err := parser.Article(html, ev.doc.URL)
		if err != nil {
			ev.articleErr = fmt.Errorf("failed to run readability: %w", err)
		} else {
			ev.article = &article
		}
	}
	return ev.article, ev.articleErr
}

func readSelection(s *goquery.Selection, attr string) string {
	switch attr {
	case "", "text":
		return s.Text()
	case "html":
		h, _ := s.Html()
		return h
	case "outer":
		h, _ := goquery.OuterHtml(s)
		return h
	default:
		return s.AttrOr(attr, "")
	}
}

func (e *Evaluator) languageDetector() lingua.LanguageDetector {
	e.detectorOnce.Do(func() {
		e.detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(lingua.Chinese, lingua.English, lingua.Japanese, lingua.Korean,
				lingua.French, lingua.German, lingua.Spanish, lingua.Russian).
			Build()
	})
	return e.detector
}

func nonEmpty(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
