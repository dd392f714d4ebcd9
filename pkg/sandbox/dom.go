package sandbox

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/dop251/goja"
	"github.com/dtnitsch/linkmeta/pkg/parser"
	"golang.org/x/net/html"
)

// domBridge exposes a read-only DOM subset of a goquery document to a
// script runtime. Elements are plain JS objects; lists are real arrays.
type domBridge struct {
	vm      *goja.Runtime
	pageURL string
}

func (b *domBridge) document(doc *goquery.Document) *goja.Object {
	root := doc.Selection
	obj := b.vm.NewObject()

	b.method(obj, "querySelector", func(call goja.FunctionCall) goja.Value {
		return b.element(b.find(root, call.Argument(0)).First())
	})
	b.method(obj, "querySelectorAll", func(call goja.FunctionCall) goja.Value {
		return b.elements(b.find(root, call.Argument(0)))
	})
	b.method(obj, "getElementById", func(call goja.FunctionCall) goja.Value {
		want := call.Argument(0).String()
		match := root.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			id, _ := s.Attr("id")
			return id == want
		})
		return b.element(match.First())
	})

	b.getter(obj, "title", func() goja.Value {
		return b.vm.ToValue(parser.NormalizeText(root.Find("title").First().Text()))
	})
	b.getter(obj, "URL", func() goja.Value { return b.vm.ToValue(b.pageURL) })
	b.getter(obj, "documentElement", func() goja.Value { return b.element(root.Find("html").First()) })
	b.getter(obj, "head", func() goja.Value { return b.element(root.Find("head").First()) })
	b.getter(obj, "body", func() goja.Value { return b.element(root.Find("body").First()) })
	return obj
}

func (b *domBridge) element(sel *goquery.Selection) goja.Value {
	if sel.Length() == 0 {
		return goja.Null()
	}
	sel = sel.First()
	obj := b.vm.NewObject()

	b.method(obj, "querySelector", func(call goja.FunctionCall) goja.Value {
		return b.element(b.find(sel, call.Argument(0)).First())
	})
	b.method(obj, "querySelectorAll", func(call goja.FunctionCall) goja.Value {
		return b.elements(b.find(sel, call.Argument(0)))
	})
	b.method(obj, "closest", func(call goja.FunctionCall) goja.Value {
		return b.element(sel.ClosestMatcher(b.compile(call.Argument(0))))
	})
	b.method(obj, "getAttribute", func(call goja.FunctionCall) goja.Value {
		if v, ok := sel.Attr(call.Argument(0).String()); ok {
			return b.vm.ToValue(v)
		}
		return goja.Null()
	})
	b.method(obj, "hasAttribute", func(call goja.FunctionCall) goja.Value {
		_, ok := sel.Attr(call.Argument(0).String())
		return b.vm.ToValue(ok)
	})

	b.getter(obj, "textContent", func() goja.Value { return b.vm.ToValue(sel.Text()) })
	b.getter(obj, "innerText", func() goja.Value { return b.vm.ToValue(innerText(sel)) })
	b.getter(obj, "innerHTML", func() goja.Value {
		h, _ := sel.Html()
		return b.vm.ToValue(h)
	})
	b.getter(obj, "outerHTML", func() goja.Value {
		h, _ := goquery.OuterHtml(sel)
		return b.vm.ToValue(h)
	})
	b.getter(obj, "tagName", func() goja.Value { return b.vm.ToValue(strings.ToUpper(goquery.NodeName(sel))) })
	b.getter(obj, "id", func() goja.Value { return b.vm.ToValue(sel.AttrOr("id", "")) })
	b.getter(obj, "className", func() goja.Value { return b.vm.ToValue(sel.AttrOr("class", "")) })
	b.getter(obj, "href", func() goja.Value { return b.resolvedAttr(sel, "href") })
	b.getter(obj, "src", func() goja.Value { return b.resolvedAttr(sel, "src") })
	b.getter(obj, "parentElement", func() goja.Value { return b.element(sel.Parent()) })
	b.getter(obj, "children", func() goja.Value { return b.elements(sel.Children()) })
	b.getter(obj, "nextElementSibling", func() goja.Value { return b.element(sel.Next()) })
	b.getter(obj, "previousElementSibling", func() goja.Value { return b.element(sel.Prev()) })
	return obj
}

func (b *domBridge) elements(sel *goquery.Selection) goja.Value {
	items := make([]interface{}, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		items = append(items, b.element(s))
	})
	return b.vm.NewArray(items...)
}

func (b *domBridge) resolvedAttr(sel *goquery.Selection, name string) goja.Value {
	v, ok := sel.Attr(name)
	if !ok {
		return b.vm.ToValue("")
	}
	return b.vm.ToValue(parser.ResolveURL(b.pageURL, strings.TrimSpace(v)))
}

func (b *domBridge) find(sel *goquery.Selection, selector goja.Value) *goquery.Selection {
	return sel.FindMatcher(b.compile(selector))
}

// compile throws a script-visible error for selectors that do not parse.
func (b *domBridge) compile(selector goja.Value) cascadia.Selector {
	s := selector.String()
	compiled, err := cascadia.Compile(s)
	if err != nil {
		panic(b.vm.NewTypeError("'%s' is not a valid selector: %v", s, err))
	}
	return compiled
}

func (b *domBridge) method(obj *goja.Object, name string, fn func(goja.FunctionCall) goja.Value) {
	_ = obj.Set(name, fn)
}

func (b *domBridge) getter(obj *goja.Object, name string, fn func() goja.Value) {
	_ = obj.DefineAccessorProperty(name, b.vm.ToValue(func(goja.FunctionCall) goja.Value { return fn() }), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
}

var whitespace = regexp.MustCompile(`\s+`)

var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "dd": true,
	"div": true, "dl": true, "dt": true, "fieldset": true, "figure": true, "footer": true,
	"form": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "main": true, "nav": true, "ol": true,
	"p": true, "pre": true, "section": true, "table": true, "tr": true, "ul": true,
}

// innerText approximates the rendered text: <br> and block boundaries become
// line breaks, other whitespace collapses, blank lines are dropped.
func innerText(sel *goquery.Selection) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(whitespace.ReplaceAllString(n.Data, " "))
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			case "br":
				sb.WriteString("\n")
				return
			}
		}
		block := n.Type == html.ElementNode && blockElements[n.Data]
		if block {
			sb.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			sb.WriteString("\n")
		}
	}
	for _, n := range sel.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	var lines []string
	for _, line := range strings.Split(sb.String(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
