package parser

import (
	"bufio"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dtnitsch/linkmeta/models"
	"github.com/dtnitsch/linkmeta/pkg/locator"
	"github.com/go-shiori/go-readability"
)

// BaseMeta derives the generic link, title and cover properties every rule
// receives, from standard meta tags.
func BaseMeta(doc *goquery.Document, pageURL string) []models.Property {
	title := metaContent(doc, `meta[property="og:title"]`)
	if title == "" {
		title = NormalizeText(doc.Find("title").First().Text())
	}

	cover := metaContent(doc, `meta[property="og:image"]`)
	if cover == "" {
		cover = metaContent(doc, `meta[name="og:image"]`)
	}
	if cover == "" {
		if href, ok := doc.Find(`link[rel="icon"]`).First().Attr("href"); ok {
			cover = ResolveURL(pageURL, strings.TrimSpace(href))
		}
	}

	return []models.Property{
		{Name: "link", Type: models.PropertyTypeText, Value: locator.CleanURL(pageURL)},
		{Name: "title", Type: models.PropertyTypeText, Value: title},
		{Name: "cover", Type: models.PropertyTypeText, Value: cover, TypeArgs: &models.TypeArgs{SubType: models.SubTypeImage}},
	}
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

// ResolveURL resolves ref against base. Unresolvable input comes back as is.
func ResolveURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

// Article runs go-readability over a page and returns its article metadata.
func Article(html, pageURL string) (readability.Article, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return readability.Article{}, err
	}
	rp := readability.NewParser()
	return rp.Parse(strings.NewReader(html), parsedURL)
}

// NormalizeText cleans up a string by trimming space and removing excess newlines.
func NormalizeText(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.Join(strings.Fields(scanner.Text()), " ")
		if line != "" {
			b.WriteString(line)
			b.WriteString(" ")
		}
	}
	return strings.TrimSpace(b.String())
}
