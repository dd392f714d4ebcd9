// Package locator finds and validates the URL a block refers to.
package locator

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/dtnitsch/linkmeta/models"
)

var (
	textURLPattern      = regexp.MustCompile(`https?://[^\s]+`)
	markdownLinkPattern = regexp.MustCompile(`^\[.*?\]\((https?://[^\)]+)\)$`)
)

// FindURL returns the first URL in a block's content. An explicit link item
// wins over a URL embedded in plain text; "" means none was found.
func FindURL(content []models.InlineContent) string {
	for _, item := range content {
		if u := strings.TrimSpace(item.URL); u != "" {
			return u
		}
	}
	for _, item := range content {
		if m := textURLPattern.FindString(item.V); m != "" {
			return SanitizeURL(m)
		}
	}
	return ""
}

// SanitizeURL performs basic cleanup on URLs to handle common copy-paste issues.
// Removes whitespace, trailing punctuation and markdown artifacts.
func SanitizeURL(rawURL string) string {
	cleaned := strings.TrimSpace(rawURL)

	// [text](url) -> url
	if matches := markdownLinkPattern.FindStringSubmatch(cleaned); len(matches) > 1 {
		cleaned = matches[1]
	}

	trailingChars := []string{",", ".", ")", "}", "]", "\"", "'", ">", ";", "，", "。", "）", "》"}
	for changed := true; changed; {
		changed = false
		for _, char := range trailingChars {
			if strings.HasSuffix(cleaned, char) {
				cleaned = strings.TrimSuffix(cleaned, char)
				changed = true
			}
		}
	}

	leadingChars := []string{"(", "[", "<", "\"", "'"}
	for _, char := range leadingChars {
		cleaned = strings.TrimPrefix(cleaned, char)
	}

	return strings.TrimSpace(cleaned)
}

// ValidateURL checks that rawURL is a well-formed absolute http(s) URL and
// returns it parsed. Errors wrap models.ErrInvalidURL.
func ValidateURL(rawURL string) (*url.URL, error) {
	if rawURL == "" {
		return nil, models.InvalidURLError(rawURL, "")
	}
	if strings.Contains(rawURL, " ") {
		return nil, models.InvalidURLError(rawURL, "contains spaces")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, models.InvalidURLError(rawURL, err.Error())
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, models.InvalidURLError(rawURL, "unsupported scheme")
	}
	if parsed.Hostname() == "" {
		return nil, models.InvalidURLError(rawURL, "missing host")
	}
	if strings.ContainsAny(parsed.Hostname(), "{}[]<>\"'") {
		return nil, models.InvalidURLError(rawURL, "malformed host")
	}
	return parsed, nil
}

// CleanURL strips the query string and fragment from rawURL. Unparseable
// input is cut at the first '?' or '#'.
func CleanURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
			return rawURL[:i]
		}
		return rawURL
	}
	parsed.RawQuery = ""
	parsed.ForceQuery = false
	parsed.Fragment = ""
	parsed.RawFragment = ""
	return parsed.String()
}
