package models

import "strings"

// Inline content kinds.
const (
	ContentText = "t"
	ContentLink = "a"
)

// InlineContent is one fragment of a block's content.
type InlineContent struct {
	T   string `json:"t"`
	V   string `json:"v,omitempty"`
	URL string `json:"url,omitempty"`
}

// TextContent builds a content sequence holding a single text fragment.
func TextContent(text string) []InlineContent {
	return []InlineContent{{T: ContentText, V: text}}
}

// Block is a host note block. For a tag block, Properties is the tag schema.
type Block struct {
	ID         string          `json:"id"`
	Content    []InlineContent `json:"content"`
	Properties []Property      `json:"properties,omitempty"`
	Tags       []TagRef        `json:"tags,omitempty"`
}

// Text concatenates the textual value of every content fragment.
func (b *Block) Text() string {
	var sb strings.Builder
	for _, c := range b.Content {
		sb.WriteString(c.V)
	}
	return sb.String()
}

// TagRef is a tag applied to a block together with the values set for it.
type TagRef struct {
	TagBlockID string     `json:"tagBlockId"`
	Name       string     `json:"name"`
	Data       []Property `json:"data,omitempty"`
}

// ExtractionResult is produced once per extraction invocation.
type ExtractionResult struct {
	URL      string     `json:"url"`
	Metadata []Property `json:"metadata"`
	Rule     Rule       `json:"rule"`
}

// NotifyLevel is the severity of a user-facing notification.
type NotifyLevel string

const (
	NotifyInfo    NotifyLevel = "info"
	NotifySuccess NotifyLevel = "success"
	NotifyWarn    NotifyLevel = "warn"
	NotifyError   NotifyLevel = "error"
)
