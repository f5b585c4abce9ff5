// Package htmltext derives plain text views of page HTML: the notebook
// snippet, the heading outline and markdown imports.
package htmltext

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

const SnippetLength = 100

var (
	stripPolicy = bluemonday.StripTagsPolicy()
	// block boundaries become line breaks so adjacent paragraphs don't fuse.
	blockBoundary = regexp.MustCompile(`(?i)(<br\s*/?>|</(p|div|li|h[1-6]|blockquote|pre|tr)>)`)
	markdown      = goldmark.New()
)

// PlainText strips all markup, decodes entities and collapses whitespace.
func PlainText(content string) string {
	if content == "" {
		return ""
	}
	text := stripPolicy.Sanitize(blockBoundary.ReplaceAllString(content, "$1\n"))
	text = html.UnescapeString(text)
	return strings.Join(strings.Fields(text), " ")
}

// Snippet is the preview stored on the notebook, at most SnippetLength runes.
func Snippet(content string) string {
	text := PlainText(content)
	if utf8.RuneCountInString(text) <= SnippetLength {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:SnippetLength]))
}

type Heading struct {
	ID    string `json:"id,omitempty"`
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// Outline lists the non-empty headings of content in document order.
func Outline(content string) ([]Heading, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	out := make([]Heading, 0)
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, sel *goquery.Selection) {
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if text == "" {
			return
		}
		level := int(goquery.NodeName(sel)[1] - '0')
		id, ok := sel.Attr("id")
		if !ok {
			// block editors tag the enclosing block rather than the heading
			id, _ = sel.Closest("[data-id]").Attr("data-id")
		}
		out = append(out, Heading{ID: id, Level: level, Text: text})
	})
	return out, nil
}

// FromMarkdown renders markdown source to the HTML stored in pages.
func FromMarkdown(src []byte) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert(src, &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return buf.String(), nil
}
