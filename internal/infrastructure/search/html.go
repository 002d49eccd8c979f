package search

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// StripHTML returns the visible text of an HTML snippet with whitespace collapsed.
func StripHTML(snippet string) string {
	if !strings.ContainsAny(snippet, "<&") {
		return strings.Join(strings.Fields(snippet), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snippet))
	if err != nil {
		return strings.Join(strings.Fields(snippet), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
