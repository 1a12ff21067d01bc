package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/radarworks/upwork-radar/internal/nuxt"
)

// Page is a parsed snapshot handed to strategies. The DOM and the embedded
// data graph are decoded once and shared.
type Page struct {
	URL  string
	HTML string

	doc      *goquery.Document
	graph    []any
	hasGraph bool
}

// NewPage parses raw HTML into a strategy-ready page.
func NewPage(html, url string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}
	graph, ok := nuxt.Parse(html)
	return &Page{
		URL:      url,
		HTML:     html,
		doc:      doc,
		graph:    graph,
		hasGraph: ok,
	}, nil
}

// Strategy is one self-contained extraction method. Attempt returns false
// when the page representation it reads is absent, so new page shapes can be
// registered without touching existing strategies.
type Strategy interface {
	Name() string
	Attempt(page *Page) (Partial, bool)
}

// selectFirst tries selector candidates in order and returns the normalized
// text of the first match.
func selectFirst(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if text := cleanText(node.Text()); text != "" {
				return text
			}
		}
	}
	return ""
}
