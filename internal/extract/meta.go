package extract

import (
	"github.com/radarworks/upwork-radar/internal/listing"
)

// metaStrategy reads standard page-discovery metadata. Lowest precedence;
// the last resort when neither the graph nor the DOM yielded a field.
type metaStrategy struct{}

func (metaStrategy) Name() string { return "meta" }

func (metaStrategy) Attempt(page *Page) (Partial, bool) {
	doc := page.doc
	var p Partial

	if title, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		p.Title = cleanText(title)
	}
	if p.Title == "" {
		p.Title = cleanText(doc.Find("title").First().Text())
	}
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		p.Description = cleanText(desc)
	}

	canonical, ok := doc.Find(`meta[property="og:url"]`).Attr("content")
	if !ok {
		canonical, _ = doc.Find(`link[rel="canonical"]`).Attr("href")
	}
	if canonical != "" {
		p.URL = canonical
		p.ID = listing.ExtractJobID(canonical)
	}

	return p, true
}
