package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/radarworks/upwork-radar/internal/listing"
)

// Tile-container candidates, newest site markup first. The first selector
// with a non-empty match set wins.
var tileSelectors = []string{
	`[data-test="job-tile-list"] > section`,
	"article.job-tile",
	`article[data-test="JobTile"]`,
	`div[data-test="job-tile-list"] article`,
	"section.air3-card-section",
	"section.up-card-section",
	`div[class*="job-tile"]`,
}

// Title-link candidates inside one tile.
var tileTitleSelectors = []string{
	`[data-test="job-tile-title"] a`,
	"h2 a",
	"h3 a",
	`a[href*="/jobs/"][href*="~"]`,
	`a[href*="/details/"][href*="~"]`,
}

// Tiles extracts the per-job partials present on a list page (feed or
// search results). When no tile container matches, it falls back to
// scanning every anchor whose target matches the detail-page URL shape,
// deriving id and title from the link alone.
func Tiles(page *Page) []Partial {
	for _, sel := range tileSelectors {
		nodes := page.doc.Find(sel)
		if nodes.Length() == 0 {
			continue
		}
		tiles := make([]Partial, 0, nodes.Length())
		seen := make(map[string]struct{}, nodes.Length())
		nodes.Each(func(_ int, tile *goquery.Selection) {
			p, ok := parseTile(tile)
			if !ok {
				return
			}
			if _, dup := seen[p.ID]; dup {
				return
			}
			seen[p.ID] = struct{}{}
			tiles = append(tiles, p)
		})
		if len(tiles) > 0 {
			return tiles
		}
	}
	return anchorFallback(page)
}

func parseTile(tile *goquery.Selection) (Partial, bool) {
	var link *goquery.Selection
	for _, sel := range tileTitleSelectors {
		if candidate := tile.Find(sel).First(); candidate.Length() > 0 {
			link = candidate
			break
		}
	}
	if link == nil {
		return Partial{}, false
	}

	href, _ := link.Attr("href")
	id := listing.ExtractJobID(href)
	if id == "" {
		return Partial{}, false
	}

	p := Partial{
		ID:    id,
		URL:   absoluteURL(href),
		Title: cleanText(link.Text()),
	}

	p.Description = selectFirstIn(tile,
		`[data-test="job-description-text"]`,
		`[data-test="job-description-line-clamp"]`,
		`p[class*="description"]`,
	)

	if budget := selectFirstIn(tile,
		`[data-test="job-type"]`,
		`[data-test="job-budget"]`,
		`[data-test="budget"]`,
		`span[class*="budget"]`,
	); budget != "" {
		p.BudgetAmount = parseMoney(budget)
		if isHourly(budget) {
			p.BudgetType = listing.PricingHourly
			p.HourlyRateMin, p.HourlyRateMax = parseHourlyRange(budget)
		} else {
			p.BudgetType = listing.PricingFixed
		}
	}

	p.Skills = selectSkillTokens(tile)
	p.ExperienceLevel = selectFirstIn(tile,
		`[data-test="contractor-tier"]`,
		`[data-test="experience-level"]`,
	)
	if proposals := selectFirstIn(tile, `[data-test="proposals"]`); proposals != "" {
		p.ProposalsCount = parseCount(proposals)
	}
	p.PostedDate = selectPostedDate(tile)

	return p, true
}

// anchorFallback is the last resort for unrecognized list markup: any anchor
// pointing at a detail page yields an id + title record, deduplicated by id.
func anchorFallback(page *Page) []Partial {
	var tiles []Partial
	seen := make(map[string]struct{})
	page.doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !listing.IsDetailShape(href) {
			return
		}
		id := listing.ExtractJobID(href)
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		tiles = append(tiles, Partial{
			ID:    id,
			URL:   absoluteURL(href),
			Title: cleanText(a.Text()),
		})
	})
	return tiles
}

func selectFirstIn(root *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if node := root.Find(sel).First(); node.Length() > 0 {
			if text := cleanText(node.Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

func absoluteURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base, err := url.Parse(listing.BaseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
