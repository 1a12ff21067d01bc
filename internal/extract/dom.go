package extract

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/radarworks/upwork-radar/internal/listing"
)

// domStrategy reads the rendered DOM through ordered selector candidate
// lists covering current and legacy site markup.
type domStrategy struct{}

func (domStrategy) Name() string { return "dom" }

func (domStrategy) Attempt(page *Page) (Partial, bool) {
	doc := page.doc
	var p Partial

	p.Title = selectFirst(doc,
		`[data-test="job-title"]`,
		`[data-test="JobTitle"]`,
		"h1",
	)
	p.Description = selectFirst(doc,
		`[data-test="Description"]`,
		`[data-test="job-description"]`,
		".job-description",
	)

	if budget := selectFirst(doc, `[data-test="job-budget"]`, `[data-test="Budget"]`); budget != "" {
		p.BudgetAmount = parseMoney(budget)
		if isHourly(budget) {
			p.BudgetType = listing.PricingHourly
			p.HourlyRateMin, p.HourlyRateMax = parseHourlyRange(budget)
		} else {
			p.BudgetType = listing.PricingFixed
		}
	}

	p.Skills = selectSkillTokens(doc.Selection)
	p.ExperienceLevel = selectFirst(doc, `[data-test="experience-level"]`, `[data-test="contractor-tier"]`)
	p.Duration = selectFirst(doc, `[data-test="duration"]`)
	p.WeeklyHours = selectFirst(doc, `[data-test="workload"]`)

	p.ClientCountry = selectFirst(doc, `[data-qa="client-location"]`)
	if spend := selectFirst(doc, `[data-qa="client-spend"]`); spend != "" {
		p.ClientTotalSpent = parseMoney(spend)
	}
	if hires := selectFirst(doc, `[data-qa="client-hires"]`); hires != "" {
		p.ClientHires = parseCount(hires)
	}
	if rating := selectFirst(doc, `[data-qa="client-rating"]`); rating != "" {
		p.ClientRating = parseMoney(rating)
	}

	if proposals := selectFirst(doc, `[data-test="proposals"]`); proposals != "" {
		p.ProposalsCount = parseCount(proposals)
	}
	if connects := selectFirst(doc, `[data-test="connects"]`); connects != "" {
		p.ConnectsRequired = parseCount(connects)
	}
	p.PostedDate = selectPostedDate(doc.Selection)

	return p, true
}

// skill token selectors, newest markup first.
var skillSelectors = []string{
	`[data-test="TokenClamp"] .air3-token`,
	`a[data-test="attr-item"]`,
	`[data-test="token-container"] a`,
	`.air3-token`,
	`span[class*="skill"]`,
}

func selectSkillTokens(root *goquery.Selection) []string {
	for _, sel := range skillSelectors {
		nodes := root.Find(sel)
		if nodes.Length() == 0 {
			continue
		}
		skills := make([]string, 0, nodes.Length())
		seen := make(map[string]struct{}, nodes.Length())
		nodes.Each(func(_ int, s *goquery.Selection) {
			name := cleanText(s.Text())
			if name == "" {
				return
			}
			if _, dup := seen[name]; dup {
				return
			}
			seen[name] = struct{}{}
			skills = append(skills, name)
		})
		if len(skills) > 0 {
			return skills
		}
	}
	return nil
}

func selectPostedDate(root *goquery.Selection) string {
	if node := root.Find(`[data-test="posted-on"]`).First(); node.Length() > 0 {
		return cleanText(node.Text())
	}
	if node := root.Find("time").First(); node.Length() > 0 {
		if text := cleanText(node.Text()); text != "" {
			return text
		}
		if dt, ok := node.Attr("datetime"); ok {
			return dt
		}
	}
	return ""
}
