package extract

import (
	"fmt"
	"sort"

	"github.com/radarworks/upwork-radar/internal/nuxt"
)

// fieldKind selects the coercion applied to a raw graph value.
type fieldKind int

const (
	kindText fieldKind = iota
	kindMoney
	kindCount
	kindVerified
	kindSkills
)

// alias binds a graph key to a canonical field and its coercion.
type alias struct {
	set  func(*Partial, any)
	kind fieldKind
}

// aliasTable is the closed mapping from known graph keys to canonical
// fields. The first match per field wins; later occurrences are ignored.
var aliasTable = map[string]alias{
	"title":            {kind: kindText, set: func(p *Partial, v any) { setText(&p.Title, v) }},
	"jobTitle":         {kind: kindText, set: func(p *Partial, v any) { setText(&p.Title, v) }},
	"description":      {kind: kindText, set: func(p *Partial, v any) { setText(&p.Description, v) }},
	"jobDescription":   {kind: kindText, set: func(p *Partial, v any) { setText(&p.Description, v) }},
	"skills":           {kind: kindSkills, set: func(p *Partial, v any) { setSkills(&p.Skills, v) }},
	"duration":         {kind: kindText, set: func(p *Partial, v any) { setText(&p.Duration, v) }},
	"durationLabel":    {kind: kindText, set: func(p *Partial, v any) { setText(&p.Duration, v) }},
	"engagement":       {kind: kindText, set: func(p *Partial, v any) { setText(&p.WeeklyHours, v) }},
	"budget":           {kind: kindMoney, set: func(p *Partial, v any) { setMoney(&p.BudgetAmount, v) }},
	"amount":           {kind: kindMoney, set: func(p *Partial, v any) { setMoney(&p.BudgetAmount, v) }},
	"hourlyBudgetMin":  {kind: kindMoney, set: func(p *Partial, v any) { setMoney(&p.HourlyRateMin, v) }},
	"hourlyBudgetMax":  {kind: kindMoney, set: func(p *Partial, v any) { setMoney(&p.HourlyRateMax, v) }},
	"currencyCode":     {kind: kindText, set: func(p *Partial, v any) { setText(&p.Currency, v) }},
	"contractorTier":   {kind: kindText, set: func(p *Partial, v any) { setText(&p.ExperienceLevel, v) }},
	"tierLabel":        {kind: kindText, set: func(p *Partial, v any) { setText(&p.ExperienceLevel, v) }},
	"publishedOn":      {kind: kindText, set: func(p *Partial, v any) { setText(&p.PostedDate, v) }},
	"createdOn":        {kind: kindText, set: func(p *Partial, v any) { setText(&p.PostedDate, v) }},
	"clientCountry":    {kind: kindText, set: func(p *Partial, v any) { setText(&p.ClientCountry, v) }},
	"country":          {kind: kindText, set: func(p *Partial, v any) { setText(&p.ClientCountry, v) }},
	"city":             {kind: kindText, set: func(p *Partial, v any) { setText(&p.ClientCity, v) }},
	"totalSpent":       {kind: kindMoney, set: func(p *Partial, v any) { setMoney(&p.ClientTotalSpent, v) }},
	"score":            {kind: kindMoney, set: func(p *Partial, v any) { setMoney(&p.ClientRating, v) }},
	"totalHires":       {kind: kindCount, set: func(p *Partial, v any) { setCount(&p.ClientHires, v) }},
	"openJobs":         {kind: kindCount, set: func(p *Partial, v any) { setCount(&p.ClientActiveJobs, v) }},
	"postedJobCount":   {kind: kindCount, set: func(p *Partial, v any) { setCount(&p.ClientJobsPosted, v) }},
	"companySize":      {kind: kindText, set: func(p *Partial, v any) { setText(&p.ClientCompanySize, v) }},
	"memberSince":      {kind: kindText, set: func(p *Partial, v any) { setText(&p.ClientMemberSince, v) }},
	"proposalCount":    {kind: kindCount, set: func(p *Partial, v any) { setCount(&p.ProposalsCount, v) }},
	"inviteCount":      {kind: kindCount, set: func(p *Partial, v any) { setCount(&p.InvitesSent, v) }},
	"interviewCount":   {kind: kindCount, set: func(p *Partial, v any) { setCount(&p.InterviewingCount, v) }},
	"connectPrice":     {kind: kindCount, set: func(p *Partial, v any) { setCount(&p.ConnectsRequired, v) }},
	"categoryName":     {kind: kindText, set: func(p *Partial, v any) { setText(&p.Category, v) }},
	"subcategoryName":  {kind: kindText, set: func(p *Partial, v any) { setText(&p.Subcategory, v) }},
	"paymentVerificationStatus": {
		kind: kindVerified,
		set:  func(p *Partial, v any) { setVerified(&p.PaymentVerified, v) },
	},
}

// graphStrategy walks the decoded data graph looking up every mapping key
// against the alias table.
type graphStrategy struct{}

func (graphStrategy) Name() string { return "graph" }

func (graphStrategy) Attempt(page *Page) (Partial, bool) {
	if !page.hasGraph {
		return Partial{}, false
	}
	var p Partial
	for _, item := range page.graph {
		walkValue(page.graph, item, &p)
	}
	return p, true
}

// walkValue descends the closed set of node shapes: mappings, sequences, and
// scalars. Only mappings carry extractable keys.
func walkValue(graph []any, v any, p *Partial) {
	switch node := v.(type) {
	case map[string]any:
		walkMapping(graph, node, p)
	case []any:
		for _, item := range node {
			walkValue(graph, item, p)
		}
	}
}

// walkMapping visits keys in sorted order: when two aliases of the same
// canonical field share a mapping, the winner is the same on every run.
func walkMapping(graph []any, node map[string]any, p *Partial) {
	keys := make([]string, 0, len(node))
	for key := range node {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		raw := node[key]
		if a, known := aliasTable[key]; known {
			resolved := nuxt.Resolve(graph, raw)
			if resolved != nil {
				a.set(p, coerce(graph, resolved, a.kind))
			}
		}
		// Nested shapes may hold fields the top level does not.
		walkValue(graph, raw, p)
	}
}

// coerce normalizes a resolved graph value for its field category before the
// setter applies it.
func coerce(graph []any, v any, kind fieldKind) any {
	switch kind {
	case kindSkills:
		if items, ok := v.([]any); ok {
			resolved := make([]any, 0, len(items))
			for _, item := range items {
				resolved = append(resolved, nuxt.Resolve(graph, item))
			}
			return resolved
		}
	}
	return v
}

func setText(dst *string, v any) {
	if *dst != "" {
		return
	}
	if s, ok := v.(string); ok {
		*dst = cleanText(s)
	}
}

func setMoney(dst **float64, v any) {
	if *dst != nil {
		return
	}
	switch n := v.(type) {
	case float64:
		val := n
		*dst = &val
	case int:
		val := float64(n)
		*dst = &val
	case string:
		*dst = parseMoney(n)
	}
}

func setCount(dst **int, v any) {
	if *dst != nil {
		return
	}
	switch n := v.(type) {
	case float64:
		val := int(n)
		*dst = &val
	case int:
		val := n
		*dst = &val
	case string:
		*dst = parseCount(n)
	}
}

// setVerified treats only the literal success markers as verified: boolean
// true, numeric 1, or the string "verified".
func setVerified(dst **bool, v any) {
	if *dst != nil {
		return
	}
	verified := v == true || v == float64(1) || v == 1 || v == "verified"
	*dst = &verified
}

// setSkills normalizes a skill sequence: name-bearing mappings collapse to
// their name, scalars stringify, empties drop.
func setSkills(dst *[]string, v any) {
	if len(*dst) > 0 {
		return
	}
	items, ok := v.([]any)
	if !ok {
		return
	}
	skills := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		var name string
		switch s := item.(type) {
		case string:
			name = cleanText(s)
		case map[string]any:
			if n, has := s["name"].(string); has {
				name = cleanText(n)
			} else if n, has := s["prettyName"].(string); has {
				name = cleanText(n)
			}
		default:
			name = cleanText(fmt.Sprint(item))
		}
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		skills = append(skills, name)
	}
	if len(skills) > 0 {
		*dst = skills
	}
}
