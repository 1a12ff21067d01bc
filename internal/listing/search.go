package listing

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Enumerated query-parameter encodings for the search page. The site expects
// opaque tokens, so each user-facing option maps through a fixed table.
var (
	sortOptions = map[string]string{
		"relevance":       "relevance+desc",
		"recency":         "recency",
		"client_spending": "client_total_charge+desc",
		"client_rating":   "client_rating+desc",
	}

	experienceLevels = map[string]string{
		"entry":        "1",
		"intermediate": "2",
		"expert":       "3",
	}

	jobTypes = map[string]string{
		"hourly": "0",
		"fixed":  "1",
	}

	projectDurations = map[string]string{
		"week":     "week",
		"month":    "month",
		"semester": "semester",
		"ongoing":  "ongoing",
	}

	workloadOptions = map[string]string{
		"less_than_30": "as_needed",
		"more_than_30": "full_time",
	}

	// Category UIDs are stable site identifiers, not display names.
	categories = map[string]string{
		"Web, Mobile & Software Dev": "531770282580668418",
		"IT & Networking":            "531770282580668419",
		"Data Science & Analytics":   "531770282580668420",
		"Design & Creative":          "531770282580668421",
		"Sales & Marketing":          "531770282580668422",
		"Writing":                    "531770282580668423",
		"Translation":                "531770282580668424",
		"Admin Support":              "531770282580668425",
		"Customer Service":           "531770282580668426",
		"Accounting & Consulting":    "531770282580668427",
		"Legal":                      "531770282580668428",
		"Engineering & Architecture": "531770282584862722",
	}
)

// SearchParams captures a structured job search request.
type SearchParams struct {
	Query           string `json:"query"`
	Category        string `json:"category,omitempty"`
	ExperienceLevel string `json:"experience_level,omitempty"`
	JobType         string `json:"job_type,omitempty"`
	BudgetMin       int    `json:"budget_min,omitempty"`
	BudgetMax       int    `json:"budget_max,omitempty"`
	HourlyRateMin   int    `json:"hourly_rate_min,omitempty"`
	HourlyRateMax   int    `json:"hourly_rate_max,omitempty"`
	ClientHires     string `json:"client_hires,omitempty"`
	HoursPerWeek    string `json:"hours_per_week,omitempty"`
	ProjectLength   string `json:"project_length,omitempty"`
	SortBy          string `json:"sort_by,omitempty"`
	MaxResults      int    `json:"max_results,omitempty"`
	Page            int    `json:"page,omitempty"`
}

// Validate rejects values that cannot be encoded.
func (p SearchParams) Validate() error {
	if p.SortBy != "" {
		if _, ok := sortOptions[p.SortBy]; !ok {
			return fmt.Errorf("unknown sort_by %q", p.SortBy)
		}
	}
	if p.JobType != "" {
		if _, ok := jobTypes[p.JobType]; !ok {
			return fmt.Errorf("unknown job_type %q", p.JobType)
		}
	}
	if p.ProjectLength != "" {
		if _, ok := projectDurations[p.ProjectLength]; !ok {
			return fmt.Errorf("unknown project_length %q", p.ProjectLength)
		}
	}
	if p.HoursPerWeek != "" {
		if _, ok := workloadOptions[p.HoursPerWeek]; !ok {
			return fmt.Errorf("unknown hours_per_week %q", p.HoursPerWeek)
		}
	}
	for _, level := range splitCSV(p.ExperienceLevel) {
		if _, ok := experienceLevels[level]; !ok {
			return fmt.Errorf("unknown experience_level %q", level)
		}
	}
	if p.BudgetMin < 0 || p.BudgetMax < 0 || p.HourlyRateMin < 0 || p.HourlyRateMax < 0 {
		return fmt.Errorf("budget and rate bounds must be >= 0")
	}
	if p.MaxResults < 0 {
		return fmt.Errorf("max_results must be >= 0")
	}
	return nil
}

// Values encodes the params into the site's query-string vocabulary.
// Unset fields are simply omitted.
func (p SearchParams) Values() url.Values {
	v := url.Values{}

	if p.Query != "" {
		v.Set("q", p.Query)
	}
	if enc, ok := sortOptions[p.SortBy]; ok {
		v.Set("sort", enc)
	}
	if p.MaxResults > 0 {
		v.Set("per_page", strconv.Itoa(min(p.MaxResults, 50)))
	}
	if p.Page > 1 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if enc, ok := jobTypes[p.JobType]; ok {
		v.Set("t", enc)
	}
	if tiers := p.encodeTiers(); tiers != "" {
		v.Set("contractor_tier", tiers)
	}
	if p.BudgetMin > 0 || p.BudgetMax > 0 {
		v.Set("amount", encodeRange(p.BudgetMin, p.BudgetMax))
	}
	if p.HourlyRateMin > 0 || p.HourlyRateMax > 0 {
		v.Set("hourly_rate", encodeRange(p.HourlyRateMin, p.HourlyRateMax))
	}
	if uid, ok := categories[p.Category]; ok {
		v.Set("category2_uid", uid)
	}
	if p.ClientHires != "" {
		v.Set("client_hires", p.ClientHires)
	}
	if enc, ok := projectDurations[p.ProjectLength]; ok {
		v.Set("duration_v3", enc)
	}
	if enc, ok := workloadOptions[p.HoursPerWeek]; ok {
		v.Set("workload", enc)
	}
	return v
}

// SearchPageURL builds the full search URL for the params.
func (p SearchParams) SearchPageURL() string {
	encoded := p.Values().Encode()
	if encoded == "" {
		return SearchURL
	}
	return SearchURL + "?" + encoded
}

func (p SearchParams) encodeTiers() string {
	var tiers []string
	for _, level := range splitCSV(p.ExperienceLevel) {
		if enc, ok := experienceLevels[level]; ok {
			tiers = append(tiers, enc)
		}
	}
	return strings.Join(tiers, ",")
}

func encodeRange(low, high int) string {
	var lo, hi string
	if low > 0 {
		lo = strconv.Itoa(low)
	}
	if high > 0 {
		hi = strconv.Itoa(high)
	}
	return lo + "-" + hi
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
