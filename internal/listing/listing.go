// Package listing defines the canonical job listing record and the
// site-specific URL shapes shared across subsystems.
package listing

import (
	"regexp"
	"strings"
	"time"
)

// Upwork URL shapes. Detail pages embed the opaque job id after a tilde.
const (
	BaseURL   = "https://www.upwork.com"
	LoginURL  = BaseURL + "/ab/account-security/login"
	FeedURL   = BaseURL + "/nx/find-work/best-matches"
	SearchURL = BaseURL + "/nx/search/jobs/"
)

// Source tags where a record was captured.
type Source string

// Provenance values persisted with every listing.
const (
	SourceFeed   Source = "feed"
	SourceSearch Source = "search"
	SourceDetail Source = "detail"
)

// PlaceholderTitle marks records where every extraction strategy missed
// the title. Merges treat it as trivial: it never overwrites a real one.
const PlaceholderTitle = "Unknown Job"

// PricingType classifies how a job is paid.
type PricingType string

// Pricing values. Unknown is kept distinct from empty so merges can tell
// "never seen" from "seen but unclassifiable".
const (
	PricingHourly  PricingType = "hourly"
	PricingFixed   PricingType = "fixed"
	PricingUnknown PricingType = ""
)

// Listing is the canonical persisted job record. Identity is the opaque
// site-assigned id and is immutable once set. Pointer fields distinguish
// absent from zero, which the merge-upsert relies on.
type Listing struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`

	Description string `json:"description,omitempty"`

	BudgetType    PricingType `json:"budget_type,omitempty"`
	BudgetAmount  *float64    `json:"budget_amount,omitempty"`
	HourlyRateMin *float64    `json:"hourly_rate_min,omitempty"`
	HourlyRateMax *float64    `json:"hourly_rate_max,omitempty"`
	Currency      string      `json:"currency,omitempty"`

	ExperienceLevel string   `json:"experience_level,omitempty"`
	Duration        string   `json:"duration,omitempty"`
	WeeklyHours     string   `json:"weekly_hours,omitempty"`
	Skills          []string `json:"skills,omitempty"`
	Category        string   `json:"category,omitempty"`
	Subcategory     string   `json:"subcategory,omitempty"`

	ClientCountry     string   `json:"client_country,omitempty"`
	ClientCity        string   `json:"client_city,omitempty"`
	ClientRating      *float64 `json:"client_rating,omitempty"`
	ClientTotalSpent  *float64 `json:"client_total_spent,omitempty"`
	ClientHires       *int     `json:"client_hires,omitempty"`
	ClientActiveJobs  *int     `json:"client_active_jobs,omitempty"`
	ClientJobsPosted  *int     `json:"client_jobs_posted,omitempty"`
	ClientCompanySize string   `json:"client_company_size,omitempty"`
	ClientMemberSince string   `json:"client_member_since,omitempty"`
	PaymentVerified   bool     `json:"payment_verified"`

	ProposalsCount    *int `json:"proposals_count,omitempty"`
	InterviewingCount *int `json:"interviewing_count,omitempty"`
	InvitesSent       *int `json:"invites_sent,omitempty"`
	ConnectsRequired  *int `json:"connects_required,omitempty"`

	PostedDate  string    `json:"posted_date,omitempty"`
	Source      Source    `json:"source,omitempty"`
	SearchQuery string    `json:"search_query,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
	RawHTML     string    `json:"-"`
}

// Summary is the lightweight shape returned by list operations.
type Summary struct {
	ID              string      `json:"id"`
	URL             string      `json:"url"`
	Title           string      `json:"title"`
	BudgetType      PricingType `json:"budget_type,omitempty"`
	BudgetAmount    *float64    `json:"budget_amount,omitempty"`
	HourlyRateMin   *float64    `json:"hourly_rate_min,omitempty"`
	HourlyRateMax   *float64    `json:"hourly_rate_max,omitempty"`
	ExperienceLevel string      `json:"experience_level,omitempty"`
	Skills          []string    `json:"skills,omitempty"`
	ClientCountry   string      `json:"client_country,omitempty"`
	ClientRating    *float64    `json:"client_rating,omitempty"`
	ClientSpent     *float64    `json:"client_total_spent,omitempty"`
	ProposalsCount  *int        `json:"proposals_count,omitempty"`
	PostedDate      string      `json:"posted_date,omitempty"`
	Source          Source      `json:"source,omitempty"`
}

// Summarize projects a Listing onto its Summary shape.
func (l Listing) Summarize() Summary {
	return Summary{
		ID:              l.ID,
		URL:             l.URL,
		Title:           l.Title,
		BudgetType:      l.BudgetType,
		BudgetAmount:    l.BudgetAmount,
		HourlyRateMin:   l.HourlyRateMin,
		HourlyRateMax:   l.HourlyRateMax,
		ExperienceLevel: l.ExperienceLevel,
		Skills:          l.Skills,
		ClientCountry:   l.ClientCountry,
		ClientRating:    l.ClientRating,
		ClientSpent:     l.ClientTotalSpent,
		ProposalsCount:  l.ProposalsCount,
		PostedDate:      l.PostedDate,
		Source:          l.Source,
	}
}

var jobIDPattern = regexp.MustCompile(`(~[0-9a-f]+)`)

// ExtractJobID pulls the tilde-prefixed job id out of a detail URL or href.
// Returns "" when the value has no recognizable id.
func ExtractJobID(rawURL string) string {
	return jobIDPattern.FindString(rawURL)
}

// DetailURL builds the canonical detail page URL for a job id or passes a
// full URL through unchanged.
func DetailURL(idOrURL string) string {
	if strings.HasPrefix(idOrURL, "~") {
		return BaseURL + "/jobs/" + idOrURL
	}
	return idOrURL
}

// IsLoginShape reports whether a URL points at the site's login flow.
// Used for both the classifier's redirect detection and the fetch engine's
// session-expiry short circuit.
func IsLoginShape(rawURL string) bool {
	return strings.Contains(rawURL, "/login") || strings.Contains(rawURL, "/account-security")
}

// IsDetailShape reports whether an href looks like a job detail link.
func IsDetailShape(href string) bool {
	if !strings.Contains(href, "~") {
		return false
	}
	return strings.Contains(href, "/jobs/") || strings.Contains(href, "/details/")
}
