// Package extract turns heterogeneous page representations into canonical
// listing records. Three independent strategies each produce a partial
// record; partials merge by fixed precedence (graph > DOM > metadata) with a
// field set by a higher-precedence strategy never overwritten by a lower one.
package extract

import (
	"github.com/radarworks/upwork-radar/internal/listing"
)

// Partial is the ephemeral output of one extraction strategy: a subset of
// listing fields. Absent fields stay at their zero value and are skipped by
// the merge, never encoded as sentinels.
type Partial struct {
	ID          string
	URL         string
	Title       string
	Description string

	BudgetType    listing.PricingType
	BudgetAmount  *float64
	HourlyRateMin *float64
	HourlyRateMax *float64
	Currency      string

	ExperienceLevel string
	Duration        string
	WeeklyHours     string
	Skills          []string
	Category        string
	Subcategory     string

	ClientCountry     string
	ClientCity        string
	ClientRating      *float64
	ClientTotalSpent  *float64
	ClientHires       *int
	ClientActiveJobs  *int
	ClientJobsPosted  *int
	ClientCompanySize string
	ClientMemberSince string
	PaymentVerified   *bool

	ProposalsCount    *int
	InterviewingCount *int
	InvitesSent       *int
	ConnectsRequired  *int

	PostedDate string
}

// fill copies every field that is still unset in p from the lower-precedence
// partial. p's own values always win.
func (p *Partial) fill(from Partial) {
	fillString(&p.ID, from.ID)
	fillString(&p.URL, from.URL)
	fillString(&p.Title, from.Title)
	fillString(&p.Description, from.Description)
	if p.BudgetType == listing.PricingUnknown {
		p.BudgetType = from.BudgetType
	}
	fillFloat(&p.BudgetAmount, from.BudgetAmount)
	fillFloat(&p.HourlyRateMin, from.HourlyRateMin)
	fillFloat(&p.HourlyRateMax, from.HourlyRateMax)
	fillString(&p.Currency, from.Currency)
	fillString(&p.ExperienceLevel, from.ExperienceLevel)
	fillString(&p.Duration, from.Duration)
	fillString(&p.WeeklyHours, from.WeeklyHours)
	if len(p.Skills) == 0 {
		p.Skills = from.Skills
	}
	fillString(&p.Category, from.Category)
	fillString(&p.Subcategory, from.Subcategory)
	fillString(&p.ClientCountry, from.ClientCountry)
	fillString(&p.ClientCity, from.ClientCity)
	fillFloat(&p.ClientRating, from.ClientRating)
	fillFloat(&p.ClientTotalSpent, from.ClientTotalSpent)
	fillInt(&p.ClientHires, from.ClientHires)
	fillInt(&p.ClientActiveJobs, from.ClientActiveJobs)
	fillInt(&p.ClientJobsPosted, from.ClientJobsPosted)
	fillString(&p.ClientCompanySize, from.ClientCompanySize)
	fillString(&p.ClientMemberSince, from.ClientMemberSince)
	if p.PaymentVerified == nil {
		p.PaymentVerified = from.PaymentVerified
	}
	fillInt(&p.ProposalsCount, from.ProposalsCount)
	fillInt(&p.InterviewingCount, from.InterviewingCount)
	fillInt(&p.InvitesSent, from.InvitesSent)
	fillInt(&p.ConnectsRequired, from.ConnectsRequired)
	fillString(&p.PostedDate, from.PostedDate)
}

// apply writes the partial's known fields onto a listing record.
func (p Partial) apply(l *listing.Listing) {
	if p.ID != "" {
		l.ID = p.ID
	}
	if p.URL != "" {
		l.URL = p.URL
	}
	if p.Title != "" {
		l.Title = p.Title
	}
	l.Description = p.Description
	l.BudgetType = p.BudgetType
	l.BudgetAmount = p.BudgetAmount
	l.HourlyRateMin = p.HourlyRateMin
	l.HourlyRateMax = p.HourlyRateMax
	if p.Currency != "" {
		l.Currency = p.Currency
	}
	l.ExperienceLevel = p.ExperienceLevel
	l.Duration = p.Duration
	l.WeeklyHours = p.WeeklyHours
	l.Skills = p.Skills
	l.Category = p.Category
	l.Subcategory = p.Subcategory
	l.ClientCountry = p.ClientCountry
	l.ClientCity = p.ClientCity
	l.ClientRating = p.ClientRating
	l.ClientTotalSpent = p.ClientTotalSpent
	l.ClientHires = p.ClientHires
	l.ClientActiveJobs = p.ClientActiveJobs
	l.ClientJobsPosted = p.ClientJobsPosted
	l.ClientCompanySize = p.ClientCompanySize
	l.ClientMemberSince = p.ClientMemberSince
	if p.PaymentVerified != nil {
		l.PaymentVerified = *p.PaymentVerified
	}
	l.ProposalsCount = p.ProposalsCount
	l.InterviewingCount = p.InterviewingCount
	l.InvitesSent = p.InvitesSent
	l.ConnectsRequired = p.ConnectsRequired
	l.PostedDate = p.PostedDate
}

func fillString(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func fillFloat(dst **float64, v *float64) {
	if *dst == nil {
		*dst = v
	}
}

func fillInt(dst **int, v *int) {
	if *dst == nil {
		*dst = v
	}
}
