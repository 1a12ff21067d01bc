// Package store persists job listings and fetch-run audit rows in
// Postgres. Writes are merge-upserts: a record only ever gains
// information, so tile-level captures and later detail fetches can land
// in any order without losing fields.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/radarworks/upwork-radar/internal/listing"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("store: listing not found")

// Filter narrows a listing query. Zero-valued fields are ignored; set
// fields compose with AND.
type Filter struct {
	// Source keeps only records captured from one provenance.
	Source listing.Source
	// SkillsContain keeps records whose skill list matches any of the
	// given substrings, case-insensitively.
	SkillsContain []string
	// MinBudget keeps records whose fixed budget or minimum hourly
	// rate reaches the threshold.
	MinBudget float64
	// ExperienceLevel substring-matches the tier label.
	ExperienceLevel string
	// PostedWithinHours keeps records fetched inside the window.
	PostedWithinHours int
	// SortBy is one of posted_date, fetched_at (default), budget.
	SortBy string
	// Limit caps the result size. Default 25.
	Limit int
}

// SkillCount is one entry of a skill frequency ranking.
type SkillCount struct {
	Skill string `json:"skill"`
	Count int    `json:"count"`
}

// Stats aggregates the cached listings.
type Stats struct {
	TotalJobs           int            `json:"total_jobs"`
	FeedCount           int            `json:"feed_count"`
	SearchCount         int            `json:"search_count"`
	LastFetch           *time.Time     `json:"last_fetch_time,omitempty"`
	TopSkills           []SkillCount   `json:"top_skills"`
	AvgBudget           float64        `json:"avg_budget"`
	ExperienceBreakdown map[string]int `json:"experience_breakdown"`
}

// RunStatus is the lifecycle of one fetch run in the audit table.
type RunStatus string

// Audit row statuses.
const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// FetchRun is one row of the fetch_sessions audit table.
type FetchRun struct {
	ID          uuid.UUID  `json:"id"`
	Type        string     `json:"type"`
	Query       string     `json:"query,omitempty"`
	JobCount    int        `json:"job_count"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      RunStatus  `json:"status"`
}

// Repository is the persistence surface the rest of the service consumes.
type Repository interface {
	// EnsureSchema creates tables and indexes if missing.
	EnsureSchema(ctx context.Context) error
	// UpsertListing merge-writes one record.
	UpsertListing(ctx context.Context, l *listing.Listing) error
	// UpsertListings merge-writes a batch, returning how many landed.
	UpsertListings(ctx context.Context, ls []*listing.Listing) (int, error)
	// GetListing loads one full record or returns ErrNotFound.
	GetListing(ctx context.Context, id string) (*listing.Listing, error)
	// QueryListings returns summaries matching the filter.
	QueryListings(ctx context.Context, f Filter) ([]listing.Summary, error)
	// Stats aggregates the cache.
	Stats(ctx context.Context) (Stats, error)
	// BeginRun opens an audit row and returns its id.
	BeginRun(ctx context.Context, runType, query string) (uuid.UUID, error)
	// FinishRun closes an audit row with its outcome.
	FinishRun(ctx context.Context, id uuid.UUID, jobCount int, status RunStatus) error
	// Close releases the connection pool.
	Close()
}
