package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/radarworks/upwork-radar/internal/listing"
)

// DB is the slice of pgxpool.Pool the store uses. pgxmock satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Postgres implements Repository over a pgx connection pool.
type Postgres struct {
	db     DB
	logger *zap.Logger
	now    func() time.Time
}

var _ Repository = (*Postgres)(nil)

// New connects a pool and returns the store.
func New(ctx context.Context, dsn string, logger *zap.Logger) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store: dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	return NewWithDB(pool, logger), nil
}

// NewWithDB wraps an existing pool. Tests hand in a pgxmock pool.
func NewWithDB(db DB, logger *zap.Logger) *Postgres {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Postgres{db: db, logger: logger, now: time.Now}
}

// Close releases the pool.
func (s *Postgres) Close() {
	s.db.Close()
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	budget_type TEXT NOT NULL DEFAULT '',
	budget_amount DOUBLE PRECISION,
	hourly_rate_min DOUBLE PRECISION,
	hourly_rate_max DOUBLE PRECISION,
	currency TEXT NOT NULL DEFAULT 'USD',
	experience_level TEXT NOT NULL DEFAULT '',
	duration TEXT NOT NULL DEFAULT '',
	weekly_hours TEXT NOT NULL DEFAULT '',
	skills JSONB NOT NULL DEFAULT '[]',
	category TEXT NOT NULL DEFAULT '',
	subcategory TEXT NOT NULL DEFAULT '',
	client_country TEXT NOT NULL DEFAULT '',
	client_city TEXT NOT NULL DEFAULT '',
	client_rating DOUBLE PRECISION,
	client_total_spent DOUBLE PRECISION,
	client_hires INTEGER,
	client_active_jobs INTEGER,
	client_jobs_posted INTEGER,
	client_company_size TEXT NOT NULL DEFAULT '',
	client_member_since TEXT NOT NULL DEFAULT '',
	payment_verified BOOLEAN NOT NULL DEFAULT FALSE,
	proposals_count INTEGER,
	interviewing_count INTEGER,
	invites_sent INTEGER,
	connects_required INTEGER,
	posted_date TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	search_query TEXT NOT NULL DEFAULT '',
	fetched_at TIMESTAMPTZ NOT NULL,
	raw_html TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS fetch_sessions (
	id UUID PRIMARY KEY,
	type TEXT NOT NULL,
	query TEXT NOT NULL DEFAULT '',
	job_count INTEGER NOT NULL DEFAULT 0,
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	status TEXT NOT NULL DEFAULT 'running'
);

CREATE INDEX IF NOT EXISTS idx_jobs_source ON jobs(source);
CREATE INDEX IF NOT EXISTS idx_jobs_posted ON jobs(posted_date);
CREATE INDEX IF NOT EXISTS idx_jobs_fetched ON jobs(fetched_at);
CREATE INDEX IF NOT EXISTS idx_jobs_experience ON jobs(experience_level);
`

// EnsureSchema creates tables and indexes if missing.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// upsertSQL merges a record into jobs. Every clause is monotonic: text
// fields fill only when the incoming value is non-trivial, description
// and raw_html keep the longer capture, numerics coalesce toward set,
// payment_verified latches true, fetched_at always advances. Identity
// columns (url, source, search_query) keep their first-seen values.
var upsertSQL = fmt.Sprintf(`
INSERT INTO jobs (
	id, url, title, description, budget_type, budget_amount,
	hourly_rate_min, hourly_rate_max, currency, experience_level,
	duration, weekly_hours, skills, category, subcategory,
	client_country, client_city, client_rating, client_total_spent,
	client_hires, client_active_jobs, client_jobs_posted,
	client_company_size, client_member_since, payment_verified,
	proposals_count, interviewing_count, invites_sent,
	connects_required, posted_date, source, search_query,
	fetched_at, raw_html
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
	$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28,
	$29, $30, $31, $32, $33, $34
)
ON CONFLICT (id) DO UPDATE SET
	title = CASE WHEN excluded.title NOT IN ('', '%s') THEN excluded.title ELSE jobs.title END,
	description = CASE WHEN length(excluded.description) > length(jobs.description) THEN excluded.description ELSE jobs.description END,
	budget_type = COALESCE(NULLIF(excluded.budget_type, ''), jobs.budget_type),
	budget_amount = COALESCE(excluded.budget_amount, jobs.budget_amount),
	hourly_rate_min = COALESCE(excluded.hourly_rate_min, jobs.hourly_rate_min),
	hourly_rate_max = COALESCE(excluded.hourly_rate_max, jobs.hourly_rate_max),
	currency = COALESCE(NULLIF(excluded.currency, ''), jobs.currency),
	experience_level = COALESCE(NULLIF(excluded.experience_level, ''), jobs.experience_level),
	duration = COALESCE(NULLIF(excluded.duration, ''), jobs.duration),
	weekly_hours = COALESCE(NULLIF(excluded.weekly_hours, ''), jobs.weekly_hours),
	skills = CASE WHEN jsonb_array_length(excluded.skills) > 0 THEN excluded.skills ELSE jobs.skills END,
	category = COALESCE(NULLIF(excluded.category, ''), jobs.category),
	subcategory = COALESCE(NULLIF(excluded.subcategory, ''), jobs.subcategory),
	client_country = COALESCE(NULLIF(excluded.client_country, ''), jobs.client_country),
	client_city = COALESCE(NULLIF(excluded.client_city, ''), jobs.client_city),
	client_rating = COALESCE(excluded.client_rating, jobs.client_rating),
	client_total_spent = COALESCE(excluded.client_total_spent, jobs.client_total_spent),
	client_hires = COALESCE(excluded.client_hires, jobs.client_hires),
	client_active_jobs = COALESCE(excluded.client_active_jobs, jobs.client_active_jobs),
	client_jobs_posted = COALESCE(excluded.client_jobs_posted, jobs.client_jobs_posted),
	client_company_size = COALESCE(NULLIF(excluded.client_company_size, ''), jobs.client_company_size),
	client_member_since = COALESCE(NULLIF(excluded.client_member_since, ''), jobs.client_member_since),
	payment_verified = jobs.payment_verified OR excluded.payment_verified,
	proposals_count = COALESCE(excluded.proposals_count, jobs.proposals_count),
	interviewing_count = COALESCE(excluded.interviewing_count, jobs.interviewing_count),
	invites_sent = COALESCE(excluded.invites_sent, jobs.invites_sent),
	connects_required = COALESCE(excluded.connects_required, jobs.connects_required),
	posted_date = COALESCE(NULLIF(excluded.posted_date, ''), jobs.posted_date),
	fetched_at = excluded.fetched_at,
	raw_html = CASE WHEN length(excluded.raw_html) > length(jobs.raw_html) THEN excluded.raw_html ELSE jobs.raw_html END
`, listing.PlaceholderTitle)

// UpsertListing merge-writes one record.
func (s *Postgres) UpsertListing(ctx context.Context, l *listing.Listing) error {
	if l == nil || l.ID == "" {
		return fmt.Errorf("store: listing id is required")
	}
	skills := l.Skills
	if skills == nil {
		skills = []string{}
	}
	skillsJSON, err := json.Marshal(skills)
	if err != nil {
		return fmt.Errorf("store: marshal skills: %w", err)
	}

	_, err = s.db.Exec(ctx, upsertSQL,
		l.ID, l.URL, l.Title, l.Description, string(l.BudgetType), l.BudgetAmount,
		l.HourlyRateMin, l.HourlyRateMax, l.Currency, l.ExperienceLevel,
		l.Duration, l.WeeklyHours, skillsJSON, l.Category, l.Subcategory,
		l.ClientCountry, l.ClientCity, l.ClientRating, l.ClientTotalSpent,
		l.ClientHires, l.ClientActiveJobs, l.ClientJobsPosted,
		l.ClientCompanySize, l.ClientMemberSince, l.PaymentVerified,
		l.ProposalsCount, l.InterviewingCount, l.InvitesSent,
		l.ConnectsRequired, l.PostedDate, string(l.Source), l.SearchQuery,
		l.FetchedAt, l.RawHTML,
	)
	if err != nil {
		return fmt.Errorf("store: upsert listing %s: %w", l.ID, err)
	}
	return nil
}

// UpsertListings merge-writes a batch. One bad record stops the batch;
// records already written stay written.
func (s *Postgres) UpsertListings(ctx context.Context, ls []*listing.Listing) (int, error) {
	saved := 0
	for _, l := range ls {
		if err := s.UpsertListing(ctx, l); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}

const listingColumns = `id, url, title, description, budget_type, budget_amount,
	hourly_rate_min, hourly_rate_max, currency, experience_level,
	duration, weekly_hours, skills, category, subcategory,
	client_country, client_city, client_rating, client_total_spent,
	client_hires, client_active_jobs, client_jobs_posted,
	client_company_size, client_member_since, payment_verified,
	proposals_count, interviewing_count, invites_sent,
	connects_required, posted_date, source, search_query,
	fetched_at, raw_html`

// GetListing loads one full record or returns ErrNotFound.
func (s *Postgres) GetListing(ctx context.Context, id string) (*listing.Listing, error) {
	row := s.db.QueryRow(ctx, `SELECT `+listingColumns+` FROM jobs WHERE id = $1`, id)

	var (
		l          listing.Listing
		skillsJSON []byte
	)
	err := row.Scan(
		&l.ID, &l.URL, &l.Title, &l.Description, &l.BudgetType, &l.BudgetAmount,
		&l.HourlyRateMin, &l.HourlyRateMax, &l.Currency, &l.ExperienceLevel,
		&l.Duration, &l.WeeklyHours, &skillsJSON, &l.Category, &l.Subcategory,
		&l.ClientCountry, &l.ClientCity, &l.ClientRating, &l.ClientTotalSpent,
		&l.ClientHires, &l.ClientActiveJobs, &l.ClientJobsPosted,
		&l.ClientCompanySize, &l.ClientMemberSince, &l.PaymentVerified,
		&l.ProposalsCount, &l.InterviewingCount, &l.InvitesSent,
		&l.ConnectsRequired, &l.PostedDate, &l.Source, &l.SearchQuery,
		&l.FetchedAt, &l.RawHTML,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get listing %s: %w", id, err)
	}
	if len(skillsJSON) > 0 {
		if err := json.Unmarshal(skillsJSON, &l.Skills); err != nil {
			s.logger.Warn("malformed skills column", zap.String("id", id), zap.Error(err))
		}
	}
	return &l, nil
}

var sortOrders = map[string]string{
	"posted_date": "posted_date DESC",
	"fetched_at":  "fetched_at DESC",
	"budget":      "COALESCE(budget_amount, 0) DESC",
}

// QueryListings returns summaries matching the filter, AND-composed.
func (s *Postgres) QueryListings(ctx context.Context, f Filter) ([]listing.Summary, error) {
	var (
		conditions []string
		args       []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Source != "" {
		conditions = append(conditions, "source = "+arg(string(f.Source)))
	}
	if len(f.SkillsContain) > 0 {
		var ors []string
		for _, skill := range f.SkillsContain {
			skill = strings.TrimSpace(skill)
			if skill == "" {
				continue
			}
			ors = append(ors, "skills::text ILIKE "+arg("%"+skill+"%"))
		}
		if len(ors) > 0 {
			conditions = append(conditions, "("+strings.Join(ors, " OR ")+")")
		}
	}
	if f.MinBudget > 0 {
		conditions = append(conditions,
			"(budget_amount >= "+arg(f.MinBudget)+" OR hourly_rate_min >= "+arg(f.MinBudget)+")")
	}
	if f.ExperienceLevel != "" {
		conditions = append(conditions, "experience_level ILIKE "+arg("%"+f.ExperienceLevel+"%"))
	}
	if f.PostedWithinHours > 0 {
		cutoff := s.now().Add(-time.Duration(f.PostedWithinHours) * time.Hour)
		conditions = append(conditions, "fetched_at >= "+arg(cutoff))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	order, ok := sortOrders[f.SortBy]
	if !ok {
		order = sortOrders["fetched_at"]
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 25
	}

	query := `SELECT id, url, title, budget_type, budget_amount, hourly_rate_min,
	hourly_rate_max, experience_level, skills, client_country, client_rating,
	client_total_spent, proposals_count, posted_date, source
FROM jobs` + where + " ORDER BY " + order + " LIMIT " + arg(limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query listings: %w", err)
	}
	defer rows.Close()

	var out []listing.Summary
	for rows.Next() {
		var (
			sm         listing.Summary
			skillsJSON []byte
		)
		err := rows.Scan(
			&sm.ID, &sm.URL, &sm.Title, &sm.BudgetType, &sm.BudgetAmount,
			&sm.HourlyRateMin, &sm.HourlyRateMax, &sm.ExperienceLevel,
			&skillsJSON, &sm.ClientCountry, &sm.ClientRating,
			&sm.ClientSpent, &sm.ProposalsCount, &sm.PostedDate, &sm.Source,
		)
		if err != nil {
			return nil, fmt.Errorf("store: scan summary row: %w", err)
		}
		if len(skillsJSON) > 0 {
			_ = json.Unmarshal(skillsJSON, &sm.Skills)
		}
		out = append(out, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate summaries: %w", err)
	}
	return out, nil
}

// Stats aggregates the cache.
func (s *Postgres) Stats(ctx context.Context) (Stats, error) {
	st := Stats{ExperienceBreakdown: map[string]int{}}

	err := s.db.QueryRow(ctx, `
SELECT COUNT(*),
	COUNT(*) FILTER (WHERE source = 'feed'),
	COUNT(*) FILTER (WHERE source = 'search'),
	MAX(fetched_at)
FROM jobs`).Scan(&st.TotalJobs, &st.FeedCount, &st.SearchCount, &st.LastFetch)
	if err != nil {
		return Stats{}, fmt.Errorf("store: stats totals: %w", err)
	}

	err = s.db.QueryRow(ctx,
		`SELECT COALESCE(ROUND(AVG(budget_amount)::numeric, 2), 0) FROM jobs WHERE budget_amount > 0`,
	).Scan(&st.AvgBudget)
	if err != nil {
		return Stats{}, fmt.Errorf("store: stats avg budget: %w", err)
	}

	rows, err := s.db.Query(ctx, `
SELECT skill, COUNT(*)
FROM jobs, jsonb_array_elements_text(skills) AS skill
WHERE skill <> ''
GROUP BY skill
ORDER BY COUNT(*) DESC, skill ASC
LIMIT 20`)
	if err != nil {
		return Stats{}, fmt.Errorf("store: stats top skills: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sc SkillCount
		if err := rows.Scan(&sc.Skill, &sc.Count); err != nil {
			return Stats{}, fmt.Errorf("store: scan skill count: %w", err)
		}
		st.TopSkills = append(st.TopSkills, sc)
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("store: iterate skill counts: %w", err)
	}

	expRows, err := s.db.Query(ctx,
		`SELECT experience_level, COUNT(*) FROM jobs WHERE experience_level <> '' GROUP BY experience_level`)
	if err != nil {
		return Stats{}, fmt.Errorf("store: stats experience breakdown: %w", err)
	}
	defer expRows.Close()
	for expRows.Next() {
		var (
			level string
			count int
		)
		if err := expRows.Scan(&level, &count); err != nil {
			return Stats{}, fmt.Errorf("store: scan experience row: %w", err)
		}
		st.ExperienceBreakdown[level] = count
	}
	if err := expRows.Err(); err != nil {
		return Stats{}, fmt.Errorf("store: iterate experience rows: %w", err)
	}

	return st, nil
}

// BeginRun opens a fetch_sessions audit row.
func (s *Postgres) BeginRun(ctx context.Context, runType, query string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.db.Exec(ctx,
		`INSERT INTO fetch_sessions (id, type, query, started_at, status) VALUES ($1, $2, $3, $4, $5)`,
		id, runType, query, s.now().UTC(), RunRunning,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: begin run: %w", err)
	}
	return id, nil
}

// FinishRun closes an audit row with its outcome.
func (s *Postgres) FinishRun(ctx context.Context, id uuid.UUID, jobCount int, status RunStatus) error {
	_, err := s.db.Exec(ctx,
		`UPDATE fetch_sessions SET job_count = $1, completed_at = $2, status = $3 WHERE id = $4`,
		jobCount, s.now().UTC(), status, id,
	)
	if err != nil {
		return fmt.Errorf("store: finish run: %w", err)
	}
	return nil
}
