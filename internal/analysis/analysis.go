// Package analysis derives market insight from cached listings: demand
// aggregation across skills, budgets and tiers, and portfolio project
// suggestions matched against a freelancer's own skill set.
package analysis

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/radarworks/upwork-radar/internal/listing"
	"github.com/radarworks/upwork-radar/internal/store"
)

// ErrNoData means the cache holds no jobs to analyze yet.
var ErrNoData = errors.New("analysis: no cached jobs; fetch some first")

// sampleLimit caps how many cached records one analysis reads.
const sampleLimit = 500

// Querier is the read-only slice of the store the analyzer needs.
type Querier interface {
	QueryListings(ctx context.Context, f store.Filter) ([]listing.Summary, error)
}

// Analyzer computes reports over the listing cache.
type Analyzer struct {
	q      Querier
	logger *zap.Logger
}

// New builds an Analyzer.
func New(q Querier, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{q: q, logger: logger}
}

// SkillDemand is one skill's frequency across the analyzed sample.
type SkillDemand struct {
	Skill      string  `json:"skill"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// BudgetBucket is one range of the fixed-budget distribution.
type BudgetBucket struct {
	Range      string  `json:"range"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// MarketReport aggregates demand signals across cached jobs.
type MarketReport struct {
	TotalJobsAnalyzed   int            `json:"total_jobs_analyzed"`
	SkillFocus          string         `json:"skill_focus"`
	TopSkills           []SkillDemand  `json:"top_skills"`
	BudgetDistribution  []BudgetBucket `json:"budget_distribution"`
	ExperienceBreakdown map[string]int `json:"experience_breakdown"`
	JobTypeSplit        map[string]int `json:"job_type_split"`
	AvgHourlyRateMin    float64        `json:"avg_hourly_rate_min"`
	AvgHourlyRateMax    float64        `json:"avg_hourly_rate_max"`
	AvgFixedBudget      float64        `json:"avg_fixed_budget"`
}

var budgetBuckets = []struct {
	label     string
	low, high float64
}{
	{"$0-$100", 0, 100},
	{"$100-$500", 100, 500},
	{"$500-$1K", 500, 1000},
	{"$1K-$5K", 1000, 5000},
	{"$5K-$10K", 5000, 10000},
	{"$10K+", 10000, math.Inf(1)},
}

// MarketRequirements aggregates skill demand, budget distribution,
// experience breakdown and pricing-type split over the cached sample.
// skillFocus narrows the sample to jobs mentioning that skill.
func (a *Analyzer) MarketRequirements(ctx context.Context, skillFocus string, topN int) (MarketReport, error) {
	if topN <= 0 {
		topN = 20
	}
	filter := store.Filter{Limit: sampleLimit}
	if skillFocus != "" {
		filter.SkillsContain = []string{skillFocus}
	}
	jobs, err := a.q.QueryListings(ctx, filter)
	if err != nil {
		return MarketReport{}, err
	}
	if len(jobs) == 0 {
		return MarketReport{}, ErrNoData
	}

	skillCounts := map[string]int{}
	expCounts := map[string]int{}
	typeCounts := map[string]int{}
	var budgets, hourlyMins, hourlyMaxs []float64

	for _, j := range jobs {
		for _, s := range j.Skills {
			skillCounts[s]++
		}
		if j.BudgetAmount != nil && *j.BudgetAmount > 0 {
			budgets = append(budgets, *j.BudgetAmount)
		}
		if j.HourlyRateMin != nil && *j.HourlyRateMin > 0 {
			hourlyMins = append(hourlyMins, *j.HourlyRateMin)
		}
		if j.HourlyRateMax != nil && *j.HourlyRateMax > 0 {
			hourlyMaxs = append(hourlyMaxs, *j.HourlyRateMax)
		}
		if j.ExperienceLevel != "" {
			expCounts[j.ExperienceLevel]++
		}
		switch {
		case j.HourlyRateMin != nil:
			typeCounts["hourly"]++
		case j.BudgetAmount != nil:
			typeCounts["fixed"]++
		}
	}

	total := len(jobs)
	report := MarketReport{
		TotalJobsAnalyzed:   total,
		SkillFocus:          skillFocus,
		TopSkills:           topSkills(skillCounts, total, topN),
		ExperienceBreakdown: expCounts,
		JobTypeSplit:        typeCounts,
		AvgHourlyRateMin:    round2(mean(hourlyMins)),
		AvgHourlyRateMax:    round2(mean(hourlyMaxs)),
		AvgFixedBudget:      round2(mean(budgets)),
	}
	if report.SkillFocus == "" {
		report.SkillFocus = "all"
	}

	for _, b := range budgetBuckets {
		count := 0
		for _, v := range budgets {
			if v >= b.low && v < b.high {
				count++
			}
		}
		if count > 0 {
			report.BudgetDistribution = append(report.BudgetDistribution, BudgetBucket{
				Range:      b.label,
				Count:      count,
				Percentage: round1(float64(count) / float64(len(budgets)) * 100),
			})
		}
	}

	return report, nil
}

func topSkills(counts map[string]int, total, topN int) []SkillDemand {
	out := make([]SkillDemand, 0, len(counts))
	for skill, count := range counts {
		out = append(out, SkillDemand{
			Skill:      skill,
			Count:      count,
			Percentage: round1(float64(count) / float64(total) * 100),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Skill < out[j].Skill
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }

// ProjectSuggestion is one portfolio project idea backed by observed
// demand.
type ProjectSuggestion struct {
	ProjectName         string   `json:"project_name"`
	Description         string   `json:"description"`
	SkillsDemonstrated  []string `json:"skills_demonstrated"`
	MatchingJobsCount   int      `json:"matching_jobs_count"`
	SampleJobTitles     []string `json:"sample_job_titles"`
	EstimatedComplexity string   `json:"estimated_complexity"`
	RepoIdea            string   `json:"github_repo_idea"`
	TechStack           []string `json:"tech_stack"`
}

type projectTheme struct {
	triggers    map[string]bool
	name        string
	description string
	complexity  string
	repo        string
}

var projectThemes = []projectTheme{
	{
		triggers:    set("react", "next", "nextjs", "typescript", "tailwind"),
		name:        "Full-Stack Dashboard",
		description: "Interactive analytics dashboard with real-time data visualization, auth, and responsive design. Demonstrates frontend mastery with modern frameworks.",
		complexity:  "week",
		repo:        "analytics-dashboard",
	},
	{
		triggers:    set("python", "fastapi", "django", "flask", "api"),
		name:        "REST API with Auth & Docs",
		description: "Production-ready REST API with JWT auth, rate limiting, auto-generated OpenAPI docs, database migrations, and comprehensive tests.",
		complexity:  "week",
		repo:        "production-api-template",
	},
	{
		triggers:    set("python", "ai", "machine learning", "openai", "llm", "gpt"),
		name:        "AI-Powered Tool",
		description: "SaaS tool that uses LLM APIs for intelligent text processing (summarization, extraction, or classification) with a clean UI and usage tracking.",
		complexity:  "week",
		repo:        "ai-text-toolkit",
	},
	{
		triggers:    set("node", "express", "mongodb", "postgresql", "database"),
		name:        "Multi-tenant SaaS Starter",
		description: "Backend for a multi-tenant SaaS app with user management, billing stubs, role-based access control, and API documentation.",
		complexity:  "month",
		repo:        "saas-backend-starter",
	},
	{
		triggers:    set("react native", "flutter", "mobile", "ios", "android"),
		name:        "Cross-Platform Mobile App",
		description: "Mobile app with offline-first architecture, push notifications, and cloud sync. Demonstrates mobile development best practices.",
		complexity:  "month",
		repo:        "mobile-app-starter",
	},
	{
		triggers:    set("automation", "scraping", "selenium", "playwright", "bot"),
		name:        "Web Automation Framework",
		description: "Extensible web automation tool with anti-detection, scheduling, data extraction, and export capabilities. Shows automation expertise.",
		complexity:  "week",
		repo:        "smart-automation-framework",
	},
	{
		triggers:    set("aws", "cloud", "docker", "kubernetes", "devops", "terraform"),
		name:        "Infrastructure as Code Template",
		description: "Complete IaC setup with CI/CD pipelines, monitoring, and auto-scaling. Demonstrates DevOps and cloud architecture skills.",
		complexity:  "week",
		repo:        "cloud-infra-template",
	},
}

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

// SuggestProjects cross-references the given skills against demanded
// skill combinations in the cache and proposes portfolio projects.
// targetTier, when set, narrows the sample to that experience level.
func (a *Analyzer) SuggestProjects(ctx context.Context, yourSkills []string, targetTier string, topN int) ([]ProjectSuggestion, error) {
	if topN <= 0 {
		topN = 5
	}
	mine := map[string]bool{}
	for _, s := range yourSkills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			mine[s] = true
		}
	}
	if len(mine) == 0 {
		return nil, errors.New("analysis: at least one skill is required")
	}

	jobs, err := a.q.QueryListings(ctx, store.Filter{
		ExperienceLevel: targetTier,
		Limit:           sampleLimit,
	})
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, ErrNoData
	}

	type combo struct {
		key    string
		skills []string
		count  int
	}
	combos := map[string]*combo{}
	var matching []listing.Summary

	for _, j := range jobs {
		lower := make([]string, 0, len(j.Skills))
		overlap := false
		for _, s := range j.Skills {
			ls := strings.ToLower(s)
			lower = append(lower, ls)
			if mine[ls] {
				overlap = true
			}
		}
		if !overlap {
			continue
		}
		matching = append(matching, j)
		if len(lower) > 8 {
			lower = lower[:8]
		}
		sorted := append([]string(nil), lower...)
		sort.Strings(sorted)
		key := strings.Join(sorted, "|")
		if c, ok := combos[key]; ok {
			c.count++
		} else {
			combos[key] = &combo{key: key, skills: sorted, count: 1}
		}
	}

	ranked := make([]*combo, 0, len(combos))
	for _, c := range combos {
		ranked = append(ranked, c)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].key < ranked[j].key
	})

	var suggestions []ProjectSuggestion
	seen := map[string]bool{}
	for _, c := range ranked {
		if len(suggestions) >= topN {
			break
		}

		var myMatch, newSkills []string
		for _, s := range c.skills {
			if mine[s] {
				myMatch = append(myMatch, s)
			} else {
				newSkills = append(newSkills, s)
			}
		}

		theme := pickTheme(myMatch, newSkills)
		if seen[theme.name] {
			continue
		}
		seen[theme.name] = true

		var titles []string
		for _, j := range matching {
			for _, s := range j.Skills {
				if containsStr(myMatch, strings.ToLower(s)) {
					titles = append(titles, j.Title)
					break
				}
			}
			if len(titles) >= 3 {
				break
			}
		}

		demonstrated := append([]string(nil), myMatch...)
		head := c.skills
		if len(head) > 3 {
			head = head[:3]
		}
		for _, s := range head {
			if !containsStr(demonstrated, s) {
				demonstrated = append(demonstrated, s)
			}
		}

		stack := c.skills
		if len(stack) > 6 {
			stack = stack[:6]
		}

		suggestions = append(suggestions, ProjectSuggestion{
			ProjectName:         theme.name,
			Description:         theme.description,
			SkillsDemonstrated:  demonstrated,
			MatchingJobsCount:   c.count,
			SampleJobTitles:     titles,
			EstimatedComplexity: theme.complexity,
			RepoIdea:            theme.repo,
			TechStack:           stack,
		})
	}

	return suggestions, nil
}

func pickTheme(mySkills, gapSkills []string) projectTheme {
	all := map[string]bool{}
	for _, s := range mySkillsUnion(mySkills, gapSkills) {
		all[strings.ToLower(s)] = true
	}

	var best *projectTheme
	bestScore := 0
	for i := range projectThemes {
		score := 0
		for trigger := range projectThemes[i].triggers {
			if all[trigger] {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = &projectThemes[i]
		}
	}
	if best != nil {
		return *best
	}

	head := mySkills
	if len(head) > 3 {
		head = head[:3]
	}
	label := strings.Join(head, ", ")
	return projectTheme{
		name:        "Portfolio Project (" + label + ")",
		description: "A showcase project demonstrating " + label + " skills with clean code, tests, and documentation.",
		complexity:  "week",
		repo:        "portfolio-showcase",
	}
}

func mySkillsUnion(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
