package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/radarworks/upwork-radar/internal/analysis"
	"github.com/radarworks/upwork-radar/internal/listing"
	"github.com/radarworks/upwork-radar/internal/orchestrator"
	"github.com/radarworks/upwork-radar/internal/scraper"
	"github.com/radarworks/upwork-radar/internal/session"
	"github.com/radarworks/upwork-radar/internal/store"
)

type startSessionRequest struct {
	Headless *bool `json:"headless"`
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	// Default to a visible window: the start flow exists so an operator
	// can complete login and any CAPTCHA by hand.
	headless := false
	if req.Headless != nil {
		headless = *req.Headless
	}
	writeJSON(w, http.StatusOK, s.scraper.Start(r.Context(), headless))
}

func (s *Server) sessionStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scraper.Status(r.Context()))
}

func (s *Server) checkAuth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scraper.CheckAuth(r.Context()))
}

func (s *Server) stopSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scraper.Stop(r.Context()))
}

type scrapeFeedRequest struct {
	MaxJobs int `json:"max_jobs"`
}

func (s *Server) scrapeFeed(w http.ResponseWriter, r *http.Request) {
	var req scrapeFeedRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	res, err := s.scraper.FetchFeed(r.Context(), req.MaxJobs)
	if err != nil {
		s.writeScrapeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) scrapeSearch(w http.ResponseWriter, r *http.Request) {
	var params listing.SearchParams
	if err := decodeBody(r, &params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	res, err := s.scraper.FetchSearch(r.Context(), params)
	if err != nil {
		s.writeScrapeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type scrapeDetailRequest struct {
	JobURL string `json:"job_url"`
}

func (s *Server) scrapeJobDetail(w http.ResponseWriter, r *http.Request) {
	var req scrapeDetailRequest
	if err := decodeBody(r, &req); err != nil || req.JobURL == "" {
		writeError(w, http.StatusBadRequest, "missing job_url")
		return
	}
	l, err := s.scraper.FetchDetail(r.Context(), req.JobURL)
	if err != nil {
		s.writeScrapeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	jobs, err := s.jobs.QueryListings(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(jobs), "jobs": jobs})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")
	l, err := s.jobs.GetListing(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.jobs.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stats failed")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) marketAnalysis(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	topN := 0
	if raw := q.Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid top")
			return
		}
		topN = n
	}
	report, err := s.analyzer.MarketRequirements(r.Context(), q.Get("skill_focus"), topN)
	if err != nil {
		s.writeAnalysisError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type projectSuggestionsRequest struct {
	Skills     []string `json:"skills"`
	TargetTier string   `json:"target_tier"`
	Top        int      `json:"top"`
}

func (s *Server) projectSuggestions(w http.ResponseWriter, r *http.Request) {
	var req projectSuggestionsRequest
	if err := decodeBody(r, &req); err != nil || len(req.Skills) == 0 {
		writeError(w, http.StatusBadRequest, "missing skills")
		return
	}
	suggestions, err := s.analyzer.SuggestProjects(r.Context(), req.Skills, req.TargetTier, req.Top)
	if err != nil {
		s.writeAnalysisError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

// decodeBody tolerates an empty body so POSTs with all-default parameters
// need no payload.
func decodeBody(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) writeScrapeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrNotAuthenticated),
		errors.Is(err, scraper.ErrNotAuthenticated),
		errors.Is(err, scraper.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, "not authenticated, log in and run check-auth")
	case errors.Is(err, orchestrator.ErrInvalidParams):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, scraper.ErrChallenged), isChallengeError(err):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeAnalysisError(w http.ResponseWriter, err error) {
	if errors.Is(err, analysis.ErrNoData) {
		writeError(w, http.StatusNotFound, "no cached listings to analyze, scrape first")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func isChallengeError(err error) bool {
	var ce *session.ChallengeError
	return errors.As(err, &ce)
}

func filterFromQuery(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	f := store.Filter{
		Source:          listing.Source(q.Get("source")),
		ExperienceLevel: q.Get("experience_level"),
		SortBy:          q.Get("sort_by"),
	}
	if raw := q.Get("skills"); raw != "" {
		for _, skill := range strings.Split(raw, ",") {
			if skill = strings.TrimSpace(skill); skill != "" {
				f.SkillsContain = append(f.SkillsContain, skill)
			}
		}
	}
	var err error
	if raw := q.Get("min_budget"); raw != "" {
		if f.MinBudget, err = strconv.ParseFloat(raw, 64); err != nil || f.MinBudget < 0 {
			return f, errors.New("invalid min_budget")
		}
	}
	if raw := q.Get("posted_within_hours"); raw != "" {
		if f.PostedWithinHours, err = strconv.Atoi(raw); err != nil || f.PostedWithinHours < 0 {
			return f, errors.New("invalid posted_within_hours")
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if f.Limit, err = strconv.Atoi(raw); err != nil || f.Limit < 0 {
			return f, errors.New("invalid limit")
		}
	}
	return f, nil
}
