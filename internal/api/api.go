package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/joescharf/rq/internal/logging"
	"github.com/joescharf/rq/internal/metrics"
	"github.com/joescharf/rq/internal/models"
	"github.com/joescharf/rq/internal/store"
)

// Server provides the REST API handlers.
type Server struct {
	store   store.Store
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewServer creates a new API server. m may be nil to disable metrics.
func NewServer(s store.Store, m *metrics.Metrics) *Server {
	return &Server{
		store:   s,
		metrics: m,
		log:     logging.Component("api"),
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/projects/{projectId}/batches/{batchId}/submissions", s.listSubmissions)

	mux.HandleFunc("GET /api/v1/submissions/{id}", s.getSubmission)
	mux.HandleFunc("PUT /api/v1/submissions/{id}", s.reviewSubmission)
	mux.HandleFunc("GET /api/v1/submissions/{id}/attachments", s.listAttachments)

	mux.HandleFunc("GET /api/v1/submission/statuses", s.listStatuses)

	return corsMiddleware(s.observe(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// observe records per-route metrics and logs requests at debug level.
func (s *Server) observe(next *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		_, pattern := next.Handler(r)
		if pattern == "" {
			pattern = "unmatched"
		}
		elapsed := time.Since(start)
		s.metrics.ObserveRequest(pattern, rec.code, elapsed)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("code", rec.code).
			Dur("elapsed", elapsed).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeInfo writes a failure body carrying one info item per message.
func writeInfo(w http.ResponseWriter, status int, info []models.ErrorInfo) {
	writeJSON(w, status, models.ErrorResponse{Info: info})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeInfo(w, status, []models.ErrorInfo{{Message: msg, Type: "error"}})
}

// storeError maps a store error onto a status code.
func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.log.Error().Err(err).Msg("store failure")
	writeError(w, http.StatusInternalServerError, err.Error())
}

func pathID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid submission id %q", r.PathValue("id"))
	}
	return id, nil
}

// --- Submissions ---

func (s *Server) listSubmissions(w http.ResponseWriter, r *http.Request) {
	filter := store.SubmissionListFilter{
		ProjectID: r.PathValue("projectId"),
		BatchID:   r.PathValue("batchId"),
		Status:    models.ReviewStatus(strings.ToUpper(r.URL.Query().Get("status"))),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", filter.Status))
		return
	}

	subs, err := s.store.ListSubmissions(r.Context(), filter)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if subs == nil {
		subs = []*models.SubmissionSummary{}
	}
	writeJSON(w, http.StatusOK, models.SubmissionList{Count: len(subs), Results: subs})
}

func (s *Server) getSubmission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sub, err := s.store.GetSubmission(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	models.SortParts(sub.Parts)
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) reviewSubmission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var payload models.ReviewPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	existing, err := s.store.GetSubmission(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}

	if problems := ValidateReview(existing, payload); len(problems) > 0 {
		s.metrics.ReviewRefused()
		writeInfo(w, http.StatusBadRequest, problems)
		return
	}

	updated, err := s.store.ReviewSubmission(r.Context(), id, payload)
	if err != nil {
		s.storeError(w, err)
		return
	}

	s.metrics.ReviewAccepted(string(updated.Status))
	s.log.Info().Int("submission", id).Str("status", string(updated.Status)).Msg("review saved")
	writeJSON(w, http.StatusOK, updated)
}

// ValidateReview returns one info item per problem with payload against sub.
func ValidateReview(sub *models.Submission, payload models.ReviewPayload) []models.ErrorInfo {
	var problems []models.ErrorInfo
	add := func(format string, a ...any) {
		problems = append(problems, models.ErrorInfo{Message: fmt.Sprintf(format, a...), Type: "error"})
	}

	if payload.TimeElapsed < 0 {
		add("timeElapsed must not be negative")
	}

	if sub.HasParts() {
		if !payload.HasParts() {
			add("submission %d is reviewed part by part", sub.ID)
			return problems
		}
		known := make(map[int]bool, len(sub.Parts))
		for _, p := range sub.Parts {
			known[p.Index] = true
		}
		for _, p := range payload.Parts {
			label := p.Index + 1
			switch {
			case !known[p.Index]:
				add("part %d does not exist", label)
			case !p.ReviewStatus.Valid():
				add("part %d: unknown status %q", label, p.ReviewStatus)
			case p.ReviewStatus == models.ReviewStatusRejected && strings.TrimSpace(p.Feedback) == "":
				add("part %d: feedback is required when rejecting", label)
			}
		}
		return problems
	}

	if payload.HasParts() {
		add("submission %d has no parts", sub.ID)
		return problems
	}
	if !payload.Status.Valid() {
		add("status must be one of %s", joinStatuses(models.ReviewStatuses))
	}
	if payload.Status == models.ReviewStatusRejected && strings.TrimSpace(payload.Feedback) == "" {
		add("feedback is required when rejecting")
	}
	return problems
}

func joinStatuses(statuses []models.ReviewStatus) string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return strings.Join(out, ", ")
}

// --- Attachments ---

func (s *Server) listAttachments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.store.GetSubmission(r.Context(), id); err != nil {
		s.storeError(w, err)
		return
	}
	attachments, err := s.store.ListAttachments(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attachments)
}

// --- Statuses ---

func (s *Server) listStatuses(w http.ResponseWriter, _ *http.Request) {
	out := models.StatusOptionList{Results: make([]models.StatusOption, 0, len(models.ReviewStatuses))}
	for _, st := range models.ReviewStatuses {
		out.Results = append(out.Results, models.StatusOption{Label: st})
	}
	writeJSON(w, http.StatusOK, out)
}
