// Package api exposes leads, enrichment and progress polling over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/replypilot/enrich-cli/internal/discover"
	"github.com/replypilot/enrich-cli/internal/enrich"
	"github.com/replypilot/enrich-cli/internal/leads"
	"github.com/replypilot/enrich-cli/internal/model"
	"github.com/replypilot/enrich-cli/internal/store"
)

// Enricher runs enrichments and reports their progress.
type Enricher interface {
	EnrichIdentity(ctx context.Context, userID, leadID string) (*model.Outcome, error)
	EnrichContact(ctx context.Context, userID, leadID string) (*model.Outcome, error)
	LatestLog(ctx context.Context, userID, leadID string, goal model.Goal) (*model.LogEntry, error)
}

// Discoverer imports leads from a place search.
type Discoverer interface {
	Run(ctx context.Context, userID string, req discover.Request) (*discover.Result, error)
}

// Deps are the services behind the routes. Discover may be nil when no
// Places key is configured.
type Deps struct {
	Leads    *leads.Service
	Enricher Enricher
	Discover Discoverer
}

// Options configure the router.
type Options struct {
	JWTSecret   string
	CORSOrigins []string
}

type handler struct {
	Deps
}

// NewRouter builds the HTTP surface.
func NewRouter(d Deps, opts Options) http.Handler {
	h := &handler{Deps: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(Auth(opts.JWTSecret))

		r.Get("/leads", h.listLeads)
		r.Post("/leads", h.createLead)
		r.Post("/leads/discover", h.discover)
		r.Patch("/leads/{id}", h.updateLead)
		r.Delete("/leads/{id}", h.deleteLead)

		r.Post("/leads/{id}/enrich/identity", h.enrichIdentity)
		r.Post("/leads/{id}/enrich/contact", h.enrichContact)
		r.Post("/leads/{id}/enrich/social", h.enrichSocial)
		r.Get("/leads/{id}/enrich/status/{goal}", h.enrichStatus)
	})

	return r
}

func (h *handler) listLeads(w http.ResponseWriter, r *http.Request) {
	ls, err := h.Leads.List(r.Context(), UserID(r.Context()))
	if err != nil {
		writeErr(w, err)
		return
	}
	if ls == nil {
		ls = []model.Lead{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": ls})
}

func (h *handler) createLead(w http.ResponseWriter, r *http.Request) {
	var in leads.NewLead
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	l, err := h.Leads.Create(r.Context(), UserID(r.Context()), in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"lead": l})
}

func (h *handler) updateLead(w http.ResponseWriter, r *http.Request) {
	var p leads.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	l, err := h.Leads.Update(r.Context(), UserID(r.Context()), chi.URLParam(r, "id"), p)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lead": l})
}

func (h *handler) deleteLead(w http.ResponseWriter, r *http.Request) {
	if err := h.Leads.Delete(r.Context(), UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) discover(w http.ResponseWriter, r *http.Request) {
	if h.Discover == nil {
		writeError(w, http.StatusServiceUnavailable, "discovery is not configured")
		return
	}
	var req discover.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	res, err := h.Discover.Run(r.Context(), UserID(r.Context()), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) enrichIdentity(w http.ResponseWriter, r *http.Request) {
	out, err := h.Enricher.EnrichIdentity(r.Context(), UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if out.Updated {
		writeJSON(w, http.StatusOK, map[string]any{"updatedLead": out.Lead, "gptEval": out.Eval})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lead": out.Lead, "eval": out.Eval})
}

func (h *handler) enrichContact(w http.ResponseWriter, r *http.Request) {
	out, err := h.Enricher.EnrichContact(r.Context(), UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if out.Updated {
		writeJSON(w, http.StatusOK, map[string]any{"updatedLead": out.Lead, "eval": out.Eval})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lead": out.Lead, "eval": out.Eval})
}

func (h *handler) enrichSocial(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotImplemented, "social enrichment is not available")
}

func (h *handler) enrichStatus(w http.ResponseWriter, r *http.Request) {
	goal, ok := model.ParseGoal(chi.URLParam(r, "goal"))
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown goal")
		return
	}
	userID, leadID := UserID(r.Context()), chi.URLParam(r, "id")
	if _, err := h.Leads.Get(r.Context(), userID, leadID); err != nil {
		writeErr(w, err)
		return
	}
	entry, err := h.Enricher.LatestLog(r.Context(), userID, leadID, goal)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"log": entry})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, enrich.ErrLeadNotFound):
		return http.StatusNotFound
	case errors.Is(err, leads.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrDuplicatePlace):
		return http.StatusConflict
	case errors.Is(err, enrich.ErrUnsupportedGoal):
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func writeErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := http.StatusText(status)
	switch status {
	case http.StatusInternalServerError:
		zap.L().Error("api: request failed", zap.Error(err))
	case http.StatusBadRequest:
		msg = err.Error()
	}
	writeError(w, status, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
