// Package api exposes the tracker operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/foresight/internal/model"
	"github.com/sells-group/foresight/internal/tracker"
)

// Server handles HTTP requests for the idea ledger.
type Server struct {
	tracker *tracker.Tracker
	port    int
}

// New creates an API server.
func New(t *tracker.Tracker, port int) *Server {
	return &Server{tracker: t, port: port}
}

// Router builds the chi router. Exposed for tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/submissions", s.submit)
	r.Get("/submissions/{id}", s.getSubmission)
	r.Get("/submissions/{id}/ancestors", s.ancestors)
	r.Get("/submissions/{id}/descendants", s.descendants)
	r.Post("/links", s.link)
	r.Post("/outcomes", s.recordOutcome)
	r.Get("/profiles/{ownerID}", s.profile)
	r.Get("/timeline/{ownerID}", s.timeline)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	zap.L().Info("starting server", zap.Int("port", s.port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerID        string   `json:"owner_id"`
		Text           string   `json:"text"`
		Confidence     *float64 `json:"confidence"`
		Classification string   `json:"classification"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, model.NewValidationError("body", "invalid JSON"))
		return
	}

	id, err := s.tracker.Submit(r.Context(), req.OwnerID, req.Text, req.Confidence, req.Classification)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"tracking_id": id})
}

func (s *Server) getSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := s.tracker.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) link(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ParentID       string  `json:"parent_id"`
		ChildID        string  `json:"child_id"`
		RefinementType string  `json:"refinement_type"`
		DepthIncrease  float64 `json:"depth_increase"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, model.NewValidationError("body", "invalid JSON"))
		return
	}

	edgeID, err := s.tracker.Link(r.Context(), req.ParentID, req.ChildID,
		model.RefinementType(req.RefinementType), req.DepthIncrease)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"edge_id": edgeID})
}

func (s *Server) recordOutcome(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TrackingID  string     `json:"tracking_id"`
		Result      float64    `json:"result"`
		Source      string     `json:"source"`
		ValidatedAt *time.Time `json:"validated_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, model.NewValidationError("body", "invalid JSON"))
		return
	}

	outcomeID, err := s.tracker.RecordOutcome(r.Context(), req.TrackingID, req.Result, req.Source, req.ValidatedAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"outcome_id": outcomeID})
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	p, err := s.tracker.Profile(r.Context(), chi.URLParam(r, "ownerID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) timeline(w http.ResponseWriter, r *http.Request) {
	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, model.NewValidationError("since", "must be RFC3339"))
			return
		}
		since = &ts
	}

	var entries []model.CapsuleEntry
	for entry, err := range s.tracker.Timeline(r.Context(), chi.URLParam(r, "ownerID"), since) {
		if err != nil {
			writeError(w, err)
			return
		}
		entries = append(entries, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) ancestors(w http.ResponseWriter, r *http.Request) {
	var steps []model.AncestorStep
	for step, err := range s.tracker.Ancestors(r.Context(), chi.URLParam(r, "id")) {
		if err != nil {
			writeError(w, err)
			return
		}
		steps = append(steps, step)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ancestors": steps})
}

func (s *Server) descendants(w http.ResponseWriter, r *http.Request) {
	children, err := s.tracker.Descendants(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"descendants": children})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body) //nolint:errcheck
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case model.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrCycle), errors.Is(err, model.ErrMultipleParent):
		status = http.StatusConflict
	case errors.Is(err, model.ErrTruncated):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
