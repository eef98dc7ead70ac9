package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pharmaverse/dashboard/internal/domain"
	"github.com/pharmaverse/dashboard/internal/dossier"
	"github.com/pharmaverse/dashboard/internal/orchestrator"
	"github.com/pharmaverse/dashboard/internal/session"
	"github.com/pharmaverse/dashboard/internal/store"
)

// WorkspaceHandler handles the analysis workspace endpoints.
type WorkspaceHandler struct {
	*Handler
}

// NewWorkspaceHandler creates a new workspace handler.
func NewWorkspaceHandler(base *Handler) *WorkspaceHandler {
	return &WorkspaceHandler{Handler: base}
}

// RegisterRoutes registers workspace routes.
func (h *WorkspaceHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/orchestrate", h.Orchestrate)
		r.Get("/session/{sessionID}", h.GetSession)
		r.Get("/session/{sessionID}/status", h.GetStatus)
		r.Post("/chat", h.Chat)
		r.Get("/dossier/{sessionID}", h.GetDossier)
		r.Post("/generate-report", h.GenerateReport)
		r.Get("/reports", h.ListReports)
		r.Get("/reports/{reportID}", h.GetReport)
	})
}

type orchestrateRequest struct {
	SessionID         string `json:"session_id,omitempty"`
	MoleculeName      string `json:"molecule_name"`
	Indication        string `json:"indication"`
	Geography         string `json:"geography,omitempty"`
	Timeframe         string `json:"timeframe,omitempty"`
	StrategicQuestion string `json:"strategic_question,omitempty"`
	Strategy          string `json:"strategy,omitempty"`
}

// Orchestrate validates the case, launches an analysis run in the
// background and returns the session handle immediately. The run's
// progress is observable through the status endpoint and the WebSocket.
func (h *WorkspaceHandler) Orchestrate(w http.ResponseWriter, r *http.Request) {
	var req orchestrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c := domain.NewCase(req.MoleculeName, req.Indication, req.Geography, req.Timeframe, req.StrategicQuestion)
	if err := c.Validate(); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Strategy == "" {
		req.Strategy = h.cfg.DefaultStrategy
	}
	strategy, err := orchestrator.ParseStrategy(req.Strategy)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	var sess *domain.Session
	if req.SessionID != "" {
		sess, err = h.sessions.Get(req.SessionID)
		if err != nil {
			Error(w, http.StatusNotFound, "session not found")
			return
		}
	} else {
		sess = h.sessions.Create(c)
	}

	release, err := h.sessions.BeginRun(sess.ID)
	if err != nil {
		slog.Warn("Run already in progress", "session_id", sess.ID)
		Error(w, http.StatusConflict, "run_in_progress")
		return
	}

	slog.Info("Launching analysis run", "session_id", sess.ID, "molecule", c.MoleculeName, "strategy", strategy)
	go func() {
		defer release()
		if err := h.orch.Run(context.Background(), sess, c, strategy, h.hub); err != nil {
			slog.Error("Analysis run failed", "session_id", sess.ID, "error", err)
		}
	}()

	JSON(w, http.StatusOK, map[string]interface{}{
		"session_id":      sess.ID,
		"status":          "processing",
		"agents_launched": domain.AllAgents(),
	})
}

// GetSession returns the full session snapshot.
func (h *WorkspaceHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, sess.Snapshot())
}

// GetStatus returns the compact polling view of a run.
func (h *WorkspaceHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	snap := sess.Snapshot()
	JSON(w, http.StatusOK, map[string]interface{}{
		"status":        snap.RunState,
		"agent_results": snap.Results,
		"statuses":      snap.Statuses,
		"progress":      sess.Progress(),
	})
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// Chat routes a follow-up question to at most one agent and returns the
// reply. Both the question and the reply land in the transcript.
func (h *WorkspaceHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		Error(w, http.StatusBadRequest, "message cannot be empty")
		return
	}

	sess, err := h.sessions.Get(req.SessionID)
	if err != nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	reply := h.orch.Chat(r.Context(), sess, req.Message, h.hub)
	JSON(w, http.StatusOK, map[string]string{
		"session_id": sess.ID,
		"reply":      reply,
	})
}

// GetDossier returns the molecule dossier view for a session.
func (h *WorkspaceHandler) GetDossier(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, dossier.Build(sess.Snapshot()))
}

type reportRequest struct {
	SessionID string   `json:"session_id"`
	Topic     string   `json:"topic,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// GenerateReport produces (or reuses) the session's report artifact and
// archives it.
func (h *WorkspaceHandler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.sessions.Get(req.SessionID)
	if err != nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	c := sess.Case()
	topic := req.Topic
	if topic == "" {
		topic = c.ReportTopic()
	}

	report, err := h.orch.GenerateReport(r.Context(), sess, topic, h.hub)
	if err != nil {
		slog.Error("Report generation failed", "session_id", sess.ID, "error", err)
		Error(w, http.StatusBadGateway, "report generation failed")
		return
	}

	rec := &store.ReportRecord{
		ReportID:     report.ReportID,
		SessionID:    sess.ID,
		Molecule:     c.MoleculeName,
		Indication:   c.Indication,
		Geography:    c.Geography,
		Topic:        topic,
		DownloadLink: report.DownloadLink,
		Tags:         req.Tags,
		CreatedAt:    time.Now(),
	}
	// The archive is best-effort; the artifact itself already exists.
	if err := h.repo.SaveReport(r.Context(), rec); err != nil {
		slog.Warn("Failed to archive report", "report_id", report.ReportID, "error", err)
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"session_id":    sess.ID,
		"report_id":     report.ReportID,
		"download_link": report.DownloadLink,
		"topic":         topic,
	})
}

// ListReports returns the report archive, newest first.
func (h *WorkspaceHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	records, err := h.repo.ListReports(r.Context())
	if err != nil {
		slog.Error("Failed to list reports", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	if records == nil {
		records = []*store.ReportRecord{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"reports": records})
}

// GetReport returns one archive record.
func (h *WorkspaceHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	rec, err := h.repo.GetReport(r.Context(), chi.URLParam(r, "reportID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "report not found")
			return
		}
		slog.Error("Failed to load report", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load report")
		return
	}
	JSON(w, http.StatusOK, rec)
}

// lookup resolves the sessionID route parameter, writing a 404 when the
// session is unknown or expired.
func (h *WorkspaceHandler) lookup(w http.ResponseWriter, r *http.Request) (*domain.Session, bool) {
	sess, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			Error(w, http.StatusNotFound, "session not found")
		} else {
			Error(w, http.StatusInternalServerError, "failed to load session")
		}
		return nil, false
	}
	return sess, true
}
