package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/loqalabs/loqa-taskgen/internal/protocol"
	"github.com/loqalabs/loqa-taskgen/internal/service"
	"github.com/loqalabs/loqa-taskgen/internal/taskgen"
)

const maxRequestBody = 1 << 20

type api struct {
	svc    *service.Service
	ready  func() bool
	logger *slog.Logger
}

type generationView struct {
	ID        int64           `json:"id"`
	RequestID string          `json:"request_id"`
	Operation string          `json:"operation"`
	Title     string          `json:"title"`
	Team      string          `json:"team,omitempty"`
	LatencyMS int64           `json:"latency_ms"`
	CreatedAt time.Time       `json:"created_at"`
	Result    json.RawMessage `json:"result,omitempty"`
}

func newHandler(svc *service.Service, ready func() bool, metrics http.Handler, logger *slog.Logger) http.Handler {
	a := &api{svc: svc, ready: ready, logger: logger.With(slog.String("component", "http"))}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("GET /readyz", a.handleReady)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	mux.HandleFunc("POST /v1/tasks/description", a.handleDescription)
	mux.HandleFunc("POST /v1/tasks/checklist", a.handleChecklist)
	mux.HandleFunc("GET /v1/teams", a.handleTeams)
	mux.HandleFunc("GET /v1/generations", a.handleGenerations)
	return mux
}

func (a *api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *api) handleReady(w http.ResponseWriter, _ *http.Request) {
	if a.ready() && a.svc.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (a *api) handleDescription(w http.ResponseWriter, r *http.Request) {
	var req protocol.TaskDescriptionRequest
	if !a.decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), a.svc.RequestTimeout())
	defer cancel()
	resp, err := a.svc.Describe(ctx, req)
	a.writeJSON(w, statusFor(err), resp)
}

func (a *api) handleChecklist(w http.ResponseWriter, r *http.Request) {
	var req protocol.SubtaskChecklistRequest
	if !a.decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), a.svc.RequestTimeout())
	defer cancel()
	resp, err := a.svc.Checklist(ctx, req)
	a.writeJSON(w, statusFor(err), resp)
}

func (a *api) handleTeams(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]any{
		"teams":    taskgen.Teams(),
		"fallback": taskgen.FallbackTeam,
	})
}

func (a *api) handleGenerations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	operation := query.Get("operation")
	switch operation {
	case "", protocol.OperationDescription, protocol.OperationChecklist:
	default:
		a.writeError(w, http.StatusBadRequest, "operation must be description or checklist")
		return
	}
	limit := 50
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			a.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := a.svc.Recent(r.Context(), operation, limit)
	if err != nil {
		a.logger.Warn("failed to list generations", slog.String("error", err.Error()))
		a.writeError(w, http.StatusInternalServerError, "failed to list generations")
		return
	}
	views := make([]generationView, 0, len(records))
	for _, rec := range records {
		views = append(views, generationView{
			ID:        rec.ID,
			RequestID: rec.RequestID,
			Operation: rec.Operation,
			Title:     rec.Title,
			Team:      rec.Team,
			LatencyMS: rec.LatencyMS,
			CreatedAt: rec.CreatedAt,
			Result:    json.RawMessage(rec.Payload),
		})
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"generations": views})
}

func (a *api) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(dst); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusServiceUnavailable
	}
}

func (a *api) writeError(w http.ResponseWriter, status int, message string) {
	a.writeJSON(w, status, map[string]string{"error": message})
}

func (a *api) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.logger.Warn("failed to write response", slog.String("error", err.Error()))
	}
}
