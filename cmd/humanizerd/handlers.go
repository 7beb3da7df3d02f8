package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	humanizer "github.com/veritext/humanizer"
	"github.com/veritext/humanizer/credit"
	"github.com/veritext/humanizer/id"
	"github.com/veritext/humanizer/pipeline"
	"github.com/veritext/humanizer/plan"
	"github.com/veritext/humanizer/project"
)

type api struct {
	engine *humanizer.Engine
	logger *slog.Logger
}

func newHandler(engine *humanizer.Engine, logger *slog.Logger, rps float64, burst int) http.Handler {
	a := &api{engine: engine, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.health)
	mux.HandleFunc("POST /v1/humanize", a.humanize)
	mux.HandleFunc("GET /v1/balance", a.balance)
	mux.HandleFunc("POST /v1/credits/grant", a.grantCredits)
	mux.HandleFunc("POST /v1/plan", a.setPlan)
	mux.HandleFunc("POST /v1/cycle/renew", a.renewCycle)
	mux.HandleFunc("GET /v1/usage", a.usage)
	mux.HandleFunc("POST /v1/projects", a.createProject)
	mux.HandleFunc("GET /v1/projects", a.listProjects)
	mux.HandleFunc("GET /v1/projects/{id}", a.getProject)
	mux.HandleFunc("POST /v1/projects/{id}/favorite", a.toggleFavorite)
	mux.HandleFunc("DELETE /v1/projects/{id}", a.deleteProject)

	var handler http.Handler = mux
	handler = newRateLimiter(rps, burst)(handler)
	handler = requestLogger(logger)(handler)
	return handler
}

// ──────────────────────────────────────────────────
// Middleware
// ──────────────────────────────────────────────────

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

// newRateLimiter limits each client independently. Clients are keyed by the
// user_id query or body field when present, falling back to remote address.
func newRateLimiter(rps float64, burst int) func(http.Handler) http.Handler {
	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)
	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if l, ok := limiters[key]; ok {
			return l
		}
		l := rate.NewLimiter(rate.Limit(rps), burst)
		limiters[key] = l
		return l
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.URL.Query().Get("user_id")
			if key == "" {
				key = r.RemoteAddr
			}
			if !limiterFor(key).Allow() {
				writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ──────────────────────────────────────────────────
// Handlers
// ──────────────────────────────────────────────────

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) humanize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Text   string `json:"text"`
		Level  string `json:"level"`
	}
	if !decode(w, r, &req) {
		return
	}

	level, err := pipeline.ParseLevel(req.Level)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_level", err.Error())
		return
	}

	res, err := a.engine.Humanize(r.Context(), req.UserID, req.Text, level)
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) balance(w http.ResponseWriter, r *http.Request) {
	info, err := a.engine.Balance(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *api) grantCredits(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Amount int64  `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}

	info, err := a.engine.GrantCredits(r.Context(), req.UserID, req.Amount)
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *api) setPlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Tier   string `json:"tier"`
	}
	if !decode(w, r, &req) {
		return
	}

	tier, err := plan.ParseTier(req.Tier)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "unknown_tier", err.Error())
		return
	}

	if err := a.engine.SetPlan(r.Context(), req.UserID, tier); err != nil {
		a.writeEngineError(w, err)
		return
	}

	info, err := a.engine.Balance(r.Context(), req.UserID)
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *api) renewCycle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if !decode(w, r, &req) {
		return
	}

	if err := a.engine.RenewCycle(r.Context(), req.UserID); err != nil {
		a.writeEngineError(w, err)
		return
	}

	info, err := a.engine.Balance(r.Context(), req.UserID)
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *api) usage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := credit.QueryOpts{
		Level:  q.Get("level"),
		Limit:  intParam(q.Get("limit"), 50),
		Offset: intParam(q.Get("offset"), 0),
	}

	events, err := a.engine.Usage(r.Context(), q.Get("user_id"), opts)
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (a *api) createProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Title  string `json:"title"`
		Text   string `json:"text"`
		Result string `json:"result"`
	}
	if !decode(w, r, &req) {
		return
	}

	proj, err := a.engine.SaveProject(r.Context(), req.UserID, req.Title, req.Text, req.Result)
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, proj)
}

func (a *api) listProjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := project.ListOpts{
		Search:        q.Get("search"),
		FavoritesOnly: q.Get("favorites") == "true",
		Limit:         intParam(q.Get("limit"), 50),
		Offset:        intParam(q.Get("offset"), 0),
	}

	projects, err := a.engine.ListProjects(r.Context(), q.Get("user_id"), opts)
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (a *api) getProject(w http.ResponseWriter, r *http.Request) {
	projID, ok := a.projectID(w, r)
	if !ok {
		return
	}
	proj, err := a.engine.GetProject(r.Context(), projID)
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proj)
}

func (a *api) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	projID, ok := a.projectID(w, r)
	if !ok {
		return
	}
	proj, err := a.engine.ToggleFavorite(r.Context(), projID)
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proj)
}

func (a *api) deleteProject(w http.ResponseWriter, r *http.Request) {
	projID, ok := a.projectID(w, r)
	if !ok {
		return
	}
	if err := a.engine.DeleteProject(r.Context(), projID); err != nil {
		a.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) projectID(w http.ResponseWriter, r *http.Request) (id.ProjectID, bool) {
	projID, err := id.ParseProjectID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return id.Nil, false
	}
	return projID, true
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

func intParam(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // response already committed
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

// writeEngineError maps engine errors to stable HTTP error codes.
func (a *api) writeEngineError(w http.ResponseWriter, err error) {
	var verr humanizer.ValidationError

	switch {
	case errors.Is(err, humanizer.ErrEmptyInput):
		writeError(w, http.StatusUnprocessableEntity, "empty_input", "input text must not be empty")
	case errors.Is(err, humanizer.ErrInvalidLevel):
		writeError(w, http.StatusUnprocessableEntity, "invalid_level", "unknown humanization level")
	case errors.Is(err, humanizer.ErrInsufficientCredits):
		writeError(w, http.StatusPaymentRequired, "insufficient_credits", "not enough credits for this request")
	case errors.Is(err, humanizer.ErrUnknownTier):
		writeError(w, http.StatusUnprocessableEntity, "unknown_tier", "unknown plan tier")
	case errors.Is(err, humanizer.ErrInvalidAmount):
		writeError(w, http.StatusUnprocessableEntity, "invalid_amount", "amount must be positive")
	case humanizer.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &verr):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", verr.Error())
	case errors.Is(err, humanizer.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", "user_id is required")
	default:
		a.logger.Error("internal error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
