package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/jellysync/internal/models"
	"github.com/desertthunder/jellysync/internal/shared"
	"github.com/desertthunder/jellysync/internal/tasks"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// JobRunner is the orchestrator surface exposed over HTTP.
type JobRunner interface {
	Names() []string
	Status(name string) (*models.JobStatus, error)
	Statuses() ([]*models.JobStatus, error)
	RunByName(ctx context.Context, name string, progress chan<- tasks.ProgressUpdate) (*tasks.Summary, error)
}

// Pinger reports whether the persistence store is reachable.
type Pinger interface {
	Ping() error
}

// RunResponse is the body of POST /jobs/{name}/run.
type RunResponse struct {
	Job      string          `json:"job"`
	Accepted bool            `json:"accepted"`
	Summary  *tasks.Summary  `json:"summary,omitempty"`
	State    models.JobState `json:"state,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// ProgressEvent is one server-sent event of a streamed run.
type ProgressEvent struct {
	Job     string  `json:"job"`
	Phase   string  `json:"phase"`
	Step    int     `json:"step"`
	Total   int     `json:"total"`
	Failed  int     `json:"failed"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// JobsHandler serves job status and manual triggers.
//
// Background runs started by POST /jobs/{name}/run are bound to the handler's context, not the
// request's, so they outlive the response. [JobsHandler.Wait] blocks until they finish.
type JobsHandler struct {
	ctx    context.Context
	runner JobRunner
	logger *log.Logger
	mux    *http.ServeMux
	wg     sync.WaitGroup
}

// NewJobsHandler creates a JobsHandler.
func NewJobsHandler(ctx context.Context, runner JobRunner, logger *log.Logger) *JobsHandler {
	h := &JobsHandler{ctx: ctx, runner: runner, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /jobs", h.list)
	h.mux.HandleFunc("GET /jobs/{name}", h.get)
	h.mux.HandleFunc("POST /jobs/{name}/run", h.run)
	return h
}

// Routes returns the HTTP routes this handler serves.
func (h *JobsHandler) Routes() []string {
	return []string{"GET /jobs", "GET /jobs/{name}", "POST /jobs/{name}/run"}
}

func (h *JobsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Wait blocks until every background run has returned.
func (h *JobsHandler) Wait() {
	h.wg.Wait()
}

func (h *JobsHandler) list(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.runner.Statuses()
	if err != nil {
		h.logger.Error("failed to list job status", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (h *JobsHandler) get(w http.ResponseWriter, r *http.Request) {
	status, err := h.runner.Status(r.PathValue("name"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// run triggers a job. By default the run happens in the background and the response is 202.
// With ?wait=true the response carries the terminal summary; with ?stream=true progress is sent
// as server-sent events.
func (h *JobsHandler) run(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, err := h.runner.Status(name); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	query := r.URL.Query()
	switch {
	case flag(query.Get("stream")):
		h.stream(w, r, name)
	case flag(query.Get("wait")):
		summary, err := h.runner.RunByName(r.Context(), name, nil)
		resp := RunResponse{Job: name, Accepted: true, Summary: summary}
		code := http.StatusOK
		if summary != nil {
			resp.State = summary.State
		}
		if err != nil {
			resp.Error = err.Error()
			code = http.StatusInternalServerError
		}
		writeJSON(w, code, resp)
	default:
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			if _, err := h.runner.RunByName(h.ctx, name, nil); err != nil {
				h.logger.Error("triggered run failed", "job", name, "error", err)
			}
		}()
		writeJSON(w, http.StatusAccepted, RunResponse{Job: name, Accepted: true})
	}
}

func (h *JobsHandler) stream(w http.ResponseWriter, r *http.Request, name string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	progress := make(chan tasks.ProgressUpdate, 64)
	type outcome struct {
		summary *tasks.Summary
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		s, err := h.runner.RunByName(r.Context(), name, progress)
		close(progress)
		done <- outcome{s, err}
	}()

	for u := range progress {
		writeEvent(w, "progress", ProgressEvent{
			Job:     u.Job,
			Phase:   u.Phase.String(),
			Step:    u.Step,
			Total:   u.Total,
			Failed:  u.Failed,
			Percent: u.Percent(),
			Message: u.Message,
		})
		flusher.Flush()
	}

	res := <-done
	resp := RunResponse{Job: name, Accepted: true, Summary: res.summary}
	if res.summary != nil {
		resp.State = res.summary.State
	}
	if res.err != nil {
		resp.Error = res.err.Error()
	}
	writeEvent(w, "done", resp)
	flusher.Flush()
}

// HealthHandler reports whether the database is reachable.
type HealthHandler struct {
	store Pinger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(store Pinger) *HealthHandler {
	return &HealthHandler{store: store}
}

// Routes returns the HTTP routes this handler serves.
func (h *HealthHandler) Routes() []string {
	return []string{"GET /healthz"}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.Ping(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NewRouter wires the status surface: job endpoints, health check and Prometheus metrics.
func NewRouter(jobs *JobsHandler, health *HealthHandler, logger *log.Logger) *BasicRouter {
	r := NewBasicRouter()
	r.Use(Recover(logger), Logging(logger))
	r.Handler(jobs)
	r.Handler(health)
	r.Handle(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

func statusFor(err error) int {
	if errors.Is(err, shared.ErrJobNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func flag(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeEvent(w http.ResponseWriter, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
