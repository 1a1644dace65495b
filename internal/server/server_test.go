package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/jellysync/internal/lock"
	"github.com/desertthunder/jellysync/internal/models"
	"github.com/desertthunder/jellysync/internal/shared"
	"github.com/desertthunder/jellysync/internal/tasks"
	tu "github.com/desertthunder/jellysync/internal/testing"
)

type countingJob struct {
	name string
	ids  []string

	mu   sync.Mutex
	runs int
}

func (j *countingJob) Name() string       { return j.name }
func (j *countingJob) TTL() time.Duration { return time.Minute }

func (j *countingJob) Targets(ctx context.Context) ([]tasks.Target, error) {
	j.mu.Lock()
	j.runs++
	j.mu.Unlock()
	out := make([]tasks.Target, 0, len(j.ids))
	for _, id := range j.ids {
		out = append(out, tasks.Target{ID: id})
	}
	return out, nil
}

func (j *countingJob) Process(ctx context.Context, target tasks.Target) error { return nil }

func (j *countingJob) Runs() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}

type stubPinger struct{ err error }

func (p stubPinger) Ping() error { return p.err }

type serverFixture struct {
	srv   *httptest.Server
	jobs  *JobsHandler
	job   *countingJob
	locks *lock.Manager
}

func newServer(t *testing.T, pinger Pinger) *serverFixture {
	t.Helper()
	logger := shared.NewLogger(io.Discard)
	clock := tu.FixedClock()
	locks := lock.NewManager(lock.NewMemoryStore(clock), logger)
	orch := tasks.NewOrchestrator(locks, nil, clock, logger)
	job := &countingJob{name: "download_missing_tracks", ids: []string{"a", "b"}}
	orch.Register(job)

	jobs := NewJobsHandler(context.Background(), orch, logger)
	srv := httptest.NewServer(NewRouter(jobs, NewHealthHandler(pinger), logger))
	t.Cleanup(srv.Close)
	return &serverFixture{srv: srv, jobs: jobs, job: job, locks: locks}
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func TestJobsHandler(t *testing.T) {
	t.Run("lists idle jobs", func(t *testing.T) {
		f := newServer(t, nil)
		resp, err := http.Get(f.srv.URL + "/jobs")
		if err != nil {
			t.Fatalf("GET /jobs: %v", err)
		}
		statuses := decode[[]models.JobStatus](t, resp)
		if len(statuses) != 1 || statuses[0].Name != "download_missing_tracks" || statuses[0].State != models.JobIdle {
			t.Errorf("statuses = %+v", statuses)
		}
	})

	t.Run("unknown job is 404", func(t *testing.T) {
		f := newServer(t, nil)
		resp, err := http.Get(f.srv.URL + "/jobs/nope")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}

		resp, err = http.Post(f.srv.URL+"/jobs/nope/run", "", nil)
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("run status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("wrong method is 405", func(t *testing.T) {
		f := newServer(t, nil)
		resp, err := http.Get(f.srv.URL + "/jobs/download_missing_tracks/run")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", resp.StatusCode)
		}
	})

	t.Run("wait returns the summary", func(t *testing.T) {
		f := newServer(t, nil)
		resp, err := http.Post(f.srv.URL+"/jobs/download_missing_tracks/run?wait=true", "", nil)
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d", resp.StatusCode)
		}
		body := decode[RunResponse](t, resp)
		if body.State != models.JobCompleted || body.Summary == nil || body.Summary.Processed != 2 {
			t.Errorf("body = %+v", body)
		}

		resp, _ = http.Get(f.srv.URL + "/jobs/download_missing_tracks")
		st := decode[models.JobStatus](t, resp)
		if st.State != models.JobCompleted || st.Percent != 100 {
			t.Errorf("status after run = %+v", st)
		}
	})

	t.Run("held lock reports skipped", func(t *testing.T) {
		f := newServer(t, nil)
		f.locks.TryAcquire(context.Background(), tasks.LockName("download_missing_tracks"), time.Minute)

		resp, err := http.Post(f.srv.URL+"/jobs/download_missing_tracks/run?wait=1", "", nil)
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		body := decode[RunResponse](t, resp)
		if body.State != models.JobSkipped {
			t.Errorf("state = %q, want skipped", body.State)
		}
		if f.job.Runs() != 0 {
			t.Error("job ran despite the held lock")
		}
	})

	t.Run("background trigger is accepted", func(t *testing.T) {
		f := newServer(t, nil)
		resp, err := http.Post(f.srv.URL+"/jobs/download_missing_tracks/run", "", nil)
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		if resp.StatusCode != http.StatusAccepted {
			t.Errorf("status = %d, want 202", resp.StatusCode)
		}
		resp.Body.Close()

		f.jobs.Wait()
		if f.job.Runs() != 1 {
			t.Errorf("runs = %d, want 1", f.job.Runs())
		}
	})

	t.Run("stream sends progress then done", func(t *testing.T) {
		f := newServer(t, nil)
		resp, err := http.Post(f.srv.URL+"/jobs/download_missing_tracks/run?stream=true", "", nil)
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		defer resp.Body.Close()
		if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
			t.Errorf("Content-Type = %q", ct)
		}

		var events []string
		var last string
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if name, ok := strings.CutPrefix(line, "event: "); ok {
				events = append(events, name)
			}
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				last = data
			}
		}

		if len(events) < 2 || events[len(events)-1] != "done" || events[0] != "progress" {
			t.Fatalf("events = %v", events)
		}
		var done RunResponse
		if err := json.Unmarshal([]byte(last), &done); err != nil {
			t.Fatalf("bad done payload %q: %v", last, err)
		}
		if done.State != models.JobCompleted {
			t.Errorf("done = %+v", done)
		}
	})
}

func TestHealthHandler(t *testing.T) {
	tc := []struct {
		name   string
		pinger Pinger
		want   int
	}{
		{"no store", nil, http.StatusOK},
		{"store reachable", stubPinger{}, http.StatusOK},
		{"store down", stubPinger{err: errors.New("database is closed")}, http.StatusServiceUnavailable},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			f := newServer(t, tt.pinger)
			resp, err := http.Get(f.srv.URL + "/healthz")
			if err != nil {
				t.Fatalf("GET /healthz: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newServer(t, nil)
	resp, err := http.Get(f.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestBasicRouter(t *testing.T) {
	t.Run("middleware order", func(t *testing.T) {
		var order []string
		mw := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}
		r := NewBasicRouter()
		r.Use(mw("first"), mw("second"))
		r.Handle(http.MethodGet, "/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		}))

		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))
		if strings.Join(order, ",") != "first,second,handler" {
			t.Errorf("order = %v", order)
		}
	})

	t.Run("recover", func(t *testing.T) {
		r := NewBasicRouter()
		r.Use(Recover(shared.NewLogger(io.Discard)))
		r.Handle(http.MethodGet, "/boom", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})
}
