package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/codesight-dev/codesight/internal/config"
	"github.com/codesight-dev/codesight/internal/domain"
	"github.com/codesight-dev/codesight/internal/generator"
	"github.com/codesight-dev/codesight/internal/identity"
	"github.com/codesight-dev/codesight/internal/sandbox"
	"github.com/codesight-dev/codesight/internal/scheduler"
	"github.com/codesight-dev/codesight/internal/store"
)

type fakeRunner struct {
	mu     sync.Mutex
	result sandbox.Result
	err    error
	calls  int
}

func (f *fakeRunner) Run(ctx context.Context, req sandbox.Request) (*sandbox.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	r := f.result
	return &r, nil
}

func (f *fakeRunner) Ping(ctx context.Context) error { return nil }
func (f *fakeRunner) Close() error                   { return nil }

type fakeRepo struct {
	mu   sync.Mutex
	subs map[string]*domain.Submission
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{subs: make(map[string]*domain.Submission)}
}

func (f *fakeRepo) SaveSubmission(ctx context.Context, sub *domain.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[sub.Session.ID] = sub
	return nil
}

func (f *fakeRepo) GetSubmission(ctx context.Context, sessionID string) (*domain.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[sessionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return sub, nil
}

func (f *fakeRepo) ListSessionIDs(ctx context.Context, candidateID string) ([]string, error) {
	return nil, nil
}

func (f *fakeRepo) Ping(ctx context.Context) error { return nil }
func (f *fakeRepo) Close() error                   { return nil }

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, req generator.Request) (*generator.Result, error) {
	return &generator.Result{Content: "What invariant does your loop maintain?"}, nil
}

type testEnv struct {
	server   *httptest.Server
	registry *scheduler.Registry
	repo     *fakeRepo
	runner   *fakeRunner
	cookie   *http.Cookie
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := schedulerTestConfig()

	registry := scheduler.NewRegistry(cfg, scheduler.Deps{
		Generator: stubGenerator{},
		Logger:    logger,
	})
	t.Cleanup(registry.Close)

	repo := newFakeRepo()
	runner := &fakeRunner{result: sandbox.Result{
		Success: false, TestsPassed: 1, TestsTotal: 3,
		Results: []sandbox.TestResult{{Passed: true}, {}, {}},
	}}

	h := NewHandler(registry, runner, repo, NewProblemSet(), logger)

	r := chi.NewRouter()
	r.Use(identity.Middleware(true))
	r.Route("/api", func(r chi.Router) {
		r.Get("/problems", h.ListProblems)
		r.Post("/sessions", h.StartSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Post("/edit", h.RecordEdit)
			r.Post("/run", h.RunCode)
			r.Post("/hint", h.RequestHint)
			r.Post("/interventions/{interventionID}/resolve", h.ResolveIntervention)
			r.Post("/submit", h.SubmitSession)
		})
		r.Get("/submissions/{sessionID}", h.GetSubmission)
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return &testEnv{server: server, registry: registry, repo: repo, runner: runner}
}

// do sends a JSON request, reusing the candidate cookie once minted.
func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if e.cookie != nil {
		req.AddCookie(e.cookie)
	}
	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	for _, c := range resp.Cookies() {
		if c.Name == identity.AnonCookieName {
			e.cookie = c
		}
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func schedulerTestConfig() (cfg config.SchedulerConfig) {
	cfg.PauseThreshold = 15 * time.Second
	cfg.LongPauseThreshold = 45 * time.Second
	cfg.NoProgressThreshold = 5 * time.Minute
	cfg.GracePeriod = 30 * time.Second
	cfg.ChallengeCooldown = 2 * time.Minute
	cfg.GeneratorTimeout = 2 * time.Second
	cfg.PauseTick = time.Hour // detectors driven manually in these tests
	cfg.NoProgressTick = time.Hour
	cfg.MinCodeChangeChars = 20
	cfg.MinCodeLengthChars = 30
	cfg.HintQuota = 3
	cfg.FailureThreshold = 2
	return cfg
}

func TestStartEditRunSubmitFlow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/sessions", map[string]string{
		"problemId": "two-sum", "language": "python",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start session: status %d", resp.StatusCode)
	}
	started := decodeBody[startSessionResponse](t, resp)
	if started.SessionID == "" || started.Problem.ID != "two-sum" {
		t.Fatalf("start response = %+v", started)
	}
	if started.HintsRemaining != 3 {
		t.Errorf("hints remaining = %d, want 3", started.HintsRemaining)
	}

	base := "/api/sessions/" + started.SessionID
	code := "def two_sum(nums, target):\n    return []\n"

	resp = env.do(t, http.MethodPost, base+"/edit", map[string]string{"code": code})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("edit: status %d", resp.StatusCode)
	}
	metrics := decodeBody[domain.MetricsSnapshot](t, resp)
	if metrics.TotalChanges != 1 {
		t.Errorf("total changes = %d, want 1", metrics.TotalChanges)
	}

	resp = env.do(t, http.MethodPost, base+"/run", map[string]string{"code": code})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("run: status %d", resp.StatusCode)
	}
	result := decodeBody[sandbox.Result](t, resp)
	if result.TestsPassed != 1 || result.TestsTotal != 3 {
		t.Errorf("run result = %+v", result)
	}

	resp = env.do(t, http.MethodPost, base+"/submit", map[string]string{"code": code})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit: status %d", resp.StatusCode)
	}
	submitted := decodeBody[submitResponse](t, resp)
	if submitted.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", submitted.Attempts)
	}

	// Session is gone from the registry but readable from the store.
	resp = env.do(t, http.MethodPost, base+"/edit", map[string]string{"code": code})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("edit after submit: status %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/submissions/"+started.SessionID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get submission: status %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHintRequestAndResolve(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/sessions", map[string]string{"problemId": "two-sum"})
	started := decodeBody[startSessionResponse](t, resp)
	base := "/api/sessions/" + started.SessionID

	resp = env.do(t, http.MethodPost, base+"/hint", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("hint: status %d", resp.StatusCode)
	}
	accepted := decodeBody[map[string]any](t, resp)
	interventionID, _ := accepted["id"].(string)
	if interventionID == "" {
		t.Fatalf("hint response = %v", accepted)
	}

	// Wait for the generator to settle the intervention open.
	sched, ok := env.registry.Get(started.SessionID)
	if !ok {
		t.Fatal("session missing from registry")
	}
	deadline := time.Now().Add(2 * time.Second)
	opened := false
	for time.Now().Before(deadline) {
		for _, rec := range sched.Records() {
			if rec.ID == interventionID && rec.State == domain.StateOpen {
				opened = true
			}
		}
		if opened {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if !opened {
		t.Fatal("intervention never opened")
	}

	resolvePath := fmt.Sprintf("%s/interventions/%s/resolve", base, interventionID)
	resp = env.do(t, http.MethodPost, resolvePath, map[string]any{"response": "ok"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve: status %d", resp.StatusCode)
	}
	sig := decodeBody[domain.SignalRecord](t, resp)
	if sig.EventID != interventionID || sig.Reward != 0.5 {
		t.Errorf("signal = %+v", sig)
	}

	resp = env.do(t, http.MethodPost, resolvePath, map[string]any{"response": "again"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("double resolve: status %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSessionOwnership(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/sessions", map[string]string{"problemId": "two-sum"})
	started := decodeBody[startSessionResponse](t, resp)

	// A different browser (no cookie) must not touch the session.
	env.cookie = nil
	resp = env.do(t, http.MethodPost, "/api/sessions/"+started.SessionID+"/edit",
		map[string]string{"code": "x = 1"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign edit: status %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUnknownSessionAndProblem(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/sessions/nope/hint", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown session: status %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/api/sessions", map[string]string{"problemId": "missing"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown problem: status %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/api/sessions", map[string]string{"language": "cobol"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unsupported language: status %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestListProblems(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/problems", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("problems: status %d", resp.StatusCode)
	}
	problems := decodeBody[[]domain.Problem](t, resp)
	if len(problems) == 0 {
		t.Fatal("empty problem catalog")
	}
}
