package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/owl-api/internal/api/middleware"
	"github.com/phrazzld/owl-api/internal/config"
	"github.com/phrazzld/owl-api/internal/domain"
	"github.com/phrazzld/owl-api/internal/pipeline"
	"github.com/phrazzld/owl-api/internal/resource"
	"github.com/phrazzld/owl-api/internal/service/auth"
	"github.com/phrazzld/owl-api/internal/task"
	"github.com/stretchr/testify/require"
)

const testSecret = "api-test-secret-that-is-long-enough-0123"

// gatedPipeline runs the placeholder pipeline once the gate opens.
type gatedPipeline struct {
	inner task.Pipeline
	gate  chan struct{}
	once  sync.Once
}

func newGatedPipeline() *gatedPipeline {
	return &gatedPipeline{
		inner: pipeline.New(pipeline.Config{}, quietLogger()),
		gate:  make(chan struct{}),
	}
}

func (g *gatedPipeline) Execute(ctx context.Context, spec domain.JobSpec, progress task.ProgressFunc) (json.RawMessage, error) {
	if err := progress("waiting", 5); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-g.gate:
	}
	return g.inner.Execute(ctx, spec, progress)
}

func (g *gatedPipeline) open() { g.once.Do(func() { close(g.gate) }) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testAPI struct {
	t      *testing.T
	server *httptest.Server
	store  *task.MemoryStore
	pool   *resource.Pool
	orch   *task.Orchestrator
	jwt    auth.JWTService
}

func newTestAPI(t *testing.T, units int, p task.Pipeline) *testAPI {
	t.Helper()

	inv, err := resource.StaticInventory{Capability: "gpu", Count: units}.Units(context.Background())
	require.NoError(t, err)
	pool, err := resource.NewPool(inv)
	require.NoError(t, err)

	logger := quietLogger()
	store := task.NewMemoryStore()
	orch := task.NewOrchestrator(store, pool, p, task.DefaultPolicy(), logger)
	require.NoError(t, orch.Start(context.Background()))
	queries := task.NewQueryService(store, orch)

	jwtSvc, err := auth.NewJWTService(config.AuthConfig{JWTSecret: testSecret, TokenLifetimeMinutes: 60})
	require.NoError(t, err)

	analysis := NewAnalysisHandler(orch, queries, logger)
	admin := NewAdminHandler(queries, pool, logger)
	me := NewAuthHandler()
	system := NewSystemHandler("test")
	authMW := middleware.NewAuthMiddleware(jwtSvc)

	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware(logger))
	r.Get("/", system.Root)
	r.Get("/health", system.Health)
	r.Route("/api", func(r chi.Router) {
		r.Use(authMW.Authenticate)
		r.Get("/auth/me", me.Me)
		r.Post("/analysis/single-video", analysis.SubmitSingleVideo)
		r.Post("/analysis/complete-account", analysis.SubmitCompleteAccount)
		r.Get("/analysis/status/{id}", analysis.GetStatus)
		r.Get("/analysis/result/{id}", analysis.GetResult)
		r.Get("/analysis/history", analysis.ListHistory)
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Get("/tasks", admin.ListTasks)
			r.Delete("/tasks/{id}", admin.DeleteTask)
			r.Get("/resources", admin.ListResources)
		})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Stop(ctx)
	})

	return &testAPI{t: t, server: srv, store: store, pool: pool, orch: orch, jwt: jwtSvc}
}

func (a *testAPI) token(id string, role domain.Role) string {
	a.t.Helper()
	tok, err := a.jwt.GenerateToken(context.Background(), domain.Principal{ID: id, Role: role})
	require.NoError(a.t, err)
	return tok
}

// do sends a request as the given token (empty for anonymous) and decodes a
// JSON response into out when out is non-nil.
func (a *testAPI) do(method, path, token string, body any, out any) *http.Response {
	a.t.Helper()

	var rdr io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rdr = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(a.t, err)
			rdr = bytes.NewReader(raw)
		}
	}
	req, err := http.NewRequest(method, a.server.URL+path, rdr)
	require.NoError(a.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.server.Client().Do(req)
	require.NoError(a.t, err)
	defer func() { _ = resp.Body.Close() }()

	if out != nil {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (a *testAPI) waitFor(id, token string, done func(TaskStatusResponse) bool) TaskStatusResponse {
	a.t.Helper()
	var st TaskStatusResponse
	require.Eventually(a.t, func() bool {
		st = TaskStatusResponse{}
		resp := a.do(http.MethodGet, "/api/analysis/status/"+id, token, nil, &st)
		return resp.StatusCode == http.StatusOK && done(st)
	}, 5*time.Second, 10*time.Millisecond)
	return st
}

func (a *testAPI) waitState(id, token, want string) TaskStatusResponse {
	a.t.Helper()
	return a.waitFor(id, token, func(st TaskStatusResponse) bool { return st.Status == want })
}

// taskCount returns the number of stored tasks.
func (a *testAPI) taskCount() int {
	a.t.Helper()
	_, total, err := a.store.List(context.Background(), task.ListFilter{})
	require.NoError(a.t, err)
	return total
}

func uintString(n uint64) string { return strconv.FormatUint(n, 10) }

const (
	videoURL   = "https://www.douyin.com/video/7301234567890"
	accountURL = "https://www.douyin.com/user/MS4wLjABAAAA"
)
