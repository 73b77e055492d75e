package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/heimdex/heimdex-notes/internal/db"
	"github.com/heimdex/heimdex-notes/internal/jobs"
	"github.com/heimdex/heimdex-notes/internal/pipeline"
	"github.com/heimdex/heimdex-notes/internal/storage"
)

type testEnv struct {
	cfg     ServerConfig
	handler http.Handler
	token   string
	store   *storage.DirStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	database, err := db.New(filepath.Join(root, "notes.db"), logger)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	repo := jobs.NewRepository(database.Conn())
	svc := jobs.NewService(repo, logger)
	token, err := svc.EnsureAuthToken(context.Background())
	if err != nil {
		t.Fatalf("EnsureAuthToken() error = %v", err)
	}
	store, err := storage.NewDirStore(filepath.Join(root, "blobs"), nil)
	if err != nil {
		t.Fatalf("NewDirStore() error = %v", err)
	}

	cfg := ServerConfig{
		Version:    "test",
		Jobs:       svc,
		Runner:     jobs.NewRunner(repo, nil, logger),
		Store:      store,
		Containers: storage.DefaultContainers(),
		Workspace:  pipeline.Workspace{Root: filepath.Join(root, "work")},
		Logger:     logger,
		StartTime:  time.Now(),
	}
	return &testEnv{cfg: cfg, handler: NewRouter(cfg), token: token, store: store}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Authorization", "Bearer "+e.token)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) submit(t *testing.T, id string) {
	t.Helper()
	if _, err := e.cfg.Jobs.Submit(context.Background(), "https://example.com/v.mp4", id); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	body := decodeJSONBody(t, rr)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("health body = %v", body)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"empty bearer", "Bearer ", http.StatusUnauthorized},
		{"valid", "Bearer " + env.token, http.StatusOK},
		{"lowercase scheme", "bearer " + env.token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			env.handler.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status code = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestRequestIDMiddlewareKeepsCallerID(t *testing.T) {
	handler := RequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := r.Context().Value(RequestIDKey).(string)
		io.WriteString(w, id)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "caller-42")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Body.String() != "caller-42" {
		t.Errorf("request id = %q, want caller-42", rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "bad id\n")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if got := rr.Body.String(); len(got) != 8 || got == "bad id\n" {
		t.Errorf("request id = %q, want generated 8-char id", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := RecoveryMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status code = %d, want 500", rr.Code)
	}
}

func TestSubmitAndGetJob(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/jobs", `{"video_url":"https://example.com/talk.mp4","job_id":"talk-1"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d, body %s", rr.Code, rr.Body.String())
	}
	body := decodeJSONBody(t, rr)
	if body["job_id"] != "talk-1" || body["status"] != jobs.StatusPending {
		t.Errorf("submit body = %v", body)
	}

	rr = env.do(t, http.MethodPost, "/jobs", `{"video_url":"https://example.com/talk.mp4","job_id":"talk-1"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("duplicate submit status = %d, want 400", rr.Code)
	}

	if err := env.cfg.Jobs.Repository().RecordArtifact(context.Background(), &jobs.Artifact{
		JobID: "talk-1", Kind: jobs.ArtifactManifest, Container: "manifests", Name: "talk-1/manifest.json",
	}); err != nil {
		t.Fatal(err)
	}

	rr = env.do(t, http.MethodGet, "/jobs/talk-1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}
	var job JobResponse
	if err := json.NewDecoder(rr.Body).Decode(&job); err != nil {
		t.Fatal(err)
	}
	if job.VideoURL != "https://example.com/talk.mp4" || len(job.Artifacts) != 1 {
		t.Errorf("job = %+v", job)
	}

	rr = env.do(t, http.MethodGet, "/jobs", "")
	var list JobsResponse
	if err := json.NewDecoder(rr.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list.Jobs) != 1 {
		t.Errorf("jobs = %d, want 1", len(list.Jobs))
	}
}

func TestSubmitRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	for _, body := range []string{`not json`, `{"video_url":"ftp://x/y.mp4"}`, `{"video_url":"https://x/y.mp4","job_id":"../up"}`} {
		if rr := env.do(t, http.MethodPost, "/jobs", body); rr.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rr.Code)
		}
	}
}

func TestGetUnknownJob(t *testing.T) {
	env := newTestEnv(t)
	if rr := env.do(t, http.MethodGet, "/jobs/missing", ""); rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestListJobsLimit(t *testing.T) {
	env := newTestEnv(t)
	if rr := env.do(t, http.MethodGet, "/jobs?limit=0", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestManifestPrefersSummarized(t *testing.T) {
	env := newTestEnv(t)
	env.submit(t, "job-1")
	writeFile(t, env.cfg.Workspace.ManifestFile("job-1"), `{"jobId":"job-1","segments":[]}`)

	rr := env.do(t, http.MethodGet, "/jobs/job-1/manifest", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"segments":[]`) {
		t.Fatalf("plain manifest: %d %s", rr.Code, rr.Body.String())
	}

	summarized := `{"jobId":"job-1","segments":[{"summary":"s"}]}`
	if err := env.store.Put(context.Background(), "manifests", storage.SummarizedManifestBlob("job-1"), []byte(summarized), "application/json"); err != nil {
		t.Fatal(err)
	}
	rr = env.do(t, http.MethodGet, "/jobs/job-1/manifest", "")
	if rr.Body.String() != summarized {
		t.Errorf("manifest = %s, want summarized blob", rr.Body.String())
	}
	rr = env.do(t, http.MethodGet, "/jobs/job-1/manifest?summarized=false", "")
	if strings.Contains(rr.Body.String(), "summary") {
		t.Errorf("summarized=false served %s", rr.Body.String())
	}
}

func TestManifestMissing(t *testing.T) {
	env := newTestEnv(t)
	env.submit(t, "job-2")
	if rr := env.do(t, http.MethodGet, "/jobs/job-2/manifest", ""); rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestNotesHandler(t *testing.T) {
	env := newTestEnv(t)
	env.submit(t, "job-3")
	writeFile(t, env.cfg.Workspace.OutputFile("job-3", "md"), "# notes")

	rr := env.do(t, http.MethodGet, "/jobs/job-3/notes?format=md", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "# notes" {
		t.Fatalf("notes: %d %q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("content type = %q", ct)
	}
	if rr := env.do(t, http.MethodGet, "/jobs/job-3/notes", ""); rr.Code != http.StatusNotFound {
		t.Errorf("html notes status = %d, want 404", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/jobs/job-3/notes?format=pdf", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("pdf status = %d, want 400", rr.Code)
	}
}

func TestFrameHandler(t *testing.T) {
	env := newTestEnv(t)
	env.submit(t, "job-4")
	writeFile(t, filepath.Join(env.cfg.Workspace.FramesDir("job-4"), "1500.jpg"), "jpeg")

	rr := env.do(t, http.MethodGet, "/jobs/job-4/frames/1500.jpg", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "jpeg" {
		t.Fatalf("frame: %d %q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("content type = %q", ct)
	}
	if rr := env.do(t, http.MethodGet, "/jobs/job-4/frames/2000.jpg", ""); rr.Code != http.StatusNotFound {
		t.Errorf("missing frame status = %d, want 404", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/jobs/job-4/frames/index.json", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("bad name status = %d, want 400", rr.Code)
	}
}

func TestStatusAndRunnerControl(t *testing.T) {
	env := newTestEnv(t)
	env.submit(t, "job-5")

	if rr := env.do(t, http.MethodPost, "/runner/pause", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("pause status = %d", rr.Code)
	}
	body := decodeJSONBody(t, env.do(t, http.MethodGet, "/status", ""))
	if body["state"] != "paused" || body["jobs_pending"] != float64(1) {
		t.Errorf("status body = %v", body)
	}

	env.do(t, http.MethodPost, "/runner/resume", "")
	if env.cfg.Runner.IsPaused() {
		t.Error("runner still paused after resume")
	}
}
