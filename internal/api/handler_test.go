package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgeist/codereel/internal/config"
	"github.com/mgeist/codereel/internal/jobs"
	"github.com/mgeist/codereel/internal/stream"
)

type stubContent struct{}

func (stubContent) Generate(ctx context.Context, prompt, language string, style jobs.Style, rep jobs.Reporter) (*jobs.TutorialContent, error) {
	return &jobs.TutorialContent{
		Title: "Stub Tutorial",
		Steps: []jobs.TutorialStep{{Code: "x", Explanation: "e", Language: language}},
	}, nil
}

type stubNarrator struct{}

func (stubNarrator) GenerateAll(ctx context.Context, jobID string, texts []string, speed float64, rep jobs.Reporter) ([]string, error) {
	return make([]string, len(texts)), nil
}
func (stubNarrator) Cleanup(jobID string) error { return nil }

type stubRenderer struct{}

func (stubRenderer) Render(ctx context.Context, jobID string, content *jobs.TutorialContent, audioFiles []string, rep jobs.Reporter) (string, error) {
	return "/out/" + jobID + ".mp4", nil
}
func (stubRenderer) DeleteVideo(jobID string) error { return nil }

func newTestHandler(t *testing.T) (*Handler, jobs.Store, *stream.Hub, string, string) {
	t.Helper()

	outputDir := t.TempDir()
	audioDir := t.TempDir()

	store := jobs.NewMemoryStore()
	hub := stream.NewHub()
	timeouts := config.Timeouts{
		ContentGeneration: time.Minute,
		AudioPerStep:      time.Minute,
		Bundle:            time.Minute,
		VideoRender:       time.Minute,
	}
	orch := jobs.NewOrchestrator(store, hub, stubContent{}, stubNarrator{}, stubRenderer{}, timeouts)
	t.Cleanup(orch.Stop)

	return NewHandler(store, orch, hub, outputDir, audioDir), store, hub, outputDir, audioDir
}

func doRequest(h *Handler, method, path, body string) *httptest.ResponseRecorder {
	router := NewRouter(h)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGenerateRequiresPrompt(t *testing.T) {
	h, _, _, _, _ := newTestHandler(t)

	rec := doRequest(h, http.MethodPost, "/api/generate", `{"language": "go"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Prompt is required", resp["error"])
}

func TestGenerateRejectsBadBody(t *testing.T) {
	h, _, _, _, _ := newTestHandler(t)

	rec := doRequest(h, http.MethodPost, "/api/generate", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateReturnsPendingJob(t *testing.T) {
	h, store, _, _, _ := newTestHandler(t)

	rec := doRequest(h, http.MethodPost, "/api/generate", `{"prompt": "closures in js"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		JobID  string `json:"jobId"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, "pending", resp.Status)

	_, err := store.Get(resp.JobID)
	assert.NoError(t, err)
}

func TestGetJobNotFound(t *testing.T) {
	h, _, _, _, _ := newTestHandler(t)

	rec := doRequest(h, http.MethodGet, "/api/jobs/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Job not found")
}

func TestDeleteJobNotFound(t *testing.T) {
	h, _, _, _, _ := newTestHandler(t)

	rec := doRequest(h, http.MethodDelete, "/api/jobs/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListJobsSortedNewestFirst(t *testing.T) {
	h, store, _, _, _ := newTestHandler(t)

	base := time.Now().UTC()
	store.Create(&jobs.Job{ID: "old", Status: jobs.StatusCompleted, CreatedAt: base.Add(-2 * time.Hour)})
	store.Create(&jobs.Job{ID: "new", Status: jobs.StatusPending, CreatedAt: base})
	store.Create(&jobs.Job{ID: "mid", Status: jobs.StatusError, CreatedAt: base.Add(-time.Hour)})

	rec := doRequest(h, http.MethodGet, "/api/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Jobs []jobs.Job `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Jobs, 3)
	assert.Equal(t, "new", resp.Jobs[0].ID)
	assert.Equal(t, "mid", resp.Jobs[1].ID)
	assert.Equal(t, "old", resp.Jobs[2].ID)
}

func TestGetVideoNotReady(t *testing.T) {
	h, store, _, _, _ := newTestHandler(t)

	store.Create(&jobs.Job{ID: "j1", Status: jobs.StatusRendering, CreatedAt: time.Now().UTC()})

	rec := doRequest(h, http.MethodGet, "/api/videos/j1", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Video not ready")
}

func TestGetVideoServesCompleted(t *testing.T) {
	h, store, _, outputDir, _ := newTestHandler(t)

	path := filepath.Join(outputDir, "j1.mp4")
	require.NoError(t, os.WriteFile(path, []byte("mp4-bytes"), 0644))
	store.Create(&jobs.Job{ID: "j1", Status: jobs.StatusCompleted, VideoPath: path, CreatedAt: time.Now().UTC()})

	rec := doRequest(h, http.MethodGet, "/api/videos/j1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, "mp4-bytes", rec.Body.String())
}

func TestGetAudioServesStepFile(t *testing.T) {
	h, _, _, _, audioDir := newTestHandler(t)

	path := filepath.Join(audioDir, "j1_step_0.mp3")
	require.NoError(t, os.WriteFile(path, []byte("mp3-bytes"), 0644))

	rec := doRequest(h, http.MethodGet, "/api/audio/j1/0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "mp3-bytes", rec.Body.String())

	rec = doRequest(h, http.MethodGet, "/api/audio/j1/7", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	h, _, _, _, _ := newTestHandler(t)

	rec := doRequest(h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestJobStreamUnknownJob(t *testing.T) {
	h, _, hub, _, _ := newTestHandler(t)

	rec := doRequest(h, http.MethodGet, "/api/jobs/ghost/stream", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Job not found")

	// The rejected request left no trace in the hub
	assert.Zero(t, hub.ClientCount("ghost"))
	assert.False(t, hub.HasBuffer("ghost"))
}

func TestJobStreamDeliversHistoryAndEnds(t *testing.T) {
	h, store, hub, _, _ := newTestHandler(t)

	store.Create(&jobs.Job{ID: "j1", Status: jobs.StatusRendering, CreatedAt: time.Now().UTC()})
	hub.Broadcast("j1", stream.EventStdout, "line one")
	hub.Broadcast("j1", stream.EventStdout, "line two")
	hub.Complete("j1", "completed")

	rec := doRequest(h, http.MethodGet, "/api/jobs/j1/stream", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "event: connected")
	assert.Contains(t, body, "event: history")
	assert.Contains(t, body, "line one")
	assert.Contains(t, body, "line two")
	assert.Contains(t, body, "completed")
	assert.Contains(t, body, "id: ")
}
