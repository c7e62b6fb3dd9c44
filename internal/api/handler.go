// Package api exposes the HTTP surface: job submission, inspection,
// deletion, artifact serving and the live progress stream.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/mgeist/codereel/internal/jobs"
	"github.com/mgeist/codereel/internal/stream"
)

// Handler provides HTTP API handlers
type Handler struct {
	store     jobs.Store
	orch      *jobs.Orchestrator
	hub       *stream.Hub
	outputDir string
	audioDir  string
}

// NewHandler creates a new API handler
func NewHandler(store jobs.Store, orch *jobs.Orchestrator, hub *stream.Hub, outputDir, audioDir string) *Handler {
	return &Handler{
		store:     store,
		orch:      orch,
		hub:       hub,
		outputDir: outputDir,
		audioDir:  audioDir,
	}
}

// response helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// GenerateRequest is the request body for starting a generation job.
type GenerateRequest struct {
	Prompt     string     `json:"prompt"`
	Language   string     `json:"language"`
	Style      jobs.Style `json:"style"`
	VoiceSpeed float64    `json:"voiceSpeed"`
}

// Generate handles POST /api/generate
// Responds immediately; the pipeline runs in the background and
// progress arrives over the job's SSE stream.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "Prompt is required")
		return
	}

	job := h.orch.Submit(jobs.SubmitRequest{
		Prompt:     req.Prompt,
		Language:   req.Language,
		Style:      req.Style,
		VoiceSpeed: req.VoiceSpeed,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

// Preview handles POST /api/preview
// Runs only the content phase, synchronously, and returns the tutorial
// structure without creating a job.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "Prompt is required")
		return
	}

	content, err := h.orch.Preview(r.Context(), jobs.SubmitRequest{
		Prompt:   req.Prompt,
		Language: req.Language,
		Style:    req.Style,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, content)
}

// ListJobs handles GET /api/jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	all := h.store.List()
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": all})
}

// GetJob handles GET /api/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	job, err := h.store.Get(id)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "Job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// DeleteJob handles DELETE /api/jobs/{id}
// Cancels the run if still live, removes artifacts, then the record.
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.orch.Delete(id); err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "Job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GetVideo handles GET /api/videos/{id}
func (h *Handler) GetVideo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	job, err := h.store.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	if job.Status != jobs.StatusCompleted {
		writeError(w, http.StatusBadRequest, "Video not ready")
		return
	}

	path := job.VideoPath
	if path == "" {
		path = filepath.Join(h.outputDir, id+".mp4")
	}
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "Video file not found")
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	http.ServeFile(w, r, path)
}

// GetAudio handles GET /api/audio/{id}/{step}
// Remotion loads narration over HTTP during the render, so this route
// must work while the job is still rendering.
func (h *Handler) GetAudio(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	step, err := strconv.Atoi(r.PathValue("step"))
	if err != nil || step < 0 {
		writeError(w, http.StatusBadRequest, "invalid step index")
		return
	}

	path := filepath.Join(h.audioDir, fmt.Sprintf("%s_step_%d.mp3", id, step))
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "Audio file not found")
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	http.ServeFile(w, r, path)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
