package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mgeist/codereel/internal/config"
	"github.com/mgeist/codereel/internal/guard"
	"github.com/mgeist/codereel/internal/logger"
	"github.com/mgeist/codereel/internal/stream"
)

// DefaultLanguage is used when a request does not name one.
const DefaultLanguage = "javascript"

// Reporter is the per-job reporting surface handed to collaborators: a
// progress sink plus a raw-output stream sink. Collaborators never see
// the store or the hub directly.
type Reporter interface {
	// Progress records phase progress. Percent is clamped by the tracker;
	// step <= 0 leaves the step counter unchanged.
	Progress(percent float64, action string, step int)
	// Log appends a line to the job's progress log.
	Log(message string)
	// Stdout broadcasts raw subprocess stdout to stream subscribers.
	Stdout(data string)
	// Stderr broadcasts raw subprocess stderr to stream subscribers.
	Stderr(data string)
}

// ContentGenerator produces structured tutorial content from a prompt.
// Implementations validate structural well-formedness and fail otherwise.
type ContentGenerator interface {
	Generate(ctx context.Context, prompt, language string, style Style, rep Reporter) (*TutorialContent, error)
}

// Narrator converts explanation texts to audio files, one segment at a
// time, and owns the per-segment deadline.
type Narrator interface {
	GenerateAll(ctx context.Context, jobID string, texts []string, speed float64, rep Reporter) ([]string, error)
	Cleanup(jobID string) error
}

// Renderer composes the final video from content and narration audio.
type Renderer interface {
	Render(ctx context.Context, jobID string, content *TutorialContent, audioFiles []string, rep Reporter) (string, error)
	DeleteVideo(jobID string) error
}

// SubmitRequest carries the immutable parameters of a generation request.
type SubmitRequest struct {
	Prompt     string
	Language   string
	Style      Style
	VoiceSpeed float64
}

func (r *SubmitRequest) applyDefaults() {
	if r.Language == "" {
		r.Language = DefaultLanguage
	}
	if r.Style == "" {
		r.Style = StyleBeginner
	}
	if r.VoiceSpeed <= 0 {
		r.VoiceSpeed = 1.0
	}
}

// Orchestrator drives jobs through their phases in order, invoking the
// external collaborators and committing state to the store. Each running
// job keeps a cancel handle so deletion can stop the background run
// before the record disappears.
type Orchestrator struct {
	store    Store
	hub      *stream.Hub
	content  ContentGenerator
	narrator Narrator
	renderer Renderer
	timeouts config.Timeouts

	runningMu sync.Mutex
	running   map[string]context.CancelFunc
}

// NewOrchestrator wires the orchestrator to its store, hub and collaborators.
func NewOrchestrator(store Store, hub *stream.Hub, content ContentGenerator, narrator Narrator, renderer Renderer, timeouts config.Timeouts) *Orchestrator {
	return &Orchestrator{
		store:    store,
		hub:      hub,
		content:  content,
		narrator: narrator,
		renderer: renderer,
		timeouts: timeouts,
		running:  make(map[string]context.CancelFunc),
	}
}

// Submit creates a job in pending state and starts orchestration in the
// background. The returned copy is what the caller sees immediately.
func (o *Orchestrator) Submit(req SubmitRequest) *Job {
	req.applyDefaults()

	job := &Job{
		ID:         uuid.NewString(),
		Status:     StatusPending,
		Prompt:     req.Prompt,
		Language:   req.Language,
		Style:      req.Style,
		VoiceSpeed: req.VoiceSpeed,
		CreatedAt:  time.Now().UTC(),
	}
	o.store.Create(job)

	ctx, cancel := context.WithCancel(context.Background())
	o.runningMu.Lock()
	o.running[job.ID] = cancel
	o.runningMu.Unlock()

	logger.Info("Job submitted", "job_id", job.ID, "language", req.Language, "style", req.Style)
	go o.run(ctx, job.ID)

	return job.Copy()
}

// Preview runs only the content phase, synchronously, with no job record.
func (o *Orchestrator) Preview(ctx context.Context, req SubmitRequest) (*TutorialContent, error) {
	req.applyDefaults()
	return guard.Run(ctx, o.timeouts.ContentGeneration, "content generation",
		func(ctx context.Context) (*TutorialContent, error) {
			return o.content.Generate(ctx, req.Prompt, req.Language, req.Style, NopReporter{})
		})
}

// Delete cancels a live run, removes the job's artifacts and then the
// record. Unknown ids report ErrJobNotFound before any side effect.
func (o *Orchestrator) Delete(jobID string) error {
	if _, err := o.store.Get(jobID); err != nil {
		return err
	}

	// Stop the background run before touching its artifacts, so a phase
	// in flight cannot resurrect files we are about to remove.
	o.runningMu.Lock()
	if cancel, ok := o.running[jobID]; ok {
		cancel()
	}
	o.runningMu.Unlock()

	if err := o.renderer.DeleteVideo(jobID); err != nil {
		logger.Warn("Failed to delete video", "job_id", jobID, "error", err)
	}
	if err := o.narrator.Cleanup(jobID); err != nil {
		logger.Warn("Failed to delete audio artifacts", "job_id", jobID, "error", err)
	}

	return o.store.Delete(jobID)
}

// Stop cancels every running job. Used on shutdown.
func (o *Orchestrator) Stop() {
	o.runningMu.Lock()
	defer o.runningMu.Unlock()
	for _, cancel := range o.running {
		cancel()
	}
}

func (o *Orchestrator) clearRunning(jobID string) {
	o.runningMu.Lock()
	if cancel, ok := o.running[jobID]; ok {
		cancel()
		delete(o.running, jobID)
	}
	o.runningMu.Unlock()
}

// run executes the three phases sequentially. Any collaborator failure
// fails the whole job once; there are no retries.
func (o *Orchestrator) run(ctx context.Context, jobID string) {
	defer o.clearRunning(jobID)

	job, err := o.store.Get(jobID)
	if err != nil {
		return
	}
	if err := o.store.Update(jobID, func(j *Job) {
		now := time.Now().UTC()
		j.StartedAt = &now
	}); err != nil {
		o.hub.Cleanup(jobID)
		return
	}

	tracker := NewTracker(o.store, jobID)
	rep := &hubReporter{tracker: tracker, hub: o.hub, jobID: jobID}

	// Phase 1: content
	o.startPhase(jobID, tracker, StatusGeneratingContent, 0)
	content, err := guard.Run(ctx, o.timeouts.ContentGeneration, "content generation",
		func(ctx context.Context) (*TutorialContent, error) {
			return o.content.Generate(ctx, job.Prompt, job.Language, job.Style, rep)
		})
	if err != nil {
		o.fail(jobID, tracker, err)
		return
	}
	if err := o.store.Update(jobID, func(j *Job) { j.Content = content }); err != nil {
		// Record deleted mid-run; drop the stream state too, since no
		// terminal status will ever schedule its teardown.
		o.hub.Cleanup(jobID)
		return
	}
	tracker.CompletePhase()

	// Phase 2: audio, one segment at a time
	o.startPhase(jobID, tracker, StatusGeneratingAudio, len(content.Steps))
	texts := make([]string, len(content.Steps))
	for i, step := range content.Steps {
		texts[i] = step.Explanation
	}
	audioFiles, err := o.narrator.GenerateAll(ctx, jobID, texts, job.VoiceSpeed, rep)
	if err != nil {
		o.fail(jobID, tracker, err)
		return
	}
	if err := o.store.Update(jobID, func(j *Job) { j.AudioFiles = audioFiles }); err != nil {
		o.hub.Cleanup(jobID)
		return
	}
	tracker.CompletePhase()

	// Phase 3: render. Bundling and rendering happen inside one external
	// call, so the deadline is their sum.
	o.startPhase(jobID, tracker, StatusRendering, 0)
	videoPath, err := guard.Run(ctx, o.timeouts.Bundle+o.timeouts.VideoRender, "video rendering",
		func(ctx context.Context) (string, error) {
			return o.renderer.Render(ctx, jobID, content, audioFiles, rep)
		})
	if err != nil {
		o.fail(jobID, tracker, err)
		return
	}
	if err := o.store.Update(jobID, func(j *Job) {
		now := time.Now().UTC()
		j.VideoPath = videoPath
		j.Status = StatusCompleted
		j.CompletedAt = &now
	}); err != nil {
		o.hub.Cleanup(jobID)
		return
	}
	tracker.CompletePhase()
	logger.Info("Job completed", "job_id", jobID, "video", videoPath)

	// The narration intermediates only existed for the render
	if err := o.narrator.Cleanup(jobID); err != nil {
		logger.Warn("Failed to clean up audio artifacts", "job_id", jobID, "error", err)
	}

	o.hub.Complete(jobID, string(StatusCompleted))
}

// startPhase transitions the tracker and mirrors the new status to
// stream subscribers.
func (o *Orchestrator) startPhase(jobID string, tracker *Tracker, status Status, totalSteps int) {
	tracker.StartPhase(status, totalSteps)
	o.hub.Broadcast(jobID, stream.EventStatus, string(status))
}

// fail records the terminal error state and tears the stream down after
// the grace period. A run cancelled by deletion ends up here too; the
// tracker writes become no-ops once the record is gone.
func (o *Orchestrator) fail(jobID string, tracker *Tracker, err error) {
	logger.Error("Job failed", "job_id", jobID, "error", err.Error())
	tracker.SetError(err.Error())
	o.hub.Complete(jobID, string(StatusError))
}

// hubReporter adapts the tracker and hub into the Reporter collaborators
// receive.
type hubReporter struct {
	tracker *Tracker
	hub     *stream.Hub
	jobID   string
}

func (r *hubReporter) Progress(percent float64, action string, step int) {
	r.tracker.Update(percent, action, step, "")
}

func (r *hubReporter) Log(message string) {
	r.tracker.Log(message)
}

func (r *hubReporter) Stdout(data string) {
	r.hub.Broadcast(r.jobID, stream.EventStdout, data)
}

func (r *hubReporter) Stderr(data string) {
	r.hub.Broadcast(r.jobID, stream.EventStderr, data)
}

// NopReporter discards all reports. Used for preview, where no job exists.
type NopReporter struct{}

func (NopReporter) Progress(float64, string, int) {}
func (NopReporter) Log(string)                    {}
func (NopReporter) Stdout(string)                 {}
func (NopReporter) Stderr(string)                 {}
