package jobs

import (
	"fmt"
	"math"
	"time"

	"github.com/mgeist/codereel/internal/logger"
)

// MaxLogEntries caps a job's progress log. Oldest entries are evicted
// first, ring-buffer style.
const MaxLogEntries = 50

// Tracker is the single authority for a job's progress sub-state. All
// progress mutations go through it so the clamping and log-cap
// invariants hold, and every mutation is mirrored to the process log.
type Tracker struct {
	store Store
	jobID string
}

// NewTracker creates a tracker bound to one job.
func NewTracker(store Store, jobID string) *Tracker {
	return &Tracker{store: store, jobID: jobID}
}

// StartPhase transitions the job into a new phase: status changes,
// sub-progress resets, the phase clock restarts. The accumulated log
// buffer is preserved across phases. totalSteps <= 0 means the phase has
// no per-item counter.
func (t *Tracker) StartPhase(status Status, totalSteps int) {
	err := t.store.Update(t.jobID, func(j *Job) {
		var logs []LogEntry
		if j.Progress != nil {
			logs = j.Progress.Logs
		}

		progress := &Progress{
			CurrentAction:  defaultAction(status),
			SubProgress:    0,
			PhaseStartedAt: time.Now().UTC(),
			Logs:           logs,
		}
		if totalSteps > 0 {
			progress.CurrentStep = 1
			progress.TotalSteps = totalSteps
		}

		j.Status = status
		j.Progress = progress
	})
	if err != nil {
		logger.Warn("Progress update for missing job", "job_id", t.jobID, "error", err)
		return
	}
	t.Log(fmt.Sprintf("Starting phase: %s", status))
}

// Update records progress within the current phase. Percent is clamped
// to [0,100]; step <= 0 leaves the step counter unchanged; file, when
// given, is appended to the log line.
func (t *Tracker) Update(percent float64, action string, step int, file string) {
	err := t.store.Update(t.jobID, func(j *Job) {
		if j.Progress == nil {
			j.Progress = &Progress{PhaseStartedAt: time.Now().UTC()}
		}
		j.Progress.SubProgress = clampPercent(percent)
		j.Progress.CurrentAction = action
		if step > 0 {
			j.Progress.CurrentStep = step
		}
	})
	if err != nil {
		logger.Warn("Progress update for missing job", "job_id", t.jobID, "error", err)
		return
	}

	message := action
	if file != "" {
		message = fmt.Sprintf("%s (%s)", action, file)
	}
	t.Log(fmt.Sprintf("[%d%%] %s", int(math.Round(clampPercent(percent))), message))
}

// Log appends a timestamped entry to the job's progress log, retaining
// only the most recent MaxLogEntries.
func (t *Tracker) Log(message string) {
	err := t.store.Update(t.jobID, func(j *Job) {
		if j.Progress == nil {
			j.Progress = &Progress{PhaseStartedAt: time.Now().UTC()}
		}
		j.Progress.Logs = append(j.Progress.Logs, LogEntry{
			Timestamp: time.Now().UTC(),
			Message:   message,
		})
		if len(j.Progress.Logs) > MaxLogEntries {
			j.Progress.Logs = j.Progress.Logs[len(j.Progress.Logs)-MaxLogEntries:]
		}
	})
	if err != nil {
		logger.Warn("Progress log for missing job", "job_id", t.jobID, "error", err)
		return
	}

	logger.Info(message, "job_id", t.jobID)
}

// CompletePhase forces sub-progress to 100 and logs the completion.
func (t *Tracker) CompletePhase() {
	var status Status
	err := t.store.Update(t.jobID, func(j *Job) {
		if j.Progress != nil {
			j.Progress.SubProgress = 100
		}
		status = j.Status
	})
	if err != nil {
		logger.Warn("Progress update for missing job", "job_id", t.jobID, "error", err)
		return
	}
	t.Log(fmt.Sprintf("Phase completed: %s", status))
}

// SetError moves the job into its terminal error state. No phase
// transitions are valid afterwards.
func (t *Tracker) SetError(message string) {
	err := t.store.Update(t.jobID, func(j *Job) {
		now := time.Now().UTC()
		j.Status = StatusError
		j.Error = message
		j.CompletedAt = &now
	})
	if err != nil {
		logger.Warn("Error update for missing job", "job_id", t.jobID, "error", err)
		return
	}
	t.Log(fmt.Sprintf("Error: %s", message))
}

func clampPercent(percent float64) float64 {
	return math.Max(0, math.Min(100, percent))
}

// defaultAction returns the action description a phase starts with.
func defaultAction(status Status) string {
	switch status {
	case StatusPending:
		return "Waiting to start..."
	case StatusGeneratingContent:
		return "AI is generating tutorial content..."
	case StatusGeneratingAudio:
		return "Converting text to speech..."
	case StatusRendering:
		return "Rendering video..."
	case StatusCompleted:
		return "Done!"
	case StatusError:
		return "An error occurred"
	default:
		return "Processing..."
	}
}
