package jobs

import (
	"time"
)

// Status represents the current state of a job
type Status string

const (
	StatusPending           Status = "pending"
	StatusGeneratingContent Status = "generating_content"
	StatusGeneratingAudio   Status = "generating_audio"
	StatusRendering         Status = "rendering"
	StatusCompleted         Status = "completed"
	StatusError             Status = "error"
)

// Style is the difficulty level requested for a tutorial
type Style string

const (
	StyleBeginner     Style = "beginner"
	StyleIntermediate Style = "intermediate"
	StyleAdvanced     Style = "advanced"
)

// TutorialStep is one unit of a tutorial: a code snippet plus its spoken
// explanation.
type TutorialStep struct {
	Code        string `json:"code"`
	Explanation string `json:"explanation"`
	Language    string `json:"language"`
}

// TutorialContent is the structured output of the content phase.
type TutorialContent struct {
	Title string         `json:"title"`
	Steps []TutorialStep `json:"steps"`
}

// LogEntry is one line of a job's progress log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Progress is the transient sub-state of a running job: what is happening
// right now within the current phase.
type Progress struct {
	CurrentAction  string     `json:"currentAction"`
	SubProgress    float64    `json:"subProgress"`
	CurrentStep    int        `json:"currentStep,omitempty"`
	TotalSteps     int        `json:"totalSteps,omitempty"`
	PhaseStartedAt time.Time  `json:"phaseStartedAt"`
	Logs           []LogEntry `json:"logs"`
}

// Job represents one generation request, tracked from submission to
// terminal state. Phase outputs (Content, AudioFiles, VideoPath) are
// populated in phase order and never cleared.
type Job struct {
	ID          string           `json:"id"`
	Status      Status           `json:"status"`
	Prompt      string           `json:"prompt"`
	Language    string           `json:"language"`
	Style       Style            `json:"style"`
	VoiceSpeed  float64          `json:"voiceSpeed"`
	Content     *TutorialContent `json:"content,omitempty"`
	AudioFiles  []string         `json:"audioFiles,omitempty"`
	VideoPath   string           `json:"videoPath,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	StartedAt   *time.Time       `json:"startedAt,omitempty"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
	Progress    *Progress        `json:"progress,omitempty"`
}

// IsTerminal returns true if the job is in a terminal state
func (j *Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusError
}

// Copy returns a deep copy of the job so readers never observe writes
// from the orchestrator mid-run.
func (j *Job) Copy() *Job {
	c := *j

	if j.Content != nil {
		content := *j.Content
		content.Steps = append([]TutorialStep(nil), j.Content.Steps...)
		c.Content = &content
	}
	if j.AudioFiles != nil {
		c.AudioFiles = append([]string(nil), j.AudioFiles...)
	}
	if j.StartedAt != nil {
		started := *j.StartedAt
		c.StartedAt = &started
	}
	if j.CompletedAt != nil {
		completed := *j.CompletedAt
		c.CompletedAt = &completed
	}
	if j.Progress != nil {
		progress := *j.Progress
		progress.Logs = append([]LogEntry(nil), j.Progress.Logs...)
		c.Progress = &progress
	}
	return &c
}
