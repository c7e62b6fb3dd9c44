package jobs_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgeist/codereel/internal/jobs"
)

func trackedJob(t *testing.T) (jobs.Store, *jobs.Tracker) {
	t.Helper()
	store := jobs.NewMemoryStore()
	store.Create(newJob("a"))
	return store, jobs.NewTracker(store, "a")
}

func TestStartPhaseResetsProgress(t *testing.T) {
	store, tracker := trackedJob(t)

	tracker.StartPhase(jobs.StatusGeneratingContent, 0)
	tracker.Update(42, "halfway-ish", 0, "")

	tracker.StartPhase(jobs.StatusGeneratingAudio, 4)

	job, err := store.Get("a")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusGeneratingAudio, job.Status)
	require.NotNil(t, job.Progress)
	assert.Equal(t, float64(0), job.Progress.SubProgress)
	assert.Equal(t, 1, job.Progress.CurrentStep)
	assert.Equal(t, 4, job.Progress.TotalSteps)
	assert.Equal(t, "Converting text to speech...", job.Progress.CurrentAction)
	// Log buffer survives the phase transition
	assert.NotEmpty(t, job.Progress.Logs)
}

func TestUpdateClampsPercent(t *testing.T) {
	store, tracker := trackedJob(t)
	tracker.StartPhase(jobs.StatusGeneratingContent, 0)

	tracker.Update(150, "too much", 0, "")
	job, _ := store.Get("a")
	assert.Equal(t, float64(100), job.Progress.SubProgress)

	tracker.Update(-10, "too little", 0, "")
	job, _ = store.Get("a")
	assert.Equal(t, float64(0), job.Progress.SubProgress)
}

func TestUpdateRecordsStepAndFile(t *testing.T) {
	store, tracker := trackedJob(t)
	tracker.StartPhase(jobs.StatusGeneratingAudio, 3)

	tracker.Update(33, "Generating audio for step 2/3", 2, "job_step_1.mp3")

	job, _ := store.Get("a")
	assert.Equal(t, 2, job.Progress.CurrentStep)
	last := job.Progress.Logs[len(job.Progress.Logs)-1]
	assert.Contains(t, last.Message, "[33%]")
	assert.Contains(t, last.Message, "job_step_1.mp3")
}

func TestLogBufferEvictsOldestFirst(t *testing.T) {
	store, tracker := trackedJob(t)

	for i := 1; i <= 200; i++ {
		tracker.Log(fmt.Sprintf("log #%d", i))
	}

	job, err := store.Get("a")
	require.NoError(t, err)
	require.Len(t, job.Progress.Logs, jobs.MaxLogEntries)
	assert.Equal(t, "log #151", job.Progress.Logs[0].Message)
	assert.Equal(t, "log #200", job.Progress.Logs[len(job.Progress.Logs)-1].Message)
}

func TestCompletePhaseForcesHundred(t *testing.T) {
	store, tracker := trackedJob(t)
	tracker.StartPhase(jobs.StatusRendering, 0)
	tracker.Update(61, "rendering", 0, "")

	tracker.CompletePhase()

	job, _ := store.Get("a")
	assert.Equal(t, float64(100), job.Progress.SubProgress)
	last := job.Progress.Logs[len(job.Progress.Logs)-1]
	assert.Contains(t, last.Message, "Phase completed")
}

func TestSetErrorIsTerminal(t *testing.T) {
	store, tracker := trackedJob(t)
	tracker.StartPhase(jobs.StatusGeneratingContent, 0)

	tracker.SetError("content generation blew up")

	job, _ := store.Get("a")
	assert.Equal(t, jobs.StatusError, job.Status)
	assert.Equal(t, "content generation blew up", job.Error)
	require.NotNil(t, job.CompletedAt)
	assert.True(t, job.IsTerminal())
}

func TestTrackerOnMissingJobIsNoOp(t *testing.T) {
	store := jobs.NewMemoryStore()
	tracker := jobs.NewTracker(store, "ghost")

	// None of these may panic or create a record
	tracker.StartPhase(jobs.StatusGeneratingContent, 0)
	tracker.Update(50, "working", 0, "")
	tracker.Log("hello")
	tracker.CompletePhase()
	tracker.SetError("boom")

	_, err := store.Get("ghost")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
}
