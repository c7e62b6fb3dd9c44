// Package tts wraps the edge-tts CLI that turns narration text into
// audio files.
package tts

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mgeist/codereel/internal/guard"
	"github.com/mgeist/codereel/internal/jobs"
	"github.com/mgeist/codereel/internal/logger"
)

// Synthesizer generates narration audio, one segment at a time.
type Synthesizer struct {
	binPath     string
	voice       string
	audioDir    string
	stepTimeout time.Duration
}

// NewSynthesizer creates a synthesizer writing intermediates to audioDir.
// stepTimeout bounds each individual segment.
func NewSynthesizer(binPath, voice, audioDir string, stepTimeout time.Duration) *Synthesizer {
	return &Synthesizer{
		binPath:     binPath,
		voice:       voice,
		audioDir:    audioDir,
		stepTimeout: stepTimeout,
	}
}

// AudioPath returns the on-disk location for one narration segment.
// Step indices are zero-based, matching the audio-serving route.
func (s *Synthesizer) AudioPath(jobID string, step int) string {
	return filepath.Join(s.audioDir, fmt.Sprintf("%s_step_%d.mp3", jobID, step))
}

// GenerateAll synthesizes every explanation strictly in order, one
// segment at a time, so external-process usage stays bounded and the
// progress percentage stays monotonic. Each segment gets its own
// deadline; the first failure fails the batch.
func (s *Synthesizer) GenerateAll(ctx context.Context, jobID string, texts []string, speed float64, rep jobs.Reporter) ([]string, error) {
	if err := os.MkdirAll(s.audioDir, 0755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}

	total := len(texts)
	paths := make([]string, 0, total)

	for i, text := range texts {
		step := i + 1
		rep.Progress(float64(i)/float64(total)*100,
			fmt.Sprintf("Generating audio for step %d/%d", step, total), step)

		outPath := s.AudioPath(jobID, i)
		_, err := guard.Run(ctx, s.stepTimeout, fmt.Sprintf("audio generation for step %d", step),
			func(ctx context.Context) (struct{}, error) {
				return struct{}{}, s.synthesize(ctx, text, speed, outPath)
			})
		if err != nil {
			return nil, err
		}

		paths = append(paths, outPath)
	}

	rep.Progress(100, "Audio generation complete", total)
	return paths, nil
}

// synthesize runs one edge-tts invocation.
func (s *Synthesizer) synthesize(ctx context.Context, text string, speed float64, outPath string) error {
	cmd := exec.CommandContext(ctx, s.binPath,
		"--voice", s.voice,
		"--rate="+rateString(speed),
		"--text", text,
		"--write-media", outPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("edge-tts failed: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Cleanup removes all narration intermediates for a job.
func (s *Synthesizer) Cleanup(jobID string) error {
	matches, err := filepath.Glob(filepath.Join(s.audioDir, jobID+"_*"))
	if err != nil {
		return err
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to remove audio file", "path", path, "error", err)
		}
	}
	return nil
}

// rateString converts a speed multiplier into the signed percent rate
// edge-tts expects: 1.5 -> "+50%", 0.7 -> "-30%", 1.0 -> "+0%".
func rateString(speed float64) string {
	switch {
	case speed > 1:
		return fmt.Sprintf("+%d%%", int(math.Round((speed-1)*100)))
	case speed < 1 && speed > 0:
		return fmt.Sprintf("-%d%%", int(math.Round((1-speed)*100)))
	default:
		return "+0%"
	}
}
