// Package content wraps the AI CLI that turns a prompt into structured
// tutorial content.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strings"
	"sync"

	"github.com/mgeist/codereel/internal/jobs"
	"github.com/mgeist/codereel/internal/logger"
)

// ErrInvalidContent marks AI output that could not be interpreted as a
// well-formed tutorial. Checked with errors.Is().
var ErrInvalidContent = errors.New("invalid tutorial structure")

var (
	fenceRe  = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")
	objectRe = regexp.MustCompile(`\{[\s\S]*\}`)
)

// Generator spawns the AI CLI and parses its output.
type Generator struct {
	binPath string
}

// NewGenerator creates a generator using the given CLI binary.
func NewGenerator(binPath string) *Generator {
	return &Generator{binPath: binPath}
}

// Generate runs the CLI with the assembled prompt, streams its raw output
// to the reporter, and parses the result into tutorial content. The CLI
// process is killed when ctx is cancelled.
func (g *Generator) Generate(ctx context.Context, prompt, language string, style jobs.Style, rep jobs.Reporter) (*jobs.TutorialContent, error) {
	fullPrompt := buildPrompt(prompt, language, style)

	rep.Progress(10, "Preparing prompt for AI...", 0)

	cmd := exec.CommandContext(ctx, g.binPath,
		"-p", fullPrompt,
		"--output-format", "json",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	rep.Progress(20, "AI is generating content...", 0)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", g.binPath, err)
	}

	var stdoutBuf, stderrBuf strings.Builder
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		received := false
		readChunks(stdout, func(chunk string) {
			stdoutBuf.WriteString(chunk)
			rep.Stdout(chunk)
			if !received {
				received = true
				rep.Progress(50, "Receiving AI response...", 0)
			}
		})
	}()

	go func() {
		defer wg.Done()
		readChunks(stderr, func(chunk string) {
			stderrBuf.WriteString(chunk)
			rep.Stderr(chunk)
		})
	}()

	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Error("AI CLI failed", "error", err, "stderr", stderrBuf.String())
		return nil, fmt.Errorf("AI CLI failed: %w: %s", err, stderrBuf.String())
	}

	rep.Progress(80, "Parsing tutorial content...", 0)

	result, err := parseContent(stdoutBuf.String())
	if err != nil {
		return nil, err
	}

	rep.Progress(100, "Content generation complete", 0)
	return result, nil
}

// readChunks forwards reads to fn until EOF, in small chunks so
// subscribers see output as it arrives.
func readChunks(r io.Reader, fn func(string)) {
	buf := make([]byte, 1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			fn(string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// parseContent interprets raw CLI output as tutorial content. The CLI may
// wrap its answer in a JSON envelope with a "result" field, and the model
// may wrap JSON in markdown fences or surrounding prose; all three layers
// are peeled before parsing.
func parseContent(raw string) (*jobs.TutorialContent, error) {
	text := raw

	var envelope struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal([]byte(raw), &envelope); err == nil && envelope.Result != "" {
		text = envelope.Result
	}

	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	if m := objectRe.FindString(text); m != "" {
		text = m
	}

	var content jobs.TutorialContent
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &content); err != nil {
		return nil, fmt.Errorf("%w: not valid JSON: %v", ErrInvalidContent, err)
	}

	if err := validate(&content); err != nil {
		return nil, err
	}
	return &content, nil
}

// validate enforces structural well-formedness: non-empty title, at least
// one step, and every step fully populated.
func validate(content *jobs.TutorialContent) error {
	if content.Title == "" {
		return fmt.Errorf("%w: missing title", ErrInvalidContent)
	}
	if len(content.Steps) == 0 {
		return fmt.Errorf("%w: steps must be a non-empty array", ErrInvalidContent)
	}
	for i, step := range content.Steps {
		if step.Code == "" || step.Explanation == "" || step.Language == "" {
			return fmt.Errorf("%w: step %d missing code, explanation, or language", ErrInvalidContent, i+1)
		}
	}
	return nil
}
