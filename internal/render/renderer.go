// Package render drives Remotion through the Node.js programmatic API
// to turn tutorial content plus narration audio into an mp4.
package render

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/mgeist/codereel/internal/jobs"
	"github.com/mgeist/codereel/internal/logger"
)

const framesPerSecond = 30

// Renderer renders videos into outputDir, one file per job.
type Renderer struct {
	nodePath    string
	ffprobePath string
	remotionDir string
	outputDir   string
	baseURL     string
}

// NewRenderer creates a renderer. baseURL is where this server is
// reachable; Remotion loads narration audio over HTTP rather than
// from the filesystem.
func NewRenderer(nodePath, ffprobePath, remotionDir, outputDir, baseURL string) *Renderer {
	return &Renderer{
		nodePath:    nodePath,
		ffprobePath: ffprobePath,
		remotionDir: remotionDir,
		outputDir:   outputDir,
		baseURL:     strings.TrimRight(baseURL, "/"),
	}
}

// VideoPath returns the on-disk location of a job's rendered video.
func (r *Renderer) VideoPath(jobID string) string {
	return filepath.Join(r.outputDir, jobID+".mp4")
}

// Render bundles the Remotion project and renders the composition,
// forwarding Node's progress output to the reporter. It returns the
// path of the finished video.
func (r *Renderer) Render(ctx context.Context, jobID string, content *jobs.TutorialContent, audioFiles []string, rep jobs.Reporter) (string, error) {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	rep.Progress(5, "Calculating audio durations...", 0)

	stepDurations := make([]int, len(audioFiles))
	for i, f := range audioFiles {
		stepDurations[i] = int(math.Ceil(r.audioDuration(ctx, f) * framesPerSecond))
	}

	audioURLs := make([]string, len(audioFiles))
	for i := range audioFiles {
		audioURLs[i] = fmt.Sprintf("%s/api/audio/%s/%d", r.baseURL, jobID, i)
	}

	outputPath := r.VideoPath(jobID)
	script, err := buildScript(r.remotionDir, outputPath, content, audioURLs, stepDurations)
	if err != nil {
		return "", err
	}

	rep.Progress(10, "Starting Remotion render...", 0)

	cmd := exec.CommandContext(ctx, r.nodePath, "-e", script)
	cmd.Dir = r.remotionDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start %s: %w", r.nodePath, err)
	}

	var stderrBuf strings.Builder
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			handleRenderLine(scanner.Text(), rep)
		}
	}()

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			stderrBuf.WriteString(line + "\n")
			rep.Stderr(line + "\n")
		}
	}()

	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logger.Error("Remotion render failed", "jobID", jobID, "error", err)
		return "", fmt.Errorf("remotion render failed: %w: %s", err, strings.TrimSpace(stderrBuf.String()))
	}

	return outputPath, nil
}

// DeleteVideo removes a job's rendered output, if any.
func (r *Renderer) DeleteVideo(jobID string) error {
	if err := os.Remove(r.VideoPath(jobID)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// audioDuration returns the playable length of an audio file in
// seconds, padded slightly so narration never gets cut off. When
// ffprobe is unavailable the file size gives a rough estimate
// (128kbps mp3 is about 16KB per second).
func (r *Renderer) audioDuration(ctx context.Context, path string) float64 {
	cmd := exec.CommandContext(ctx, r.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	output, err := cmd.Output()
	if err == nil {
		if d, perr := strconv.ParseFloat(strings.TrimSpace(string(output)), 64); perr == nil && d > 0 {
			return d + 0.5
		}
	}

	logger.Warn("Could not probe audio duration, estimating from size", "path", path)
	if info, serr := os.Stat(path); serr == nil {
		return math.Max(5.0, float64(info.Size())/(16*1024))
	}
	return 10.0
}

// renderEvent is one JSON line printed by the Node render script.
type renderEvent struct {
	Type    string  `json:"type"`
	Phase   string  `json:"phase"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// handleRenderLine maps one line of Node stdout to reporter updates.
// The bundling phase occupies 10-40%, composition selection parks at
// 40%, and the render itself occupies 50-100%. Non-JSON lines pass
// through as raw output.
func handleRenderLine(line string, rep jobs.Reporter) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	var ev renderEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		rep.Stdout(line + "\n")
		return
	}

	switch ev.Type {
	case "progress":
		switch ev.Phase {
		case "bundling":
			rep.Progress(10+ev.Percent*0.3, fmt.Sprintf("Bundling: %d%%", int(ev.Percent)), 0)
		case "selecting":
			rep.Progress(40, "Bundle complete, preparing composition...", 0)
		case "rendering":
			rep.Progress(50+ev.Percent*0.5, fmt.Sprintf("Rendering video: %d%%", int(ev.Percent)), 0)
		}
	case "complete":
		rep.Progress(100, "Video render complete!", 0)
	case "error":
		rep.Stderr(ev.Message + "\n")
	default:
		rep.Stdout(line + "\n")
	}
}

const scriptTemplate = `const { bundle } = require('@remotion/bundler');
const { renderMedia, selectComposition } = require('@remotion/renderer');
const path = require('path');

async function main() {
    const entryPoint = path.join(%s, 'index.ts');
    const inputProps = %s;
    const outputPath = %s;
    const stepDurations = %s;

    console.log(JSON.stringify({ type: 'progress', phase: 'bundling', percent: 0 }));

    const bundleLocation = await bundle({
        entryPoint,
        onProgress: (progress) => {
            console.log(JSON.stringify({ type: 'progress', phase: 'bundling', percent: progress }));
        },
    });

    console.log(JSON.stringify({ type: 'progress', phase: 'selecting', percent: 100 }));

    const composition = await selectComposition({
        serveUrl: bundleLocation,
        id: 'CodingTutorial',
        inputProps,
    });

    const totalDuration = stepDurations.reduce((a, b) => a + b, 0) + (stepDurations.length * 30);

    console.log(JSON.stringify({ type: 'progress', phase: 'rendering', percent: 0 }));

    await renderMedia({
        composition: { ...composition, durationInFrames: totalDuration },
        serveUrl: bundleLocation,
        codec: 'h264',
        outputLocation: outputPath,
        inputProps,
        onProgress: ({ progress }) => {
            console.log(JSON.stringify({ type: 'progress', phase: 'rendering', percent: progress * 100 }));
        },
    });

    console.log(JSON.stringify({ type: 'complete', outputPath }));
}

main().catch((err) => {
    console.error(JSON.stringify({ type: 'error', message: err.message }));
    process.exit(1);
});`

// buildScript assembles the Node program that performs the render.
// All dynamic values are embedded as JSON so quoting is never an issue.
func buildScript(remotionDir, outputPath string, content *jobs.TutorialContent, audioURLs []string, stepDurations []int) (string, error) {
	inputProps, err := json.Marshal(map[string]any{
		"content":       content,
		"audioFiles":    audioURLs,
		"stepDurations": stepDurations,
	})
	if err != nil {
		return "", fmt.Errorf("marshal input props: %w", err)
	}

	dirJSON, err := json.Marshal(filepath.ToSlash(remotionDir))
	if err != nil {
		return "", err
	}
	outJSON, err := json.Marshal(filepath.ToSlash(outputPath))
	if err != nil {
		return "", err
	}
	durJSON, err := json.Marshal(stepDurations)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(scriptTemplate, dirJSON, inputProps, outJSON, durJSON), nil
}
