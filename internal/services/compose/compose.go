// Package compose drives ffmpeg to assemble the final artifact from
// generated clips and audio tracks and to export per-format variants.
package compose

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/reelflow/reelflow/internal/utils"
)

// execCommand allows us to mock exec.CommandContext in tests
var execCommand = exec.CommandContext

// ClipInput is one timeline entry, in shot-number order. Still inputs
// (keyframe fallbacks for failed clips) are looped for the shot
// duration.
type ClipInput struct {
	URI             string
	DurationSeconds float64
	Still           bool
}

// CompositionRequest assembles clips and audio into one artifact.
type CompositionRequest struct {
	Clips       []ClipInput
	AudioTracks []string
	// ColorPalette drives a light grade; empty means no grading pass.
	ColorPalette []string
	OutputDir    string
	BaseName     string
}

// CompositionResult is the composed artifact.
type CompositionResult struct {
	URI             string
	DurationSeconds float64
}

// ExportRequest transcodes the composed artifact to one format.
type ExportRequest struct {
	InputURI    string
	FormatName  string
	AspectRatio string
	Resolution  string
	OutputDir   string
}

// ExportResult is one per-format output.
type ExportResult struct {
	URI string
}

// Composer shells out to ffmpeg. It requires ffmpeg on PATH; the
// validate command checks that up front.
type Composer struct{}

// New creates a Composer.
func New() *Composer {
	return &Composer{}
}

// localPath strips a file:// scheme so ffmpeg can open the input.
func localPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}

// Compose concatenates clips in order and mixes audio beneath them.
func (c *Composer) Compose(ctx context.Context, req CompositionRequest) (*CompositionResult, error) {
	if len(req.Clips) == 0 {
		return nil, fmt.Errorf("no clips to compose")
	}
	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	outputPath := filepath.Join(req.OutputDir, req.BaseName+".mp4")

	args := []string{"-y"}
	total := 0.0
	for _, clip := range req.Clips {
		if clip.Still {
			// Loop the still frame for the shot duration
			args = append(args, "-loop", "1", "-t", fmt.Sprintf("%.3f", clip.DurationSeconds))
		}
		args = append(args, "-i", localPath(clip.URI))
		total += clip.DurationSeconds
	}
	for _, track := range req.AudioTracks {
		args = append(args, "-i", localPath(track))
	}

	args = append(args, "-filter_complex", buildFilterChain(len(req.Clips), len(req.AudioTracks), req.ColorPalette))
	args = append(args, "-map", "[outv]")
	if len(req.AudioTracks) > 0 {
		args = append(args, "-map", "[outa]")
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		outputPath,
	)

	utils.LogVerbose("Composing %d clips into %s", len(req.Clips), outputPath)
	cmd := execCommand(ctx, "ffmpeg", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg composition failed: %w: %s", err, truncate(string(output), 400))
	}

	return &CompositionResult{URI: "file://" + outputPath, DurationSeconds: total}, nil
}

// Export transcodes the composed artifact to one named format. Formats
// are independent; a failed export leaves the others untouched.
func (c *Composer) Export(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(req.OutputDir, req.FormatName+".mp4")

	args := []string{
		"-y",
		"-i", localPath(req.InputURI),
		"-vf", cropFilter(req.Resolution),
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-c:a", "copy",
		outputPath,
	}

	utils.LogVerbose("Exporting %s (%s %s)", req.FormatName, req.AspectRatio, req.Resolution)
	cmd := execCommand(ctx, "ffmpeg", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg export failed: %w: %s", err, truncate(string(output), 400))
	}

	return &ExportResult{URI: "file://" + outputPath}, nil
}

// buildFilterChain concatenates n video inputs, mixes m audio inputs,
// and applies a light grade when a palette is set.
func buildFilterChain(clips, audioTracks int, palette []string) string {
	var b strings.Builder
	for i := 0; i < clips; i++ {
		fmt.Fprintf(&b, "[%d:v]", i)
	}
	fmt.Fprintf(&b, "concat=n=%d:v=1:a=0[cat]", clips)

	if len(palette) > 0 {
		// eq-based grade keeps the pass cheap and predictable
		b.WriteString(";[cat]eq=saturation=1.05:contrast=1.02[outv]")
	} else {
		b.WriteString(";[cat]null[outv]")
	}

	if audioTracks > 0 {
		for i := 0; i < audioTracks; i++ {
			fmt.Fprintf(&b, ";[%d:a]anull[a%d]", clips+i, i)
		}
		for i := 0; i < audioTracks; i++ {
			fmt.Fprintf(&b, "[a%d]", i)
		}
		fmt.Fprintf(&b, "amix=inputs=%d:duration=first[outa]", audioTracks)
	}

	return b.String()
}

// cropFilter scales and center-crops to the target resolution.
func cropFilter(resolution string) string {
	parts := strings.SplitN(resolution, "x", 2)
	if len(parts) != 2 {
		return "scale=1920:1080"
	}
	w, h := parts[0], parts[1]
	return fmt.Sprintf("scale=%s:%s:force_original_aspect_ratio=increase,crop=%s:%s", w, h, w, h)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
