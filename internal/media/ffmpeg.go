package media

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Vertical short-form target: 9:16.
const (
	targetWidth  = 720
	targetHeight = 1280
)

var scaleFilter = fmt.Sprintf(
	"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1",
	targetWidth, targetHeight, targetWidth, targetHeight,
)

// FFmpeg wraps the ffmpeg/ffprobe binaries. Both the concatenation and the
// merge primitives try a stream copy first and fall back to a full
// re-encode through the same runWithFallback path.
type FFmpeg struct {
	ffmpeg  string
	ffprobe string
}

func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

// Concat joins the inputs in order into one video without audio. Stream
// copy via the concat demuxer is tried first; mismatched stream parameters
// across clips trigger the re-encode fallback at the 9:16 target.
func (f *FFmpeg) Concat(ctx context.Context, ws *Workspace, inputs []string, outName string) (string, error) {
	if len(inputs) == 0 {
		return "", fmt.Errorf("concat: no input files")
	}

	manifest := ws.Path("concat_" + outName + ".txt")
	if err := writeConcatManifest(manifest, inputs); err != nil {
		return "", err
	}

	out := ws.Path(outName)
	primary := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", manifest,
		"-c", "copy",
		"-an",
		out,
	}
	fallback := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", manifest,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "23",
		"-vf", scaleFilter,
		"-pix_fmt", "yuv420p",
		"-an",
		out,
	}

	if err := f.runWithFallback(ctx, "concat", primary, fallback); err != nil {
		return "", err
	}
	return out, nil
}

// RepeatTrimmed concatenates `repeat` copies of input and re-encodes with a
// hard output duration cap, so the tail is trimmed at the stream level
// rather than looped into a partial jump-cut.
func (f *FFmpeg) RepeatTrimmed(ctx context.Context, ws *Workspace, input string, repeat int, capSeconds float64, outName string) (string, error) {
	if repeat < 1 {
		return "", fmt.Errorf("repeat count must be >= 1, got %d", repeat)
	}

	entries := make([]string, repeat)
	for i := range entries {
		entries[i] = input
	}
	manifest := ws.Path("repeat_" + outName + ".txt")
	if err := writeConcatManifest(manifest, entries); err != nil {
		return "", err
	}

	out := ws.Path(outName)
	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", manifest,
		"-t", formatSeconds(capSeconds),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-an",
		out,
	}

	if err := f.run(ctx, args); err != nil {
		return "", fmt.Errorf("repeat-trim encode: %w", err)
	}
	return out, nil
}

// Merge combines the silent video's visual stream with the audio track,
// re-encoding the audio to AAC and bounding the output by the shorter
// input. The fallback re-encode additionally forces the 9:16 target.
func (f *FFmpeg) Merge(ctx context.Context, ws *Workspace, videoPath, audioPath, outName string) (string, error) {
	out := ws.Path(outName)
	primary := []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		"-movflags", "+faststart",
		out,
	}
	fallback := []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "23",
		"-vf", scaleFilter,
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		"-movflags", "+faststart",
		out,
	}

	if err := f.runWithFallback(ctx, "merge", primary, fallback); err != nil {
		return "", err
	}
	return out, nil
}

// ProbeDuration reads the container duration in seconds.
func (f *FFmpeg) ProbeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, f.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w\n%s", err, string(b))
	}
	return parseProbeDuration(string(b))
}

func (f *FFmpeg) runWithFallback(ctx context.Context, label string, primary, fallback []string) error {
	if err := f.run(ctx, primary); err == nil {
		return nil
	} else {
		log.Printf("[media] %s stream copy failed, re-encoding: %v", label, err)
	}
	if err := f.run(ctx, fallback); err != nil {
		return fmt.Errorf("%s re-encode fallback: %w", label, err)
	}
	return nil
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, f.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg %s: %w\n%s", args[len(args)-1], err, string(b))
	}
	return nil
}

// writeConcatManifest writes a concat demuxer file list, one `file` line
// per input, single quotes escaped for the demuxer.
func writeConcatManifest(path string, inputs []string) error {
	var sb strings.Builder
	for _, in := range inputs {
		escaped := strings.ReplaceAll(in, "'", `'\''`)
		fmt.Fprintf(&sb, "file '%s'\n", escaped)
	}
	return os.WriteFile(path, []byte(sb.String()), 0644)
}

func parseProbeDuration(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return sec, nil
}

func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
