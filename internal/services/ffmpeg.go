package services

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ---------------------------------------------------------------------------
// Clip effect types — optional post-processing applied to a finished clip
// ---------------------------------------------------------------------------

// ClipEffect identifies a visual treatment re-encoded onto a clip.
type ClipEffect string

const (
	EffectFadeIn    ClipEffect = "fade_in"    // Fade from black over the first second
	EffectFadeOut   ClipEffect = "fade_out"   // Fade to black over the last second
	EffectBlur      ClipEffect = "blur"       // Gentle gaussian blur
	EffectVintage   ClipEffect = "vintage"    // Warm curves + vignette film look
	EffectGrayscale ClipEffect = "grayscale"  // Full desaturation
	EffectVivid     ClipEffect = "vivid"      // Boosted brightness/contrast/saturation
)

const (
	fadeDuration = 1.0 // seconds

	// Frame extraction: the first frame is sampled shortly after the clip
	// starts (encoders sometimes open on a dark or partial frame), the last
	// one full frame interval before the end so the seek never lands past EOF.
	firstFrameOffset   = 0.5
	firstFrameFraction = 0.1
)

// ---------------------------------------------------------------------------
// FFmpegService
// ---------------------------------------------------------------------------

type FFmpegService struct {
	tempDir string
}

func NewFFmpegService(tempDir string) *FFmpegService {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		panic(fmt.Sprintf("failed to create temp dir: %v", err))
	}

	return &FFmpegService{
		tempDir: tempDir,
	}
}

// run executes an ffmpeg/ffprobe invocation, folding the stderr tail into
// the returned error so failures are diagnosable from job logs alone.
func run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w (stderr: %s)", name, err, stderrTail(stderr.String()))
	}
	return nil
}

func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	const maxLen = 500
	if len(s) > maxLen {
		return "..." + s[len(s)-maxLen:]
	}
	return s
}

// ---------------------------------------------------------------------------
// Probing
// ---------------------------------------------------------------------------

// ProbeResult holds the stream facts the assembler needs to plan frame
// extraction and audio looping.
type ProbeResult struct {
	Duration float64 // seconds
	FPS      float64
}

// Probe inspects a media file with ffprobe. A clip that reports a zero,
// negative, or non-finite duration is unusable downstream, so that is
// surfaced as a MediaProbeError rather than passed along.
func (s *FFmpegService) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	durStr, err := s.probeValue(ctx, path, "format=duration", "")
	if err != nil {
		return nil, &MediaProbeError{Path: path, Message: err.Error()}
	}
	duration, err := strconv.ParseFloat(durStr, 64)
	if err != nil {
		return nil, &MediaProbeError{Path: path, Message: fmt.Sprintf("unparseable duration %q", durStr)}
	}
	if duration <= 0 || math.IsInf(duration, 0) || math.IsNaN(duration) {
		return nil, &MediaProbeError{Path: path, Message: fmt.Sprintf("invalid duration %v", duration)}
	}

	fps := 0.0
	if fpsStr, err := s.probeValue(ctx, path, "stream=r_frame_rate", "v:0"); err == nil {
		fps = parseFrameRate(fpsStr)
	}

	return &ProbeResult{Duration: duration, FPS: fps}, nil
}

func (s *FFmpegService) probeValue(ctx context.Context, path, entries, stream string) (string, error) {
	args := []string{"-v", "error"}
	if stream != "" {
		args = append(args, "-select_streams", stream)
	}
	args = append(args,
		"-show_entries", entries,
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("ffprobe failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// parseFrameRate parses ffprobe's rational frame rate ("30000/1001").
// Unknown or degenerate rates come back as 0.
func parseFrameRate(s string) float64 {
	parts := strings.SplitN(s, "/", 2)
	num, err := strconv.ParseFloat(parts[0], 64)
	if err != nil || num <= 0 {
		return 0
	}
	if len(parts) == 1 {
		return num
	}
	den, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || den <= 0 {
		return 0
	}
	return num / den
}

// ---------------------------------------------------------------------------
// Frame extraction
// ---------------------------------------------------------------------------

// frameTimestamps picks the seek positions for the representative first
// and last frames of a clip. The last frame sits one frame interval
// before the end; when the frame rate is unknown or the clip is too short
// for that, it falls back to a position safely inside the clip.
func frameTimestamps(duration, fps float64) (first, last float64) {
	first = firstFrameFraction * duration
	if first > firstFrameOffset {
		first = firstFrameOffset
	}

	if fps > 0 {
		last = duration - 1/fps
	}
	if last <= first || fps <= 0 {
		last = math.Min(0.9*duration, duration-0.01)
	}
	if last < 0 {
		last = 0
	}
	if last < first {
		first = 0
	}
	return first, last
}

// ExtractFrames grabs the representative first and last frames of a clip
// as JPEGs. The frames are flat files in the service temp dir, so the
// caller's Cleanup of the two returned paths leaves nothing behind. The
// two extractions run in parallel.
func (s *FFmpegService) ExtractFrames(ctx context.Context, videoPath string) (firstPath, lastPath string, err error) {
	probe, err := s.Probe(ctx, videoPath)
	if err != nil {
		return "", "", err
	}

	firstPath, err = s.scratchFile("frame_first_*.jpg")
	if err != nil {
		return "", "", err
	}
	lastPath, err = s.scratchFile("frame_last_*.jpg")
	if err != nil {
		os.Remove(firstPath)
		return "", "", err
	}

	firstTS, lastTS := frameTimestamps(probe.Duration, probe.FPS)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.extractFrameAt(gctx, videoPath, firstTS, firstPath)
	})
	g.Go(func() error {
		return s.extractFrameAt(gctx, videoPath, lastTS, lastPath)
	})
	if err := g.Wait(); err != nil {
		s.Cleanup(firstPath, lastPath)
		return "", "", err
	}

	return firstPath, lastPath, nil
}

// scratchFile reserves a uniquely named file in the temp dir for an
// ffmpeg output (written via -y).
func (s *FFmpegService) scratchFile(pattern string) (string, error) {
	f, err := os.CreateTemp(s.tempDir, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create scratch file: %w", err)
	}
	f.Close()
	return f.Name(), nil
}

func (s *FFmpegService) extractFrameAt(ctx context.Context, videoPath string, ts float64, outputPath string) error {
	args := []string{
		"-ss", fmt.Sprintf("%.3f", ts),
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		"-y",
		outputPath,
	}
	if err := run(ctx, "ffmpeg", args...); err != nil {
		return fmt.Errorf("frame extraction at %.3fs failed: %w", ts, err)
	}
	return nil
}

// ExtractThumbnail grabs a single poster frame near the start of a video.
func (s *FFmpegService) ExtractThumbnail(ctx context.Context, videoPath, outputPath string) error {
	args := []string{
		"-ss", "0.5",
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		"-y",
		outputPath,
	}
	return run(ctx, "ffmpeg", args...)
}

// ---------------------------------------------------------------------------
// Assembly
// ---------------------------------------------------------------------------

// ConcatenateClips joins clips into one video with the concat demuxer.
// The clips share a codec and resolution (they come from the same
// generation pipeline), so the streams are copied without re-encoding.
func (s *FFmpegService) ConcatenateClips(ctx context.Context, clipPaths []string, outputPath string) error {
	if len(clipPaths) == 0 {
		return fmt.Errorf("no clips to concatenate")
	}

	listFile, err := os.CreateTemp(s.tempDir, "concat-*.txt")
	if err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}
	listPath := listFile.Name()
	defer os.Remove(listPath)

	for _, path := range clipPaths {
		fmt.Fprintf(listFile, "file '%s'\n", path)
	}
	listFile.Close()

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y",
		outputPath,
	}

	if err := run(ctx, "ffmpeg", args...); err != nil {
		return fmt.Errorf("concatenation of %d clips failed: %w", len(clipPaths), err)
	}
	return nil
}

// MixAudio lays a looping audio track under a video. The audio repeats if
// shorter than the video and is trimmed when the video ends, so the
// output duration always equals the video's. Any audio already in the
// video is replaced.
func (s *FFmpegService) MixAudio(ctx context.Context, videoPath, audioPath, outputPath string) error {
	if audioPath == "" {
		return fmt.Errorf("no audio path provided")
	}
	if _, err := os.Stat(audioPath); err != nil {
		return fmt.Errorf("audio file unavailable: %w", err)
	}

	log.Printf("[FFmpeg] Mixing audio track from %s", audioPath)

	if err := run(ctx, "ffmpeg", mixAudioArgs(videoPath, audioPath, outputPath)...); err != nil {
		return fmt.Errorf("audio mix failed: %w", err)
	}
	return nil
}

// mixAudioArgs builds the mix invocation: the audio input loops
// indefinitely and -shortest stops the mux when the video stream ends,
// which pins the output duration to the video's.
func mixAudioArgs(videoPath, audioPath, outputPath string) []string {
	return []string{
		"-i", videoPath,
		"-stream_loop", "-1",
		"-i", audioPath,
		"-map", "0:v",
		"-map", "1:a",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		"-y",
		outputPath,
	}
}

// Trim cuts a segment out of a video without re-encoding. Cut points
// snap to the nearest keyframe, which is acceptable for preview trims.
func (s *FFmpegService) Trim(ctx context.Context, videoPath, outputPath string, start, duration float64) error {
	if duration <= 0 {
		return fmt.Errorf("trim duration must be positive, got %v", duration)
	}

	args := []string{
		"-ss", fmt.Sprintf("%.3f", start),
		"-i", videoPath,
		"-t", fmt.Sprintf("%.3f", duration),
		"-c", "copy",
		"-y",
		outputPath,
	}
	return run(ctx, "ffmpeg", args...)
}

// ApplyEffect re-encodes a clip with a visual treatment.
func (s *FFmpegService) ApplyEffect(ctx context.Context, videoPath, outputPath string, effect ClipEffect) error {
	probe, err := s.Probe(ctx, videoPath)
	if err != nil {
		return err
	}

	vf := effectFilter(effect, probe.Duration)
	if vf == "" {
		return fmt.Errorf("unknown effect: %s", effect)
	}

	args := []string{
		"-i", videoPath,
		"-vf", vf,
		"-c:v", "libx264",
		"-c:a", "copy",
		"-pix_fmt", "yuv420p",
		"-y",
		outputPath,
	}

	if err := run(ctx, "ffmpeg", args...); err != nil {
		return fmt.Errorf("effect %s failed: %w", effect, err)
	}
	return nil
}

// effectFilter builds the -vf chain for an effect. Returns "" for
// effects it does not recognize.
func effectFilter(effect ClipEffect, duration float64) string {
	switch effect {
	case EffectFadeIn:
		return fmt.Sprintf("fade=t=in:st=0:d=%.2f", fadeDuration)
	case EffectFadeOut:
		start := duration - fadeDuration
		if start < 0 {
			start = 0
		}
		return fmt.Sprintf("fade=t=out:st=%.2f:d=%.2f", start, fadeDuration)
	case EffectBlur:
		return "gblur=sigma=2"
	case EffectVintage:
		return "curves=preset=vintage,vignette=PI/5"
	case EffectGrayscale:
		return "hue=s=0"
	case EffectVivid:
		return "eq=brightness=0.05:contrast=1.15:saturation=1.3"
	default:
		return ""
	}
}

// ApplyTransition joins two clips with a crossfade. The fade begins
// transition seconds before the first clip ends; both inputs are
// re-encoded since xfade cannot streamcopy.
func (s *FFmpegService) ApplyTransition(ctx context.Context, firstPath, secondPath, outputPath string, transition float64) error {
	if transition <= 0 {
		transition = fadeDuration
	}

	probe, err := s.Probe(ctx, firstPath)
	if err != nil {
		return err
	}

	offset := probe.Duration - transition
	if offset < 0 {
		offset = 0
	}

	filterComplex := fmt.Sprintf(
		"[0:v][1:v]xfade=transition=fade:duration=%.2f:offset=%.2f[v]",
		transition, offset,
	)

	args := []string{
		"-i", firstPath,
		"-i", secondPath,
		"-filter_complex", filterComplex,
		"-map", "[v]",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-y",
		outputPath,
	}

	if err := run(ctx, "ffmpeg", args...); err != nil {
		return fmt.Errorf("transition failed: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Scratch files
// ---------------------------------------------------------------------------

// CreateTempFile returns a path inside the service's temp directory.
func (s *FFmpegService) CreateTempFile(filename string) string {
	return filepath.Join(s.tempDir, filename)
}

// Cleanup removes temporary files or scratch directories, ignoring paths
// that are already gone.
func (s *FFmpegService) Cleanup(paths ...string) {
	for _, path := range paths {
		os.RemoveAll(path)
	}
}
