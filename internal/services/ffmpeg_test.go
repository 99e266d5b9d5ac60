package services

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFrameTimestamps(t *testing.T) {
	tests := []struct {
		name      string
		duration  float64
		fps       float64
		wantFirst float64
		wantLast  float64
	}{
		{
			name:     "typical clip",
			duration: 8.0, fps: 30,
			wantFirst: 0.5,
			wantLast:  8.0 - 1.0/30.0,
		},
		{
			name:     "short clip uses duration fraction",
			duration: 2.0, fps: 30,
			wantFirst: 0.2,
			wantLast:  2.0 - 1.0/30.0,
		},
		{
			name:     "unknown fps falls back",
			duration: 8.0, fps: 0,
			wantFirst: 0.5,
			wantLast:  7.2, // 0.9 * duration
		},
		{
			name:     "very short clip keeps last inside",
			duration: 0.05, fps: 1,
			wantFirst: 0.005,
			wantLast:  0.04, // min(0.9*duration, duration-0.01)
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, last := frameTimestamps(tt.duration, tt.fps)
			if math.Abs(first-tt.wantFirst) > 1e-9 {
				t.Errorf("first = %v, want %v", first, tt.wantFirst)
			}
			if math.Abs(last-tt.wantLast) > 1e-9 {
				t.Errorf("last = %v, want %v", last, tt.wantLast)
			}
			if last < first {
				t.Errorf("last (%v) before first (%v)", last, first)
			}
			if last >= tt.duration {
				t.Errorf("last (%v) not inside clip of %vs", last, tt.duration)
			}
		})
	}
}

func TestFrameScratchFilesCleanUpCompletely(t *testing.T) {
	// Frame outputs are flat files in the temp dir, so cleaning up the
	// two returned paths must leave the temp dir empty — no per-scene
	// scratch directories accumulating behind the worker's back.
	dir := t.TempDir()
	svc := NewFFmpegService(dir)

	firstPath, err := svc.scratchFile("frame_first_*.jpg")
	if err != nil {
		t.Fatalf("scratchFile failed: %v", err)
	}
	lastPath, err := svc.scratchFile("frame_last_*.jpg")
	if err != nil {
		t.Fatalf("scratchFile failed: %v", err)
	}
	if filepath.Dir(firstPath) != dir || filepath.Dir(lastPath) != dir {
		t.Fatalf("frame paths not flat in temp dir: %s, %s", firstPath, lastPath)
	}

	svc.Cleanup(firstPath, lastPath)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("temp dir not empty after cleanup: %v", entries)
	}
}

func TestMixAudioArgs(t *testing.T) {
	args := strings.Join(mixAudioArgs("video.mp4", "track.mp3", "out.mp4"), " ")

	// The audio loops for as long as the video runs and the mux stops
	// with the video stream, so the output duration equals the video's.
	for _, want := range []string{"-stream_loop -1 -i track.mp3", "-shortest", "-map 0:v", "-map 1:a", "-c:v copy"} {
		if !strings.Contains(args, want) {
			t.Errorf("mix invocation missing %q: %s", want, args)
		}
	}
	if !strings.HasSuffix(args, "out.mp4") {
		t.Errorf("output path must be last: %s", args)
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"30000/1001", 30000.0 / 1001.0},
		{"25", 25},
		{"0/0", 0},
		{"garbage", 0},
		{"24/0", 0},
	}
	for _, tt := range tests {
		if got := parseFrameRate(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("parseFrameRate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEffectFilter(t *testing.T) {
	if got := effectFilter(EffectFadeIn, 8); got != "fade=t=in:st=0:d=1.00" {
		t.Errorf("fade in filter: %s", got)
	}
	if got := effectFilter(EffectFadeOut, 8); got != "fade=t=out:st=7.00:d=1.00" {
		t.Errorf("fade out filter: %s", got)
	}
	// Clip shorter than the fade still starts at zero.
	if got := effectFilter(EffectFadeOut, 0.5); !strings.Contains(got, "st=0.00") {
		t.Errorf("short clip fade out should start at 0: %s", got)
	}
	if got := effectFilter(EffectGrayscale, 8); got != "hue=s=0" {
		t.Errorf("grayscale filter: %s", got)
	}
	if got := effectFilter(ClipEffect("nope"), 8); got != "" {
		t.Errorf("unknown effect should yield empty filter, got %s", got)
	}
	for _, e := range []ClipEffect{EffectBlur, EffectVintage, EffectVivid} {
		if effectFilter(e, 8) == "" {
			t.Errorf("effect %s has no filter", e)
		}
	}
}
