package services

import (
	"math"
	"reflect"
	"strings"
	"testing"
)

func TestPlanScenesSingleSceneUnderMax(t *testing.T) {
	for _, duration := range []float64{1, 4.5, 8} {
		scenes := PlanScenes("a quiet lake at dawn", duration, PlanHints{})
		if len(scenes) != 1 {
			t.Fatalf("duration %.1f: expected 1 scene, got %d", duration, len(scenes))
		}
		if scenes[0].StartTime != 0 || scenes[0].EndTime != duration {
			t.Errorf("duration %.1f: scene spans [%.2f, %.2f], want [0, %.2f]",
				duration, scenes[0].StartTime, scenes[0].EndTime, duration)
		}
	}
}

func TestPlanScenesCountAndDurationSum(t *testing.T) {
	for _, duration := range []float64{9, 16, 30, 65, 120} {
		scenes := PlanScenes("city streets at night, neon reflections", duration, PlanHints{})

		wantScenes := int(math.Ceil(duration / MaxSceneDuration))
		if len(scenes) != wantScenes {
			t.Fatalf("duration %.1f: expected %d scenes, got %d", duration, wantScenes, len(scenes))
		}

		var sum float64
		for _, s := range scenes {
			sum += s.Duration
		}
		if math.Abs(sum-duration) > 1e-6 {
			t.Errorf("duration %.1f: scene durations sum to %.9f", duration, sum)
		}
	}
}

func TestPlanScenesContiguity(t *testing.T) {
	scenes := PlanScenes("a long journey across mountains and deserts", 40, PlanHints{})

	for i, s := range scenes {
		if s.SceneNumber != i+1 {
			t.Errorf("scene %d has number %d", i, s.SceneNumber)
		}
		if i > 0 && scenes[i-1].EndTime != s.StartTime {
			t.Errorf("scene %d starts at %.6f but previous ends at %.6f",
				s.SceneNumber, s.StartTime, scenes[i-1].EndTime)
		}
	}
}

func TestPlanScenesDeterministic(t *testing.T) {
	hints := PlanHints{Style: "watercolor", Mood: "melancholy"}
	a := PlanScenes("a lighthouse in a storm. waves crash. the keeper watches.", 24, hints)
	b := PlanScenes("a lighthouse in a storm. waves crash. the keeper watches.", 24, hints)

	if !reflect.DeepEqual(a, b) {
		t.Error("identical inputs produced different plans")
	}
}

func TestPlanScenesLongPromptExample(t *testing.T) {
	// 500-char prompt, 65s → ceil(65/8) = 9 scenes of ≈7.22s each.
	prompt := strings.Repeat("A traveler walks through an ancient forest. ", 12)[:500]
	scenes := PlanScenes(prompt, 65, PlanHints{})

	if len(scenes) != 9 {
		t.Fatalf("expected 9 scenes, got %d", len(scenes))
	}

	for _, s := range scenes {
		if math.Abs(s.Duration-65.0/9.0) > 1e-6 {
			t.Errorf("scene %d duration %.4f, want %.4f", s.SceneNumber, s.Duration, 65.0/9.0)
		}
	}

	if !strings.Contains(scenes[0].Prompt, "Opening") {
		t.Errorf("scene 1 missing opening framing: %q", scenes[0].Prompt)
	}
	if !strings.Contains(scenes[8].Prompt, "Closing") {
		t.Errorf("scene 9 missing closing framing: %q", scenes[8].Prompt)
	}
}

func TestPlanScenesContinuityAndHints(t *testing.T) {
	scenes := PlanScenes("first line\nsecond line\nthird line", 24, PlanHints{Style: "noir", Mood: "tense"})

	if strings.Contains(scenes[0].Prompt, "continuity") {
		t.Error("scene 1 should not carry the continuity instruction")
	}
	for _, s := range scenes[1:] {
		if !strings.Contains(s.Prompt, "Maintain visual continuity with previous scenes") {
			t.Errorf("scene %d missing continuity instruction: %q", s.SceneNumber, s.Prompt)
		}
	}
	for _, s := range scenes {
		if !strings.Contains(s.Prompt, "Style: noir") || !strings.Contains(s.Prompt, "Mood: tense") {
			t.Errorf("scene %d missing hints: %q", s.SceneNumber, s.Prompt)
		}
	}
}

func TestPlanScenesTimingAnnotation(t *testing.T) {
	scenes := PlanScenes("waves", 16, PlanHints{})

	if !strings.Contains(scenes[0].Prompt, "(0s - 8s)") {
		t.Errorf("scene 1 missing timing annotation: %q", scenes[0].Prompt)
	}
	if !strings.Contains(scenes[1].Prompt, "(8s - 16s)") {
		t.Errorf("scene 2 missing timing annotation: %q", scenes[1].Prompt)
	}
}

func TestPlanScenesShortSegmentUsesFullPrompt(t *testing.T) {
	// Prompt over 300 chars whose sentence segments are each under 200:
	// every scene should fall back to the full prompt.
	prompt := strings.TrimSpace(strings.Repeat("The drone glides over a frozen fjord at sunrise. ", 8))
	if len(prompt) <= longPromptChars {
		t.Fatalf("test prompt too short: %d", len(prompt))
	}

	scenes := PlanScenes(prompt, 24, PlanHints{})
	for _, s := range scenes {
		if !strings.Contains(s.Prompt, "frozen fjord") {
			t.Errorf("scene %d lost prompt detail: %q", s.SceneNumber, s.Prompt)
		}
		// Full prompt retained, not a thin slice
		if len(s.Prompt) < len(prompt) {
			t.Errorf("scene %d should carry the full prompt (len %d < %d)", s.SceneNumber, len(s.Prompt), len(prompt))
		}
	}
}

func TestPlanScenesEmptyPrompt(t *testing.T) {
	scenes := PlanScenes("   ", 24, PlanHints{})

	if len(scenes) != 3 {
		t.Fatalf("expected 3 scenes, got %d", len(scenes))
	}
	for _, s := range scenes {
		// Positional and continuity text still present
		if s.Prompt == "" {
			t.Errorf("scene %d has empty prompt", s.SceneNumber)
		}
	}
}

func TestSplitPromptCascade(t *testing.T) {
	// Line breaks win when plentiful
	lines := splitPrompt("one\ntwo\nthree\nfour", 3)
	if len(lines) != 4 {
		t.Errorf("line split: got %d segments", len(lines))
	}

	// Sentences next
	sentences := splitPrompt("First thing happens. Then another! Finally done?", 3)
	if len(sentences) != 3 {
		t.Errorf("sentence split: got %d segments: %v", len(sentences), sentences)
	}

	// Comma clauses, dropping short ones
	clauses := splitPrompt("a sweeping aerial view, ok, golden hour lighting, cinematic camera motion", 3)
	if len(clauses) != 3 {
		t.Errorf("clause split: got %d segments: %v", len(clauses), clauses)
	}
	for _, c := range clauses {
		if c == "ok" {
			t.Error("short clause should have been dropped")
		}
	}

	// Word chunks when nothing else produces enough
	words := splitPrompt("alpha beta gamma delta", 4)
	if len(words) != 4 {
		t.Errorf("word split: got %d segments: %v", len(words), words)
	}
}
