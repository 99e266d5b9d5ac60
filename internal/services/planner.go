package services

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"sceneforge/internal/models"
)

// ---------------------------------------------------------------------------
// Scene Planner — pure and deterministic. Splits a prompt plus target
// duration into ordered scene descriptors; no I/O.
// ---------------------------------------------------------------------------

// MaxSceneDuration is the longest single clip any model is asked for.
// Scenes get an equal split of the total, not MaxSceneDuration-sized chunks.
const MaxSceneDuration = 8.0

// Splitting thresholds. Empirically tuned values kept as variables rather
// than hard invariants.
var (
	shortSegmentChars = 200 // below this a segment is considered too thin on its own
	longPromptChars   = 300 // above this the full prompt carries detail worth keeping
	minClauseChars    = 10  // comma clauses shorter than this are noise
)

// PlanHints carries optional creative direction appended to every scene
// prompt. Empty fields are absent.
type PlanHints struct {
	Style string
	Mood  string
}

var sentenceBoundary = regexp.MustCompile(`[.!?]+\s+`)

// PlanScenes decomposes a prompt and target duration into contiguous,
// non-overlapping scenes whose durations sum to the total. A duration at
// or under MaxSceneDuration yields exactly one scene.
func PlanScenes(prompt string, durationSeconds float64, hints PlanHints) []models.SceneDescriptor {
	numScenes := int(math.Ceil(durationSeconds / MaxSceneDuration))
	if numScenes < 1 {
		numScenes = 1
	}

	sceneDuration := durationSeconds / float64(numScenes)
	segments := splitPrompt(prompt, numScenes)

	scenes := make([]models.SceneDescriptor, 0, numScenes)
	for i := 0; i < numScenes; i++ {
		start := float64(i) * sceneDuration
		end := float64(i+1) * sceneDuration
		if i == numScenes-1 {
			end = durationSeconds // absorb float drift on the last scene
		}

		scenes = append(scenes, models.SceneDescriptor{
			SceneNumber: i + 1,
			Prompt:      buildScenePrompt(prompt, segmentFor(segments, i, numScenes), i+1, numScenes, start, end, hints),
			Duration:    end - start,
			StartTime:   start,
			EndTime:     end,
		})
	}

	return scenes
}

// splitPrompt breaks the prompt into candidate segments, trying coarser
// boundaries first and falling back until it has at least numScenes
// pieces: line breaks, then sentences, then comma clauses, then equal
// word chunks, finally raw character chunks.
func splitPrompt(prompt string, numScenes int) []string {
	trimmed := strings.TrimSpace(prompt)

	if lines := nonEmpty(strings.Split(trimmed, "\n")); len(lines) >= numScenes {
		return lines
	}

	if sentences := nonEmpty(sentenceBoundary.Split(trimmed, -1)); len(sentences) >= numScenes {
		return sentences
	}

	var clauses []string
	for _, c := range strings.Split(trimmed, ",") {
		if c = strings.TrimSpace(c); len(c) > minClauseChars {
			clauses = append(clauses, c)
		}
	}
	if len(clauses) >= numScenes {
		return clauses
	}

	if words := strings.Fields(trimmed); len(words) >= numScenes {
		return chunkJoin(words, numScenes)
	}

	return chunkRunes(trimmed, numScenes)
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// chunkJoin splits words into numScenes near-equal groups, re-joined.
func chunkJoin(words []string, numScenes int) []string {
	out := make([]string, 0, numScenes)
	for i := 0; i < numScenes; i++ {
		lo := i * len(words) / numScenes
		hi := (i + 1) * len(words) / numScenes
		out = append(out, strings.Join(words[lo:hi], " "))
	}
	return out
}

// chunkRunes is the last-resort split: numScenes equal character chunks.
// An empty prompt still yields numScenes empty segments.
func chunkRunes(s string, numScenes int) []string {
	runes := []rune(s)
	out := make([]string, 0, numScenes)
	for i := 0; i < numScenes; i++ {
		lo := i * len(runes) / numScenes
		hi := (i + 1) * len(runes) / numScenes
		out = append(out, strings.TrimSpace(string(runes[lo:hi])))
	}
	return out
}

// segmentFor maps scene index i to its segment — a contiguous group when
// there are more segments than scenes.
func segmentFor(segments []string, i, numScenes int) string {
	if len(segments) == 0 {
		return ""
	}
	lo := i * len(segments) / numScenes
	hi := (i + 1) * len(segments) / numScenes
	if hi <= lo {
		if lo >= len(segments) {
			lo = len(segments) - 1
		}
		return segments[lo]
	}
	return strings.Join(segments[lo:hi], ". ")
}

// positionPrefix frames a scene by its normalized position in the video.
// Scenes after the first in the transition band additionally note
// continuation from the previous scene.
func positionPrefix(sceneNumber, numScenes int) string {
	p := float64(sceneNumber) / float64(numScenes)

	switch {
	case p <= 0.2:
		return "Opening shot, establishing the scene"
	case p >= 0.8:
		return "Closing shot, the finale"
	case p >= 0.4 && p <= 0.6:
		return "Middle of the story, main action"
	default:
		if sceneNumber > 1 {
			return "Transition shot, continuing from the previous scene"
		}
		return "Transition shot"
	}
}

func buildScenePrompt(fullPrompt, segment string, sceneNumber, numScenes int, start, end float64, hints PlanHints) string {
	// A thin segment of a rich prompt loses detail on later scenes; fall
	// back to the full prompt under the positional framing instead.
	text := segment
	if len(segment) < shortSegmentChars && len(fullPrompt) > longPromptChars {
		text = strings.TrimSpace(fullPrompt)
	}

	var b strings.Builder
	b.WriteString(positionPrefix(sceneNumber, numScenes))
	b.WriteString(": ")
	b.WriteString(text)

	if sceneNumber > 1 {
		b.WriteString(". Maintain visual continuity with previous scenes")
	}
	if hints.Style != "" {
		b.WriteString(". Style: ")
		b.WriteString(hints.Style)
	}
	if hints.Mood != "" {
		b.WriteString(". Mood: ")
		b.WriteString(hints.Mood)
	}

	b.WriteString(fmt.Sprintf(" (%ds - %ds)", int(math.Round(start)), int(math.Round(end))))

	return b.String()
}
