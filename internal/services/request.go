package services

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"sceneforge/internal/models"
)

// ---------------------------------------------------------------------------
// Per-family request building. Each model family has a distinct schema;
// the builder is a tagged variant per family including only the optional
// fields that family's param schema declares.
// ---------------------------------------------------------------------------

// GenerationParams carries the per-scene knobs the worker hands the
// Generation Client. Empty/nil fields are absent.
type GenerationParams struct {
	AspectRatio        string // numeric form, e.g. "9:16"
	ReferenceImageURL  string // prior scene's last frame, biases continuity
	EndFrameURL        string
	ContinuationHandle string // opaque handle from the prior scene's result
	NegativePrompt     string
	Seed               *int64
	Style              string
	Mood               string
	ColorPalette       string
	Pacing             string
}

type imageInput struct {
	URL string `json:"url"`
}

// grokRequest is the Grok Imagine family schema.
type grokRequest struct {
	Model          string      `json:"model"`
	Prompt         string      `json:"prompt"`
	Duration       int         `json:"duration"`
	AspectRatio    string      `json:"aspect_ratio"`
	Resolution     string      `json:"resolution"`
	Image          *imageInput `json:"image,omitempty"`
	NegativePrompt string      `json:"negative_prompt,omitempty"`
	Seed           *int64      `json:"seed,omitempty"`
}

// lumaRequest is the Luma family schema. Duration is quantized the same
// way but the aspect ratio is categorical, and the family supports
// chaining via start/end frames and a continuation id.
type lumaRequest struct {
	Model           string `json:"model"`
	Prompt          string `json:"prompt"`
	DurationSeconds int    `json:"duration_seconds"`
	Orientation     string `json:"orientation"`
	StartImageURL   string `json:"start_image_url,omitempty"`
	EndImageURL     string `json:"end_image_url,omitempty"`
	ContinuationID  string `json:"continuation_id,omitempty"`
}

// pixelverseRequest is the Pixelverse family schema.
type pixelverseRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Duration       int    `json:"duration"`
	AspectRatio    string `json:"aspect_ratio"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Seed           *int64 `json:"seed,omitempty"`
}

// buildProviderRequest assembles the family-specific request body for the
// HTTP provider. The Veo family never reaches here — it executes through
// the Gen AI SDK instead.
func buildProviderRequest(profile *models.ModelProfile, scene models.SceneDescriptor, params GenerationParams) (interface{}, error) {
	prompt := preparePrompt(scene.Prompt, profile.MaxPromptChars, params)
	duration := quantizeDuration(scene.Duration, profile.AllowedDurations)
	aspect := aspectValue(profile, params.AspectRatio)

	switch profile.Family {
	case models.FamilyGrok:
		req := &grokRequest{
			Model:       profile.ID,
			Prompt:      prompt,
			Duration:    duration,
			AspectRatio: aspect,
			Resolution:  "720p",
		}
		if profile.Params.ReferenceImage && params.ReferenceImageURL != "" {
			req.Image = &imageInput{URL: params.ReferenceImageURL}
		}
		if profile.Params.NegativePrompt && params.NegativePrompt != "" {
			req.NegativePrompt = params.NegativePrompt
		}
		if profile.Params.Seed {
			req.Seed = params.Seed
		}
		return req, nil

	case models.FamilyLuma:
		req := &lumaRequest{
			Model:           profile.ID,
			Prompt:          prompt,
			DurationSeconds: duration,
			Orientation:     aspect,
		}
		if profile.Params.ReferenceImage && params.ReferenceImageURL != "" {
			req.StartImageURL = params.ReferenceImageURL
		}
		if profile.Params.EndFrame && params.EndFrameURL != "" {
			req.EndImageURL = params.EndFrameURL
		}
		if profile.Params.Continuation && params.ContinuationHandle != "" {
			req.ContinuationID = params.ContinuationHandle
		}
		return req, nil

	case models.FamilyPixelverse:
		req := &pixelverseRequest{
			Model:       profile.ID,
			Prompt:      prompt,
			Duration:    duration,
			AspectRatio: aspect,
		}
		if profile.Params.NegativePrompt && params.NegativePrompt != "" {
			req.NegativePrompt = params.NegativePrompt
		}
		if profile.Params.Seed {
			req.Seed = params.Seed
		}
		return req, nil

	default:
		return nil, fmt.Errorf("no request builder for model family %q", profile.Family)
	}
}

// preparePrompt sanitizes, enhances, and truncates a scene prompt for
// one model. The style/mood/color/pacing enhancement must stay visible
// in the final text, so the base prompt gives up room for it when the
// combined length exceeds the family limit.
func preparePrompt(prompt string, maxChars int, params GenerationParams) string {
	base := sanitizePrompt(prompt)

	var extras []string
	if params.Style != "" {
		extras = append(extras, "in "+params.Style+" style")
	}
	if params.Mood != "" {
		extras = append(extras, params.Mood+" mood")
	}
	if params.ColorPalette != "" {
		extras = append(extras, params.ColorPalette+" color palette")
	}
	if params.Pacing != "" {
		extras = append(extras, params.Pacing+" pacing")
	}

	var suffix string
	if len(extras) > 0 {
		suffix = ". Rendered " + strings.Join(extras, ", ") + "."
	}

	if maxChars > 0 {
		budget := maxChars - len([]rune(suffix))
		if budget < 0 {
			budget = 0
		}
		if runes := []rune(base); len(runes) > budget {
			base = strings.TrimSpace(string(runes[:budget]))
		}
	}

	return base + suffix
}

// sanitizePrompt strips control characters and non-printable/emoji
// ranges that trip up provider validators.
func sanitizePrompt(prompt string) string {
	var b strings.Builder
	b.Grow(len(prompt))

	for _, r := range prompt {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(' ')
		case unicode.IsControl(r):
			// dropped
		case r >= 0x1F000: // emoji, symbols, pictographs
			// dropped
		case r >= 0x2600 && r <= 0x27BF: // misc symbols and dingbats
			// dropped
		case r >= 0xFE00 && r <= 0xFE0F: // variation selectors
			// dropped
		case !unicode.IsPrint(r):
			// dropped
		default:
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// quantizeDuration snaps a requested duration to the family's allowed
// discrete set: nearest value, ties resolved downward.
func quantizeDuration(seconds float64, allowed []int) int {
	if len(allowed) == 0 {
		return int(seconds + 0.5)
	}

	best := allowed[0]
	bestDiff := diff(seconds, allowed[0])
	for _, a := range allowed[1:] {
		if d := diff(seconds, a); d < bestDiff {
			best, bestDiff = a, d
		}
	}
	return best
}

func diff(seconds float64, allowed int) float64 {
	d := seconds - float64(allowed)
	if d < 0 {
		return -d
	}
	return d
}

// aspectValue renders the aspect ratio in the form the family expects:
// either the "W:H" string itself, or a landscape/portrait categorical
// derived from the numeric ratio.
func aspectValue(profile *models.ModelProfile, ratio string) string {
	if ratio == "" {
		ratio = "16:9"
	}
	if profile.RatioAsString {
		return ratio
	}

	w, h, ok := parseRatio(ratio)
	if !ok {
		return "landscape"
	}
	if w < h {
		return "portrait"
	}
	return "landscape"
}

func parseRatio(ratio string) (w, h float64, ok bool) {
	parts := strings.SplitN(ratio, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	w, errW := strconv.ParseFloat(parts[0], 64)
	h, errH := strconv.ParseFloat(parts[1], 64)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}
