package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"sceneforge/internal/models"
)

// ---------------------------------------------------------------------------
// Prompt Enhancer — optional LLM pass that rewrites the planner's scene
// prompts into richer cinematic shot descriptions. Disabled by default so
// planning stays deterministic; when it fails, the original prompts are
// used unchanged.
// ---------------------------------------------------------------------------

const enhancerModel = "gpt-5-mini"

type PromptEnhancer struct {
	client *openai.Client
}

func NewPromptEnhancer(apiKey string) *PromptEnhancer {
	return &PromptEnhancer{
		client: openai.NewClient(apiKey),
	}
}

type enhancedScene struct {
	SceneNumber int    `json:"scene_number"`
	Prompt      string `json:"prompt"`
}

type enhancedPlan struct {
	Scenes []enhancedScene `json:"scenes"`
}

// EnhanceScenes rewrites each scene prompt as a film director's shot
// description, preserving scene count, ordering, and timing. Any failure
// (request, parse, count mismatch) returns the input untouched — the
// enhancer must never break a job.
func (e *PromptEnhancer) EnhanceScenes(ctx context.Context, scenes []models.SceneDescriptor) []models.SceneDescriptor {
	if len(scenes) == 0 {
		return scenes
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: enhancerModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: enhancerSystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildEnhancerUserPrompt(scenes),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 1.0,
	})
	if err != nil {
		log.Printf("[Enhancer] Request failed, keeping original prompts: %v", err)
		return scenes
	}
	if len(resp.Choices) == 0 {
		log.Printf("[Enhancer] Empty response, keeping original prompts")
		return scenes
	}

	var plan enhancedPlan
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &plan); err != nil {
		log.Printf("[Enhancer] Parse failed, keeping original prompts: %v", err)
		return scenes
	}
	if len(plan.Scenes) != len(scenes) {
		log.Printf("[Enhancer] Scene count mismatch (%d vs %d), keeping original prompts", len(plan.Scenes), len(scenes))
		return scenes
	}

	enhanced := make([]models.SceneDescriptor, len(scenes))
	copy(enhanced, scenes)
	for _, es := range plan.Scenes {
		idx := es.SceneNumber - 1
		if idx < 0 || idx >= len(enhanced) || strings.TrimSpace(es.Prompt) == "" {
			log.Printf("[Enhancer] Invalid enhanced scene %d, keeping original prompts", es.SceneNumber)
			return scenes
		}
		enhanced[idx].Prompt = es.Prompt
	}

	log.Printf("[Enhancer] Enhanced %d scene prompts", len(enhanced))
	return enhanced
}

const enhancerSystemPrompt = `You are an expert film director writing shot descriptions for AI video generation.

You will receive a numbered list of scene prompts from a longer video. Rewrite each prompt as a vivid, cinematic shot description while keeping its original subject and narrative position.

Guidelines:
- Preserve the meaning and subject of each scene — enrich, never replace.
- Include subject detail, setting, lighting, atmosphere, and camera movement.
- Write in present tense as continuous action.
- Motion should feel cinematic and natural, not frantic.
- Do NOT include audio cues or dialogue — the clips are silent.
- Keep visual continuity: consecutive scenes should read as one coherent film.

Respond with JSON: {"scenes": [{"scene_number": 1, "prompt": "..."}, ...]}
Return exactly one entry per input scene, with the same scene numbers.`

func buildEnhancerUserPrompt(scenes []models.SceneDescriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rewrite these %d scene prompts:\n", len(scenes))
	for _, s := range scenes {
		fmt.Fprintf(&b, "\nScene %d (%.0fs - %.0fs):\n%s\n", s.SceneNumber, s.StartTime, s.EndTime, s.Prompt)
	}
	return b.String()
}
