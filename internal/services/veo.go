package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"google.golang.org/genai"

	"sceneforge/internal/storage"
)

// ---------------------------------------------------------------------------
// Veo Video Generation Service
// Uses the Google Gen AI SDK for the Veo model family. Unlike the HTTP
// families, Veo delivers clip bytes directly through the SDK's file
// download, so no URL round-trip is needed.
// ---------------------------------------------------------------------------

const (
	defaultVeoModel    = "veo-3.1-generate-preview"
	veoPollInterval    = 10 * time.Second
	veoMaxPollDuration = 5 * time.Minute // Max time to wait for a single clip
)

// VeoService is optional — when the Gemini key is absent the generation
// client treats the Veo family as unconfigured and falls back.
type VeoService struct {
	apiKey  string
	model   string
	storage *storage.Storage
}

// NewVeoService creates a new Veo video generation service.
// apiKey: the Gemini API key (same key works for both Gemini and Veo)
// model: the Veo model to use (empty string defaults to veo-3.1-generate-preview)
func NewVeoService(apiKey, model string, store *storage.Storage) *VeoService {
	if model == "" {
		model = defaultVeoModel
	}
	return &VeoService{
		apiKey:  apiKey,
		model:   model,
		storage: store,
	}
}

// GenerateClip generates one clip via Veo, blocking until the async
// operation completes or times out. Blocking the calling goroutine is
// intentional: each scene is generated sequentially by the worker.
//
// When params carries a reference image URL, the image bytes are fetched
// and passed as the first frame for image-to-video conditioning.
func (s *VeoService) GenerateClip(ctx context.Context, modelID, prompt string, params GenerationParams) ([]byte, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	model := modelID
	if model == "" {
		model = s.model
	}

	var firstFrame *genai.Image
	if params.ReferenceImageURL != "" && s.storage != nil {
		imageData, err := s.storage.FetchURL(ctx, params.ReferenceImageURL)
		if err != nil {
			// Reference conditioning is best-effort; the prompt alone
			// still produces a usable clip.
			log.Printf("[Veo] Failed to fetch reference image, generating from prompt only: %v", err)
		} else {
			firstFrame = &genai.Image{
				ImageBytes: imageData,
				MIMEType:   mimeTypeForURL(params.ReferenceImageURL),
			}
		}
	}

	config := &genai.GenerateVideosConfig{
		AspectRatio:      veoAspectRatio(params.AspectRatio),
		PersonGeneration: "allow_adult",
		NumberOfVideos:   1,
	}
	if params.NegativePrompt != "" {
		config.NegativePrompt = params.NegativePrompt
	}

	log.Printf("[Veo] Starting clip generation (model=%s, promptLen=%d, hasFirstFrame=%v)", model, len(prompt), firstFrame != nil)

	operation, err := client.Models.GenerateVideos(ctx, model, prompt, firstFrame, config)
	if err != nil {
		return nil, &TransientProviderError{Model: model, Message: fmt.Sprintf("failed to start video generation: %v", err)}
	}

	log.Printf("[Veo] Operation started: %s", operation.Name)

	deadline := time.Now().Add(veoMaxPollDuration)
	pollCount := 0
	for !operation.Done {
		if time.Now().After(deadline) {
			return nil, &TransientProviderError{Model: model, Message: fmt.Sprintf("generation timed out after %v (polled %d times)", veoMaxPollDuration, pollCount)}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("video generation cancelled: %w", ctx.Err())
		case <-time.After(veoPollInterval):
		}

		pollCount++
		operation, err = client.Operations.GetVideosOperation(ctx, operation, nil)
		if err != nil {
			return nil, &TransientProviderError{Model: model, Message: fmt.Sprintf("failed to poll operation (attempt %d): %v", pollCount, err)}
		}

		log.Printf("[Veo] Poll %d: done=%v", pollCount, operation.Done)
	}

	if operation.Error != nil && len(operation.Error) > 0 {
		errJSON, _ := json.Marshal(operation.Error)
		return nil, &InvalidInputError{Model: model, Message: fmt.Sprintf("operation failed: %s", string(errJSON))}
	}

	if operation.Response == nil {
		return nil, &TransientProviderError{Model: model, Message: fmt.Sprintf("no response in completed operation after %d polls", pollCount)}
	}

	// Clips blocked by the safety filters are a property of the input,
	// not the provider's health — retrying the same prompt won't help.
	if operation.Response.RAIMediaFilteredCount > 0 {
		reasons := "unknown"
		if len(operation.Response.RAIMediaFilteredReasons) > 0 {
			reasons = strings.Join(operation.Response.RAIMediaFilteredReasons, ", ")
		}
		return nil, &InvalidInputError{Model: model, Message: fmt.Sprintf("clip blocked by safety filters: %d filtered, reasons: %s", operation.Response.RAIMediaFilteredCount, reasons)}
	}

	if len(operation.Response.GeneratedVideos) == 0 {
		return nil, &TransientProviderError{Model: model, Message: "no videos in completed response"}
	}

	video := operation.Response.GeneratedVideos[0]
	if video.Video == nil {
		return nil, &TransientProviderError{Model: model, Message: "generated video object is nil"}
	}

	log.Printf("[Veo] Clip ready, downloading...")

	downloadURI := genai.NewDownloadURIFromVideo(video.Video)
	videoBytes, err := client.Files.Download(ctx, downloadURI, nil)
	if err != nil {
		return nil, &TransientProviderError{Model: model, Message: fmt.Sprintf("failed to download generated clip: %v", err)}
	}

	if len(videoBytes) == 0 {
		return nil, &TransientProviderError{Model: model, Message: "downloaded clip is empty"}
	}

	log.Printf("[Veo] Clip generated (%d bytes, %d polls)", len(videoBytes), pollCount)

	return videoBytes, nil
}

// veoAspectRatio maps the pipeline's W:H ratio onto the values Veo
// accepts, defaulting to landscape.
func veoAspectRatio(ratio string) string {
	switch ratio {
	case "9:16", "16:9":
		return ratio
	case "":
		return "16:9"
	default:
		w, h, ok := parseRatio(ratio)
		if ok && w < h {
			return "9:16"
		}
		return "16:9"
	}
}

func mimeTypeForURL(url string) string {
	switch {
	case strings.HasSuffix(url, ".jpg"), strings.HasSuffix(url, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(url, ".webp"):
		return "image/webp"
	default:
		return "image/png"
	}
}
