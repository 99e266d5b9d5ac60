package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"sceneforge/internal/models"
)

// ---------------------------------------------------------------------------
// Generation Client — builds a family-specific request per scene, calls
// the provider, retries with classified backoff, and falls back across
// the configured model ordering.
// ---------------------------------------------------------------------------

const (
	maxAttemptsPerModel = 3

	// 5xx failures get a larger backoff base than rate limits: a
	// struggling provider needs more breathing room than a quota bucket.
	rateLimitBackoffBase   = 2 * time.Second
	serverErrorBackoffBase = 5 * time.Second
	maxGenerationBackoff   = 30 * time.Second

	generationCallTimeout = 120 * time.Second
)

// GenerationResult is the normalized outcome of one scene generation.
type GenerationResult struct {
	Output Output

	// ContinuationHandle is an opaque reference some families return to
	// chain the next scene off this clip. Empty when unsupported.
	ContinuationHandle string

	// Data holds raw clip bytes for families whose SDK delivers bytes
	// directly (Veo). When set the caller skips the URL download.
	Data []byte
}

type GenerationClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	catalog    *ModelCatalog
	fallback   []string    // ordered fallback model ids
	veo        *VeoService // optional: executes the Veo family via the Gen AI SDK

	// sleep is the backoff wait, injectable so retry timing is testable.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewGenerationClient(baseURL, apiKey string, catalog *ModelCatalog, fallback []string, veo *VeoService) *GenerationClient {
	return &GenerationClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: generationCallTimeout,
		},
		catalog:  catalog,
		fallback: fallback,
		veo:      veo,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Generate produces one scene's clip. The requested model is resolved
// strictly — an unknown explicit model fails here, it is never swapped —
// then the fallback ordering is walked: each model gets its own retry
// budget, validation errors advance to the next model with no delay,
// and only after the last model is exhausted does the call fail.
func (c *GenerationClient) Generate(ctx context.Context, scene models.SceneDescriptor, requestedModelID string, params GenerationParams) (*GenerationResult, error) {
	profile, err := c.catalog.Resolve(ctx, requestedModelID)
	if err != nil {
		return nil, err
	}

	order := c.modelOrder(ctx, profile)

	var lastErr error
	lastModel := profile.ID

	for _, m := range order {
		lastModel = m.ID

		for attempt := 1; attempt <= maxAttemptsPerModel; attempt++ {
			result, err := c.generateOnce(ctx, m, scene, params)
			if err == nil {
				return result, nil
			}
			lastErr = err

			var invalid *InvalidInputError
			if errors.As(err, &invalid) {
				// The request itself is bad for this model; no amount of
				// retrying fixes that. Advance immediately, no delay.
				log.Printf("[Generate] Model %s rejected input (scene %d): %v — advancing to next model", m.ID, scene.SceneNumber, err)
				break
			}

			if !IsRetryable(err) {
				log.Printf("[Generate] Model %s hard failure (scene %d): %v — advancing to next model", m.ID, scene.SceneNumber, err)
				break
			}

			if attempt == maxAttemptsPerModel {
				log.Printf("[Generate] Model %s retry budget spent (scene %d): %v", m.ID, scene.SceneNumber, err)
				break
			}

			delay := backoffDelay(err, attempt)
			log.Printf("[Generate] Model %s attempt %d/%d failed (scene %d): %v — retrying in %v",
				m.ID, attempt, maxAttemptsPerModel, scene.SceneNumber, err, delay)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("generation cancelled during backoff: %w", err)
			}
		}
	}

	return nil, &AllModelsExhaustedError{LastModel: lastModel, LastErr: lastErr}
}

// modelOrder puts the resolved requested model first, then the
// configured fallback list minus duplicates. Fallback entries that fail
// to resolve are skipped rather than aborting the whole call.
func (c *GenerationClient) modelOrder(ctx context.Context, requested *models.ModelProfile) []*models.ModelProfile {
	order := []*models.ModelProfile{requested}
	for _, id := range c.fallback {
		if id == requested.ID {
			continue
		}
		p, err := c.catalog.Resolve(ctx, id)
		if err != nil {
			log.Printf("[Generate] Skipping unresolvable fallback model %s: %v", id, err)
			continue
		}
		order = append(order, p)
	}
	return order
}

func backoffDelay(err error, attempt int) time.Duration {
	base := rateLimitBackoffBase
	var transient *TransientProviderError
	if errors.As(err, &transient) {
		base = serverErrorBackoffBase
	}

	delay := base << (attempt - 1)
	if delay > maxGenerationBackoff {
		delay = maxGenerationBackoff
	}
	return delay
}

// generateOnce issues a single generation attempt against one model.
func (c *GenerationClient) generateOnce(ctx context.Context, profile *models.ModelProfile, scene models.SceneDescriptor, params GenerationParams) (*GenerationResult, error) {
	if profile.Family == models.FamilyVeo {
		if c.veo == nil {
			return nil, &InvalidInputError{
				Model:      profile.ID,
				StatusCode: 0,
				Message:    "veo family is not configured (GEMINI_API_KEY missing)",
			}
		}
		prompt := preparePrompt(scene.Prompt, profile.MaxPromptChars, params)
		data, err := c.veo.GenerateClip(ctx, profile.ID, prompt, params)
		if err != nil {
			return nil, err
		}
		return &GenerationResult{Data: data}, nil
	}

	reqBody, err := buildProviderRequest(profile, scene, params)
	if err != nil {
		return nil, &InvalidInputError{Model: profile.ID, Message: err.Error()}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/generations", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientProviderError{Model: profile.ID, StatusCode: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientProviderError{Model: profile.ID, StatusCode: resp.StatusCode, Message: "failed to read response: " + err.Error()}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return parseGenerationResponse(body)

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &RateLimitedError{Model: profile.ID, Message: truncateBody(body)}

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &InvalidInputError{Model: profile.ID, StatusCode: resp.StatusCode, Message: truncateBody(body)}

	default:
		return nil, &TransientProviderError{Model: profile.ID, StatusCode: resp.StatusCode, Message: truncateBody(body)}
	}
}

func parseGenerationResponse(body []byte) (*GenerationResult, error) {
	output, err := normalizeOutput(body)
	if err != nil {
		return nil, err
	}

	// The continuation handle rides alongside whatever output shape the
	// provider chose; absent for families that don't chain.
	var meta struct {
		ContinuationID string `json:"continuation_id"`
	}
	_ = json.Unmarshal(body, &meta)

	return &GenerationResult{
		Output:             output,
		ContinuationHandle: meta.ContinuationID,
	}, nil
}
