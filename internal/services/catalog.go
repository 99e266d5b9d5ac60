package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"sceneforge/internal/models"
)

// ---------------------------------------------------------------------------
// Model catalog — static fallback profiles plus an expiring cache of
// provider-fetched profiles. The cache is owned by a single catalog
// instance; concurrent refreshes of the same model are deduplicated.
// ---------------------------------------------------------------------------

const catalogTTL = 15 * time.Minute

// staticProfiles is the offline fallback catalogue. Resolution consults
// it before any network call.
var staticProfiles = map[string]models.ModelProfile{
	"grok-imagine-video": {
		ID:               "grok-imagine-video",
		DisplayName:      "Grok Imagine Video",
		Family:           models.FamilyGrok,
		MaxClipSeconds:   8,
		CostPerSecond:    0.05,
		Tier:             models.TierStandard,
		AllowedDurations: []int{4, 6, 8},
		MaxPromptChars:   2000,
		RatioAsString:    true,
		Params: models.ParamSchema{
			ReferenceImage: true,
			NegativePrompt: true,
			Seed:           true,
		},
	},
	"luma-ray-2": {
		ID:               "luma-ray-2",
		DisplayName:      "Luma Ray 2",
		Family:           models.FamilyLuma,
		MaxClipSeconds:   9,
		CostPerSecond:    0.12,
		Tier:             models.TierPremium,
		AllowedDurations: []int{5, 9},
		MaxPromptChars:   5000,
		RatioAsString:    false,
		Params: models.ParamSchema{
			ReferenceImage: true,
			EndFrame:       true,
			Continuation:   true,
		},
	},
	"pixelverse-v4": {
		ID:               "pixelverse-v4",
		DisplayName:      "Pixelverse v4",
		Family:           models.FamilyPixelverse,
		MaxClipSeconds:   8,
		CostPerSecond:    0.03,
		Tier:             models.TierEconomy,
		AllowedDurations: []int{4, 6, 8},
		MaxPromptChars:   1800,
		RatioAsString:    true,
		Params: models.ParamSchema{
			NegativePrompt: true,
			Seed:           true,
		},
	},
	"veo-3.1-generate-preview": {
		ID:               "veo-3.1-generate-preview",
		DisplayName:      "Veo 3.1",
		Family:           models.FamilyVeo,
		MaxClipSeconds:   8,
		CostPerSecond:    0.20,
		Tier:             models.TierPremium,
		AllowedDurations: []int{4, 6, 8},
		MaxPromptChars:   4000,
		RatioAsString:    true,
		Params: models.ParamSchema{
			ReferenceImage: true,
		},
	},
}

type cachedProfile struct {
	profile   models.ModelProfile
	fetchedAt time.Time
}

type ModelCatalog struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu    sync.RWMutex
	cache map[string]cachedProfile
	group singleflight.Group

	now func() time.Time // injectable clock for expiry tests
}

func NewModelCatalog(baseURL, apiKey string) *ModelCatalog {
	return &ModelCatalog{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		cache: make(map[string]cachedProfile),
		now:   time.Now,
	}
}

// List returns the static catalogue, the set always resolvable offline.
func (c *ModelCatalog) List() []models.ModelProfile {
	out := make([]models.ModelProfile, 0, len(staticProfiles))
	for _, id := range []string{"grok-imagine-video", "luma-ray-2", "pixelverse-v4", "veo-3.1-generate-preview"} {
		out = append(out, staticProfiles[id])
	}
	return out
}

// Resolve looks up a model: static catalogue first (no network), then
// the expiring cache, then a deduplicated provider fetch. A model found
// nowhere is a ModelUnavailableError — an explicitly requested model is
// never silently swapped for another.
func (c *ModelCatalog) Resolve(ctx context.Context, modelID string) (*models.ModelProfile, error) {
	if p, ok := staticProfiles[modelID]; ok {
		return &p, nil
	}

	c.mu.RLock()
	entry, ok := c.cache[modelID]
	c.mu.RUnlock()
	if ok && c.now().Sub(entry.fetchedAt) < catalogTTL {
		p := entry.profile
		return &p, nil
	}

	// Concurrent callers for the same model share one refresh.
	v, err, _ := c.group.Do(modelID, func() (interface{}, error) {
		profile, err := c.fetchProfile(ctx, modelID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[modelID] = cachedProfile{profile: *profile, fetchedAt: c.now()}
		c.mu.Unlock()
		return profile, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*models.ModelProfile), nil
}

func (c *ModelCatalog) fetchProfile(ctx context.Context, modelID string) (*models.ModelProfile, error) {
	url := fmt.Sprintf("%s/v1/models/%s", c.baseURL, modelID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model profile fetch failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, &ModelUnavailableError{Model: modelID}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model profile fetch returned status %d: %s", resp.StatusCode, string(body))
	}

	var profile models.ModelProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse model profile: %w", err)
	}
	if profile.ID == "" {
		profile.ID = modelID
	}

	log.Printf("[Catalog] Fetched profile for %s (family=%s, tier=%s)", profile.ID, profile.Family, profile.Tier)
	return &profile, nil
}
