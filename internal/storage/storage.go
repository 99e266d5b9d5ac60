package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// Upload timeout per attempt — generous for multi-minute video files
	uploadTimeout = 180 * time.Second

	// Download timeout
	downloadTimeout = 120 * time.Second

	// Timeout for reachability probes (HEAD). Short on purpose: a probe
	// that cannot answer quickly is treated as non-authoritative.
	probeTimeout = 5 * time.Second

	// Retry configuration
	maxRetries     = 4
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second
)

// DownloadError is a remote fetch that ended on a non-2xx status. The
// worker distinguishes these from transport errors via errors.As.
type DownloadError struct {
	URL        string
	StatusCode int
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download of %s failed with status %d", e.URL, e.StatusCode)
}

type Storage struct {
	url        string
	serviceKey string
	Bucket     string
	client     *http.Client
}

func New(url, serviceKey, bucket string) *Storage {
	return &Storage{
		url:        url,
		serviceKey: serviceKey,
		Bucket:     bucket,
		client: &http.Client{
			Timeout: uploadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// ObjectPath builds the canonical storage path for a media artifact:
// <userID>/<projectID>/<purpose>/<filename>.
func (s *Storage) ObjectPath(userID, projectID uuid.UUID, purpose, filename string) string {
	return path.Join(userID.String(), projectID.String(), purpose, filename)
}

// Upload uploads a file to the media store with retries and exponential
// backoff. Uses PUT with Content-Length and x-upsert for reliable large
// file uploads; re-uploading the same path overwrites.
func (s *Storage) Upload(ctx context.Context, storagePath string, data []byte, contentType string) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.Bucket, storagePath)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			log.Printf("[Storage] Upload retry %d/%d for %s (waiting %v)...", attempt, maxRetries, storagePath, delay)

			select {
			case <-ctx.Done():
				return fmt.Errorf("upload cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		// Each attempt gets its own generous timeout, independent of caller's ctx
		uploadCtx, cancel := context.WithTimeout(ctx, uploadTimeout)

		req, err := http.NewRequestWithContext(uploadCtx, "PUT", url, bytes.NewReader(data))
		if err != nil {
			cancel()
			return fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+s.serviceKey)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Content-Length", fmt.Sprintf("%d", len(data)))
		req.Header.Set("x-upsert", "true")

		resp, err := s.client.Do(req)
		if err != nil {
			cancel()
			lastErr = fmt.Errorf("failed to upload: %w", err)
			if isRetryableError(err) {
				log.Printf("[Storage] Upload attempt %d failed (retryable): %v", attempt+1, err)
				continue
			}
			return lastErr
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()

		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
			if attempt > 0 {
				log.Printf("[Storage] Upload succeeded on attempt %d for %s", attempt+1, storagePath)
			}
			return nil
		}

		lastErr = fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))

		if isRetryableStatus(resp.StatusCode) {
			log.Printf("[Storage] Upload attempt %d returned status %d (retryable): %s", attempt+1, resp.StatusCode, truncate(string(body), 200))
			continue
		}

		// Non-retryable status (400, 401, 403, 404, 413, etc.)
		return lastErr
	}

	return fmt.Errorf("upload failed after %d attempts: %w", maxRetries+1, lastErr)
}

// UploadFile uploads a file from a local path and returns its public URL.
func (s *Storage) UploadFile(ctx context.Context, storagePath, localPath string, contentType string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", localPath, err)
	}

	if err := s.Upload(ctx, storagePath, data, contentType); err != nil {
		return "", err
	}

	return s.GetPublicURL(storagePath), nil
}

// FetchURL downloads an arbitrary remote URL (a provider clip, a user's
// audio reference). Non-2xx responses surface as a DownloadError so the
// failing step can report the remote status.
func (s *Storage) FetchURL(ctx context.Context, url string) ([]byte, error) {
	return s.fetch(ctx, url)
}

// FetchURLToFile streams a remote URL into a local file.
func (s *Storage) FetchURLToFile(ctx context.Context, url, localPath string) error {
	data, err := s.fetch(ctx, url)
	if err != nil {
		return err
	}
	if err := os.WriteFile(localPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", localPath, err)
	}
	return nil
}

func (s *Storage) fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryDelay(attempt)
			log.Printf("[Storage] Download retry %d/%d for %s (waiting %v)...", attempt, maxRetries, url, delay)

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("download cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		dlCtx, cancel := context.WithTimeout(ctx, downloadTimeout)

		req, err := http.NewRequestWithContext(dlCtx, "GET", url, nil)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			cancel()
			lastErr = fmt.Errorf("failed to download: %w", err)
			if isRetryableError(err) {
				log.Printf("[Storage] Download attempt %d failed (retryable): %v", attempt+1, err)
				continue
			}
			return nil, lastErr
		}

		if resp.StatusCode == http.StatusOK {
			data, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			cancel()
			if err != nil {
				lastErr = fmt.Errorf("failed to read download body: %w", err)
				log.Printf("[Storage] Download attempt %d read failed: %v", attempt+1, err)
				continue
			}
			return data, nil
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()

		lastErr = &DownloadError{URL: url, StatusCode: resp.StatusCode}

		if isRetryableStatus(resp.StatusCode) {
			log.Printf("[Storage] Download attempt %d returned status %d (retryable): %s", attempt+1, resp.StatusCode, truncate(string(body), 200))
			continue
		}

		log.Printf("[Storage] Download of %s returned status %d: %s", url, resp.StatusCode, truncate(string(body), 200))
		return nil, lastErr
	}

	return nil, fmt.Errorf("download failed after %d attempts: %w", maxRetries+1, lastErr)
}

// CheckReachable probes a remote URL with a short HEAD request before it
// is forwarded to the provider as a reference image. Only an
// authoritative 4xx counts as unreachable; a network blip or timeout is
// non-authoritative and the URL is used optimistically.
func (s *Storage) CheckReachable(ctx context.Context, url string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, "HEAD", url, nil)
	if err != nil {
		return true
	}

	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("[Storage] Reachability probe for %s failed (%v) — using URL optimistically", url, err)
		return true
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		log.Printf("[Storage] Reachability probe for %s returned %d — dropping reference", url, resp.StatusCode)
		return false
	}

	return true
}

// GetPublicURL returns the public URL for a file
func (s *Storage) GetPublicURL(storagePath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.url, s.Bucket, storagePath)
}

// retryDelay calculates exponential backoff with jitter: base * 2^attempt + random jitter
func retryDelay(attempt int) time.Duration {
	delay := float64(baseRetryDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	// Add 0–25% jitter to avoid thundering herd
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

// isRetryableError checks if a network-level error is worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

// isRetryableStatus checks if an HTTP status code is worth retrying
func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || // 429
		status == http.StatusRequestTimeout || // 408
		status == http.StatusBadGateway || // 502
		status == http.StatusServiceUnavailable || // 503
		status == http.StatusGatewayTimeout // 504
}

// truncate limits a string to maxLen characters for log output
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
