package services

import (
	"reflect"
	"strings"
	"testing"
)

func TestNormalizeOutput(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantKind OutputKind
		wantURLs []string
	}{
		{
			name:     "bare url string",
			body:     `"https://cdn.example.com/a.mp4"`,
			wantKind: OutputSingle,
			wantURLs: []string{"https://cdn.example.com/a.mp4"},
		},
		{
			name:     "array of strings",
			body:     `["https://cdn.example.com/a.mp4","https://cdn.example.com/b.mp4"]`,
			wantKind: OutputMultiple,
			wantURLs: []string{"https://cdn.example.com/a.mp4", "https://cdn.example.com/b.mp4"},
		},
		{
			name:     "single element array collapses to single",
			body:     `["https://cdn.example.com/a.mp4"]`,
			wantKind: OutputSingle,
			wantURLs: []string{"https://cdn.example.com/a.mp4"},
		},
		{
			name:     "array of accessor objects",
			body:     `[{"url":"https://cdn.example.com/a.mp4"},{"video_url":"https://cdn.example.com/b.mp4"}]`,
			wantKind: OutputMultiple,
			wantURLs: []string{"https://cdn.example.com/a.mp4", "https://cdn.example.com/b.mp4"},
		},
		{
			name:     "object with url field",
			body:     `{"url":"https://cdn.example.com/a.mp4"}`,
			wantKind: OutputSingle,
			wantURLs: []string{"https://cdn.example.com/a.mp4"},
		},
		{
			name:     "object with video_url field",
			body:     `{"video_url":"https://cdn.example.com/a.mp4"}`,
			wantKind: OutputSingle,
			wantURLs: []string{"https://cdn.example.com/a.mp4"},
		},
		{
			name:     "object with nested video accessor",
			body:     `{"video":{"url":"https://cdn.example.com/a.mp4"}}`,
			wantKind: OutputSingle,
			wantURLs: []string{"https://cdn.example.com/a.mp4"},
		},
		{
			name:     "object with video uri accessor",
			body:     `{"video":{"uri":"https://cdn.example.com/a.mp4"}}`,
			wantKind: OutputSingle,
			wantURLs: []string{"https://cdn.example.com/a.mp4"},
		},
		{
			name:     "output field as string",
			body:     `{"output":"https://cdn.example.com/a.mp4"}`,
			wantKind: OutputSingle,
			wantURLs: []string{"https://cdn.example.com/a.mp4"},
		},
		{
			name:     "output field as array",
			body:     `{"output":["https://cdn.example.com/a.mp4","https://cdn.example.com/b.mp4"]}`,
			wantKind: OutputMultiple,
			wantURLs: []string{"https://cdn.example.com/a.mp4", "https://cdn.example.com/b.mp4"},
		},
		{
			name:     "generated samples with url",
			body:     `{"generated_samples":[{"url":"https://cdn.example.com/a.mp4"}]}`,
			wantKind: OutputSingle,
			wantURLs: []string{"https://cdn.example.com/a.mp4"},
		},
		{
			name:     "generated samples with nested video",
			body:     `{"generated_samples":[{"video":{"uri":"https://cdn.example.com/a.mp4"}},{"video":{"url":"https://cdn.example.com/b.mp4"}}]}`,
			wantKind: OutputMultiple,
			wantURLs: []string{"https://cdn.example.com/a.mp4", "https://cdn.example.com/b.mp4"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := normalizeOutput([]byte(tt.body))
			if err != nil {
				t.Fatalf("normalizeOutput failed: %v", err)
			}
			if out.Kind != tt.wantKind {
				t.Errorf("kind = %v, want %v", out.Kind, tt.wantKind)
			}
			if !reflect.DeepEqual(out.URLs, tt.wantURLs) {
				t.Errorf("urls = %v, want %v", out.URLs, tt.wantURLs)
			}
			if out.First() != tt.wantURLs[0] {
				t.Errorf("First() = %v, want %v", out.First(), tt.wantURLs[0])
			}
		})
	}
}

func TestNormalizeOutputRejectsUnknownShapes(t *testing.T) {
	bad := []string{
		`""`,
		`[]`,
		`{}`,
		`{"status":"ok"}`,
		`42`,
		`[{"id":"abc"}]`,
		`{"generated_samples":[{"id":"abc"}]}`,
		`not even json`,
	}
	for _, body := range bad {
		if _, err := normalizeOutput([]byte(body)); err == nil {
			t.Errorf("normalizeOutput(%s) should fail", body)
		}
	}
}

func TestNormalizeOutputErrorIncludesBody(t *testing.T) {
	_, err := normalizeOutput([]byte(`{"status":"pending"}`))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "pending") {
		t.Errorf("error should carry the offending body for diagnosis: %v", err)
	}
}
