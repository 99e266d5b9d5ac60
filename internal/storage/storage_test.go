package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchURLReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("clip bytes"))
	}))
	defer srv.Close()

	s := New(srv.URL, "key", "bucket")
	data, err := s.FetchURL(context.Background(), srv.URL+"/clip.mp4")
	if err != nil {
		t.Fatalf("FetchURL failed: %v", err)
	}
	if string(data) != "clip bytes" {
		t.Errorf("unexpected body: %q", data)
	}
}

func TestFetchURLTypedDownloadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	s := New(srv.URL, "key", "bucket")
	_, err := s.FetchURL(context.Background(), srv.URL+"/clip.mp4")
	if err == nil {
		t.Fatal("expected error for 404")
	}

	var dl *DownloadError
	if !errors.As(err, &dl) {
		t.Fatalf("expected DownloadError, got %T: %v", err, err)
	}
	if dl.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", dl.StatusCode)
	}
	if dl.URL != srv.URL+"/clip.mp4" {
		t.Errorf("url = %s", dl.URL)
	}
}

func TestCheckReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone.jpg" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(srv.URL, "key", "bucket")
	ctx := context.Background()

	if !s.CheckReachable(ctx, srv.URL+"/frame.jpg") {
		t.Error("200 response should be reachable")
	}
	if s.CheckReachable(ctx, srv.URL+"/gone.jpg") {
		t.Error("authoritative 404 should be unreachable")
	}

	// A dead host is non-authoritative; the URL is used optimistically.
	if !s.CheckReachable(ctx, "http://127.0.0.1:1/frame.jpg") {
		t.Error("network failure should fall back to reachable")
	}
}
