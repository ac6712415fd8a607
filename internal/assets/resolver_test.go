package assets

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/storymill/storymill-render/internal/scene"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestResolver(concurrency int) *Resolver {
	return NewResolver(Config{
		FetchTimeout: 2 * time.Second,
		MaxAttempts:  3,
		Concurrency:  concurrency,
		RetryInitial: time.Millisecond,
		Logger:       testLogger(),
	})
}

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake")

func TestResolve_InlineDataURI(t *testing.T) {
	dir := t.TempDir()
	uri := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("jpeg-data"))

	got := newTestResolver(1).Resolve(context.Background(), []scene.Descriptor{
		{Description: "a", Image: scene.MediaRef{URL: uri}},
	}, dir)

	if len(got) != 1 {
		t.Fatalf("got %d scenes, want 1", len(got))
	}
	want := filepath.Join(dir, "scene_1_image.jpg")
	if got[0].ImagePath != want {
		t.Errorf("ImagePath = %q, want %q", got[0].ImagePath, want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "jpeg-data" {
		t.Errorf("content = %q", data)
	}
}

func TestResolve_HTTPFetchNamesByContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/img":
			w.Header().Set("Content-Type", "image/png")
			w.Write(pngBytes)
		case "/voice.wav":
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write([]byte("RIFF"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	got := newTestResolver(1).Resolve(context.Background(), []scene.Descriptor{
		{Description: "a", Image: scene.MediaRef{URL: srv.URL + "/img"}},
		{
			Description: "b",
			Image:       scene.MediaRef{URL: srv.URL + "/img"},
			Audio:       &scene.AudioRef{URL: srv.URL + "/voice.wav?sig=abc", DurationSeconds: 7},
		},
	}, dir)

	if got[0].ImagePath != filepath.Join(dir, "scene_1_image.png") {
		t.Errorf("scene 1 ImagePath = %q", got[0].ImagePath)
	}
	if got[1].AudioPath != filepath.Join(dir, "scene_2_audio.wav") {
		t.Errorf("scene 2 AudioPath = %q", got[1].AudioPath)
	}
	if got[1].DurationSeconds != 7 {
		t.Errorf("scene 2 DurationSeconds = %v, want 7", got[1].DurationSeconds)
	}
	if got[0].Index != 0 || got[1].Index != 1 {
		t.Errorf("indices = %d, %d", got[0].Index, got[1].Index)
	}
}

func TestResolve_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	}))
	defer srv.Close()

	got := newTestResolver(1).Resolve(context.Background(), []scene.Descriptor{
		{Description: "a", Image: scene.MediaRef{URL: srv.URL}},
	}, t.TempDir())

	if got[0].ImagePath == "" {
		t.Fatal("expected image after retries")
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestResolve_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	got := newTestResolver(1).Resolve(context.Background(), []scene.Descriptor{
		{Description: "a", Image: scene.MediaRef{URL: srv.URL}},
	}, t.TempDir())

	if got[0].ImagePath != "" {
		t.Errorf("ImagePath = %q, want empty", got[0].ImagePath)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestResolve_FailuresDoNotAbort(t *testing.T) {
	dir := t.TempDir()
	got := newTestResolver(1).Resolve(context.Background(), []scene.Descriptor{
		{Description: "bad scheme", Image: scene.MediaRef{URL: "ftp://example.com/a.png"}},
		{Description: "bad data", Image: scene.MediaRef{URL: "data:image/png;base64,!!!"}},
		{Description: "none"},
		{Description: "ok", Image: scene.MediaRef{URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)}},
	}, dir)

	if len(got) != 4 {
		t.Fatalf("got %d scenes, want 4", len(got))
	}
	for i := 0; i < 3; i++ {
		if got[i].ImagePath != "" {
			t.Errorf("scene %d ImagePath = %q, want empty", i+1, got[i].ImagePath)
		}
	}
	if got[3].ImagePath != filepath.Join(dir, "scene_4_image.png") {
		t.Errorf("scene 4 ImagePath = %q", got[3].ImagePath)
	}
	if got[2].DurationSeconds != scene.DefaultDurationSeconds {
		t.Errorf("default duration = %v", got[2].DurationSeconds)
	}
}

func TestResolve_ParallelKeepsOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// earlier scenes answer slower
		if d, err := time.ParseDuration(r.URL.Query().Get("delay")); err == nil {
			time.Sleep(d)
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	dir := t.TempDir()
	scenes := []scene.Descriptor{
		{Description: "1", Image: scene.MediaRef{URL: srv.URL + "/one?delay=60ms"}},
		{Description: "2", Image: scene.MediaRef{URL: srv.URL + "/two?delay=30ms"}},
		{Description: "3", Image: scene.MediaRef{URL: srv.URL + "/three"}},
	}
	got := newTestResolver(3).Resolve(context.Background(), scenes, dir)

	want := []string{"/one", "/two", "/three"}
	for i, p := range got {
		if p.Description != scenes[i].Description {
			t.Errorf("slot %d holds scene %q", i, p.Description)
		}
		data, err := os.ReadFile(p.ImagePath)
		if err != nil {
			t.Fatalf("scene %d: %v", i+1, err)
		}
		if string(data) != want[i] {
			t.Errorf("scene %d content = %q, want %q", i+1, data, want[i])
		}
	}
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		contentType, urlExt, kind string
		want                      string
	}{
		{"image/jpeg", ".png", "image", ".jpg"},
		{"audio/mpeg; charset=binary", "", "audio", ".mp3"},
		{"application/octet-stream", ".webp", "image", ".webp"},
		{"", "", "image", ".png"},
		{"", "", "ambient", ".mp3"},
	}
	for _, tt := range tests {
		if got := extensionFor(tt.contentType, tt.urlExt, tt.kind); got != tt.want {
			t.Errorf("extensionFor(%q, %q, %q) = %q, want %q", tt.contentType, tt.urlExt, tt.kind, got, tt.want)
		}
	}
}

func TestDecodeDataURI(t *testing.T) {
	mt, data, err := decodeDataURI("data:text/plain,hello%20world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mt != "text/plain" || string(data) != "hello world" {
		t.Errorf("got %q %q", mt, data)
	}

	for _, bad := range []string{"data:image/png;base64", "image/png;base64,AAAA", "data:image/png;base64,"} {
		if _, _, err := decodeDataURI(bad); err == nil {
			t.Errorf("decodeDataURI(%q) expected error", bad)
		}
	}
}

func TestFetchError_IsRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{0, true},
		{500, true},
		{503, true},
		{404, false},
		{429, false},
	}
	for _, tt := range tests {
		e := &FetchError{StatusCode: tt.status}
		if got := e.IsRetryable(); got != tt.want {
			t.Errorf("status %d: IsRetryable() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
