package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/storymill/storymill-render/internal/artifact"
	"github.com/storymill/storymill-render/internal/db"
	"github.com/storymill/storymill-render/internal/failure"
	"github.com/storymill/storymill-render/internal/render"
	"github.com/storymill/storymill-render/internal/scene"
	"github.com/storymill/storymill-render/internal/workspace"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAssets "downloads" every image whose URL does not contain "broken".
type fakeAssets struct{}

func (fakeAssets) Resolve(ctx context.Context, scenes []scene.Descriptor, workDir string) []scene.Prepared {
	out := make([]scene.Prepared, len(scenes))
	for i, d := range scenes {
		p := scene.Prepared{Descriptor: d, Index: i, DurationSeconds: scene.EffectiveDuration(d, 0)}
		if d.Image.URL != "" && !strings.Contains(d.Image.URL, "broken") {
			path := filepath.Join(workDir, "scene_"+string(rune('1'+i))+"_image.png")
			os.WriteFile(path, []byte("png"), 0644)
			p.ImagePath = path
		}
		out[i] = p
	}
	return out
}

type fakeRenderer struct {
	format artifact.Format
	err    error

	mu     sync.Mutex
	inputs []render.Input
}

func (f *fakeRenderer) Name() string            { return string(f.format) }
func (f *fakeRenderer) Format() artifact.Format { return f.format }

func (f *fakeRenderer) Render(ctx context.Context, in render.Input) (render.Output, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()
	if f.err != nil {
		return render.Output{}, f.err
	}
	path := filepath.Join(in.WorkDir, in.JobID+f.format.Extension())
	if err := os.WriteFile(path, []byte("artifact"), 0644); err != nil {
		return render.Output{}, err
	}
	return render.Output{
		Format:          f.format,
		Path:            path,
		DurationSeconds: scene.TotalDuration(in.Scenes),
		SizeBytes:       8,
		Resolution:      "1920x1080",
	}, nil
}

type fakeSelector struct {
	video, pkg render.Renderer
	override   render.Mode
}

func (f *fakeSelector) Select(ctx context.Context, override render.Mode) render.Renderer {
	f.override = override
	if override == render.ModeVideo {
		return f.video
	}
	return f.pkg
}

type harness struct {
	svc        *Service
	workspaces *workspace.Manager
	artifacts  *artifact.SQLiteRepository
	jobs       *SQLiteRepository
	renderer   *fakeRenderer
	video      *fakeRenderer
	selector   *fakeSelector
	stats      map[string]*MemoryStats
	mu         sync.Mutex
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	database, err := db.New(filepath.Join(dir, "test.db"), testLogger())
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	h := &harness{
		artifacts: artifact.NewRepository(database.Conn()),
		jobs:      NewRepository(database.Conn()),
		renderer:  &fakeRenderer{format: artifact.FormatArchive},
		video:     &fakeRenderer{format: artifact.FormatVideo},
		stats:     make(map[string]*MemoryStats),
	}
	h.selector = &fakeSelector{video: h.video, pkg: h.renderer}

	h.workspaces, err = workspace.NewManager(workspace.Config{
		Root:     filepath.Join(dir, "tmp"),
		Logger:   testLogger(),
		OnRemove: ArtifactCleanup(h.artifacts, testLogger()),
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(h.workspaces.Stop)

	h.svc = NewService(Config{
		Assets:        fakeAssets{},
		Workspaces:    h.workspaces,
		Selector:      h.selector,
		Artifacts:     h.artifacts,
		Jobs:          h.jobs,
		PublicBaseURL: "https://media.example.com/",
		Logger:        testLogger(),
		Stats: func(jobID string) StatsCollector {
			s := NewMemoryStats(testLogger())
			h.mu.Lock()
			h.stats[jobID] = s
			h.mu.Unlock()
			return s
		},
	})
	return h
}

func storyRequest() Request {
	return Request{
		Title: "the lantern keeper",
		Scenes: []scene.Descriptor{
			{Description: "a lighthouse at dusk", DurationSeconds: 4, Image: scene.MediaRef{URL: "https://img/1.png"}},
			{Description: "the keeper climbs", DurationSeconds: 3, Image: scene.MediaRef{URL: "https://img/broken.png"}},
			{Description: "the lamp is lit", DurationSeconds: 5, Image: scene.MediaRef{URL: "https://img/3.png"}},
		},
	}
}

func TestRun_Success(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.Run(ctx, storyRequest())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Format != artifact.FormatArchive || !res.Temporary || res.SceneCount != 3 {
		t.Errorf("Result = %+v", res)
	}
	if res.TotalDurationSeconds != 12 {
		t.Errorf("TotalDurationSeconds = %v, want 12", res.TotalDurationSeconds)
	}
	wantPrefix := "https://media.example.com/artifacts/" + res.ArtifactID
	if res.DownloadURL != wantPrefix+"/download" || res.StreamURL != wantPrefix+"/stream" || res.ViewURL != wantPrefix+"/view" {
		t.Errorf("URLs = %q %q %q", res.DownloadURL, res.StreamURL, res.ViewURL)
	}

	art, err := h.artifacts.Get(ctx, res.ArtifactID)
	if err != nil || art == nil {
		t.Fatalf("artifact not registered: %v", err)
	}
	if !art.Temporary || art.ExpiresAt == nil || art.Title != "the lantern keeper" {
		t.Errorf("artifact = %+v", art)
	}

	rec, _ := h.jobs.Get(ctx, res.ArtifactID)
	if rec == nil || rec.Status != StatusCompleted || rec.ArtifactID != res.ArtifactID || rec.Stage != StageRegister {
		t.Errorf("job record = %+v", rec)
	}

	if _, err := os.Stat(filepath.Join(h.workspaces.Root(), res.ArtifactID)); err != nil {
		t.Errorf("workspace removed too early: %v", err)
	}
	if h.workspaces.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", h.workspaces.Pending())
	}

	stats := h.stats[res.ArtifactID]
	if stats.Counter("images") != 2 || stats.Counter("missing_images") != 1 {
		t.Errorf("stats images = %d missing = %d", stats.Counter("images"), stats.Counter("missing_images"))
	}
}

func TestRun_OutputOverride(t *testing.T) {
	h := newHarness(t)
	req := storyRequest()
	req.Output = "Video"

	res, err := h.svc.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if h.selector.override != render.ModeVideo {
		t.Errorf("override = %q", h.selector.override)
	}
	if res.Format != artifact.FormatVideo || res.ViewURL != "" {
		t.Errorf("Result = %+v", res)
	}
}

func TestRun_ValidationFailsBeforeAllocation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
	}{
		{"no scenes", Request{Title: "empty"}},
		{"bad output", Request{Output: "gif", Scenes: storyRequest().Scenes}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Run(ctx, tt.req)
			if !errors.Is(err, failure.ErrValidation) {
				t.Fatalf("Run() error = %v, want ErrValidation", err)
			}
		})
	}

	records, _ := h.jobs.List(ctx, 10)
	if len(records) != 0 {
		t.Errorf("jobs recorded = %d, want 0", len(records))
	}
	entries, _ := os.ReadDir(h.workspaces.Root())
	if len(entries) != 0 {
		t.Errorf("workspaces allocated = %d, want 0", len(entries))
	}
}

func TestRun_NoImagesResolved(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req := Request{Scenes: []scene.Descriptor{
		{Description: "one", Image: scene.MediaRef{URL: "https://img/broken-1.png"}},
		{Description: "two", Image: scene.MediaRef{URL: "https://img/broken-2.png"}},
	}}
	_, err := h.svc.Run(ctx, req)
	if !errors.Is(err, failure.ErrValidation) {
		t.Fatalf("Run() error = %v, want ErrValidation", err)
	}
	if failure.Stage(err) != StageAssets {
		t.Errorf("Stage = %q, want %q", failure.Stage(err), StageAssets)
	}
	if len(h.renderer.inputs) != 0 {
		t.Error("renderer called despite no images")
	}
	assertFailedAndClean(t, h, StageAssets)
}

func TestRun_RenderFailure(t *testing.T) {
	h := newHarness(t)
	h.renderer.err = failure.Wrap(failure.ErrPackaging, "package", "archive", "disk full", nil)

	_, err := h.svc.Run(context.Background(), storyRequest())
	if !errors.Is(err, failure.ErrPackaging) {
		t.Fatalf("Run() error = %v, want ErrPackaging", err)
	}
	var se *failure.StageError
	if !errors.As(err, &se) {
		t.Fatalf("error is not a StageError: %T", err)
	}
	assertFailedAndClean(t, h, "package")
}

func TestRun_UntaggedRenderErrorGetsStage(t *testing.T) {
	h := newHarness(t)
	h.renderer.err = errors.New("boom")

	_, err := h.svc.Run(context.Background(), storyRequest())
	if failure.Stage(err) != StageRender {
		t.Fatalf("Stage = %q, want %q (err %v)", failure.Stage(err), StageRender, err)
	}
	assertFailedAndClean(t, h, StageRender)
}

func assertFailedAndClean(t *testing.T, h *harness, stage string) {
	t.Helper()
	records, err := h.jobs.List(context.Background(), 10)
	if err != nil || len(records) != 1 {
		t.Fatalf("List() = %d, %v", len(records), err)
	}
	rec := records[0]
	if rec.Status != StatusFailed || rec.Stage != stage || rec.Error == "" {
		t.Errorf("job record = %+v", rec)
	}
	if _, err := os.Stat(filepath.Join(h.workspaces.Root(), rec.ID)); !os.IsNotExist(err) {
		t.Errorf("workspace left behind: %v", err)
	}
	if a, _ := h.artifacts.Get(context.Background(), rec.ID); a != nil {
		t.Errorf("artifact registered for failed job: %+v", a)
	}
}

func TestSubmit(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	id, err := h.svc.Submit(ctx, storyRequest())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	cancel()
	h.svc.Wait()

	rec, err := h.svc.Get(context.Background(), id)
	if err != nil || rec == nil {
		t.Fatalf("Get() = %v, %v", rec, err)
	}
	if rec.Status != StatusCompleted {
		t.Errorf("Status = %q, want completed (error %q)", rec.Status, rec.Error)
	}

	if _, err := h.svc.Submit(ctx, Request{}); !errors.Is(err, failure.ErrValidation) {
		t.Errorf("Submit(invalid) error = %v", err)
	}
}

func TestKeep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := storyRequest()
	req.Output = "video"

	res, err := h.svc.Run(ctx, req)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	dest := filepath.Join(t.TempDir(), "videos", res.ArtifactID+".mp4")
	if err := h.svc.Keep(ctx, res.ArtifactID, dest); err != nil {
		t.Fatalf("Keep() error = %v", err)
	}
	if data, err := os.ReadFile(dest); err != nil || string(data) != "artifact" {
		t.Errorf("kept file = %q, %v", data, err)
	}
	art, _ := h.artifacts.Get(ctx, res.ArtifactID)
	if art.Temporary || art.StoragePath != dest {
		t.Errorf("artifact after Keep = %+v", art)
	}

	// removing the workspace must not drop a kept artifact
	ws := filepath.Join(h.workspaces.Root(), res.ArtifactID)
	os.Chtimes(ws, time.Now().Add(-2*time.Hour), time.Now().Add(-2*time.Hour))
	if n, _ := h.workspaces.Sweep(ctx); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if a, _ := h.artifacts.Get(ctx, res.ArtifactID); a == nil {
		t.Error("kept artifact unregistered by sweep")
	}

	if err := h.svc.Keep(ctx, "missing", dest); !errors.Is(err, failure.ErrArtifactNotFound) {
		t.Errorf("Keep(missing) error = %v", err)
	}
}

func TestKeep_RejectsArchive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.svc.Run(ctx, storyRequest())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	err = h.svc.Keep(ctx, res.ArtifactID, filepath.Join(t.TempDir(), "x.zip"))
	if !errors.Is(err, failure.ErrValidation) {
		t.Errorf("Keep(archive) error = %v, want ErrValidation", err)
	}
}

func TestArtifactCleanup_DropsTemporaryRow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.Run(ctx, storyRequest())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	ws := filepath.Join(h.workspaces.Root(), res.ArtifactID)
	past := time.Now().Add(-2 * time.Hour)
	os.Chtimes(ws, past, past)

	if n, _ := h.workspaces.Sweep(ctx); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	if a, _ := h.artifacts.Get(ctx, res.ArtifactID); a != nil {
		t.Errorf("temporary artifact still registered: %+v", a)
	}
}

func TestNewResult(t *testing.T) {
	a := &artifact.Artifact{ID: "abc", Title: "T", Format: artifact.FormatVideo, DurationSeconds: 3.5, SceneCount: 2, Resolution: "640x360", Temporary: true}
	res := NewResult(a, "")
	if res.DownloadURL != "/artifacts/abc/download" || res.StreamURL != "/artifacts/abc/stream" || res.ViewURL != "" {
		t.Errorf("NewResult() = %+v", res)
	}
}

func TestMemoryStats(t *testing.T) {
	s := NewMemoryStats(testLogger())
	s.Count("images", 2)
	s.Count("images", 1)
	s.Observe("render", 10*time.Millisecond)
	s.Observe("render", 5*time.Millisecond)
	s.Finish(StatusCompleted)
	s.Finish(StatusCompleted)

	if s.Counter("images") != 3 {
		t.Errorf("Counter = %d", s.Counter("images"))
	}
	if s.Timing("render") != 15*time.Millisecond {
		t.Errorf("Timing = %v", s.Timing("render"))
	}
}
