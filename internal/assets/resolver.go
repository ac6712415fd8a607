// Package assets acquires the media referenced by scene descriptors into a
// job workspace. Inline data URIs are decoded; http(s) references are fetched
// with bounded retries. A failed asset never fails the job.
package assets

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/storymill/storymill-render/internal/failure"
	"github.com/storymill/storymill-render/internal/scene"
)

const (
	DefaultFetchTimeout = 30 * time.Second
	DefaultMaxAttempts  = 3
	DefaultConcurrency  = 1
)

// Config holds the resolver's configuration.
type Config struct {
	FetchTimeout    time.Duration // per attempt
	MaxAttempts     int
	Concurrency     int // 1 = sequential
	RetryInitial    time.Duration
	MinSceneSeconds float64
	UserAgent       string
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

// Resolver turns scene descriptors into prepared scenes.
type Resolver struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// NewResolver creates a Resolver, filling unset fields with defaults.
func NewResolver(cfg Config) *Resolver {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = 500 * time.Millisecond
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "storymill-render"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = defaultHTTPClient()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{cfg: cfg, client: client, logger: logger}
}

// Resolve acquires every scene's image, narration and ambient track into
// workDir. The result has one entry per input scene in input order; assets
// that could not be acquired have an empty path.
func (r *Resolver) Resolve(ctx context.Context, scenes []scene.Descriptor, workDir string) []scene.Prepared {
	out := make([]scene.Prepared, len(scenes))

	if r.cfg.Concurrency <= 1 {
		for i, d := range scenes {
			out[i] = r.prepare(ctx, i, d, workDir)
		}
		return out
	}

	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i, d := range scenes {
		g.Go(func() error {
			out[i] = r.prepare(ctx, i, d, workDir)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (r *Resolver) prepare(ctx context.Context, i int, d scene.Descriptor, workDir string) scene.Prepared {
	p := scene.Prepared{
		Descriptor:      d,
		Index:           i,
		DurationSeconds: scene.EffectiveDuration(d, r.cfg.MinSceneSeconds),
	}

	p.ImagePath = r.acquire(ctx, i, scene.KindImage, d.Image.URL, workDir)
	if d.Audio != nil {
		p.AudioPath = r.acquire(ctx, i, scene.KindAudio, d.Audio.URL, workDir)
	}
	if d.Ambient != nil {
		p.AmbientPath = r.acquire(ctx, i, scene.KindAmbient, d.Ambient.URL, workDir)
	}
	return p
}

// acquire returns the local path for one asset, or "" on any failure.
func (r *Resolver) acquire(ctx context.Context, i int, kind, ref, workDir string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	base := fmt.Sprintf("scene_%d_%s", i+1, kind)

	var (
		dest string
		err  error
	)
	switch scheme := referenceScheme(ref); scheme {
	case "data":
		dest, err = writeInline(ref, workDir, base, kind)
	case "http", "https":
		dest, err = r.fetch(ctx, ref, workDir, base, kind)
	default:
		err = fmt.Errorf("unsupported reference scheme %q", scheme)
	}

	if err != nil {
		r.logger.Warn("asset unavailable, continuing without it",
			"scene", i+1,
			"kind", kind,
			"error", failure.Wrap(failure.ErrAssetDownload, "resolve", kind, "", err),
		)
		return ""
	}
	return dest
}

func referenceScheme(ref string) string {
	idx := strings.IndexByte(ref, ':')
	if idx <= 0 {
		return ""
	}
	return strings.ToLower(ref[:idx])
}
