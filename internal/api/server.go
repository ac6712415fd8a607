package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/storymill/storymill-render/internal/artifact"
	"github.com/storymill/storymill-render/internal/delivery"
	"github.com/storymill/storymill-render/internal/ffmpeg"
	"github.com/storymill/storymill-render/internal/jobs"
)

// JobService runs and reports render jobs.
type JobService interface {
	Run(ctx context.Context, req jobs.Request) (*jobs.Result, error)
	Submit(ctx context.Context, req jobs.Request) (string, error)
	Get(ctx context.Context, id string) (*jobs.Record, error)
	List(ctx context.Context, limit int) ([]*jobs.Record, error)
	Contract(a *artifact.Artifact) *jobs.Result
}

// ArtifactResolver locates artifact files by id.
type ArtifactResolver interface {
	Resolve(ctx context.Context, id string) (*artifact.File, error)
}

// CapabilityReporter reports encoder availability.
type CapabilityReporter interface {
	Get(ctx context.Context) *ffmpeg.Capabilities
}

// ConfigGetter reads persisted settings such as the auth token.
type ConfigGetter interface {
	GetConfig(ctx context.Context, key string) (string, error)
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Addr          string
	Jobs          JobService
	Artifacts     artifact.Repository
	Resolver      ArtifactResolver
	Delivery      delivery.Service
	Doctor        CapabilityReporter
	Settings      ConfigGetter
	AuthEnabled   bool
	PublicBaseURL string
	Logger        *slog.Logger
	StartTime     time.Time
	Version       string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
			// renders run inside the request and streams can be long
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
