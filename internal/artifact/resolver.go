package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/storymill/storymill-render/internal/failure"
)

// LegacyDir is the directory under the data dir holding permanently kept videos.
const LegacyDir = "videos"

const maxIDLength = 128

// File is a located artifact ready to be served.
type File struct {
	ID           string
	Title        string
	Format       Format
	Path         string
	SizeBytes    int64
	ModTime      time.Time
	PreviewPath  string
	TimelinePath string
	WorkDir      string // empty for legacy files

	// Artifact is the registry row, nil for files that predate the registry.
	Artifact *Artifact
}

// Resolver locates artifacts by id.
type Resolver struct {
	tempRoot string
	dataDir  string
	repo     Repository
	logger   *slog.Logger
}

// NewResolver creates a Resolver. repo may be nil, in which case only the
// filesystem is consulted.
func NewResolver(tempRoot, dataDir string, repo Repository, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{tempRoot: tempRoot, dataDir: dataDir, repo: repo, logger: logger}
}

// LegacyPath returns where a permanently kept video for id lives.
func (r *Resolver) LegacyPath(id string) string {
	return filepath.Join(r.dataDir, LegacyDir, id+FormatVideo.Extension())
}

type candidate struct {
	path    string
	format  Format
	workDir string
}

// Resolve tries, in order, the job workspace archive, the workspace video
// and the legacy permanent store. The first existing file wins.
func (r *Resolver) Resolve(ctx context.Context, id string) (*File, error) {
	if err := ValidateID(id); err != nil {
		return nil, failure.Wrap(failure.ErrValidation, "resolve", "artifact id", "", err)
	}

	workDir := filepath.Join(r.tempRoot, id)
	candidates := []candidate{
		{filepath.Join(workDir, id+FormatArchive.Extension()), FormatArchive, workDir},
		{filepath.Join(workDir, id+FormatVideo.Extension()), FormatVideo, workDir},
		{r.LegacyPath(id), FormatVideo, ""},
	}

	for _, c := range candidates {
		info, err := os.Stat(c.path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		f := &File{
			ID:        id,
			Title:     id,
			Format:    c.format,
			Path:      c.path,
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
			WorkDir:   c.workDir,
		}
		if c.workDir != "" {
			f.PreviewPath = existing(filepath.Join(c.workDir, "preview.png"))
			f.TimelinePath = existing(filepath.Join(c.workDir, "timeline.edl"))
		}
		r.attachMetadata(ctx, f)
		return f, nil
	}

	return nil, failure.Wrap(failure.ErrArtifactNotFound, "resolve", "lookup", fmt.Sprintf("no artifact %q", id), nil)
}

func (r *Resolver) attachMetadata(ctx context.Context, f *File) {
	if r.repo == nil {
		return
	}
	a, err := r.repo.Get(ctx, f.ID)
	if err != nil {
		r.logger.Warn("artifact registry lookup failed", "artifact_id", f.ID, "error", err)
		return
	}
	if a == nil {
		return
	}
	f.Artifact = a
	if a.Title != "" {
		f.Title = a.Title
	}
	if f.PreviewPath == "" {
		f.PreviewPath = existing(a.PreviewPath)
	}
	if f.TimelinePath == "" {
		f.TimelinePath = existing(a.TimelinePath)
	}
}

func existing(path string) string {
	if path == "" {
		return ""
	}
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		return path
	}
	return ""
}

// ValidateID rejects ids that could escape the artifact directories.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("id is required")
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("id is too long")
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return fmt.Errorf("id contains invalid character %q", r)
		}
	}
	return nil
}
