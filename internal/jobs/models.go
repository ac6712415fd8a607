// Package jobs runs render requests end to end: validation, asset
// resolution, rendering, registration and workspace cleanup.
package jobs

import (
	"strings"
	"time"

	"github.com/storymill/storymill-render/internal/artifact"
	"github.com/storymill/storymill-render/internal/scene"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Stages recorded on job records and errors.
const (
	StageValidate = "validate"
	StageAllocate = "allocate"
	StageAssets   = "assets"
	StageRender   = "render"
	StageRegister = "register"
)

// Request is a render submission.
type Request struct {
	Title  string             `json:"title"`
	Output string             `json:"output,omitempty"`
	Scenes []scene.Descriptor `json:"scenes"`
}

// Record is the persisted state of one job.
type Record struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Output     string    `json:"output,omitempty"`
	Status     string    `json:"status"`
	Stage      string    `json:"stage,omitempty"`
	SceneCount int       `json:"scene_count"`
	Error      string    `json:"error,omitempty"`
	ArtifactID string    `json:"artifact_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Result is the artifact contract returned to callers.
type Result struct {
	ArtifactID           string          `json:"artifactId"`
	Title                string          `json:"title"`
	TotalDurationSeconds float64         `json:"totalDurationSeconds"`
	SceneCount           int             `json:"sceneCount"`
	DownloadURL          string          `json:"downloadUrl"`
	StreamURL            string          `json:"streamUrl"`
	ViewURL              string          `json:"viewUrl,omitempty"`
	Format               artifact.Format `json:"format"`
	Resolution           string          `json:"resolution"`
	Temporary            bool            `json:"temporary"`
}

// NewResult builds the contract for a registered artifact. baseURL, when set,
// prefixes the delivery paths.
func NewResult(a *artifact.Artifact, baseURL string) *Result {
	prefix := strings.TrimRight(baseURL, "/") + "/artifacts/" + a.ID
	res := &Result{
		ArtifactID:           a.ID,
		Title:                a.Title,
		TotalDurationSeconds: a.DurationSeconds,
		SceneCount:           a.SceneCount,
		DownloadURL:          prefix + "/download",
		StreamURL:            prefix + "/stream",
		Format:               a.Format,
		Resolution:           a.Resolution,
		Temporary:            a.Temporary,
	}
	if a.Format == artifact.FormatArchive {
		res.ViewURL = prefix + "/view"
	}
	return res
}
