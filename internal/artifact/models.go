// Package artifact tracks the outputs of finished jobs and locates them on
// disk for delivery.
package artifact

import "time"

// Format is the kind of deliverable a job produced.
type Format string

const (
	FormatVideo   Format = "video"
	FormatArchive Format = "archive"
)

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	if f == FormatVideo {
		return "video/mp4"
	}
	return "application/zip"
}

// Extension returns the file extension, including the dot.
func (f Format) Extension() string {
	if f == FormatVideo {
		return ".mp4"
	}
	return ".zip"
}

// Artifact is the registry entry for one finished job. The id equals the job id.
type Artifact struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Format          Format     `json:"format"`
	StoragePath     string     `json:"storage_path"`
	PreviewPath     string     `json:"preview_path,omitempty"`
	TimelinePath    string     `json:"timeline_path,omitempty"`
	SizeBytes       int64      `json:"size_bytes"`
	SceneCount      int        `json:"scene_count"`
	DurationSeconds float64    `json:"duration_seconds"`
	Resolution      string     `json:"resolution,omitempty"`
	Temporary       bool       `json:"temporary"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether a temporary artifact is past its retention.
func (a *Artifact) Expired(now time.Time) bool {
	return a.Temporary && a.ExpiresAt != nil && now.After(*a.ExpiresAt)
}
