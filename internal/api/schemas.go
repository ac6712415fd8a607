package api

import (
	"time"

	"github.com/storymill/storymill-render/internal/artifact"
	"github.com/storymill/storymill-render/internal/jobs"
)

type HealthResponse struct {
	Status  string        `json:"status"`
	Version string        `json:"version"`
	UptimeS int64         `json:"uptime_s"`
	Encoder EncoderStatus `json:"encoder"`
}

type EncoderStatus struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
}

type SubmitResponse struct {
	JobID string `json:"job_id"`
}

type JobResponse struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Output     string `json:"output,omitempty"`
	Status     string `json:"status"`
	Stage      string `json:"stage,omitempty"`
	SceneCount int    `json:"scene_count"`
	Error      string `json:"error,omitempty"`
	ArtifactID string `json:"artifact_id,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ArtifactResponse is the artifact contract plus registry bookkeeping.
type ArtifactResponse struct {
	*jobs.Result
	SizeBytes int64  `json:"size_bytes"`
	CreatedAt string `json:"created_at,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

type ArtifactsResponse struct {
	Artifacts []ArtifactResponse `json:"artifacts"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Stage string `json:"stage,omitempty"`
}

func JobToResponse(j *jobs.Record) JobResponse {
	return JobResponse{
		ID:         j.ID,
		Title:      j.Title,
		Output:     j.Output,
		Status:     j.Status,
		Stage:      j.Stage,
		SceneCount: j.SceneCount,
		Error:      j.Error,
		ArtifactID: j.ArtifactID,
		CreatedAt:  j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  j.UpdatedAt.Format(time.RFC3339),
	}
}

func ArtifactToResponse(contract *jobs.Result, a *artifact.Artifact) ArtifactResponse {
	resp := ArtifactResponse{Result: contract, SizeBytes: a.SizeBytes}
	if !a.CreatedAt.IsZero() {
		resp.CreatedAt = a.CreatedAt.Format(time.RFC3339)
	}
	if a.ExpiresAt != nil {
		resp.ExpiresAt = a.ExpiresAt.Format(time.RFC3339)
	}
	return resp
}
