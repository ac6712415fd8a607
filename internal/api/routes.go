package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/storymill/storymill-render/internal/artifact"
	"github.com/storymill/storymill-render/internal/jobs"
)

// maxRequestBytes bounds a job submission; inline data URIs make bodies large.
const maxRequestBytes = 64 << 20

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		if cfg.AuthEnabled {
			r.Use(AuthMiddleware(cfg.Settings, cfg.Logger))
		}

		r.Post("/jobs", createJobHandler(cfg))
		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))

		r.Get("/artifacts", listArtifactsHandler(cfg))
		r.Get("/artifacts/{id}", getArtifactHandler(cfg))
		r.Get("/artifacts/{id}/download", downloadHandler(cfg))
		r.Head("/artifacts/{id}/download", downloadHandler(cfg))
		r.Get("/artifacts/{id}/stream", streamHandler(cfg))
		r.Head("/artifacts/{id}/stream", streamHandler(cfg))
		r.Get("/artifacts/{id}/view", viewHandler(cfg))
		r.Get("/artifacts/{id}/view/*", viewHandler(cfg))
		r.Get("/artifacts/{id}/timeline", timelineHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		resp := HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		}
		if cfg.Doctor != nil {
			if caps := cfg.Doctor.Get(r.Context()); caps != nil {
				resp.Encoder = EncoderStatus{Available: caps.Available, Version: caps.Version}
			}
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func createJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req jobs.Request
		body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				WriteError(w, http.StatusRequestEntityTooLarge, "request body too large", "BAD_REQUEST")
				return
			}
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
			id, err := cfg.Jobs.Submit(r.Context(), req)
			if err != nil {
				WriteFailure(w, cfg.Logger, err)
				return
			}
			w.Header().Set("Location", "/jobs/"+id)
			WriteJSON(w, http.StatusAccepted, SubmitResponse{JobID: id})
			return
		}

		res, err := cfg.Jobs.Run(r.Context(), req)
		if err != nil {
			WriteFailure(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, res)
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := cfg.Jobs.List(r.Context(), queryLimit(r))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(records))}
		for i, j := range records {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "job id required", "BAD_REQUEST")
			return
		}

		job, err := cfg.Jobs.Get(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

func listArtifactsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := cfg.Artifacts.List(r.Context(), queryLimit(r))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list artifacts", "INTERNAL_ERROR")
			return
		}

		resp := ArtifactsResponse{Artifacts: make([]ArtifactResponse, len(list))}
		for i, a := range list {
			resp.Artifacts[i] = ArtifactToResponse(cfg.Jobs.Contract(a), a)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getArtifactHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, ok := resolveArtifact(cfg, w, r)
		if !ok {
			return
		}
		a := describe(f)
		WriteJSON(w, http.StatusOK, ArtifactToResponse(cfg.Jobs.Contract(a), a))
	}
}

func downloadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, ok := resolveArtifact(cfg, w, r)
		if !ok {
			return
		}
		if err := cfg.Delivery.Download(w, r, f); err != nil {
			WriteFailure(w, cfg.Logger, err)
		}
	}
}

func streamHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, ok := resolveArtifact(cfg, w, r)
		if !ok {
			return
		}
		downloadURL := strings.TrimRight(cfg.PublicBaseURL, "/") + "/artifacts/" + f.ID + "/download"
		if err := cfg.Delivery.Stream(w, r, f, downloadURL); err != nil {
			WriteFailure(w, cfg.Logger, err)
		}
	}
}

func viewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, ok := resolveArtifact(cfg, w, r)
		if !ok {
			return
		}
		if err := cfg.Delivery.View(w, r, f, chi.URLParam(r, "*")); err != nil {
			WriteFailure(w, cfg.Logger, err)
		}
	}
}

func timelineHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, ok := resolveArtifact(cfg, w, r)
		if !ok {
			return
		}
		if err := cfg.Delivery.Timeline(w, r, f); err != nil {
			WriteFailure(w, cfg.Logger, err)
		}
	}
}

func resolveArtifact(cfg ServerConfig, w http.ResponseWriter, r *http.Request) (*artifact.File, bool) {
	f, err := cfg.Resolver.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteFailure(w, cfg.Logger, err)
		return nil, false
	}
	return f, true
}

// describe returns the registry row for f, or a stand-in for files that have
// none (legacy videos, workspaces whose row was dropped).
func describe(f *artifact.File) *artifact.Artifact {
	if f.Artifact != nil {
		return f.Artifact
	}
	return &artifact.Artifact{
		ID:          f.ID,
		Title:       f.Title,
		Format:      f.Format,
		StoragePath: f.Path,
		SizeBytes:   f.SizeBytes,
		Temporary:   f.WorkDir != "",
		CreatedAt:   f.ModTime,
	}
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}
