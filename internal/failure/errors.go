// Package failure holds the error taxonomy shared by the render pipeline.
// Errors are tagged with a sentinel marker so callers can classify them with
// errors.Is while still carrying the stage that failed.
package failure

import (
	"errors"
	"net/http"
	"strings"
)

var (
	ErrAssetDownload    = errors.New("asset download error")
	ErrEncode           = errors.New("encode error")
	ErrPackaging        = errors.New("packaging error")
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrValidation       = errors.New("validation error")
	ErrStorage          = errors.New("storage error")
)

// StageError is a failure attributed to one pipeline stage.
type StageError struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Err       error
}

func (e *StageError) Error() string {
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	if e.Err != nil {
		return e.Marker.Error() + ": " + detail + ": " + e.Err.Error()
	}
	return e.Marker.Error() + ": " + detail
}

func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Marker}
	}
	return []error{e.Marker, e.Err}
}

// Wrap tags err with marker and the stage/operation that produced it. A nil
// marker is treated as a storage failure.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrStorage
	}
	return &StageError{
		Marker:    marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Err:       err,
	}
}

// Stage returns the stage recorded on err, or "" when err is not a StageError.
func Stage(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// Code maps err to the stable error code exposed in API responses.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrArtifactNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrEncode):
		return "ENCODE_ERROR"
	case errors.Is(err, ErrPackaging):
		return "PACKAGING_ERROR"
	case errors.Is(err, ErrAssetDownload):
		return "ASSET_DOWNLOAD_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// HTTPStatus maps err to a response status.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrArtifactNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAssetDownload):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage != "" {
		parts = append(parts, stage)
	}
	if operation != "" {
		parts = append(parts, operation)
	}
	if message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
