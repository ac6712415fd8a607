package failure

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestWrap_MatchesMarkerAndCause(t *testing.T) {
	err := Wrap(ErrEncode, "compose", "ffmpeg", "exit 1", io.ErrUnexpectedEOF)

	if !errors.Is(err, ErrEncode) {
		t.Fatal("expected errors.Is(err, ErrEncode)")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatal("expected wrapped cause to be reachable")
	}
	if errors.Is(err, ErrPackaging) {
		t.Fatal("unexpected match on ErrPackaging")
	}

	want := "encode error: compose: ffmpeg: exit 1: unexpected EOF"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrap_NilMarkerDefaultsToStorage(t *testing.T) {
	err := Wrap(nil, "", "", "", nil)
	if !errors.Is(err, ErrStorage) {
		t.Fatal("expected ErrStorage marker")
	}
	if !strings.Contains(err.Error(), "pipeline failure") {
		t.Errorf("Error() = %q, want default detail", err.Error())
	}
}

func TestStage(t *testing.T) {
	err := Wrap(ErrPackaging, "package", "archive", "", nil)
	if got := Stage(err); got != "package" {
		t.Errorf("Stage() = %q, want package", got)
	}
	if got := Stage(io.EOF); got != "" {
		t.Errorf("Stage(io.EOF) = %q, want empty", got)
	}
}

func TestCodeAndStatus(t *testing.T) {
	tests := []struct {
		marker error
		code   string
		status int
	}{
		{ErrValidation, "VALIDATION_ERROR", http.StatusBadRequest},
		{ErrArtifactNotFound, "NOT_FOUND", http.StatusNotFound},
		{ErrEncode, "ENCODE_ERROR", http.StatusInternalServerError},
		{ErrPackaging, "PACKAGING_ERROR", http.StatusInternalServerError},
		{ErrStorage, "INTERNAL_ERROR", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		err := Wrap(tt.marker, "stage", "", "", nil)
		if got := Code(err); got != tt.code {
			t.Errorf("Code(%v) = %q, want %q", tt.marker, got, tt.code)
		}
		if got := HTTPStatus(err); got != tt.status {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.marker, got, tt.status)
		}
	}
}
