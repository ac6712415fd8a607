// Package delivery serves finished artifacts over HTTP: full downloads,
// byte-range streaming and the unpacked presentation.
package delivery

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/storymill/storymill-render/internal/artifact"
	"github.com/storymill/storymill-render/internal/failure"
)

// Service is the delivery surface used by the HTTP layer.
type Service interface {
	Download(w http.ResponseWriter, r *http.Request, f *artifact.File) error
	Stream(w http.ResponseWriter, r *http.Request, f *artifact.File, downloadURL string) error
	View(w http.ResponseWriter, r *http.Request, f *artifact.File, asset string) error
	Timeline(w http.ResponseWriter, r *http.Request, f *artifact.File) error
}

type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{logger: logger}
}

// Download sends the whole artifact as an attachment.
func (s *Server) Download(w http.ResponseWriter, r *http.Request, f *artifact.File) error {
	file, size, err := open(f.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	name := downloadName(f.Title, f.ID, f.Format.Extension())
	w.Header().Set("Content-Type", f.Format.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return nil
	}
	if _, err := io.Copy(w, file); err != nil {
		s.logger.Debug("download interrupted", "artifact_id", f.ID, "error", err)
	}
	return nil
}

// Stream serves a video with range support. Archives have nothing to play,
// so the preview image is returned instead, or a redirect to the download.
func (s *Server) Stream(w http.ResponseWriter, r *http.Request, f *artifact.File, downloadURL string) error {
	if f.Format == artifact.FormatVideo {
		return s.ServeFile(w, r, f.Path, f.Format.ContentType())
	}
	if f.PreviewPath != "" {
		return s.ServeFile(w, r, f.PreviewPath, "image/png")
	}
	http.Redirect(w, r, downloadURL, http.StatusFound)
	return nil
}

// View serves the presentation's index.html, or asset relative to it.
func (s *Server) View(w http.ResponseWriter, r *http.Request, f *artifact.File, asset string) error {
	if f.Format != artifact.FormatArchive || f.WorkDir == "" {
		return failure.Wrap(failure.ErrArtifactNotFound, "deliver", "view", "artifact has no presentation", nil)
	}

	rel, err := cleanAsset(asset)
	if err != nil {
		return failure.Wrap(failure.ErrArtifactNotFound, "deliver", "view", "", err)
	}

	p := filepath.Join(f.WorkDir, filepath.FromSlash(rel))
	// relative links in index.html only resolve under a trailing slash
	if asset == "" && !strings.HasSuffix(r.URL.Path, "/") {
		return serveIndexWithBase(w, r, p, r.URL.Path+"/")
	}
	contentType := mime.TypeByExtension(filepath.Ext(p))
	return s.ServeFile(w, r, p, contentType)
}

func serveIndexWithBase(w http.ResponseWriter, r *http.Request, indexPath, base string) error {
	file, _, err := open(indexPath)
	if err != nil {
		return err
	}
	page, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		return fmt.Errorf("failed to read index: %w", err)
	}

	tag := []byte(`<base href="` + html.EscapeString(base) + `">`)
	if i := bytes.Index(page, []byte("<head>")); i >= 0 {
		at := i + len("<head>")
		page = append(page[:at:at], append(tag, page[at:]...)...)
	} else {
		page = append(tag, page...)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(page)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(page)
	}
	return nil
}

// Timeline serves the EDL written alongside a composed video.
func (s *Server) Timeline(w http.ResponseWriter, r *http.Request, f *artifact.File) error {
	if f.Format != artifact.FormatVideo || f.TimelinePath == "" {
		return failure.Wrap(failure.ErrArtifactNotFound, "deliver", "timeline", "artifact has no timeline", nil)
	}
	name := downloadName(f.Title, f.ID, ".edl")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))
	return s.ServeFile(w, r, f.TimelinePath, "text/plain; charset=utf-8")
}

// ServeFile writes filePath honouring a Range header. A malformed range is
// answered with the full body; an unsatisfiable one with 416.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, filePath, contentType string) error {
	file, size, err := open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType)

	parsedRange, err := ParseRange(r.Header.Get("Range"), size)
	if errors.Is(err, ErrUnsatisfiable) {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	}

	if parsedRange == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			io.Copy(w, file)
		}
		return nil
	}

	if _, err := file.Seek(parsedRange.Start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}

	w.Header().Set("Content-Length", strconv.FormatInt(parsedRange.ContentLength(), 10))
	w.Header().Set("Content-Range", parsedRange.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)

	if r.Method != http.MethodHead {
		io.CopyN(w, file, parsedRange.ContentLength())
	}
	return nil
}

func open(filePath string) (*os.File, int64, error) {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, failure.Wrap(failure.ErrArtifactNotFound, "deliver", "open", filepath.Base(filePath), nil)
		}
		return nil, 0, fmt.Errorf("failed to open file: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.IsDir() {
		file.Close()
		return nil, 0, failure.Wrap(failure.ErrArtifactNotFound, "deliver", "open", "not a file", nil)
	}
	return file, stat.Size(), nil
}

// cleanAsset maps a request path inside the presentation to a relative file
// name, rejecting traversal and the raw files that are not part of it.
func cleanAsset(asset string) (string, error) {
	asset = strings.TrimPrefix(asset, "/")
	if asset == "" {
		return "index.html", nil
	}
	if strings.Contains(asset, "\\") {
		return "", fmt.Errorf("invalid asset path")
	}
	for _, part := range strings.Split(asset, "/") {
		if part == ".." {
			return "", fmt.Errorf("asset path cannot contain traversal")
		}
	}
	cleaned := path.Clean(asset)
	base := path.Base(cleaned)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "scene_") || strings.HasSuffix(base, ".zip") {
		return "", fmt.Errorf("asset %q is not part of the presentation", base)
	}
	return cleaned, nil
}
