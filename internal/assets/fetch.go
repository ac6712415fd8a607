package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// FetchError represents a failed remote asset request.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsRetryable returns true for server errors (5xx) and transport errors.
// Client errors (4xx) are considered permanent.
func (e *FetchError) IsRetryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

// fetch downloads rawURL into dir/base+ext, retrying transient failures.
// The extension is chosen once the response headers are known.
func (r *Resolver) fetch(ctx context.Context, rawURL, dir, base, kind string) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.RetryInitial
	b.MaxInterval = 10 * r.cfg.RetryInitial

	attempt := 0
	return backoff.Retry(ctx, func() (string, error) {
		attempt++
		dest, err := r.fetchOnce(ctx, rawURL, dir, base, kind)
		if err == nil {
			return dest, nil
		}
		var fe *FetchError
		if errors.As(err, &fe) && !fe.IsRetryable() {
			return "", backoff.Permanent(err)
		}
		r.logger.Debug("asset fetch attempt failed",
			"attempt", attempt,
			"error", err,
		)
		return "", err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.cfg.MaxAttempts)),
	)
}

func (r *Resolver) fetchOnce(ctx context.Context, rawURL, dir, base, kind string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", r.cfg.UserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", &FetchError{URL: redactURL(rawURL), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &FetchError{URL: redactURL(rawURL), StatusCode: resp.StatusCode}
	}

	ext := extensionFor(resp.Header.Get("Content-Type"), urlExtension(rawURL), kind)
	dest := filepath.Join(dir, base+ext)
	if err := writeFile(dest, resp.Body); err != nil {
		return "", &FetchError{URL: redactURL(rawURL), Err: err}
	}
	return dest, nil
}

// writeFile streams src to dest, removing the partial file on failure.
func writeFile(dest string, src io.Reader) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(dest)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(dest)
		return err
	}
	return nil
}

var extByType = map[string]string{
	"image/png":    ".png",
	"image/jpeg":   ".jpg",
	"image/jpg":    ".jpg",
	"image/webp":   ".webp",
	"image/gif":    ".gif",
	"audio/mpeg":   ".mp3",
	"audio/mp3":    ".mp3",
	"audio/wav":    ".wav",
	"audio/wave":   ".wav",
	"audio/x-wav":  ".wav",
	"audio/ogg":    ".ogg",
	"audio/aac":    ".aac",
	"audio/mp4":    ".m4a",
	"audio/x-m4a":  ".m4a",
	"audio/webm":   ".webm",
	"audio/flac":   ".flac",
	"audio/x-flac": ".flac",
}

// extensionFor picks a file extension from the MIME type, then the URL's own
// extension, then the default for kind.
func extensionFor(contentType, urlExt, kind string) string {
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			if ext, ok := extByType[strings.ToLower(mt)]; ok {
				return ext
			}
		}
	}
	if urlExt != "" {
		return urlExt
	}
	if kind == "image" {
		return ".png"
	}
	return ".mp3"
}

func urlExtension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return ext
}

// redactURL drops the query string, which often carries signed credentials.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}

func defaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 5 * time.Minute,
	}
}
