// Package packager builds a self-contained HTML slideshow from prepared
// scenes and archives it as a zip.
package packager

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/storymill/storymill-render/internal/failure"
	"github.com/storymill/storymill-render/internal/scene"
	"github.com/storymill/storymill-render/internal/transition"
)

const (
	IndexFile   = "index.html"
	StylesFile  = "styles.css"
	ScriptFile  = "script.js"
	PreviewFile = "preview.png"
	MediaDir    = "media"
)

//go:embed templates/index.html.tmpl templates/styles.css templates/script.js
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html.tmpl"))

// Config holds packager settings.
type Config struct {
	Logger *slog.Logger
}

// Result describes a finished package.
type Result struct {
	ArchivePath string
	IndexPath   string
	PreviewPath string
	SizeBytes   int64
	Slides      int
}

// Packager writes presentation packages.
type Packager struct {
	logger *slog.Logger
}

// New creates a Packager.
func New(cfg Config) *Packager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Packager{logger: logger}
}

type slideView struct {
	Index              int
	Number             int
	Image              string
	Audio              string
	Caption            string
	Duration           string
	Transition         string
	TransitionDuration string
}

type pageView struct {
	Title         string
	TotalDuration string
	Slides        []slideView
}

// Package writes index.html, styles.css, script.js, preview.png and media/
// into workDir, then archives them as {workDir}/{jobID}.zip.
func (p *Packager) Package(ctx context.Context, workDir, jobID, title string, scenes []scene.Prepared) (Result, error) {
	logger := p.logger.With("job_id", jobID)

	if err := os.MkdirAll(filepath.Join(workDir, MediaDir), 0755); err != nil {
		return Result{}, failure.Wrap(failure.ErrPackaging, "package", "create media dir", "", err)
	}

	transitions := transition.PlanPrepared(scenes)
	page := pageView{
		Title:         displayTitle(title),
		TotalDuration: formatClock(scene.TotalDuration(scenes)),
		Slides:        make([]slideView, 0, len(scenes)),
	}

	for i, s := range scenes {
		if err := ctx.Err(); err != nil {
			return Result{}, failure.Wrap(failure.ErrPackaging, "package", "media", "cancelled", err)
		}
		view := slideView{
			Index:    i,
			Number:   i + 1,
			Caption:  s.Caption(),
			Duration: strconv.FormatFloat(s.DurationSeconds, 'f', -1, 64),
		}
		if tr := transitions[i]; tr.Type != "" {
			view.Transition = string(tr.Type)
			view.TransitionDuration = strconv.FormatFloat(tr.DurationSeconds, 'f', -1, 64)
		}

		if s.HasImage() {
			rel, err := copyMedia(workDir, s.ImagePath, fmt.Sprintf("slide_%03d", i+1))
			if err != nil {
				logger.Warn("cannot copy slide image, using placeholder", "scene", i+1, "error", err)
			} else {
				view.Image = rel
			}
		}
		if s.AudioPath != "" {
			rel, err := copyMedia(workDir, s.AudioPath, fmt.Sprintf("slide_%03d_audio", i+1))
			if err != nil {
				logger.Warn("cannot copy slide audio", "scene", i+1, "error", err)
			} else {
				view.Audio = rel
			}
		}
		page.Slides = append(page.Slides, view)
	}

	indexPath := filepath.Join(workDir, IndexFile)
	if err := renderIndex(indexPath, page); err != nil {
		return Result{}, failure.Wrap(failure.ErrPackaging, "package", "render index", "", err)
	}
	for _, name := range []string{StylesFile, ScriptFile} {
		if err := copyTemplate(workDir, name); err != nil {
			return Result{}, failure.Wrap(failure.ErrPackaging, "package", "write "+name, "", err)
		}
	}

	previewPath := filepath.Join(workDir, PreviewFile)
	var first scene.Prepared
	if len(scenes) > 0 {
		first = scenes[0]
	}
	WritePreview(previewPath, first, logger)

	archivePath := filepath.Join(workDir, jobID+".zip")
	start := time.Now()
	files, err := WriteArchive(archivePath, workDir)
	if err != nil {
		os.Remove(archivePath)
		return Result{}, failure.Wrap(failure.ErrPackaging, "package", "archive", "", err)
	}
	info, err := os.Stat(archivePath)
	if err != nil {
		return Result{}, failure.Wrap(failure.ErrPackaging, "package", "stat archive", "", err)
	}

	logger.Info("package written",
		"slides", len(page.Slides),
		"files", files,
		"size", humanize.Bytes(uint64(info.Size())),
		"archive_ms", time.Since(start).Milliseconds(),
	)

	return Result{
		ArchivePath: archivePath,
		IndexPath:   indexPath,
		PreviewPath: previewPath,
		SizeBytes:   info.Size(),
		Slides:      len(page.Slides),
	}, nil
}

// displayTitle title-cases the presentation title.
func displayTitle(title string) string {
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return "Untitled Story"
	}
	return cases.Title(language.English, cases.NoLower).String(title)
}

func formatClock(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func renderIndex(path string, page pageView) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := indexTemplate.Execute(f, page); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func copyTemplate(workDir, name string) error {
	data, err := templateFS.ReadFile("templates/" + name)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(workDir, name), data, 0644)
}

// copyMedia copies src to media/<base><ext> and returns the path relative to
// workDir with forward slashes.
func copyMedia(workDir, src, base string) (string, error) {
	ext := strings.ToLower(filepath.Ext(src))
	rel := MediaDir + "/" + base + ext

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(filepath.Join(workDir, filepath.FromSlash(rel)))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return rel, nil
}
