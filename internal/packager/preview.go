package packager

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"

	"github.com/storymill/storymill-render/internal/scene"
)

const (
	previewWidth  = 640
	previewHeight = 360
	bandHeight    = 44
	textMargin    = 12
)

var (
	previewBackground = color.RGBA{R: 0x14, G: 0x14, B: 0x18, A: 0xff}
	bandColor         = color.RGBA{A: 0xa0}
	errNoImage        = errors.New("scene has no image")
)

// WritePreview writes a 640x360 PNG thumbnail for s. Any failure to use the
// scene image falls back to a text-only placeholder; nothing is returned
// because a missing preview never fails a package.
func WritePreview(path string, s scene.Prepared, logger *slog.Logger) {
	img, err := renderPreview(s)
	if err != nil {
		logger.Debug("preview falls back to placeholder", "reason", err)
		img = placeholder(s.Caption())
	}
	if err := writePNG(path, img); err != nil {
		logger.Warn("cannot write preview", "error", err)
	}
}

func renderPreview(s scene.Prepared) (img *image.RGBA, err error) {
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("preview panic: %v", r)
		}
	}()

	if !s.HasImage() {
		return nil, errNoImage
	}
	f, err := os.Open(s.ImagePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	canvas := newCanvas()
	dr := fitRect(src.Bounds().Size(), canvas.Bounds())
	draw.CatmullRom.Scale(canvas, dr, src, src.Bounds(), draw.Over, nil)
	drawCaption(canvas, s.Caption())
	return canvas, nil
}

func placeholder(caption string) *image.RGBA {
	canvas := newCanvas()
	lines := wrap(caption, (previewWidth-2*textMargin)/7, 3)
	if len(lines) == 0 {
		lines = []string{"No preview available"}
	}
	y := previewHeight/2 - (len(lines)*16)/2 + 13
	for _, line := range lines {
		drawText(canvas, line, (previewWidth-len(line)*7)/2, y)
		y += 16
	}
	return canvas
}

func newCanvas() *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, previewWidth, previewHeight))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(previewBackground), image.Point{}, draw.Src)
	return canvas
}

// fitRect returns the largest rectangle with the aspect ratio of size that
// fits centred inside bounds.
func fitRect(size image.Point, bounds image.Rectangle) image.Rectangle {
	bw, bh := bounds.Dx(), bounds.Dy()
	if size.X <= 0 || size.Y <= 0 {
		return bounds
	}
	w, h := bw, size.Y*bw/size.X
	if h > bh {
		w, h = size.X*bh/size.Y, bh
	}
	x := bounds.Min.X + (bw-w)/2
	y := bounds.Min.Y + (bh-h)/2
	return image.Rect(x, y, x+w, y+h)
}

func drawCaption(canvas *image.RGBA, caption string) {
	lines := wrap(caption, (previewWidth-2*textMargin)/7, 2)
	if len(lines) == 0 {
		return
	}
	band := image.Rect(0, previewHeight-bandHeight, previewWidth, previewHeight)
	draw.Draw(canvas, band, image.NewUniform(bandColor), image.Point{}, draw.Over)
	y := band.Min.Y + 18
	for _, line := range lines {
		drawText(canvas, line, textMargin, y)
		y += 16
	}
}

func drawText(dst *image.RGBA, s string, x, y int) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.White,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// wrap splits s into at most maxLines lines of width runes, ending the last
// line with "..." when text is cut.
func wrap(s string, width, maxLines int) []string {
	words := strings.Fields(s)
	var lines []string
	var cur []rune
	for i, w := range words {
		wr := []rune(w)
		if len(wr) > width {
			wr = wr[:width]
		}
		switch {
		case len(cur) == 0:
			cur = wr
		case len(cur)+1+len(wr) <= width:
			cur = append(append(cur, ' '), wr...)
		default:
			lines = append(lines, string(cur))
			cur = wr
		}
		if len(lines) == maxLines {
			return ellipsize(lines, width)
		}
		if i == len(words)-1 {
			lines = append(lines, string(cur))
		}
	}
	if len(lines) > maxLines {
		return ellipsize(lines[:maxLines], width)
	}
	return lines
}

func ellipsize(lines []string, width int) []string {
	last := []rune(lines[len(lines)-1])
	if len(last)+3 > width {
		last = last[:width-3]
	}
	lines[len(lines)-1] = string(last) + "..."
	return lines
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
