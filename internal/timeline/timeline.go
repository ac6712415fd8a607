// Package timeline describes a composed video as an edit decision list so the
// scene cut points can be imported into an editor.
package timeline

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/storymill/storymill-render/internal/scene"
	"github.com/storymill/storymill-render/internal/transition"
)

// FileName is the EDL written next to a composed video.
const FileName = "timeline.edl"

// Clip is one still held on screen for EndMs-StartMs.
type Clip struct {
	Name       string
	MediaPath  string
	StartMs    int
	EndMs      int
	Transition transition.Descriptor
}

// FromScenes lays scenes end to end. Each clip holds its scene's duration plus
// the transition into the next scene, matching the composed video.
func FromScenes(scenes []scene.Prepared, transitions []transition.Descriptor) []Clip {
	clips := make([]Clip, 0, len(scenes))
	for i, s := range scenes {
		var tr transition.Descriptor
		if i < len(transitions) {
			tr = transitions[i]
		}
		media := "BLACK"
		if s.HasImage() {
			media = filepath.Base(s.ImagePath)
		}
		clips = append(clips, Clip{
			Name:       fmt.Sprintf("Scene %d", i+1),
			MediaPath:  media,
			StartMs:    0,
			EndMs:      int(math.Round((s.DurationSeconds + tr.DurationSeconds) * 1000)),
			Transition: tr,
		})
	}
	return clips
}

// GenerateEDL renders clips as a CMX3600-style EDL.
func GenerateEDL(clips []Clip, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", oneLine(title))}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	recordOffsetMs := 0
	for i, clip := range clips {
		srcIn := msToTimecode(clip.StartMs, fps)
		srcOut := msToTimecode(clip.EndMs, fps)
		recIn := msToTimecode(recordOffsetMs, fps)
		durationMs := clip.EndMs - clip.StartMs
		recOut := msToTimecode(recordOffsetMs+durationMs, fps)

		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "V", srcIn, srcOut, recIn, recOut),
			fmt.Sprintf("* FROM CLIP NAME:  %s", oneLine(clip.Name)),
			fmt.Sprintf("* MEDIA PATH:  %s", oneLine(clip.MediaPath)),
		)
		if clip.Transition.Type != "" {
			lines = append(lines, fmt.Sprintf("* TRANSITION:  %s %.1fs %s",
				clip.Transition.Type, clip.Transition.DurationSeconds, clip.Transition.Easing))
		}

		recordOffsetMs += durationMs
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func msToTimecode(ms int, fps int) string {
	totalFrames := int(math.Round(float64(ms) * float64(fps) / 1000.0))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
