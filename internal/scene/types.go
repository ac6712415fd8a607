// Package scene defines the narrative scene descriptors accepted from the
// generation services and the prepared form consumed by the renderers.
package scene

import "strings"

// DefaultDurationSeconds is used when neither the scene nor its narration
// declares a duration.
const DefaultDurationSeconds = 5.0

// Asset kinds, used in workspace file names (scene_{n}_{kind}.ext).
const (
	KindImage   = "image"
	KindAudio   = "audio"
	KindAmbient = "ambient"
)

// MediaRef references an image either as an http(s) URL or an inline data URI.
type MediaRef struct {
	URL string `json:"url"`
}

// AudioRef references a narration track.
type AudioRef struct {
	URL             string  `json:"url"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
}

// AmbientRef references a background sound bed mixed under narration.
type AmbientRef struct {
	URL    string  `json:"url"`
	Volume float64 `json:"volume,omitempty"`
}

// Descriptor is one narrative beat as produced by the generation services.
type Descriptor struct {
	SceneNumber     int         `json:"sceneNumber"`
	Description     string      `json:"description"`
	NarrationText   string      `json:"narrationText,omitempty"`
	Characters      []string    `json:"characters,omitempty"`
	Setting         string      `json:"setting,omitempty"`
	Mood            string      `json:"mood,omitempty"`
	TimeOfDay       string      `json:"timeOfDay,omitempty"`
	Weather         string      `json:"weather,omitempty"`
	Environment     string      `json:"environment,omitempty"`
	SoundContext    string      `json:"soundContext,omitempty"`
	DurationSeconds float64     `json:"durationSeconds,omitempty"`
	Image           MediaRef    `json:"image"`
	Audio           *AudioRef   `json:"audio,omitempty"`
	Ambient         *AmbientRef `json:"ambient,omitempty"`
}

// Caption returns the text shown under the scene: narration when present,
// otherwise the description.
func (d Descriptor) Caption() string {
	if t := strings.TrimSpace(d.NarrationText); t != "" {
		return t
	}
	return strings.TrimSpace(d.Description)
}

// Prepared is a Descriptor with its media resolved into the job workspace.
// An empty path means the asset was absent or could not be acquired.
type Prepared struct {
	Descriptor

	Index           int
	ImagePath       string
	AudioPath       string
	AmbientPath     string
	DurationSeconds float64
}

// HasImage reports whether the scene has a usable local image.
func (p Prepared) HasImage() bool { return p.ImagePath != "" }

// HasAudio reports whether any sound (narration or ambient) was resolved.
func (p Prepared) HasAudio() bool { return p.AudioPath != "" || p.AmbientPath != "" }

// EffectiveDuration picks the on-screen time for a scene: the longer of the
// declared duration and the narration length, clamped to minSeconds.
func EffectiveDuration(d Descriptor, minSeconds float64) float64 {
	dur := d.DurationSeconds
	if d.Audio != nil && d.Audio.DurationSeconds > dur {
		dur = d.Audio.DurationSeconds
	}
	if dur <= 0 {
		dur = DefaultDurationSeconds
	}
	if dur < minSeconds {
		dur = minSeconds
	}
	return dur
}

// CountImages returns how many prepared scenes carry a local image.
func CountImages(scenes []Prepared) int {
	n := 0
	for _, s := range scenes {
		if s.HasImage() {
			n++
		}
	}
	return n
}

// TotalDuration sums the effective durations of all scenes.
func TotalDuration(scenes []Prepared) float64 {
	var total float64
	for _, s := range scenes {
		total += s.DurationSeconds
	}
	return total
}
