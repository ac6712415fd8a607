// Package transition chooses the visual joint between two adjacent scenes
// from their mood, sound, environment and time-of-day tags.
package transition

import (
	"strings"

	"github.com/storymill/storymill-render/internal/scene"
)

// Type names the transition effect. Values match the encoder's xfade names.
type Type string

const (
	FadeBlack  Type = "fadeblack"
	FadeWhite  Type = "fadewhite"
	Fade       Type = "fade"
	Dissolve   Type = "dissolve"
	SlideRight Type = "slideright"
	SlideUp    Type = "slideup"
	SlideDown  Type = "slidedown"
	WipeLeft   Type = "wipeleft"
	WipeRight  Type = "wiperight"
	CircleCrop Type = "circlecrop"
)

// Easing is the timing curve applied to the transition.
type Easing string

const (
	EaseIn     Easing = "in"
	EaseOut    Easing = "out"
	EaseInOut  Easing = "inout"
	EaseLinear Easing = "linear"
)

// Descriptor is a computed transition. It is a plain value and never stored.
type Descriptor struct {
	Type            Type    `json:"type"`
	DurationSeconds float64 `json:"durationSeconds"`
	Easing          Easing  `json:"easing"`
}

var (
	dayLike   = map[string]bool{"morning": true, "day": true, "daytime": true, "noon": true, "midday": true, "afternoon": true}
	nightLike = map[string]bool{"evening": true, "dusk": true, "night": true, "nighttime": true, "midnight": true}
)

type tags struct {
	mood, sound, env, tod string
}

func tagsOf(d *scene.Descriptor) tags {
	if d == nil {
		return tags{}
	}
	return tags{
		mood:  norm(d.Mood),
		sound: norm(d.SoundContext),
		env:   norm(d.Environment),
		tod:   norm(d.TimeOfDay),
	}
}

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Select returns the transition into `to` from `from`. from is nil for the
// first scene. The result depends only on the two scenes' tags.
func Select(from *scene.Descriptor, to scene.Descriptor) Descriptor {
	f, t := tagsOf(from), tagsOf(&to)

	if t.mood == "scary" || t.sound == "horror" {
		return Descriptor{FadeBlack, 1.2, EaseIn}
	}

	if t.mood == "exciting" || t.sound == "action" {
		if f.mood == "peaceful" {
			return Descriptor{SlideRight, 0.4, EaseOut}
		}
		return Descriptor{WipeLeft, 0.3, EaseOut}
	}

	if t.mood == "magical" || f.mood == "magical" {
		return Descriptor{CircleCrop, 1.0, EaseInOut}
	}

	if d, ok := environmentChange(f.env, t.env); ok {
		return d
	}
	if d, ok := timeOfDayChange(f.tod, t.tod); ok {
		return d
	}
	if d, ok := moodShift(f.mood, t.mood); ok {
		return d
	}

	if t.mood == "peaceful" || f.mood == "peaceful" {
		return Descriptor{Fade, 0.8, EaseInOut}
	}

	return Descriptor{Fade, 0.6, EaseInOut}
}

func environmentChange(from, to string) (Descriptor, bool) {
	if from == "" || to == "" || from == to {
		return Descriptor{}, false
	}
	switch {
	case from == "indoor" && to == "outdoor":
		return Descriptor{SlideUp, 0.7, EaseOut}, true
	case from == "outdoor" && to == "indoor":
		return Descriptor{SlideDown, 0.7, EaseIn}, true
	case from == "urban" && to == "nature":
		return Descriptor{Dissolve, 0.9, EaseInOut}, true
	case from == "nature" && to == "urban":
		return Descriptor{WipeRight, 0.6, EaseIn}, true
	}
	return Descriptor{}, false
}

func timeOfDayChange(from, to string) (Descriptor, bool) {
	if from == "" || to == "" || from == to {
		return Descriptor{}, false
	}
	switch {
	case dayLike[from] && nightLike[to]:
		return Descriptor{FadeBlack, 1.5, EaseIn}, true
	case nightLike[from] && dayLike[to]:
		return Descriptor{FadeWhite, 1.0, EaseOut}, true
	case from == "morning" && to == "afternoon":
		return Descriptor{Fade, 0.5, EaseLinear}, true
	}
	return Descriptor{}, false
}

func moodShift(from, to string) (Descriptor, bool) {
	if from == "" || to == "" || from == to {
		return Descriptor{}, false
	}
	switch {
	case from == "sad" && to == "happy":
		return Descriptor{SlideUp, 0.8, EaseOut}, true
	case from == "happy" && to == "sad":
		return Descriptor{SlideDown, 1.0, EaseIn}, true
	case from == "peaceful" && to == "exciting":
		return Descriptor{WipeLeft, 0.4, EaseOut}, true
	case from == "exciting" && to == "peaceful":
		return Descriptor{Dissolve, 1.2, EaseIn}, true
	case to == "scary":
		return Descriptor{FadeBlack, 1.0, EaseIn}, true
	}
	return Descriptor{}, false
}

// Plan returns, for every scene, the transition that leads out of it into
// the next one. The final scene has no outgoing transition (zero value).
func Plan(scenes []scene.Descriptor) []Descriptor {
	out := make([]Descriptor, len(scenes))
	for i := 0; i+1 < len(scenes); i++ {
		out[i] = Select(&scenes[i], scenes[i+1])
	}
	return out
}

// PlanPrepared is Plan over resolved scenes.
func PlanPrepared(scenes []scene.Prepared) []Descriptor {
	descs := make([]scene.Descriptor, len(scenes))
	for i, s := range scenes {
		descs[i] = s.Descriptor
	}
	return Plan(descs)
}
