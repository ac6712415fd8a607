package transition

import (
	"testing"

	"github.com/storymill/storymill-render/internal/scene"
)

func sc(mood, sound, env, tod string) scene.Descriptor {
	return scene.Descriptor{Mood: mood, SoundContext: sound, Environment: env, TimeOfDay: tod}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name string
		from *scene.Descriptor
		to   scene.Descriptor
		want Descriptor
	}{
		{"scary target", ptr(sc("peaceful", "", "", "")), sc("scary", "", "", ""), Descriptor{FadeBlack, 1.2, EaseIn}},
		{"horror sound", ptr(sc("happy", "", "", "")), sc("", "horror", "", ""), Descriptor{FadeBlack, 1.2, EaseIn}},
		{"scary first scene", nil, sc("scary", "", "", ""), Descriptor{FadeBlack, 1.2, EaseIn}},
		{"exciting from peaceful", ptr(sc("peaceful", "", "", "")), sc("exciting", "", "", ""), Descriptor{SlideRight, 0.4, EaseOut}},
		{"exciting from other", ptr(sc("sad", "", "", "")), sc("exciting", "", "", ""), Descriptor{WipeLeft, 0.3, EaseOut}},
		{"action sound", nil, sc("", "action", "", ""), Descriptor{WipeLeft, 0.3, EaseOut}},
		{"magical target", ptr(sc("sad", "", "", "")), sc("magical", "", "", ""), Descriptor{CircleCrop, 1.0, EaseInOut}},
		{"magical source", ptr(sc("magical", "", "", "")), sc("sad", "", "", ""), Descriptor{CircleCrop, 1.0, EaseInOut}},
		{"indoor to outdoor", ptr(sc("", "", "indoor", "")), sc("", "", "outdoor", ""), Descriptor{SlideUp, 0.7, EaseOut}},
		{"outdoor to indoor", ptr(sc("", "", "outdoor", "")), sc("", "", "indoor", ""), Descriptor{SlideDown, 0.7, EaseIn}},
		{"urban to nature", ptr(sc("", "", "urban", "")), sc("", "", "nature", ""), Descriptor{Dissolve, 0.9, EaseInOut}},
		{"nature to urban", ptr(sc("", "", "nature", "")), sc("", "", "urban", ""), Descriptor{WipeRight, 0.6, EaseIn}},
		{"day to night", ptr(sc("", "", "", "day")), sc("", "", "", "night"), Descriptor{FadeBlack, 1.5, EaseIn}},
		{"night to morning", ptr(sc("", "", "", "night")), sc("", "", "", "morning"), Descriptor{FadeWhite, 1.0, EaseOut}},
		{"morning to afternoon", ptr(sc("", "", "", "morning")), sc("", "", "", "afternoon"), Descriptor{Fade, 0.5, EaseLinear}},
		{"sad to happy", ptr(sc("sad", "", "", "")), sc("happy", "", "", ""), Descriptor{SlideUp, 0.8, EaseOut}},
		{"happy to sad", ptr(sc("happy", "", "", "")), sc("sad", "", "", ""), Descriptor{SlideDown, 1.0, EaseIn}},
		{"exciting to peaceful", ptr(sc("exciting", "", "", "")), sc("peaceful", "", "", ""), Descriptor{Dissolve, 1.2, EaseIn}},
		{"peaceful pair", ptr(sc("peaceful", "", "indoor", "")), sc("peaceful", "", "indoor", ""), Descriptor{Fade, 0.8, EaseInOut}},
		{"peaceful source only", ptr(sc("peaceful", "", "", "")), sc("happy", "", "", ""), Descriptor{Fade, 0.8, EaseInOut}},
		{"default", ptr(sc("happy", "", "", "")), sc("happy", "", "", ""), Descriptor{Fade, 0.6, EaseInOut}},
		{"default first scene", nil, sc("", "", "", ""), Descriptor{Fade, 0.6, EaseInOut}},
		{"unknown environment pair falls through", ptr(sc("", "", "space", "")), sc("", "", "underwater", ""), Descriptor{Fade, 0.6, EaseInOut}},
		{"environment beats time of day", ptr(sc("", "", "indoor", "day")), sc("", "", "outdoor", "night"), Descriptor{SlideUp, 0.7, EaseOut}},
		{"tags are case insensitive", ptr(sc(" Indoor", "", "INDOOR", "")), sc("", "", "Outdoor ", ""), Descriptor{SlideUp, 0.7, EaseOut}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Select(tt.from, tt.to)
			if got != tt.want {
				t.Errorf("Select() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSelect_IgnoresPositionAndHistory(t *testing.T) {
	from := sc("peaceful", "", "indoor", "")
	to := sc("peaceful", "", "outdoor", "")

	first := Select(&from, to)
	for i := 0; i < 5; i++ {
		Select(ptr(sc("scary", "", "", "")), sc("happy", "", "", ""))
		if got := Select(&from, to); got != first {
			t.Fatalf("Select() changed between calls: %+v vs %+v", got, first)
		}
	}

	other := to
	other.SceneNumber = 42
	other.Description = "different text"
	if got := Select(&from, other); got != first {
		t.Fatalf("Select() depends on non-tag fields: %+v vs %+v", got, first)
	}
}

func TestPlan(t *testing.T) {
	scenes := []scene.Descriptor{
		sc("peaceful", "", "indoor", ""),
		sc("peaceful", "", "outdoor", ""),
		sc("scary", "", "outdoor", ""),
	}
	plan := Plan(scenes)
	if len(plan) != 3 {
		t.Fatalf("len(Plan) = %d, want 3", len(plan))
	}
	if plan[0] != (Descriptor{SlideUp, 0.7, EaseOut}) {
		t.Errorf("plan[0] = %+v", plan[0])
	}
	if plan[1] != (Descriptor{FadeBlack, 1.2, EaseIn}) {
		t.Errorf("plan[1] = %+v", plan[1])
	}
	if plan[2] != (Descriptor{}) {
		t.Errorf("last scene should have no outgoing transition, got %+v", plan[2])
	}
}

func ptr(d scene.Descriptor) *scene.Descriptor { return &d }
