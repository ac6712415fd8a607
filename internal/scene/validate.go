package scene

import (
	"fmt"
	"strings"

	"github.com/storymill/storymill-render/internal/failure"
)

// MaxScenes bounds a single job.
const MaxScenes = 200

// Validate rejects a scene list that cannot produce an artifact. Individual
// scenes may lack an image (they degrade to a filler slide) but at least one
// must reference one, and every scene needs text.
func Validate(scenes []Descriptor) error {
	if len(scenes) == 0 {
		return failure.Wrap(failure.ErrValidation, "validate", "", "at least one scene is required", nil)
	}
	if len(scenes) > MaxScenes {
		return failure.Wrap(failure.ErrValidation, "validate", "",
			fmt.Sprintf("too many scenes: %d (max %d)", len(scenes), MaxScenes), nil)
	}

	withImage := 0
	for i, s := range scenes {
		if strings.TrimSpace(s.Description) == "" && strings.TrimSpace(s.NarrationText) == "" {
			return failure.Wrap(failure.ErrValidation, "validate", "",
				fmt.Sprintf("scene %d: description or narrationText is required", i+1), nil)
		}
		if s.DurationSeconds < 0 {
			return failure.Wrap(failure.ErrValidation, "validate", "",
				fmt.Sprintf("scene %d: durationSeconds must not be negative", i+1), nil)
		}
		if strings.TrimSpace(s.Image.URL) != "" {
			withImage++
		}
	}
	if withImage == 0 {
		return failure.Wrap(failure.ErrValidation, "validate", "", "no scene references an image", nil)
	}
	return nil
}
