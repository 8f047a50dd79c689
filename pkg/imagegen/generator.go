// Package imagegen produces chapter illustrations from synthesized image
// prompts. Generation runs off the streaming path; a failed image is a
// degraded chapter, never a failed one.
package imagegen

import (
	"context"
	"errors"
)

// ErrImageUnavailable is returned when every generation attempt for a
// chapter illustration has failed. Callers skip the image frame.
var ErrImageUnavailable = errors.New("image unavailable")

// Generator renders an illustration from a composed image prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}
