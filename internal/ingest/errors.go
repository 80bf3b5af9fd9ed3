package ingest

import (
	"errors"
	"fmt"

	"github.com/technosupport/sentinel/internal/analysis"
	"github.com/technosupport/sentinel/internal/clip"
)

var (
	// ErrDuplicateClip means the clip id was already accepted once.
	ErrDuplicateClip     = analysis.ErrAlreadyClaimed
	ErrQueueFull         = analysis.ErrQueueFull
	ErrInsufficientSpace = errors.New("insufficient disk space for clip artifact")
	ErrInvalidClip       = clip.ErrInvalidClip
)

// IngestionError reports which step of accepting a clip failed.
// The clip was not accepted and nothing about it was left behind.
type IngestionError struct {
	Op     string
	ClipID string
	Err    error
}

func (e *IngestionError) Error() string {
	if e.ClipID == "" {
		return fmt.Sprintf("ingest %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("ingest %s %s: %v", e.Op, e.ClipID, e.Err)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

// resultLabel maps an ingest error to its metrics label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrDuplicateClip):
		return "duplicate"
	case errors.Is(err, ErrQueueFull):
		return "queue_full"
	case errors.Is(err, ErrInsufficientSpace):
		return "no_space"
	case errors.Is(err, ErrInvalidClip), errors.Is(err, clip.ErrBadArtifact):
		return "invalid"
	default:
		return "error"
	}
}
