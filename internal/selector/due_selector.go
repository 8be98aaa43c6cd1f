// Package selector implements the DueSelector (component H): a thin wrapper
// around VideoRepository.DueAndStamp that records the videos-due metric.
package selector

import (
	"context"
	"fmt"
	"time"

	"github.com/autoreplyd/engine/internal/domain"
	"github.com/autoreplyd/engine/internal/observability"
)

// Selector selects due videos and atomically stamps them as checked.
type Selector struct {
	videos domain.VideoRepository
	now    func() time.Time
}

// New constructs a Selector backed by videos.
func New(videos domain.VideoRepository) *Selector {
	return &Selector{videos: videos, now: time.Now}
}

// SelectDue returns every enabled video whose check interval has elapsed,
// per spec.md §4.H. The underlying query is atomic (FOR UPDATE SKIP LOCKED +
// stamp-on-return), so concurrent callers never receive overlapping sets
// (invariant I5).
func (s *Selector) SelectDue(ctx context.Context) ([]domain.Video, error) {
	videos, err := s.videos.DueAndStamp(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("op=selector.select_due: %w", err)
	}
	observability.VideosDueTotal.Add(float64(len(videos)))
	return videos, nil
}
