package tiler

import (
	"errors"
	"fmt"
)

// ErrTileOutsideBounds is the sentinel wrapped by OutsideBoundsError.
// Callers treat it as "no tile here", distinct from genuine failures.
var ErrTileOutsideBounds = errors.New("tile is outside scene bounds")

// OutsideBoundsError reports a tile whose footprint does not intersect
// the scene footprint.
type OutsideBoundsError struct {
	SceneID string
	X, Y, Z uint32
}

func (e *OutsideBoundsError) Error() string {
	return fmt.Sprintf("tile %d/%d/%d is outside bounds of scene %s", e.Z, e.X, e.Y, e.SceneID)
}

func (e *OutsideBoundsError) Unwrap() error { return ErrTileOutsideBounds }
