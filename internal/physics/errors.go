package physics

import (
	"errors"
	"fmt"
)

var (
	// ErrPlacementExhausted is reported when a body could not be placed
	// within the attempt budget. The body is dropped, the spawn continues.
	ErrPlacementExhausted = errors.New("placement attempts exhausted")

	// ErrShutdown is returned by operations on a simulation after Shutdown.
	ErrShutdown = errors.New("simulation is shut down")

	// ErrNotConfigured is returned before the first successful Configure.
	ErrNotConfigured = errors.New("simulation has no grid, call Configure first")

	// ErrBodyTooLarge is returned for a body wider or taller than the domain.
	ErrBodyTooLarge = errors.New("body does not fit inside the domain")

	// ErrInvalidHandle is returned when a handle does not name a live body.
	ErrInvalidHandle = errors.New("invalid body handle")
)

// ConfigError reports a grid whose cells are too small for the largest body
// radius: the 9-cell neighbourhood can then miss real overlaps. It is logged
// and the simulation keeps running with degraded broad-phase correctness.
type ConfigError struct {
	CellWidth  float32
	CellHeight float32
	MaxRadius  float32
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("circle radius too large for grid: cell %.4gx%.4g < 2*%.4g",
		e.CellWidth, e.CellHeight, e.MaxRadius)
}

// checkCellSize returns a *ConfigError when either cell side is smaller than
// twice maxRadius.
func checkCellSize(cellW, cellH, maxRadius float32) error {
	if cellW < 2*maxRadius || cellH < 2*maxRadius {
		return &ConfigError{CellWidth: cellW, CellHeight: cellH, MaxRadius: maxRadius}
	}
	return nil
}
