package depression

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig marks configuration errors rejected before any
	// computation: bad parameters or an unusable input grid.
	ErrInvalidConfig = errors.New("depression: invalid configuration")
	// ErrInconsistent marks a broken invariant detected during computation.
	ErrInconsistent = errors.New("depression: consistency violation")
)

func configErrorf(stage, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, stage, fmt.Sprintf(format, args...))
}

func inconsistentf(stage, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s: %s", ErrInconsistent, stage, fmt.Sprintf(format, args...))
}

// gridError tags a raster validation failure with the stage that hit it.
func gridError(stage string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, stage, err)
}
