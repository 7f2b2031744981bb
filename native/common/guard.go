package common

import (
	"errors"
	"fmt"
)

// ErrModulePaused is returned when an action is attempted while its scope is
// paused.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether an action is currently paused.
type PauseView interface {
	IsPaused(action string) bool
}

// Guard fails with ErrModulePaused when any of the views pauses the action.
// Nil views are skipped.
func Guard(action string, views ...PauseView) error {
	if action == "" {
		return nil
	}
	for _, v := range views {
		if v == nil {
			continue
		}
		if v.IsPaused(action) {
			return fmt.Errorf("%w: %s", ErrModulePaused, action)
		}
	}
	return nil
}
