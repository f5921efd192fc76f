package app

import (
	"log/slog"

	"go.aimuz.me/voxtype/internal/types"
)

const hookUnavailable = "Global shortcuts are unavailable. Allow keyboard access for VoxType, then choose Reinstall Shortcuts."

// installHook runs install and reports a refused installation as a status.
// The rest of the app keeps working without the hook.
func installHook(install func() error, report func(types.Status)) error {
	if err := install(); err != nil {
		slog.Warn("install key hook", "error", err)
		report(types.Status{Source: "app", Message: hookUnavailable, Error: true})
		return err
	}
	return nil
}
