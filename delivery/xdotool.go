package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Xdotool controls X11 window focus through the xdotool command.
type Xdotool struct {
	Path string // defaults to "xdotool" on PATH
}

// NewXdotool returns an Xdotool when the binary is installed.
func NewXdotool() (*Xdotool, bool) {
	path, err := exec.LookPath("xdotool")
	if err != nil {
		return nil, false
	}
	return &Xdotool{Path: path}, true
}

func (x *Xdotool) run(ctx context.Context, args ...string) (string, error) {
	path := x.Path
	if path == "" {
		path = "xdotool"
	}
	cmd := exec.CommandContext(ctx, path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("xdotool %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(string(out)), nil
}

// Current implements Focus.
func (x *Xdotool) Current(ctx context.Context) (FocusHandle, error) {
	id, err := x.run(ctx, "getactivewindow")
	if err != nil {
		return "", err
	}
	return FocusHandle(id), nil
}

// Activate implements Focus.
func (x *Xdotool) Activate(ctx context.Context, h FocusHandle) error {
	if _, err := x.run(ctx, "getwindowname", string(h)); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return ErrWindowGone
		}
		return err
	}
	_, err := x.run(ctx, "windowactivate", string(h))
	return err
}
