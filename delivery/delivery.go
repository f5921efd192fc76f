// Package delivery puts finished text into the application the user was
// working in: clipboard, focus restore, synthetic paste.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.aimuz.me/voxtype/clipboard"
)

var (
	// ErrClipboard is returned when the clipboard could not be set after all retries.
	ErrClipboard = errors.New("clipboard unavailable")
	// ErrWindowGone is returned by Focus.Activate for a window that no longer exists.
	ErrWindowGone = errors.New("window no longer exists")
)

// FocusHandle identifies a top-level window. Empty means unknown.
type FocusHandle string

// Focus queries and changes the active window.
type Focus interface {
	Current(ctx context.Context) (FocusHandle, error)
	Activate(ctx context.Context, h FocusHandle) error
}

// Paster injects the paste shortcut.
type Paster interface {
	Paste() error
}

// Config bounds the retry and polling loops.
type Config struct {
	ClipboardRetries  int
	ClipboardBackoff  time.Duration
	FocusPolls        int
	FocusPollInterval time.Duration
	FocusSettle       time.Duration
}

// DefaultConfig returns the default delivery timings.
func DefaultConfig() Config {
	return Config{
		ClipboardRetries:  10,
		ClipboardBackoff:  50 * time.Millisecond,
		FocusPolls:        50,
		FocusPollInterval: 10 * time.Millisecond,
		FocusSettle:       50 * time.Millisecond,
	}
}

// Deliverer implements output delivery.
type Deliverer struct {
	clip  clipboard.Clipboard
	focus Focus // may be nil where focus cannot be controlled
	keys  Paster
	cfg   Config
}

// New creates a Deliverer.
func New(clip clipboard.Clipboard, focus Focus, keys Paster, cfg Config) *Deliverer {
	if cfg.ClipboardRetries <= 0 {
		cfg.ClipboardRetries = 1
	}
	return &Deliverer{clip: clip, focus: focus, keys: keys, cfg: cfg}
}

// CurrentFocus returns the active window, or "" when it cannot be queried.
func (d *Deliverer) CurrentFocus(ctx context.Context) FocusHandle {
	if d.focus == nil {
		return ""
	}
	h, err := d.focus.Current(ctx)
	if err != nil {
		slog.Debug("query focused window", "error", err)
		return ""
	}
	return h
}

// Deliver puts text on the clipboard, returns focus to origin when it is
// still a valid window, and pastes. It never panics; every failure comes
// back as an error.
func (d *Deliverer) Deliver(ctx context.Context, text string, origin FocusHandle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("delivery panic", "panic", r)
			err = fmt.Errorf("deliver text: %v", r)
		}
	}()

	if err := d.setClipboard(ctx, text); err != nil {
		return err
	}
	d.restoreFocus(ctx, origin)
	if err := wait(ctx, d.cfg.FocusSettle); err != nil {
		return err
	}
	if err := d.keys.Paste(); err != nil {
		return fmt.Errorf("inject paste: %w", err)
	}
	slog.Info("text delivered", "chars", len([]rune(text)))
	return nil
}

// setClipboard writes text and reads it back until they match.
func (d *Deliverer) setClipboard(ctx context.Context, text string) error {
	var lastErr error
	for attempt := range d.cfg.ClipboardRetries {
		if attempt > 0 {
			if err := wait(ctx, d.cfg.ClipboardBackoff); err != nil {
				return err
			}
		}
		if err := d.clip.WriteText(text); err != nil {
			lastErr = err
			continue
		}
		got, err := d.clip.ReadText()
		if err != nil {
			lastErr = err
			continue
		}
		if got == text {
			return nil
		}
		lastErr = errors.New("clipboard content changed")
	}
	slog.Warn("set clipboard failed", "attempts", d.cfg.ClipboardRetries, "error", lastErr)
	return fmt.Errorf("%w: %v", ErrClipboard, lastErr)
}

func (d *Deliverer) restoreFocus(ctx context.Context, origin FocusHandle) {
	if d.focus == nil || origin == "" {
		return
	}
	if cur, err := d.focus.Current(ctx); err == nil && cur == origin {
		return
	}
	if err := d.focus.Activate(ctx, origin); err != nil {
		slog.Debug("activate origin window", "window", origin, "error", err)
		return
	}
	for range d.cfg.FocusPolls {
		if cur, err := d.focus.Current(ctx); err == nil && cur == origin {
			return
		}
		if wait(ctx, d.cfg.FocusPollInterval) != nil {
			return
		}
	}
	slog.Debug("focus did not transfer", "window", origin)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
