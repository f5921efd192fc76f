// Package clipboard reads and writes the system clipboard and snapshots the
// text currently selected in the focused application.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
)

// ErrNoSelection is returned when no text is selected.
var ErrNoSelection = errors.New("no text selected")

// Clipboard is a text clipboard.
type Clipboard interface {
	ReadText() (string, error)
	WriteText(text string) error
}

// System is the OS clipboard.
type System struct {
	mu sync.Mutex
}

// ReadText returns the clipboard's text content.
func (s *System) ReadText() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clipboard.ReadAll()
}

// WriteText replaces the clipboard content with text.
func (s *System) WriteText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clipboard.WriteAll(text)
}

// Copier sends the platform copy shortcut to the focused application.
type Copier interface {
	Copy() error
}

// Selection snapshots the selected text by driving the copy shortcut and
// reading it back from the clipboard. The user's clipboard is restored
// afterwards.
type Selection struct {
	Clipboard Clipboard
	Copier    Copier

	// ClearDelay is how long to wait after clearing before copying.
	ClearDelay time.Duration
	// CopyDelay is how long the target application gets to fill the clipboard.
	CopyDelay time.Duration
}

// NewSelection creates a Selection with the default delays.
func NewSelection(cb Clipboard, c Copier) *Selection {
	return &Selection{
		Clipboard:  cb,
		Copier:     c,
		ClearDelay: 50 * time.Millisecond,
		CopyDelay:  200 * time.Millisecond,
	}
}

// Snapshot returns the currently selected text, or ErrNoSelection.
func (s *Selection) Snapshot(ctx context.Context) (string, error) {
	saved, err := s.Clipboard.ReadText()
	if err != nil {
		slog.Debug("read clipboard before snapshot", "error", err)
		saved = ""
	}
	defer func() {
		if err := s.Clipboard.WriteText(saved); err != nil {
			slog.Warn("restore clipboard", "error", err)
		}
	}()

	if err := s.Clipboard.WriteText(""); err != nil {
		return "", fmt.Errorf("clear clipboard: %w", err)
	}
	if err := sleep(ctx, s.ClearDelay); err != nil {
		return "", err
	}
	if err := s.Copier.Copy(); err != nil {
		return "", fmt.Errorf("send copy: %w", err)
	}
	if err := sleep(ctx, s.CopyDelay); err != nil {
		return "", err
	}

	text, err := s.Clipboard.ReadText()
	if err != nil {
		return "", fmt.Errorf("read selection: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoSelection
	}
	return text, nil
}

func sleep(ctx context.Context, d time.Duration) error {
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
