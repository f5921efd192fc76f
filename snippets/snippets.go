// Package snippets expands spoken trigger phrases into stored text.
package snippets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// FileName is the snippets file name inside the data directory.
const FileName = "snippets.toml"

// Snippet replaces Trigger with Replacement when enabled.
type Snippet struct {
	ID          string `toml:"id"`
	Trigger     string `toml:"trigger"`
	Replacement string `toml:"replacement"`
	Enabled     bool   `toml:"enabled"`
}

type document struct {
	Snippets []Snippet `toml:"snippet"`
}

// Expand replaces every case-insensitive occurrence of each enabled
// snippet's trigger, in order.
func Expand(text string, snippets []Snippet) string {
	for _, s := range snippets {
		if !s.Enabled || s.Trigger == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(s.Trigger))
		if err != nil {
			continue
		}
		text = re.ReplaceAllLiteralString(text, s.Replacement)
	}
	return text
}

// Store is a snippets file kept in memory. It is safe for concurrent use.
type Store struct {
	path string

	mu       sync.RWMutex
	snippets []Snippet
	onChange func()
}

// Open loads the snippets file at path. A missing file is an empty store.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the file.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.mu.Lock()
		s.snippets = nil
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snippets: %w", err)
	}

	var doc document
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return fmt.Errorf("parse snippets: %w", err)
	}

	s.mu.Lock()
	s.snippets = doc.Snippets
	cb := s.onChange
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

// OnChange registers a callback invoked after every successful reload.
func (s *Store) OnChange(cb func()) {
	s.mu.Lock()
	s.onChange = cb
	s.mu.Unlock()
}

// List returns a copy of all snippets.
func (s *Store) List() []Snippet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.snippets)
}

// Expand applies the stored snippets to text.
func (s *Store) Expand(text string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Expand(text, s.snippets)
}

// Add appends an enabled snippet and saves.
func (s *Store) Add(trigger, replacement string) (Snippet, error) {
	if trigger == "" {
		return Snippet{}, errors.New("trigger is required")
	}
	sn := Snippet{ID: uuid.NewString(), Trigger: trigger, Replacement: replacement, Enabled: true}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snippets = append(s.snippets, sn)
	return sn, s.saveLocked()
}

// Remove deletes the snippet with id and saves.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snippets = slices.DeleteFunc(s.snippets, func(sn Snippet) bool { return sn.ID == id })
	return s.saveLocked()
}

// SetEnabled enables or disables the snippet with id and saves.
func (s *Store) SetEnabled(id string, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.snippets, func(sn Snippet) bool { return sn.ID == id })
	if i < 0 {
		return fmt.Errorf("snippet %s not found", id)
	}
	s.snippets[i].Enabled = on
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(document{Snippets: s.snippets}); err != nil {
		return fmt.Errorf("encode snippets: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create snippets dir: %w", err)
	}
	if err := os.WriteFile(s.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write snippets: %w", err)
	}
	return nil
}

// Watch reloads the store whenever the file changes, until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		watcher.Close()
		return fmt.Errorf("create snippets dir: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	go s.watchLoop(ctx, watcher)
	return nil
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, func() {
				if err := s.Reload(); err != nil {
					slog.Warn("reload snippets", "error", err)
					return
				}
				slog.Info("snippets reloaded", "count", len(s.List()))
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("snippets watcher", "error", err)
		}
	}
}
