// Package stt provides the speech-to-text backend contract and its
// implementations: an OpenAI-compatible remote (user key or cloud proxy) and
// an on-device whisper.cpp runner.
package stt

import (
	"context"
	"errors"
	"sync"

	"go.aimuz.me/voxtype/engine"
	"go.aimuz.me/voxtype/internal/types"
)

var (
	// ErrNotReady is returned when a backend is missing its model or credentials.
	ErrNotReady = errors.New("backend not ready")
	// ErrUnsupported is returned for operations a backend does not offer.
	ErrUnsupported = errors.New("operation not supported by backend")
)

// Request is a transcription request over a finished recording.
type Request struct {
	WAV      []byte // 16 kHz mono WAV
	Mode     types.Mode
	Language string // output language code
	// WakeWord, when set, makes the backend return an utterance that opens
	// with it verbatim so it can be matched as a command.
	WakeWord string
	// Instruction is the user's custom mode instruction.
	Instruction string
	Style       types.WritingStyle
}

// Backend transcribes and translates.
type Backend interface {
	// Transcribe returns the formatted text for req.
	Transcribe(ctx context.Context, req Request) (string, error)
	// Translate translates text into the named target language.
	Translate(ctx context.Context, text, targetLanguage string) (*types.Translation, error)
}

// Registry maps router selections to backends. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	backends map[engine.Selection]Backend
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[engine.Selection]Backend)}
}

// Register sets the backend for sel, replacing any previous one. A nil
// backend removes the entry.
func (r *Registry) Register(sel engine.Selection, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b == nil {
		delete(r.backends, sel)
		return
	}
	r.backends[sel] = b
}

// Get returns the backend for sel.
func (r *Registry) Get(sel engine.Selection) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[sel]
	return b, ok
}
