package stt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"

	"go.aimuz.me/voxtype/internal/types"
)

// WhisperLocal transcribes on device with the whisper.cpp CLI.
type WhisperLocal struct {
	modelPath string
	modelSize string // "tiny", "base", "small", "medium", "large"
	binPath   string

	mu            sync.RWMutex
	ready         bool
	setupProgress int
}

// WhisperLocalConfig holds configuration for WhisperLocal.
type WhisperLocalConfig struct {
	ModelSize string // "tiny", "base", "small", "medium", "large"
	ModelDir  string // directory holding ggml models
	BinPath   string // whisper.cpp binary; searched on PATH when empty
}

// Model sizes and their approximate download sizes.
var modelSizes = map[string]struct {
	URL  string
	Size int64
}{
	"tiny":   {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny.bin", 75 * 1024 * 1024},
	"base":   {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.bin", 142 * 1024 * 1024},
	"small":  {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small.bin", 466 * 1024 * 1024},
	"medium": {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-medium.bin", 1500 * 1024 * 1024},
	"large":  {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-large-v3.bin", 3000 * 1024 * 1024},
}

// NewWhisperLocal creates a WhisperLocal backend.
func NewWhisperLocal(cfg WhisperLocalConfig) (*WhisperLocal, error) {
	if cfg.ModelSize == "" {
		cfg.ModelSize = "base"
	}
	if _, ok := modelSizes[cfg.ModelSize]; !ok {
		return nil, fmt.Errorf("invalid model size: %s", cfg.ModelSize)
	}
	if cfg.ModelDir == "" {
		return nil, fmt.Errorf("model dir required")
	}

	w := &WhisperLocal{
		modelSize:     cfg.ModelSize,
		modelPath:     filepath.Join(cfg.ModelDir, fmt.Sprintf("ggml-%s.bin", cfg.ModelSize)),
		binPath:       cfg.BinPath,
		setupProgress: -1,
	}
	if w.binPath == "" {
		w.binPath = findWhisperBinary()
	}
	if _, err := os.Stat(w.modelPath); err == nil && w.binPath != "" {
		w.ready = true
		w.setupProgress = 100
	}
	return w, nil
}

// ModelPath returns where the model file lives.
func (w *WhisperLocal) ModelPath() string { return w.modelPath }

// HasBinary reports whether a whisper.cpp binary was found.
func (w *WhisperLocal) HasBinary() bool { return w.binPath != "" }

// IsReady reports whether both binary and model are present.
func (w *WhisperLocal) IsReady() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ready
}

// SetupProgress returns the model download progress (0-100), -1 if not started.
func (w *WhisperLocal) SetupProgress() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.setupProgress
}

// Setup downloads the model if needed.
func (w *WhisperLocal) Setup(ctx context.Context, progress func(percent int)) error {
	if _, err := os.Stat(w.modelPath); err == nil {
		w.mu.Lock()
		w.ready = w.binPath != ""
		w.setupProgress = 100
		w.mu.Unlock()
		return nil
	}

	info := modelSizes[w.modelSize]
	if err := os.MkdirAll(filepath.Dir(w.modelPath), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	w.mu.Lock()
	w.setupProgress = 0
	w.mu.Unlock()

	if err := w.downloadModel(ctx, info.URL, info.Size, progress); err != nil {
		return fmt.Errorf("download model: %w", err)
	}

	w.mu.Lock()
	w.ready = w.binPath != ""
	w.setupProgress = 100
	w.mu.Unlock()
	if progress != nil {
		progress(100)
	}
	return nil
}

func (w *WhisperLocal) downloadModel(ctx context.Context, url string, expectedSize int64, progress func(percent int)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http status: %d", resp.StatusCode)
	}
	if resp.ContentLength > 0 {
		expectedSize = resp.ContentLength
	}

	tmpPath := w.modelPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath)
	}()

	pw := &progressWriter{total: expectedSize, report: func(pct int) {
		w.mu.Lock()
		w.setupProgress = pct
		w.mu.Unlock()
		if progress != nil {
			progress(pct)
		}
	}}
	if _, err := io.Copy(io.MultiWriter(f, pw), resp.Body); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmpPath, w.modelPath); err != nil {
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

type progressWriter struct {
	total, done int64
	last        int
	report      func(int)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.done += int64(len(b))
	if p.total > 0 {
		if pct := int(min(p.done*100/p.total, 99)); pct > p.last {
			p.last = pct
			p.report(pct)
		}
	}
	return len(b), nil
}

// Transcribe implements Backend. On device, the mode only affects the
// language hint; formatting needs a cloud route.
func (w *WhisperLocal) Transcribe(ctx context.Context, req Request) (string, error) {
	if !w.IsReady() {
		return "", ErrNotReady
	}

	audioPath := filepath.Join(os.TempDir(), "voxtype_"+uuid.NewString()+".wav")
	if err := os.WriteFile(audioPath, req.WAV, 0o600); err != nil {
		return "", fmt.Errorf("write audio file: %w", err)
	}
	defer os.Remove(audioPath)

	args := []string{
		"-m", w.modelPath,
		"-f", audioPath,
		"-nt", // no timestamps
		"-np", // no prints
	}
	if req.Language != "" {
		args = append(args, "-l", req.Language)
	}

	cmd := exec.CommandContext(ctx, w.binPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("whisper.cpp failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return joinLines(stdout.String()), nil
}

// Translate implements Backend; translation needs a cloud route.
func (w *WhisperLocal) Translate(context.Context, string, string) (*types.Translation, error) {
	return nil, ErrUnsupported
}

// joinLines folds whisper.cpp's per-segment lines into one paragraph.
func joinLines(out string) string {
	var parts []string
	for line := range strings.Lines(out) {
		if line = strings.TrimSpace(line); line != "" && line != "[BLANK_AUDIO]" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}

func findWhisperBinary() string {
	names := []string{"whisper-cli", "whisper-cpp", "whisper"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	homeDir, _ := os.UserHomeDir()
	locations := []string{
		"/usr/local/bin",
		filepath.Join(homeDir, ".local", "bin"),
		filepath.Join(homeDir, "whisper.cpp", "build", "bin"),
	}
	if runtime.GOOS == "darwin" {
		locations = append(locations, "/opt/homebrew/bin")
	}
	for _, loc := range locations {
		for _, name := range names {
			path := filepath.Join(loc, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
