// Package audiocapture records microphone audio for dictation.
//
// A Session owns at most one open input stream. Samples arrive on the
// device's callback goroutine, are appended to an in-memory buffer and feed
// a smoothed loudness meter. Stop flushes the stream and persists the
// recording as a WAV file before returning.
package audiocapture

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotRecording is returned by Stop when no session is active.
var ErrNotRecording = errors.New("not recording")

// ErrNoAudio is returned by Stop when the stream delivered no samples.
var ErrNoAudio = errors.New("no audio recorded")

// ModelSampleRate is the sample rate speech models expect.
const ModelSampleRate = 16000

// Chunk is one buffer delivered by a device. Exactly one of Float or Int is
// set; Float samples are in [-1, 1].
type Chunk struct {
	Float []float32
	Int   []int16
}

// Format describes the layout of a stream's samples.
type Format struct {
	SampleRate int
	Channels   int
}

// Device opens capture streams.
type Device interface {
	Open(deviceID string, onChunk func(Chunk)) (Stream, error)
}

// Stream is an open capture stream.
type Stream interface {
	Format() Format
	Start() error
	// Stop halts capture and returns after the final onChunk call has returned.
	Stop() error
	Close() error
}

// Config holds configuration for a capture session.
type Config struct {
	Dir       string // where recordings are persisted; empty disables persistence
	KeepFiles int    // how many recent WAV files to keep in Dir, default 5
}

// DefaultConfig returns the default capture configuration.
func DefaultConfig() Config {
	return Config{
		Dir:       filepath.Join(os.TempDir(), "voxtype"),
		KeepFiles: 5,
	}
}

// Session records from a Device.
type Session struct {
	dev Device
	cfg Config

	mu      sync.Mutex
	stream  Stream
	format  Format
	started time.Time

	bufMu   sync.Mutex
	samples []float32

	meter Meter
	last  *Recording
}

// NewSession creates a capture session on dev.
func NewSession(dev Device, cfg Config) *Session {
	if cfg.KeepFiles == 0 {
		cfg.KeepFiles = 5
	}
	return &Session{dev: dev, cfg: cfg}
}

// Start opens deviceID (empty for the system default) and begins recording.
// Any session already running is stopped and discarded first.
func (s *Session) Start(deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		slog.Warn("capture already running, restarting")
		if _, err := s.stopLocked(); err != nil && !errors.Is(err, ErrNoAudio) {
			slog.Warn("stop previous capture", "error", err)
		}
	}

	s.bufMu.Lock()
	s.samples = s.samples[:0]
	s.bufMu.Unlock()
	s.meter.Reset()

	stream, err := s.dev.Open(deviceID, s.handleChunk)
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("start stream: %w", err)
	}

	s.stream = stream
	s.format = stream.Format()
	s.started = time.Now()
	slog.Info("capture started", "device", deviceID, "rate", s.format.SampleRate, "channels", s.format.Channels)
	return nil
}

// Stop ends the session and returns the finalized recording.
// The returned recording contains every sample delivered before Stop.
func (s *Session) Stop() (*Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Session) stopLocked() (*Recording, error) {
	if s.stream == nil {
		return nil, ErrNotRecording
	}

	stream := s.stream
	s.stream = nil

	if err := stream.Stop(); err != nil {
		slog.Warn("stop stream", "error", err)
	}
	if err := stream.Close(); err != nil {
		slog.Warn("close stream", "error", err)
	}

	s.bufMu.Lock()
	samples := make([]float32, len(s.samples))
	copy(samples, s.samples)
	s.bufMu.Unlock()

	rec := &Recording{
		Samples:        samples,
		Format:         s.format,
		Duration:       time.Since(s.started),
		SpeechDetected: s.meter.SpeechDetected(),
	}
	s.last = rec

	if len(samples) == 0 {
		return rec, ErrNoAudio
	}

	if s.cfg.Dir != "" {
		path, err := s.persist(rec)
		if err != nil {
			slog.Warn("persist recording", "error", err)
		} else {
			rec.Path = path
		}
	}

	slog.Info("capture stopped", "samples", len(samples), "duration", rec.Duration.Round(time.Millisecond))
	return rec, nil
}

func (s *Session) persist(rec *Recording) (string, error) {
	if err := os.MkdirAll(s.cfg.Dir, 0755); err != nil {
		return "", fmt.Errorf("create capture dir: %w", err)
	}

	data, err := EncodeWAV(rec.Samples, rec.Format)
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.cfg.Dir, fmt.Sprintf("capture_%d_%s.wav", time.Now().UnixMilli(), uuid.NewString()[:8]))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write wav: %w", err)
	}

	pruneCaptures(s.cfg.Dir, s.cfg.KeepFiles)
	return path, nil
}

// handleChunk runs on the device callback goroutine.
func (s *Session) handleChunk(c Chunk) {
	var rms float64
	s.bufMu.Lock()
	if c.Float != nil {
		s.samples = append(s.samples, c.Float...)
		rms = rmsFloat32(c.Float)
	} else {
		for _, v := range c.Int {
			s.samples = append(s.samples, float32(v)/32768)
		}
		rms = rmsInt16(c.Int)
	}
	s.bufMu.Unlock()

	s.meter.Update(rms)
}

// Active reports whether a stream is open.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

// Level returns the smoothed 0-1 input level.
func (s *Session) Level() float64 { return s.meter.Level() }

// SpeechDetected reports whether any chunk exceeded the speech threshold.
func (s *Session) SpeechDetected() bool { return s.meter.SpeechDetected() }

// RecordedSamples returns the samples of the last finalized recording.
func (s *Session) RecordedSamples() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	return s.last.Samples
}

// Recording is a finalized capture.
type Recording struct {
	Samples        []float32 // interleaved, normalized to [-1, 1]
	Format         Format
	Duration       time.Duration
	SpeechDetected bool
	Path           string // persisted WAV, empty if persistence failed or is disabled
}

// Empty reports whether the recording holds no samples.
func (r *Recording) Empty() bool { return r == nil || len(r.Samples) == 0 }

// Resampled returns the recording as mono float32 at ModelSampleRate.
func (r *Recording) Resampled() []float32 {
	mono := Downmix(r.Samples, r.Format.Channels)
	return Resample(mono, r.Format.SampleRate, ModelSampleRate)
}

// ModelWAV encodes the resampled recording as a 16 kHz mono WAV.
func (r *Recording) ModelWAV() ([]byte, error) {
	return EncodeWAV(r.Resampled(), Format{SampleRate: ModelSampleRate, Channels: 1})
}
