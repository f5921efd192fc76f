package audiocapture

import (
	"math"
	"sync/atomic"
)

const (
	// SpeechThreshold is the chunk RMS above which speech is considered detected.
	SpeechThreshold = 0.02

	levelDecay = 0.6
	levelGain  = 0.4
)

// Meter is an exponentially smoothed loudness estimate.
// Update is called from the device callback, readers may be anywhere.
type Meter struct {
	level  atomic.Uint64 // float64 bits
	speech atomic.Bool
}

// Update folds one chunk's RMS into the level.
func (m *Meter) Update(rms float64) {
	prev := math.Float64frombits(m.level.Load())
	next := prev*levelDecay + rms*levelGain
	m.level.Store(math.Float64bits(math.Min(next, 1)))
	if rms > SpeechThreshold {
		m.speech.Store(true)
	}
}

// Level returns the smoothed level in [0, 1].
func (m *Meter) Level() float64 {
	return math.Float64frombits(m.level.Load())
}

// SpeechDetected reports whether any update exceeded SpeechThreshold.
func (m *Meter) SpeechDetected() bool {
	return m.speech.Load()
}

// Reset clears level and speech state.
func (m *Meter) Reset() {
	m.level.Store(0)
	m.speech.Store(false)
}

func rmsFloat32(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func rmsInt16(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
