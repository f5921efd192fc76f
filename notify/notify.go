// Package notify shows desktop notifications and plays sound cues.
package notify

import (
	"log/slog"
	"sync/atomic"

	"github.com/gen2brain/beeep"
)

const appName = "VoxType"

// Cue is a short sound played at a pipeline milestone.
type Cue int

const (
	CueStart Cue = iota
	CueStop
	CueSuccess
	CueError
)

// tone is frequency (Hz) and duration (ms).
var tones = map[Cue][2]int{
	CueStart:   {880, 60},
	CueStop:    {660, 60},
	CueSuccess: {1046, 80},
	CueError:   {220, 200},
}

// Notifier sends notifications and sound cues. Both can be toggled at runtime.
type Notifier struct {
	notifications atomic.Bool
	sounds        atomic.Bool

	notify func(title, message, icon string) error
	beep   func(freq float64, duration int) error
}

// New creates a Notifier.
func New(notifications, sounds bool) *Notifier {
	n := &Notifier{notify: beeep.Notify, beep: beeep.Beep}
	n.notifications.Store(notifications)
	n.sounds.Store(sounds)
	return n
}

// SetNotifications toggles desktop notifications.
func (n *Notifier) SetNotifications(on bool) { n.notifications.Store(on) }

// SetSounds toggles sound cues.
func (n *Notifier) SetSounds(on bool) { n.sounds.Store(on) }

// Info shows an informational notification.
func (n *Notifier) Info(msg string) { n.show("", msg) }

// Error shows an error notification.
func (n *Notifier) Error(msg string) { n.show("Error", msg) }

// Play plays a sound cue. It does not block the caller.
func (n *Notifier) Play(c Cue) {
	if !n.sounds.Load() {
		return
	}
	tone, ok := tones[c]
	if !ok {
		return
	}
	go func() {
		if err := n.beep(float64(tone[0]), tone[1]); err != nil {
			slog.Debug("play sound cue", "error", err)
		}
	}()
}

func (n *Notifier) show(title, message string) {
	if !n.notifications.Load() {
		return
	}
	if r := []rune(message); len(r) > 100 {
		message = string(r[:100]) + "..."
	}
	t := appName
	if title != "" {
		t += ": " + title
	}
	if err := n.notify(t, message, ""); err != nil {
		slog.Debug("show notification", "error", err)
	}
}
