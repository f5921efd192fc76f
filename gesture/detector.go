// Package gesture turns a raw system-wide key stream into hold-to-talk and
// single-shot gestures.
//
// Hold-to-talk is Ctrl+Space: pressing both starts a hold, releasing either
// ends it. Ctrl+Shift+R is a single-shot trigger. Space is swallowed while a
// hold is active so no stray characters reach the focused application.
package gesture

import (
	"errors"
	"sync"
)

// ErrAlreadyInstalled is returned when installing an interceptor twice.
var ErrAlreadyInstalled = errors.New("key interceptor already installed")

// Key identifies the keys the detector cares about.
type Key int

const (
	KeyOther Key = iota
	KeyCtrl
	KeyShift
	KeySpace
	KeyR
)

// KeyEvent is one key transition from the interceptor.
type KeyEvent struct {
	Key  Key
	Down bool
}

// Event is a detected gesture.
type Event int

const (
	HoldStart Event = iota + 1
	HoldStop
	SingleShotTrigger
)

func (e Event) String() string {
	switch e {
	case HoldStart:
		return "hold-start"
	case HoldStop:
		return "hold-stop"
	case SingleShotTrigger:
		return "single-shot"
	default:
		return "unknown"
	}
}

// Interceptor is a process-wide key event source.
// The handler runs on the interceptor's callback context and returns true
// when the event should be suppressed.
type Interceptor interface {
	Install(handler func(KeyEvent) bool) error
	Uninstall() error
}

// Detector tracks modifier state and emits gesture events.
// Emit must not block; it is called from the interceptor callback.
type Detector struct {
	ic   Interceptor
	emit func(Event)

	mu     sync.Mutex
	ctrl   bool
	shift  bool
	space  bool
	active bool
}

// NewDetector creates a detector fed by ic.
func NewDetector(ic Interceptor, emit func(Event)) *Detector {
	return &Detector{ic: ic, emit: emit}
}

// Install attaches the detector to its interceptor.
func (d *Detector) Install() error {
	d.Reset()
	return d.ic.Install(d.Process)
}

// Uninstall detaches the detector and clears any held state.
func (d *Detector) Uninstall() error {
	err := d.ic.Uninstall()
	d.Reset()
	return err
}

// Reinstall detaches the interceptor, if attached, and installs it again.
// It is the recovery path after an installation the OS refused.
func (d *Detector) Reinstall() error {
	if err := d.Uninstall(); err != nil {
		return err
	}
	return d.Install()
}

// Reset clears modifier and hold state without emitting.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.ctrl, d.shift, d.space, d.active = false, false, false, false
	d.mu.Unlock()
}

// Active reports whether a hold is in progress.
func (d *Detector) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Process applies one key transition and reports whether it should be swallowed.
func (d *Detector) Process(ev KeyEvent) bool {
	d.mu.Lock()
	var events []Event
	swallow := d.process(ev, &events)
	d.mu.Unlock()

	for _, e := range events {
		d.emit(e)
	}
	return swallow
}

func (d *Detector) process(ev KeyEvent, out *[]Event) bool {
	switch ev.Key {
	case KeyCtrl:
		d.ctrl = ev.Down
	case KeyShift:
		d.shift = ev.Down
	case KeySpace:
		d.space = ev.Down
	}

	if ev.Key == KeyR && ev.Down && d.ctrl && d.shift {
		*out = append(*out, SingleShotTrigger)
		return true
	}

	combo := d.ctrl && d.space
	switch {
	case combo && !d.active:
		d.active = true
		*out = append(*out, HoldStart)
		if ev.Key == KeySpace && ev.Down {
			return true
		}
	case !combo && d.active:
		d.active = false
		*out = append(*out, HoldStop)
		if ev.Key == KeySpace && !ev.Down {
			return true
		}
	}

	return d.active && ev.Key == KeySpace
}
