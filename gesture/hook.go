package gesture

import (
	"fmt"
	"log/slog"
	"sync"

	hook "github.com/robotn/gohook"
)

// HookInterceptor feeds the detector from gohook's global keyboard hook.
//
// gohook observes events but cannot suppress them, so swallow decisions are
// logged at debug level and otherwise dropped.
type HookInterceptor struct {
	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewHookInterceptor creates an uninstalled interceptor.
func NewHookInterceptor() *HookInterceptor {
	return &HookInterceptor{}
}

// Install starts the hook and forwards key transitions to handler.
func (h *HookInterceptor) Install(handler func(KeyEvent) bool) (err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrAlreadyInstalled
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("start keyboard hook: %v", r)
		}
	}()

	events := hook.Start()
	h.stop = make(chan struct{})
	h.done = make(chan struct{})
	h.running = true

	go h.loop(events, handler, h.stop, h.done)
	slog.Info("keyboard hook installed")
	return nil
}

// Uninstall stops the hook. It is safe to call when not installed.
func (h *HookInterceptor) Uninstall() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return nil
	}

	close(h.stop)
	hook.End()
	<-h.done
	h.running = false
	slog.Info("keyboard hook removed")
	return nil
}

func (h *HookInterceptor) loop(events chan hook.Event, handler func(KeyEvent) bool, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			ke, ok := translate(ev)
			if !ok {
				continue
			}
			if handler(ke) {
				slog.Debug("key would be swallowed", "key", ke.Key, "down", ke.Down)
			}
		}
	}
}

var (
	ctrlCodes  = codes("ctrl", "rctrl", "lctrl")
	shiftCodes = codes("shift", "rshift", "lshift")
	spaceCodes = codes("space")
	rCodes     = codes("r")
)

func codes(names ...string) map[uint16]bool {
	m := make(map[uint16]bool, len(names))
	for _, n := range names {
		if c, ok := hook.Keycode[n]; ok && c != 0 {
			m[c] = true
		}
	}
	return m
}

// translate maps a gohook event to a KeyEvent. gohook reports a physical
// press as KeyHold and a release as KeyUp; KeyDown is the typed character.
func translate(ev hook.Event) (KeyEvent, bool) {
	var down bool
	switch ev.Kind {
	case hook.KeyHold:
		down = true
	case hook.KeyUp:
		down = false
	default:
		return KeyEvent{}, false
	}

	var key Key
	switch {
	case ctrlCodes[ev.Keycode]:
		key = KeyCtrl
	case shiftCodes[ev.Keycode]:
		key = KeyShift
	case spaceCodes[ev.Keycode]:
		key = KeySpace
	case rCodes[ev.Keycode]:
		key = KeyR
	default:
		key = KeyOther
	}
	return KeyEvent{Key: key, Down: down}, true
}
