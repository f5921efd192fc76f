package clipboard

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/micmonay/keybd_event"
)

// Keyboard injects the copy and paste shortcuts through the OS input queue.
type Keyboard struct {
	once sync.Once
	kb   keybd_event.KeyBonding
	err  error

	mu sync.Mutex
}

func (k *Keyboard) init() {
	k.kb, k.err = keybd_event.NewKeyBonding()
	if k.err == nil && runtime.GOOS == "linux" {
		// uinput needs a moment before the virtual device accepts events.
		time.Sleep(2 * time.Second)
	}
}

// Prepare creates the virtual keyboard ahead of the first shortcut.
func (k *Keyboard) Prepare() error {
	k.once.Do(k.init)
	return k.err
}

// Copy sends Ctrl+C (Cmd+C on macOS).
func (k *Keyboard) Copy() error { return k.shortcut(keybd_event.VK_C) }

// Paste sends Ctrl+V (Cmd+V on macOS).
func (k *Keyboard) Paste() error { return k.shortcut(keybd_event.VK_V) }

func (k *Keyboard) shortcut(key int) error {
	if err := k.Prepare(); err != nil {
		return fmt.Errorf("create key bonding: %w", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.kb.Clear()
	if runtime.GOOS == "darwin" {
		k.kb.HasSuper(true)
	} else {
		k.kb.HasCTRL(true)
	}
	k.kb.SetKeys(key)
	if err := k.kb.Launching(); err != nil {
		return fmt.Errorf("send shortcut: %w", err)
	}
	return nil
}
