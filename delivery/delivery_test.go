package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyClipboard fails the first failures writes, or loses the content to
// another process on read-back.
type flakyClipboard struct {
	mu       sync.Mutex
	text     string
	failures int
	stolen   int
	writes   int
}

func (c *flakyClipboard) WriteText(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	if c.failures > 0 {
		c.failures--
		return errors.New("clipboard locked by another process")
	}
	c.text = s
	return nil
}

func (c *flakyClipboard) ReadText() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stolen > 0 {
		c.stolen--
		c.text = "other app"
	}
	return c.text, nil
}

type fakeFocus struct {
	current   FocusHandle
	gone      map[FocusHandle]bool
	lag       int // polls before activation takes effect
	pending   FocusHandle
	activated []FocusHandle
}

func (f *fakeFocus) Current(context.Context) (FocusHandle, error) {
	if f.pending != "" {
		if f.lag == 0 {
			f.current, f.pending = f.pending, ""
		} else {
			f.lag--
		}
	}
	return f.current, nil
}

func (f *fakeFocus) Activate(_ context.Context, h FocusHandle) error {
	if f.gone[h] {
		return ErrWindowGone
	}
	f.activated = append(f.activated, h)
	f.pending = h
	return nil
}

type fakeKeys struct {
	pastes int
	err    error
	panics bool
}

func (k *fakeKeys) Paste() error {
	if k.panics {
		panic("uinput exploded")
	}
	k.pastes++
	return k.err
}

func testConfig() Config {
	return Config{ClipboardRetries: 10, FocusPolls: 50}
}

func TestDeliver(t *testing.T) {
	clip := &flakyClipboard{}
	focus := &fakeFocus{current: "hud", lag: 3}
	keys := &fakeKeys{}
	d := New(clip, focus, keys, testConfig())

	require.NoError(t, d.Deliver(context.Background(), "hello world", "editor"))

	assert.Equal(t, "hello world", clip.text)
	assert.Equal(t, []FocusHandle{"editor"}, focus.activated)
	assert.Equal(t, FocusHandle("editor"), focus.current)
	assert.Equal(t, 1, keys.pastes)
}

func TestDeliverClipboardRetries(t *testing.T) {
	tests := []struct {
		name      string
		clip      *flakyClipboard
		wantErr   bool
		wantPaste int
	}{
		{"transient lock", &flakyClipboard{failures: 3}, false, 1},
		{"content stolen once", &flakyClipboard{stolen: 1}, false, 1},
		{"locked forever", &flakyClipboard{failures: 100}, true, 0},
		{"always stolen", &flakyClipboard{stolen: 100}, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := &fakeKeys{}
			d := New(tt.clip, nil, keys, testConfig())
			err := d.Deliver(context.Background(), "text", "")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrClipboard)
				assert.Equal(t, 10, tt.clip.writes, "bounded retries")
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantPaste, keys.pastes)
		})
	}
}

func TestDeliverOriginGone(t *testing.T) {
	focus := &fakeFocus{current: "hud", gone: map[FocusHandle]bool{"closed": true}}
	keys := &fakeKeys{}
	d := New(&flakyClipboard{}, focus, keys, testConfig())

	require.NoError(t, d.Deliver(context.Background(), "text", "closed"))
	assert.Empty(t, focus.activated)
	assert.Equal(t, 1, keys.pastes, "still pastes into whatever has focus")
}

func TestDeliverOriginAlreadyFocused(t *testing.T) {
	focus := &fakeFocus{current: "editor"}
	d := New(&flakyClipboard{}, focus, &fakeKeys{}, testConfig())

	require.NoError(t, d.Deliver(context.Background(), "text", "editor"))
	assert.Empty(t, focus.activated)
}

func TestDeliverFocusNeverTransfers(t *testing.T) {
	focus := &fakeFocus{current: "hud", lag: 1000}
	keys := &fakeKeys{}
	d := New(&flakyClipboard{}, focus, keys, testConfig())

	require.NoError(t, d.Deliver(context.Background(), "text", "editor"))
	assert.Equal(t, 1, keys.pastes)
}

func TestDeliverPasteFailure(t *testing.T) {
	keys := &fakeKeys{err: errors.New("no permission")}
	d := New(&flakyClipboard{}, nil, keys, testConfig())
	assert.ErrorContains(t, d.Deliver(context.Background(), "text", ""), "inject paste")
}

func TestDeliverRecoversPanic(t *testing.T) {
	d := New(&flakyClipboard{}, nil, &fakeKeys{panics: true}, testConfig())

	var err error
	assert.NotPanics(t, func() {
		err = d.Deliver(context.Background(), "text", "")
	})
	assert.ErrorContains(t, err, "uinput exploded")
}

func TestCurrentFocus(t *testing.T) {
	assert.Equal(t, FocusHandle(""), New(&flakyClipboard{}, nil, &fakeKeys{}, testConfig()).CurrentFocus(context.Background()))

	d := New(&flakyClipboard{}, &fakeFocus{current: "editor"}, &fakeKeys{}, testConfig())
	assert.Equal(t, FocusHandle("editor"), d.CurrentFocus(context.Background()))
}
