package gesture

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInterceptor struct {
	handler     func(KeyEvent) bool
	installErr  error
	uninstalled bool
}

func (f *fakeInterceptor) Install(handler func(KeyEvent) bool) error {
	if f.installErr != nil {
		return f.installErr
	}
	if f.handler != nil {
		return ErrAlreadyInstalled
	}
	f.handler = handler
	return nil
}

func (f *fakeInterceptor) Uninstall() error {
	f.handler = nil
	f.uninstalled = true
	return nil
}

func down(k Key) KeyEvent { return KeyEvent{Key: k, Down: true} }
func up(k Key) KeyEvent   { return KeyEvent{Key: k, Down: false} }

func TestDetectorSequences(t *testing.T) {
	tests := []struct {
		name        string
		keys        []KeyEvent
		wantEvents  []Event
		wantSwallow []bool
	}{
		{
			name:        "ctrl then space starts and stops hold",
			keys:        []KeyEvent{down(KeyCtrl), down(KeySpace), up(KeySpace), up(KeyCtrl)},
			wantEvents:  []Event{HoldStart, HoldStop},
			wantSwallow: []bool{false, true, true, false},
		},
		{
			name:        "releasing ctrl first stops hold without swallowing ctrl",
			keys:        []KeyEvent{down(KeyCtrl), down(KeySpace), up(KeyCtrl), up(KeySpace)},
			wantEvents:  []Event{HoldStart, HoldStop},
			wantSwallow: []bool{false, true, false, false},
		},
		{
			name:        "space auto-repeat is swallowed during hold",
			keys:        []KeyEvent{down(KeyCtrl), down(KeySpace), down(KeySpace), down(KeySpace), up(KeySpace)},
			wantEvents:  []Event{HoldStart, HoldStop},
			wantSwallow: []bool{false, true, true, true, true},
		},
		{
			name:        "space alone passes through",
			keys:        []KeyEvent{down(KeySpace), up(KeySpace)},
			wantEvents:  nil,
			wantSwallow: []bool{false, false},
		},
		{
			name:        "ctrl shift r triggers single shot",
			keys:        []KeyEvent{down(KeyCtrl), down(KeyShift), down(KeyR), up(KeyR), up(KeyShift), up(KeyCtrl)},
			wantEvents:  []Event{SingleShotTrigger},
			wantSwallow: []bool{false, false, true, false, false, false},
		},
		{
			name:        "r without shift is ignored",
			keys:        []KeyEvent{down(KeyCtrl), down(KeyR), up(KeyR), up(KeyCtrl)},
			wantEvents:  nil,
			wantSwallow: []bool{false, false, false, false},
		},
		{
			name:        "other keys during hold pass through",
			keys:        []KeyEvent{down(KeyCtrl), down(KeySpace), down(KeyOther), up(KeyOther), up(KeySpace), up(KeyCtrl)},
			wantEvents:  []Event{HoldStart, HoldStop},
			wantSwallow: []bool{false, true, false, false, true, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []Event
			d := NewDetector(&fakeInterceptor{}, func(e Event) { got = append(got, e) })

			var swallowed []bool
			for _, k := range tt.keys {
				swallowed = append(swallowed, d.Process(k))
			}

			assert.Equal(t, tt.wantEvents, got)
			assert.Equal(t, tt.wantSwallow, swallowed)
			assert.False(t, d.Active())
		})
	}
}

func TestDetectorInstall(t *testing.T) {
	ic := &fakeInterceptor{}
	var got []Event
	d := NewDetector(ic, func(e Event) { got = append(got, e) })

	require.NoError(t, d.Install())
	require.NotNil(t, ic.handler)
	assert.ErrorIs(t, d.Install(), ErrAlreadyInstalled)

	ic.handler(down(KeyCtrl))
	ic.handler(down(KeySpace))
	assert.True(t, d.Active())

	require.NoError(t, d.Uninstall())
	assert.True(t, ic.uninstalled)
	assert.False(t, d.Active())
	assert.Equal(t, []Event{HoldStart}, got)
}

func TestDetectorReinstall(t *testing.T) {
	denied := errors.New("input monitoring denied")
	ic := &fakeInterceptor{installErr: denied}
	var got []Event
	d := NewDetector(ic, func(e Event) { got = append(got, e) })

	assert.ErrorIs(t, d.Install(), denied)
	assert.Nil(t, ic.handler)

	ic.installErr = nil
	require.NoError(t, d.Reinstall())
	require.NotNil(t, ic.handler)
	assert.True(t, ic.uninstalled)

	// reinstalling a live hook replaces it
	require.NoError(t, d.Reinstall())
	ic.handler(down(KeyCtrl))
	ic.handler(down(KeySpace))
	assert.Equal(t, []Event{HoldStart}, got)
}

func TestDetectorIsolation(t *testing.T) {
	var a, b []Event
	da := NewDetector(&fakeInterceptor{}, func(e Event) { a = append(a, e) })
	db := NewDetector(&fakeInterceptor{}, func(e Event) { b = append(b, e) })

	da.Process(down(KeyCtrl))
	db.Process(down(KeySpace))
	da.Process(down(KeySpace))

	assert.Equal(t, []Event{HoldStart}, a)
	assert.Empty(t, b)
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "hold-start", HoldStart.String())
	assert.Equal(t, "hold-stop", HoldStop.String())
	assert.Equal(t, "single-shot", SingleShotTrigger.String())
	assert.Equal(t, "unknown", Event(0).String())
}
