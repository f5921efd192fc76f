// Package reply implements conversation reply: translate the selected
// message into the user's language, then record a spoken answer and paste it
// back translated into the language of the message.
//
// Like dictation, all Orchestrator methods run on the coordination loop and
// background work reports back through Deps.Post.
package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"go.aimuz.me/voxtype/audiocapture"
	"go.aimuz.me/voxtype/clipboard"
	"go.aimuz.me/voxtype/delivery"
	"go.aimuz.me/voxtype/engine"
	"go.aimuz.me/voxtype/internal/types"
	"go.aimuz.me/voxtype/notify"
	"go.aimuz.me/voxtype/stt"
)

// State is the conversation reply state.
type State int

const (
	Idle State = iota
	Translating
	Ready
	Recording
	Processing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Translating:
		return "translating"
	case Ready:
		return "ready"
	case Recording:
		return "recording"
	case Processing:
		return "processing"
	default:
		return "unknown"
	}
}

const (
	minSelection = 2
	maxSelection = 5000
)

var errEmptyTranslation = errors.New("empty translation")

// ─────────────────────────────────────────────────────────────────────────────
// Dependencies
// ─────────────────────────────────────────────────────────────────────────────

// Selector snapshots the selected text of the focused application.
type Selector interface {
	Snapshot(ctx context.Context) (string, error)
}

// Capture is the microphone session.
type Capture interface {
	Start(deviceID string) error
	Stop() (*audiocapture.Recording, error)
}

// Deliverer pastes text into a window.
type Deliverer interface {
	CurrentFocus(ctx context.Context) delivery.FocusHandle
	Deliver(ctx context.Context, text string, origin delivery.FocusHandle) error
}

// Backends resolves a route to a backend.
type Backends interface {
	Get(sel engine.Selection) (stt.Backend, bool)
}

// Entitlements answers the reply gate and records trial usage.
type Entitlements interface {
	IsPro() bool
	IsProOrTrialActive() bool
	RecordTrialUse() (int, error)
}

// Detector guesses a language when the backend could not tell.
type Detector interface {
	Detect(text string) (code, name string, ok bool)
}

// Cues plays sound cues.
type Cues interface {
	Play(c notify.Cue)
}

// Ticker is a stoppable tick source.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock drives debounce and the Ready countdown.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Settings is the user selection read when a reply starts.
type Settings struct {
	Language string // the user's language
	DeviceID string

	HasUserKey    bool
	Authenticated bool
	ForceOffline  bool
}

// Deps are the collaborators of an Orchestrator. Detector, Cues, Clock,
// View and OnTimeout may be nil.
type Deps struct {
	Selection    Selector
	Capture      Capture
	Delivery     Deliverer
	Backends     Backends
	Entitlements Entitlements
	Detector     Detector
	Cues         Cues
	Clock        Clock

	Settings func() Settings
	Post     func(f func())
	Status   func(types.Status)
	// View is called whenever the HUD content or countdown changes.
	View func(types.ReplyView)
	// OnTimeout is called once when the Ready countdown runs out.
	OnTimeout func()
}

// Config tunes timing.
type Config struct {
	Timeout         time.Duration // Ready countdown
	Tick            time.Duration // countdown resolution
	Debounce        time.Duration // minimum gap between triggers
	SettleDelay     time.Duration
	BackendTimeout  time.Duration
	DeliveryTimeout time.Duration
}

// DefaultConfig returns the default timing.
func DefaultConfig() Config {
	return Config{
		Timeout:         25 * time.Second,
		Tick:            50 * time.Millisecond,
		Debounce:        500 * time.Millisecond,
		SettleDelay:     150 * time.Millisecond,
		BackendTimeout:  2 * time.Minute,
		DeliveryTimeout: 10 * time.Second,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Orchestrator
// ─────────────────────────────────────────────────────────────────────────────

type job struct {
	gen      uint64
	route    engine.Selection
	settings Settings
	origin   delivery.FocusHandle
	// language of the selected message, which the reply is translated into
	fromName string
	fromCode string
}

// Orchestrator is the conversation reply state machine.
type Orchestrator struct {
	deps  Deps
	cfg   Config
	clock Clock

	state       State
	gen         uint64
	job         job
	view        types.ReplyView
	pending     bool // selection snapshot in flight
	lastTrigger time.Time

	countdown uint64
	stopTimer context.CancelFunc
}

// New creates an Orchestrator.
func New(deps Deps, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = def.BackendTimeout
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = def.DeliveryTimeout
	}
	clock := deps.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Orchestrator{deps: deps, cfg: cfg, clock: clock, view: types.ReplyView{State: Idle.String(), Progress: 1}}
}

// State returns the current state.
func (o *Orchestrator) State() State { return o.state }

// Active reports whether a reply is in progress.
func (o *Orchestrator) Active() bool { return o.state != Idle || o.pending }

// View returns the current HUD content.
func (o *Orchestrator) View() types.ReplyView { return o.view }

// Trigger handles the single-shot gesture: start a reply when idle, dismiss
// otherwise. Triggers closer together than the debounce are dropped.
func (o *Orchestrator) Trigger() {
	now := o.clock.Now()
	if !o.lastTrigger.IsZero() && now.Sub(o.lastTrigger) < o.cfg.Debounce {
		slog.Debug("reply trigger debounced")
		return
	}
	o.lastTrigger = now

	if o.Active() {
		o.Dismiss()
		return
	}

	s := o.deps.Settings()
	ent := o.deps.Entitlements
	if !s.HasUserKey && !ent.IsProOrTrialActive() {
		o.status("Conversation Reply requires Pro or Trial. Upgrade to translate messages and reply in any language.", true)
		return
	}
	route := engine.Route(engine.Inputs{
		HasUserKey:    s.HasUserKey,
		Authenticated: s.Authenticated,
		ForcedOffline: s.ForceOffline,
		Entitled:      ent.IsProOrTrialActive(),
	})
	switch route {
	case engine.Unavailable:
		o.status("Please sign in to use Conversation Reply.", true)
		return
	case engine.OnDevice:
		o.status("Conversation Reply requires cloud transcription. Turn off offline mode.", true)
		return
	}

	o.gen++
	o.job = job{gen: o.gen, route: route, settings: s}
	o.pending = true
	go o.snapshot(o.job)
}

// Dismiss returns to Idle from any state and cancels the countdown.
func (o *Orchestrator) Dismiss() {
	if o.state == Recording {
		if _, err := o.deps.Capture.Stop(); err != nil && !errors.Is(err, audiocapture.ErrNoAudio) {
			slog.Warn("stop capture", "error", err)
		}
	}
	o.stopCountdown()
	o.gen++
	o.pending = false
	o.view = types.ReplyView{Progress: 1}
	o.setState(Idle)
}

// HoldStart starts recording the spoken reply. It is a no-op unless Ready.
func (o *Orchestrator) HoldStart() {
	if o.state != Ready {
		return
	}
	o.stopCountdown()

	o.job.origin = o.deps.Delivery.CurrentFocus(context.Background())
	if err := o.deps.Capture.Start(o.job.settings.DeviceID); err != nil {
		slog.Error("start capture", "error", err)
		o.fail(o.job, "Microphone unavailable. Check the input device and permissions.")
		return
	}
	o.setState(Recording)
	o.cue(notify.CueStart)
}

// HoldStop finishes the spoken reply. It is a no-op unless Recording.
func (o *Orchestrator) HoldStop() {
	if o.state != Recording {
		return
	}
	rec, err := o.deps.Capture.Stop()
	o.setState(Processing)
	o.cue(notify.CueStop)
	o.status("Translating reply...", false)

	go o.process(o.job, rec, err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Translating
// ─────────────────────────────────────────────────────────────────────────────

func (o *Orchestrator) snapshot(j job) {
	defer o.catch(j)

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.DeliveryTimeout)
	defer cancel()
	text, err := o.deps.Selection.Snapshot(ctx)
	o.post(j, func() { o.selected(j, text, err) })
}

func (o *Orchestrator) selected(j job, text string, err error) {
	if !o.pending || j.gen != o.gen {
		return
	}
	o.pending = false

	text = strings.TrimSpace(text)
	switch {
	case err != nil && !errors.Is(err, clipboard.ErrNoSelection):
		slog.Error("snapshot selection", "error", err)
		o.status("Could not read the selected text: "+err.Error(), true)
		return
	case utf8.RuneCountInString(text) < minSelection:
		o.status("Select a message first, then press Ctrl+Shift+R", true)
		return
	case utf8.RuneCountInString(text) > maxSelection:
		o.status(fmt.Sprintf("Selected text is too long (max %d chars)", maxSelection), true)
		return
	}

	backend, ok := o.deps.Backends.Get(j.route)
	if !ok {
		o.status(fmt.Sprintf("No %s backend configured.", j.route), true)
		return
	}

	o.view = types.ReplyView{Original: text, ToLanguage: types.LanguageName(j.settings.Language), Progress: 1}
	o.setState(Translating)
	o.cue(notify.CueStart)
	go o.translate(j, backend, text)
}

func (o *Orchestrator) translate(j job, backend stt.Backend, text string) {
	defer o.catch(j)

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.BackendTimeout)
	defer cancel()
	tr, err := backend.Translate(ctx, text, types.LanguageName(j.settings.Language))
	if err == nil && tr == nil {
		err = errEmptyTranslation
	}
	if err == nil {
		o.fillSource(tr, text)
	}
	o.post(j, func() { o.translated(j, tr, err) })
}

// fillSource completes a translation whose source language is missing.
func (o *Orchestrator) fillSource(tr *types.Translation, original string) {
	if tr.SourceLanguageCode == "" && o.deps.Detector != nil {
		if code, name, ok := o.deps.Detector.Detect(original); ok {
			tr.SourceLanguageCode, tr.SourceLanguageName = code, name
		}
	}
	if tr.SourceLanguageName == "" && tr.SourceLanguageCode != "" {
		tr.SourceLanguageName = types.LanguageName(tr.SourceLanguageCode)
	}
}

func (o *Orchestrator) translated(j job, tr *types.Translation, err error) {
	if !o.current(j, Translating) {
		return
	}
	if err != nil {
		slog.Error("translate selection", "route", j.route, "error", err)
		o.fail(j, "Translation error: "+err.Error())
		return
	}
	if tr.SourceLanguageName == "" {
		o.fail(j, "Could not detect the language of the selected text.")
		return
	}

	o.job.fromName, o.job.fromCode = tr.SourceLanguageName, tr.SourceLanguageCode
	o.view.Translation = tr.Text
	o.view.FromLanguage = tr.SourceLanguageName
	o.view.FromCode = tr.SourceLanguageCode
	o.view.Progress = 1
	o.setState(Ready)
	o.startCountdown()
	slog.Info("reply ready", "from", tr.SourceLanguageCode, "to", j.settings.Language, "chars", len(tr.Text))
}

// ─────────────────────────────────────────────────────────────────────────────
// Replying
// ─────────────────────────────────────────────────────────────────────────────

func (o *Orchestrator) process(j job, rec *audiocapture.Recording, stopErr error) {
	defer o.catch(j)

	if o.cfg.SettleDelay > 0 {
		time.Sleep(o.cfg.SettleDelay)
	}
	if stopErr != nil && !errors.Is(stopErr, audiocapture.ErrNoAudio) {
		slog.Warn("stop capture", "error", stopErr)
	}
	if rec.Empty() {
		o.post(j, func() { o.fail(j, "No audio recorded. Check microphone permissions.") })
		return
	}
	backend, ok := o.deps.Backends.Get(j.route)
	if !ok {
		o.post(j, func() { o.fail(j, fmt.Sprintf("No %s backend configured.", j.route)) })
		return
	}
	wav, err := rec.ModelWAV()
	if err != nil {
		o.post(j, func() { o.fail(j, "Error: "+err.Error()) })
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.BackendTimeout)
	defer cancel()

	spoken, err := backend.Transcribe(ctx, stt.Request{WAV: wav, Mode: types.ModeText, Language: j.settings.Language})
	if err != nil {
		o.post(j, func() { o.fail(j, "Error: "+err.Error()) })
		return
	}
	spoken = strings.TrimSpace(spoken)
	if spoken == "" {
		o.post(j, func() { o.fail(j, "No speech detected.") })
		return
	}

	tr, err := backend.Translate(ctx, spoken, j.fromName)
	if err == nil && tr == nil {
		err = errEmptyTranslation
	}
	o.post(j, func() { o.replied(j, tr, err) })
}

func (o *Orchestrator) replied(j job, tr *types.Translation, err error) {
	if !o.current(j, Processing) {
		return
	}
	if err != nil {
		slog.Error("translate reply", "route", j.route, "error", err)
		o.fail(j, "Translation error: "+err.Error())
		return
	}
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		o.fail(j, "Translation error: "+errEmptyTranslation.Error())
		return
	}

	ent := o.deps.Entitlements
	if j.route == engine.CloudProxy && ent.IsProOrTrialActive() && !ent.IsPro() {
		if _, err := ent.RecordTrialUse(); err != nil {
			slog.Error("record trial use", "error", err)
		}
	}
	go o.deliver(j, text)
}

func (o *Orchestrator) deliver(j job, text string) {
	defer o.catch(j)

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.DeliveryTimeout)
	defer cancel()
	err := o.deps.Delivery.Deliver(ctx, text, j.origin)
	o.post(j, func() { o.delivered(j, text, err) })
}

func (o *Orchestrator) delivered(j job, text string, err error) {
	if !o.current(j, Processing) {
		return
	}
	if err != nil {
		slog.Error("deliver reply", "error", err)
		o.fail(j, "Reply translated, but pasting failed: "+err.Error())
		return
	}
	o.cue(notify.CueSuccess)
	o.status(fmt.Sprintf("Reply pasted in %s (%d chars)", j.fromName, utf8.RuneCountInString(text)), false)
	o.Dismiss()
}

// ─────────────────────────────────────────────────────────────────────────────
// Countdown
// ─────────────────────────────────────────────────────────────────────────────

// startCountdown replaces any running countdown. Each tick is posted to the
// loop tagged with the countdown id; ticks of a stopped countdown are dropped.
func (o *Orchestrator) startCountdown() {
	o.stopCountdown()

	ctx, cancel := context.WithCancel(context.Background())
	o.stopTimer = cancel
	id := o.countdown
	start := o.clock.Now()
	ticker := o.clock.NewTicker(o.cfg.Tick)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				progress := 1 - float64(o.clock.Now().Sub(start))/float64(o.cfg.Timeout)
				progress = max(progress, 0)
				o.deps.Post(func() { o.tick(id, progress) })
				if progress == 0 {
					return
				}
			}
		}
	}()
}

func (o *Orchestrator) stopCountdown() {
	if o.stopTimer != nil {
		o.stopTimer()
		o.stopTimer = nil
	}
	o.countdown++
}

func (o *Orchestrator) tick(id uint64, progress float64) {
	if id != o.countdown || o.state != Ready {
		return
	}
	o.view.Progress = progress
	o.emitView()
	if progress > 0 {
		return
	}
	slog.Info("reply timed out")
	o.Dismiss()
	if o.deps.OnTimeout != nil {
		o.deps.OnTimeout()
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (o *Orchestrator) current(j job, want State) bool {
	return o.state == want && o.gen == j.gen
}

func (o *Orchestrator) fail(j job, msg string) {
	if j.gen != o.gen {
		return
	}
	o.status(msg, true)
	o.cue(notify.CueError)
	o.Dismiss()
}

func (o *Orchestrator) post(j job, f func()) {
	o.deps.Post(func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("reply panicked", "panic", r, "stack", string(debug.Stack()))
				o.fail(j, fmt.Sprintf("Error: %v", r))
			}
		}()
		f()
	})
}

func (o *Orchestrator) catch(j job) {
	if r := recover(); r != nil {
		slog.Error("reply panicked", "panic", r, "stack", string(debug.Stack()))
		o.post(j, func() { o.fail(j, fmt.Sprintf("Error: %v", r)) })
	}
}

func (o *Orchestrator) setState(s State) {
	changed := o.state != s
	o.state = s
	o.view.State = s.String()
	if changed {
		slog.Debug("reply state", "state", s)
		o.emitView()
	}
}

func (o *Orchestrator) emitView() {
	if o.deps.View != nil {
		o.deps.View(o.view)
	}
}

func (o *Orchestrator) status(msg string, isErr bool) {
	if o.deps.Status != nil {
		o.deps.Status(types.Status{Source: "reply", Message: msg, Error: isErr})
	}
}

func (o *Orchestrator) cue(c notify.Cue) {
	if o.deps.Cues != nil {
		o.deps.Cues.Play(c)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// System clock
// ─────────────────────────────────────────────────────────────────────────────

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{time.NewTicker(d)}
}

type systemTicker struct{ t *time.Ticker }

func (t systemTicker) C() <-chan time.Time { return t.t.C }
func (t systemTicker) Stop()               { t.t.Stop() }
