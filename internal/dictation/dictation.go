// Package dictation implements hold-to-talk dictation: record while the
// gesture is held, transcribe on release, paste the result back into the
// window that had focus.
//
// Every method of Orchestrator must be called from the coordination loop.
// Backend and delivery work runs on its own goroutines and reports back
// through Deps.Post, so the state is only ever written from one goroutine.
package dictation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"go.aimuz.me/voxtype/audiocapture"
	"go.aimuz.me/voxtype/command"
	"go.aimuz.me/voxtype/delivery"
	"go.aimuz.me/voxtype/engine"
	"go.aimuz.me/voxtype/entitlement"
	"go.aimuz.me/voxtype/history"
	"go.aimuz.me/voxtype/internal/types"
	"go.aimuz.me/voxtype/notify"
	"go.aimuz.me/voxtype/stt"
)

// State is the dictation state.
type State int

const (
	Idle State = iota
	Recording
	Processing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Processing:
		return "processing"
	default:
		return "unknown"
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Dependencies
// ─────────────────────────────────────────────────────────────────────────────

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

// Entitlements answers gating questions and records usage.
type Entitlements interface {
	IsPro() bool
	IsProOrTrialActive() bool
	CanUseMode(mode types.Mode) bool
	CanUseLanguage(code string) bool
	NeedsOnlineValidation() bool
	TrialLimitReached() bool
	FreeLimitReached() bool
	RecordTrialUse() (int, error)
	RecordFreeUse() (count int, remind bool, err error)
}

// Expander applies snippet expansion.
type Expander interface {
	Expand(text string) string
}

// History records delivered text.
type History interface {
	Add(ctx context.Context, text string, mode types.Mode, language string) (history.Record, error)
}

// Cues plays sound cues.
type Cues interface {
	Play(c notify.Cue)
}

// Settings is the user selection captured when a dictation starts.
type Settings struct {
	Mode        types.Mode
	Language    string
	Instruction string
	Style       types.WritingStyle
	WakeWord    string // empty when wake-word commands are off
	DeviceID    string

	HasUserKey    bool
	Authenticated bool
	ForceOffline  bool
}

// Deps are the collaborators of an Orchestrator. Snippets, History, Cues,
// OnState and OnCommand may be nil.
type Deps struct {
	Capture      Capture
	Delivery     Deliverer
	Backends     Backends
	Entitlements Entitlements
	Snippets     Expander
	History      History
	Cues         Cues

	// Settings returns the current selection. Called on the loop.
	Settings func() Settings
	// Post runs f on the coordination loop.
	Post func(f func())
	// Status receives user-facing status lines.
	Status func(types.Status)
	// OnState is called after every state change.
	OnState func(State)
	// OnCommand receives a matched wake-word command instead of delivery.
	OnCommand func(command.Result)
}

// Config tunes timing.
type Config struct {
	// SettleDelay is waited after the capture stopped before the recording is used.
	SettleDelay time.Duration
	// BackendTimeout bounds one transcription request.
	BackendTimeout time.Duration
	// DeliveryTimeout bounds clipboard, focus and paste.
	DeliveryTimeout time.Duration
}

// DefaultConfig returns the default timing.
func DefaultConfig() Config {
	return Config{
		SettleDelay:     150 * time.Millisecond,
		BackendTimeout:  2 * time.Minute,
		DeliveryTimeout: 10 * time.Second,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Orchestrator
// ─────────────────────────────────────────────────────────────────────────────

// job is the immutable context of one dictation, passed by value to the
// goroutines working on it.
type job struct {
	gen      uint64
	route    engine.Selection
	settings Settings
	origin   delivery.FocusHandle
	started  time.Time
}

// Orchestrator is the dictation state machine.
type Orchestrator struct {
	deps Deps
	cfg  Config

	state State
	gen   uint64
	job   job
}

// New creates an Orchestrator.
func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = DefaultConfig().BackendTimeout
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = DefaultConfig().DeliveryTimeout
	}
	return &Orchestrator{deps: deps, cfg: cfg}
}

// State returns the current state.
func (o *Orchestrator) State() State { return o.state }

// HoldStart gates and starts a recording. It is a no-op unless Idle.
func (o *Orchestrator) HoldStart() {
	if o.state != Idle {
		slog.Debug("hold start ignored", "state", o.state)
		return
	}

	s := o.deps.Settings()
	route, reason := o.gate(s)
	if reason != "" {
		slog.Info("dictation gated", "route", route, "reason", reason)
		o.status(reason, true)
		o.cue(notify.CueError)
		return
	}

	origin := o.deps.Delivery.CurrentFocus(context.Background())
	if err := o.deps.Capture.Start(s.DeviceID); err != nil {
		slog.Error("start capture", "error", err)
		o.status("Microphone unavailable. Check the input device and permissions.", true)
		o.cue(notify.CueError)
		return
	}

	o.gen++
	o.job = job{gen: o.gen, route: route, settings: s, origin: origin, started: time.Now()}
	o.setState(Recording)
	o.cue(notify.CueStart)
	o.status(fmt.Sprintf("Recording... (engine: %s)", route), false)
}

// HoldStop stops the recording and starts processing. It is a no-op unless
// Recording.
func (o *Orchestrator) HoldStop() {
	if o.state != Recording {
		return
	}

	rec, err := o.deps.Capture.Stop()
	o.setState(Processing)
	o.cue(notify.CueStop)

	go o.transcribe(o.job, rec, err)
}

// Cancel abandons the current dictation and returns to Idle. Work still in
// flight is ignored when it completes.
func (o *Orchestrator) Cancel() {
	if o.state == Recording {
		if _, err := o.deps.Capture.Stop(); err != nil && !errors.Is(err, audiocapture.ErrNoAudio) {
			slog.Warn("stop capture", "error", err)
		}
	}
	if o.state != Idle {
		o.gen++
		o.setState(Idle)
	}
}

// gate returns the route for s, or a reason why dictation cannot start.
// The first failing check wins.
func (o *Orchestrator) gate(s Settings) (engine.Selection, string) {
	ent := o.deps.Entitlements
	route := engine.Route(engine.Inputs{
		HasUserKey:    s.HasUserKey,
		Authenticated: s.Authenticated,
		ForcedOffline: s.ForceOffline,
		Entitled:      ent.IsProOrTrialActive(),
	})

	switch {
	case !ent.CanUseMode(s.Mode):
		return route, fmt.Sprintf("Mode '%s' requires Pro. Upgrade to unlock all modes.", s.Mode.Info().Name)
	case !ent.CanUseLanguage(s.Language):
		return route, fmt.Sprintf("Language '%s' requires Pro. Free: PT/EN only.", types.LanguageName(s.Language))
	case ent.IsPro() && ent.NeedsOnlineValidation():
		return route, "Please connect to the internet to validate your subscription."
	case !ent.IsPro() && ent.TrialLimitReached():
		return route, fmt.Sprintf("Trial limit reached (%d transcriptions). Upgrade to Pro!", entitlement.TrialLimit)
	case ent.FreeLimitReached():
		return route, fmt.Sprintf("Free limit reached (%d/month). Upgrade to Pro!", entitlement.FreeMonthlyLimit)
	case route == engine.Unavailable:
		return route, "Please sign in or add an API key to start dictating."
	}
	return route, ""
}

// transcribe runs off the loop.
func (o *Orchestrator) transcribe(j job, rec *audiocapture.Recording, stopErr error) {
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

	slog.Info("transcribing", "route", j.route, "mode", j.settings.Mode,
		"language", j.settings.Language, "audio", rec.Duration.Round(time.Millisecond), "speech", rec.SpeechDetected)

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.BackendTimeout)
	defer cancel()
	text, err := backend.Transcribe(ctx, stt.Request{
		WAV:         wav,
		Mode:        j.settings.Mode,
		Language:    j.settings.Language,
		WakeWord:    j.settings.WakeWord,
		Instruction: j.settings.Instruction,
		Style:       j.settings.Style,
	})
	o.post(j, func() { o.transcribed(j, text, err) })
}

func (o *Orchestrator) transcribed(j job, text string, err error) {
	if !o.current(j) {
		return
	}
	if err != nil {
		slog.Error("transcribe", "route", j.route, "error", err)
		o.fail(j, transcribeError(err))
		return
	}

	text = strings.TrimSpace(text)
	if text == "" {
		o.fail(j, "No speech detected.")
		return
	}

	o.account(j)

	if j.settings.WakeWord != "" {
		if res, ok := command.Detect(text, j.settings.WakeWord); ok {
			slog.Info("wake word command", "kind", res.Kind, "mode", res.Mode, "language", res.Language)
			o.finish(j)
			if o.deps.OnCommand != nil {
				o.deps.OnCommand(res)
			}
			return
		}
	}

	if o.deps.Snippets != nil {
		text = o.deps.Snippets.Expand(text)
	}
	go o.deliver(j, text)
}

// account records usage for a successful transcription.
func (o *Orchestrator) account(j job) {
	ent := o.deps.Entitlements
	switch j.route {
	case engine.CloudProxy:
		if ent.IsProOrTrialActive() && !ent.IsPro() {
			n, err := ent.RecordTrialUse()
			if err != nil {
				slog.Error("record trial use", "error", err)
				return
			}
			slog.Debug("trial use recorded", "count", n)
		}
	case engine.OnDevice:
		if ent.IsProOrTrialActive() {
			return
		}
		n, remind, err := ent.RecordFreeUse()
		if err != nil {
			slog.Error("record free use", "error", err)
			return
		}
		if remind {
			o.status(fmt.Sprintf("You've used %d of %d free transcriptions this month. Upgrade to Pro for unlimited use.",
				n, entitlement.FreeMonthlyLimit), false)
		}
	}
}

// deliver runs off the loop.
func (o *Orchestrator) deliver(j job, text string) {
	defer o.catch(j)

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.DeliveryTimeout)
	defer cancel()

	if o.deps.History != nil {
		if _, err := o.deps.History.Add(ctx, text, j.settings.Mode, j.settings.Language); err != nil {
			slog.Warn("add history", "error", err)
		}
	}
	err := o.deps.Delivery.Deliver(ctx, text, j.origin)
	o.post(j, func() { o.delivered(j, text, err) })
}

func (o *Orchestrator) delivered(j job, text string, err error) {
	if !o.current(j) {
		return
	}
	if err != nil {
		slog.Error("deliver", "error", err)
		o.fail(j, "Transcribed, but pasting failed: "+err.Error())
		return
	}
	slog.Info("dictation delivered", "chars", len(text), "elapsed", time.Since(j.started).Round(time.Millisecond))
	o.cue(notify.CueSuccess)
	o.status(fmt.Sprintf("Transcribed (%d chars) and pasted", len(text)), false)
	o.finish(j)
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (o *Orchestrator) current(j job) bool {
	return o.state != Idle && o.job.gen == j.gen
}

func (o *Orchestrator) finish(j job) {
	if o.current(j) {
		o.setState(Idle)
	}
}

func (o *Orchestrator) fail(j job, msg string) {
	if !o.current(j) {
		return
	}
	o.status(msg, true)
	o.cue(notify.CueError)
	o.setState(Idle)
}

// post runs f on the loop. A panic in f returns the dictation to Idle.
func (o *Orchestrator) post(j job, f func()) {
	o.deps.Post(func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("dictation panicked", "panic", r, "stack", string(debug.Stack()))
				o.fail(j, fmt.Sprintf("Error: %v", r))
			}
		}()
		f()
	})
}

// catch recovers a panic on a worker goroutine.
func (o *Orchestrator) catch(j job) {
	if r := recover(); r != nil {
		slog.Error("dictation panicked", "panic", r, "stack", string(debug.Stack()))
		o.post(j, func() { o.fail(j, fmt.Sprintf("Error: %v", r)) })
	}
}

func (o *Orchestrator) setState(s State) {
	if o.state == s {
		return
	}
	o.state = s
	if o.deps.OnState != nil {
		o.deps.OnState(s)
	}
}

func (o *Orchestrator) status(msg string, isErr bool) {
	if o.deps.Status != nil {
		o.deps.Status(types.Status{Source: "dictation", Message: msg, Error: isErr})
	}
}

func (o *Orchestrator) cue(c notify.Cue) {
	if o.deps.Cues != nil {
		o.deps.Cues.Play(c)
	}
}

func transcribeError(err error) string {
	switch {
	case errors.Is(err, stt.ErrNotReady):
		return "Local model not downloaded. Run 'voxtype model download'."
	case errors.Is(err, context.DeadlineExceeded):
		return "Transcription timed out."
	default:
		return "Error: " + err.Error()
	}
}
