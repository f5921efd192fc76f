// Package app provides the core application service for Wails bindings.
//
// Service wires the capture session, backends, gesture detector and both
// orchestrators together and runs them on a single coordination loop. Bound
// methods called from the frontend or the tray hop onto the loop before
// touching configuration or orchestrator state.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/wailsapp/wails/v3/pkg/application"

	"go.aimuz.me/voxtype/audiocapture"
	"go.aimuz.me/voxtype/clipboard"
	"go.aimuz.me/voxtype/command"
	"go.aimuz.me/voxtype/config"
	"go.aimuz.me/voxtype/delivery"
	"go.aimuz.me/voxtype/engine"
	"go.aimuz.me/voxtype/entitlement"
	"go.aimuz.me/voxtype/gesture"
	"go.aimuz.me/voxtype/history"
	"go.aimuz.me/voxtype/internal/dictation"
	"go.aimuz.me/voxtype/internal/loop"
	"go.aimuz.me/voxtype/internal/reply"
	"go.aimuz.me/voxtype/internal/types"
	"go.aimuz.me/voxtype/langdetect"
	"go.aimuz.me/voxtype/notify"
	"go.aimuz.me/voxtype/snippets"
	"go.aimuz.me/voxtype/stt"
	"go.aimuz.me/voxtype/usage"
)

// UsageDir is the badger directory inside the data directory.
const UsageDir = "usage"

// Service provides application functionality bound to Wails.
type Service struct {
	cfg     *config.Config
	dataDir string
	version string

	// UI reference - set via Init
	app *application.App

	loop   *loop.Loop
	cancel context.CancelFunc

	store    *usage.BadgerStore
	ent      *entitlement.Manager
	backends *stt.Registry
	local    *stt.WhisperLocal
	capture  *audiocapture.Session
	gestures *gesture.Detector
	snippets *snippets.Store
	history  *history.Store
	notifier *notify.Notifier

	dictation *dictation.Orchestrator
	reply     *reply.Orchestrator
	router    *router
}

// New creates a new Service. Call Init() after the Wails app is created.
func New(version string) *Service {
	return &Service{version: version}
}

// GetVersion returns the application version.
func (s *Service) GetVersion() string {
	return s.version
}

// Init loads configuration, opens the stores, builds the pipeline and
// installs the global key hook.
func (s *Service) Init(app *application.App) error {
	s.app = app

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	s.cfg = cfg

	dataDir, err := config.DataDir()
	if err != nil {
		return err
	}
	s.dataDir = dataDir

	s.store, err = usage.OpenBadger(filepath.Join(dataDir, UsageDir))
	if err != nil {
		return err
	}
	s.ent = entitlement.New(s.store, time.Now)
	if err := s.ent.Load(); err != nil {
		return fmt.Errorf("load entitlement: %w", err)
	}
	s.applyFreeTier()

	s.backends, s.local = NewBackends(cfg, dataDir)
	s.capture = audiocapture.NewSession(&audiocapture.PortAudioDevice{}, audiocapture.Config{
		Dir:       filepath.Join(dataDir, "captures"),
		KeepFiles: cfg.Audio.KeepFiles,
	})
	s.notifier = notify.New(cfg.Notifications, cfg.Sounds)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.snippets, err = snippets.Open(filepath.Join(dataDir, snippets.FileName))
	if err != nil {
		slog.Error("open snippets", "error", err)
	} else if err := s.snippets.Watch(ctx); err != nil {
		slog.Warn("watch snippets", "error", err)
	}

	s.history, err = history.Open(filepath.Join(dataDir, history.FileName))
	if err != nil {
		slog.Error("open history", "error", err)
	}

	s.loop = loop.New(0)
	s.buildOrchestrators()
	go s.loop.Run(ctx)

	s.gestures = gesture.NewDetector(gesture.NewHookInterceptor(), func(ev gesture.Event) {
		s.loop.Post(func() { s.router.handle(ev) })
	})
	_ = installHook(s.gestures.Install, s.postStatus)

	slog.Info("service initialized", "data", dataDir, "route", s.route(), "mode", cfg.Mode, "language", cfg.Language)
	return nil
}

func (s *Service) buildOrchestrators() {
	cfg := s.cfg

	sys := &clipboard.System{}
	keys := &clipboard.Keyboard{}
	if err := keys.Prepare(); err != nil {
		slog.Warn("prepare virtual keyboard", "error", err)
	}
	var focus delivery.Focus
	if x, ok := delivery.NewXdotool(); ok {
		focus = x
	} else {
		slog.Warn("xdotool not found, focus will not be restored before paste")
	}
	deliverer := delivery.New(sys, focus, keys, delivery.Config{
		ClipboardRetries:  cfg.Delivery.ClipboardRetries,
		ClipboardBackoff:  cfg.Delivery.ClipboardBackoff.D(),
		FocusPolls:        cfg.Delivery.FocusPolls,
		FocusPollInterval: cfg.Delivery.FocusPollInterval.D(),
		FocusSettle:       cfg.Delivery.FocusSettle.D(),
	})

	deps := dictation.Deps{
		Capture:      s.capture,
		Delivery:     deliverer,
		Backends:     s.backends,
		Entitlements: s.ent,
		Cues:         s.notifier,
		Settings:     s.dictationSettings,
		Post:         s.loop.Post,
		Status:       s.onStatus,
		OnState: func(st dictation.State) {
			s.emit(EventDictationState, st.String())
		},
		OnCommand: s.onCommand,
	}
	// typed nils would defeat the orchestrator's nil checks
	if s.snippets != nil {
		deps.Snippets = s.snippets
	}
	if s.history != nil {
		deps.History = s.history
	}
	s.dictation = dictation.New(deps, dictation.Config{SettleDelay: cfg.Audio.SettleDelay.D()})

	s.reply = reply.New(reply.Deps{
		Selection:    clipboard.NewSelection(sys, keys),
		Capture:      s.capture,
		Delivery:     deliverer,
		Backends:     s.backends,
		Entitlements: s.ent,
		Detector:     &langdetect.Detector{},
		Cues:         s.notifier,
		Settings:     s.replySettings,
		Post:         s.loop.Post,
		Status:       s.onStatus,
		View: func(v types.ReplyView) {
			s.emit(EventReplyView, v)
		},
		OnTimeout: func() {
			s.emit(EventReplyTimeout, nil)
		},
	}, reply.Config{
		Timeout:     cfg.Reply.Timeout.D(),
		Tick:        cfg.Reply.Tick.D(),
		Debounce:    cfg.Reply.Debounce.D(),
		SettleDelay: cfg.Audio.SettleDelay.D(),
	})

	s.router = &router{dictation: s.dictation, reply: s.reply}
}

// Shutdown cleans up resources.
func (s *Service) Shutdown() {
	if s.gestures != nil {
		if err := s.gestures.Uninstall(); err != nil {
			slog.Warn("uninstall key hook", "error", err)
		}
	}
	if s.loop != nil {
		_ = s.loop.Do(func() {
			if s.reply.Active() {
				s.reply.Dismiss()
			}
		})
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			slog.Error("close history", "error", err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Error("close usage store", "error", err)
		}
	}
}

// emit is a safe wrapper around app.Event.Emit
func (s *Service) emit(name string, data any) {
	if s.app != nil {
		s.app.Event.Emit(name, data)
	}
}

// do runs f on the coordination loop and waits for it.
func (s *Service) do(f func()) error {
	if s.loop == nil {
		return errors.New("service not initialized")
	}
	return s.loop.Do(f)
}

// ─────────────────────────────────────────────────────────────────────────────
// Loop callbacks
// ─────────────────────────────────────────────────────────────────────────────

func (s *Service) dictationSettings() dictation.Settings {
	c := s.cfg
	wake := ""
	if c.WakeWord.Enabled {
		wake = c.WakeWord.Phrase
	}
	return dictation.Settings{
		Mode:          c.Mode,
		Language:      c.Language,
		Instruction:   c.Instruction,
		Style:         c.WritingStyle,
		WakeWord:      wake,
		DeviceID:      c.Audio.DeviceID,
		HasUserKey:    c.HasUserKey(),
		Authenticated: c.Authenticated(),
		ForceOffline:  c.ForceOffline,
	}
}

func (s *Service) replySettings() reply.Settings {
	c := s.cfg
	return reply.Settings{
		Language:      c.Language,
		DeviceID:      c.Audio.DeviceID,
		HasUserKey:    c.HasUserKey(),
		Authenticated: c.Authenticated(),
		ForceOffline:  c.ForceOffline,
	}
}

func (s *Service) onStatus(st types.Status) {
	slog.Debug("status", "source", st.Source, "message", st.Message, "error", st.Error)
	s.emit(EventStatus, st)
	if st.Error {
		s.notifier.Error(st.Message)
	}
}

// postStatus reports st from outside the loop.
func (s *Service) postStatus(st types.Status) {
	s.loop.Post(func() { s.onStatus(st) })
}

func (s *Service) onCommand(res command.Result) {
	msg, ok := applyCommand(s.cfg, s.ent, res)
	if ok {
		s.notifier.Play(notify.CueSuccess)
		s.emitSelection()
	} else {
		s.notifier.Play(notify.CueError)
	}
	s.onStatus(types.Status{Source: "app", Message: msg, Error: !ok})
}

func (s *Service) emitSelection() {
	s.emit(EventSelection, s.selection())
}

func (s *Service) selection() Selection {
	c := s.cfg
	return Selection{
		Mode:          c.Mode,
		Language:      c.Language,
		WakeWord:      c.WakeWord.Enabled,
		WakePhrase:    c.WakeWord.Phrase,
		ForceOffline:  c.ForceOffline,
		HasUserKey:    c.HasUserKey(),
		Authenticated: c.Authenticated(),
		Route:         s.route().String(),
	}
}

func (s *Service) route() engine.Selection {
	return engine.Route(engine.Inputs{
		HasUserKey:    s.cfg.HasUserKey(),
		Authenticated: s.cfg.Authenticated(),
		ForcedOffline: s.cfg.ForceOffline,
		Entitled:      s.ent.IsProOrTrialActive(),
	})
}

// applyFreeTier coerces the selection to free-tier values when the user has
// neither a plan, a trial nor their own key.
func (s *Service) applyFreeTier() {
	if s.cfg.HasUserKey() || s.ent.IsProOrTrialActive() {
		return
	}
	mode, lang, wake := entitlement.FreeTierDefaults(s.cfg.Mode, s.cfg.Language)
	wake = wake && s.cfg.WakeWord.Enabled
	if mode == s.cfg.Mode && lang == s.cfg.Language && wake == s.cfg.WakeWord.Enabled {
		return
	}
	slog.Info("applied free tier defaults", "mode", mode, "language", lang)
	s.cfg.Mode, s.cfg.Language, s.cfg.WakeWord.Enabled = mode, lang, wake
	if err := s.cfg.Save(); err != nil {
		slog.Error("save config", "error", err)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Selection
// ─────────────────────────────────────────────────────────────────────────────

// GetSelection returns the current mode, language and routing facts.
func (s *Service) GetSelection() (Selection, error) {
	var sel Selection
	err := s.do(func() { sel = s.selection() })
	return sel, err
}

// SetMode sets the dictation mode by API name.
func (s *Service) SetMode(name string) error {
	info, ok := types.LookupMode(name)
	if !ok {
		return fmt.Errorf("unknown mode: %s", name)
	}
	return s.update(func() error {
		if !s.ent.CanUseMode(info.Mode) {
			return fmt.Errorf("mode '%s' requires pro", info.Name)
		}
		s.cfg.Mode = info.Mode
		return nil
	})
}

// SetLanguage sets the dictation language by code.
func (s *Service) SetLanguage(code string) error {
	l, ok := types.LookupLanguage(code)
	if !ok {
		return fmt.Errorf("unknown language: %s", code)
	}
	return s.update(func() error {
		if !s.ent.CanUseLanguage(l.Code) {
			return fmt.Errorf("language '%s' requires pro", l.Name())
		}
		s.cfg.Language = l.Code
		return nil
	})
}

// SetWakeWord enables or disables spoken commands. An empty phrase keeps the
// current one.
func (s *Service) SetWakeWord(enabled bool, phrase string) error {
	return s.update(func() error {
		if enabled && !s.ent.IsProOrTrialActive() {
			return errors.New("wake word commands require pro")
		}
		s.cfg.WakeWord.Enabled = enabled
		if phrase != "" {
			s.cfg.WakeWord.Phrase = phrase
		}
		return nil
	})
}

// SetForceOffline forces on-device transcription.
func (s *Service) SetForceOffline(on bool) error {
	return s.update(func() error {
		s.cfg.ForceOffline = on
		return nil
	})
}

// SetInputDevice selects the microphone by name; empty uses the default.
func (s *Service) SetInputDevice(id string) error {
	return s.update(func() error {
		s.cfg.Audio.DeviceID = id
		return nil
	})
}

// SetSounds toggles sound cues.
func (s *Service) SetSounds(on bool) error {
	return s.update(func() error {
		s.cfg.Sounds = on
		s.notifier.SetSounds(on)
		return nil
	})
}

// SetNotifications toggles desktop notifications.
func (s *Service) SetNotifications(on bool) error {
	return s.update(func() error {
		s.cfg.Notifications = on
		s.notifier.SetNotifications(on)
		return nil
	})
}

// update applies f on the loop, then saves and announces the new selection.
func (s *Service) update(f func() error) error {
	var err error
	if doErr := s.do(func() {
		if err = f(); err != nil {
			return
		}
		if err = s.cfg.Save(); err != nil {
			return
		}
		s.emitSelection()
	}); doErr != nil {
		return doErr
	}
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Credentials & Account
// ─────────────────────────────────────────────────────────────────────────────

// SetUserKey stores the user's own API key and routes every request to it.
func (s *Service) SetUserKey(k config.UserKey) error {
	var err error
	if doErr := s.do(func() {
		if err = s.cfg.SetUserKey(k); err != nil {
			return
		}
		configureRemotes(s.backends, s.cfg)
		s.emitSelection()
	}); doErr != nil {
		return doErr
	}
	return err
}

// ClearUserKey removes the user's own API key.
func (s *Service) ClearUserKey() error {
	var err error
	if doErr := s.do(func() {
		if err = s.cfg.ClearUserKey(); err != nil {
			return
		}
		configureRemotes(s.backends, s.cfg)
		s.applyFreeTier()
		s.emitSelection()
	}); doErr != nil {
		return doErr
	}
	return err
}

// SignIn stores the account session and the plan the account service
// reported, which counts as an online validation.
func (s *Service) SignIn(userID, token, plan string) error {
	var err error
	if doErr := s.do(func() {
		if err = s.cfg.SignIn(userID, token); err != nil {
			return
		}
		if err = refreshAccount(s.cfg, s.ent, plan, -1, time.Now()); err != nil {
			return
		}
		configureRemotes(s.backends, s.cfg)
		s.applyFreeTier()
		s.emitSelection()
	}); doErr != nil {
		return doErr
	}
	return err
}

// ValidateAccount records a successful online check of the signed-in
// account: the current plan and the server's free usage count for this month
// (negative when unknown). It clears the revalidation block on pro plans.
func (s *Service) ValidateAccount(plan string, serverFreeUsed int) error {
	var err error
	if doErr := s.do(func() {
		if !s.cfg.Authenticated() {
			err = errors.New("not signed in")
			return
		}
		if err = refreshAccount(s.cfg, s.ent, plan, serverFreeUsed, time.Now()); err != nil {
			return
		}
		slog.Info("account validated", "plan", s.cfg.Account.Plan, "free_used", s.ent.FreeUsed())
		s.applyFreeTier()
		s.emitSelection()
	}); doErr != nil {
		return doErr
	}
	return err
}

// SignOut clears the account session and drops to the free plan.
func (s *Service) SignOut() error {
	var err error
	if doErr := s.do(func() {
		if err = s.cfg.SignOut(); err != nil {
			return
		}
		if err = s.ent.SetPlan(entitlement.PlanFree); err != nil {
			return
		}
		configureRemotes(s.backends, s.cfg)
		s.applyFreeTier()
		s.emitSelection()
	}); doErr != nil {
		return doErr
	}
	return err
}

// StartTrial opens the device trial.
func (s *Service) StartTrial() error {
	var err error
	if doErr := s.do(func() {
		if err = s.ent.StartTrial(); err != nil {
			return
		}
		slog.Info("trial started", "days", s.ent.TrialDaysRemaining())
		s.emitSelection()
	}); doErr != nil {
		return doErr
	}
	return err
}

// ExpireTrial ends the device trial now.
func (s *Service) ExpireTrial() error {
	var err error
	if doErr := s.do(func() {
		if err = s.ent.ForceExpireTrial(); err != nil {
			return
		}
		slog.Info("trial expired")
		s.applyFreeTier()
		s.emitSelection()
	}); doErr != nil {
		return doErr
	}
	return err
}

// GetUsage returns plan, trial and free-tier counters.
func (s *Service) GetUsage() UsageSummary {
	return Summarize(s.ent)
}

// Summarize reports the entitlement counters.
func Summarize(ent *entitlement.Manager) UsageSummary {
	plan := entitlement.PlanFree
	if ent.IsPro() {
		plan = entitlement.PlanPro
	}
	return UsageSummary{
		Plan:               string(plan),
		Trial:              ent.TrialState().String(),
		TrialDaysRemaining: ent.TrialDaysRemaining(),
		TrialUsed:          ent.TrialUsed(),
		TrialLimit:         entitlement.TrialLimit,
		FreeUsed:           ent.FreeUsed(),
		FreeRemaining:      ent.FreeRemaining(),
		FreeLimit:          entitlement.FreeMonthlyLimit,
		NeedsValidation:    ent.IsPro() && ent.NeedsOnlineValidation(),
	}
}

// ReinstallHook installs the global key hook again, after the OS refused it
// or the user granted keyboard access.
func (s *Service) ReinstallHook() error {
	if err := installHook(s.gestures.Reinstall, s.postStatus); err != nil {
		return err
	}
	s.postStatus(types.Status{Source: "app", Message: "Global shortcuts ready."})
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Reply
// ─────────────────────────────────────────────────────────────────────────────

// DismissReply closes the conversation reply panel.
func (s *Service) DismissReply() error {
	return s.do(func() {
		if s.reply.Active() {
			s.reply.Dismiss()
		}
	})
}

// GetReplyView returns the conversation reply panel content.
func (s *Service) GetReplyView() (types.ReplyView, error) {
	var v types.ReplyView
	err := s.do(func() { v = s.reply.View() })
	return v, err
}

// ─────────────────────────────────────────────────────────────────────────────
// History & Snippets
// ─────────────────────────────────────────────────────────────────────────────

// GetHistory returns the newest transcriptions.
func (s *Service) GetHistory(limit int) ([]history.Record, error) {
	if s.history == nil {
		return nil, errors.New("history unavailable")
	}
	return s.history.List(context.Background(), limit)
}

// ClearHistory deletes every transcription.
func (s *Service) ClearHistory() error {
	if s.history == nil {
		return errors.New("history unavailable")
	}
	return s.history.Clear(context.Background())
}

// GetSnippets returns all snippets.
func (s *Service) GetSnippets() []snippets.Snippet {
	if s.snippets == nil {
		return nil
	}
	return s.snippets.List()
}

// AddSnippet adds an enabled snippet.
func (s *Service) AddSnippet(trigger, replacement string) (snippets.Snippet, error) {
	if s.snippets == nil {
		return snippets.Snippet{}, errors.New("snippets unavailable")
	}
	return s.snippets.Add(trigger, replacement)
}

// RemoveSnippet removes a snippet by ID.
func (s *Service) RemoveSnippet(id string) error {
	if s.snippets == nil {
		return errors.New("snippets unavailable")
	}
	return s.snippets.Remove(id)
}

// SetSnippetEnabled toggles a snippet.
func (s *Service) SetSnippetEnabled(id string, on bool) error {
	if s.snippets == nil {
		return errors.New("snippets unavailable")
	}
	return s.snippets.SetEnabled(id, on)
}

// ─────────────────────────────────────────────────────────────────────────────
// Devices & Models
// ─────────────────────────────────────────────────────────────────────────────

// ListInputDevices returns the microphones PortAudio can see.
func (s *Service) ListInputDevices() ([]audiocapture.DeviceInfo, error) {
	return audiocapture.ListInputDevices()
}

// GetModelProgress returns the on-device model download progress, -1 when
// no download ran.
func (s *Service) GetModelProgress() int {
	if s.local == nil {
		return -1
	}
	return s.local.SetupProgress()
}

// DownloadModel fetches the on-device model in the background and emits
// progress events.
func (s *Service) DownloadModel() error {
	if s.local == nil {
		return errors.New("on-device backend unavailable")
	}
	go func() {
		err := s.local.Setup(context.Background(), func(percent int) {
			s.emit(EventModelProgress, percent)
		})
		if err != nil {
			slog.Error("download model", "error", err)
			s.loop.Post(func() {
				s.onStatus(types.Status{Source: "app", Message: "Model download failed: " + err.Error(), Error: true})
			})
			return
		}
		s.loop.Post(func() {
			s.onStatus(types.Status{Source: "app", Message: "Local model ready."})
		})
	}()
	return nil
}
