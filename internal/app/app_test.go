package app

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.aimuz.me/voxtype/command"
	"go.aimuz.me/voxtype/config"
	"go.aimuz.me/voxtype/engine"
	"go.aimuz.me/voxtype/entitlement"
	"go.aimuz.me/voxtype/gesture"
	"go.aimuz.me/voxtype/internal/dictation"
	"go.aimuz.me/voxtype/internal/reply"
	"go.aimuz.me/voxtype/internal/types"
	"go.aimuz.me/voxtype/stt"
	"go.aimuz.me/voxtype/usage"
)

// ─────────────────────────────────────────────────────────────────────────────
// Routing
// ─────────────────────────────────────────────────────────────────────────────

type fakeDictation struct {
	state dictation.State
	calls []string
}

func (f *fakeDictation) State() dictation.State { return f.state }
func (f *fakeDictation) HoldStart()             { f.calls = append(f.calls, "dictation.start") }
func (f *fakeDictation) HoldStop()              { f.calls = append(f.calls, "dictation.stop") }

type fakeReply struct {
	state   reply.State
	pending bool
	calls   *[]string
}

func (f *fakeReply) State() reply.State { return f.state }
func (f *fakeReply) Active() bool       { return f.state != reply.Idle || f.pending }
func (f *fakeReply) Trigger()           { *f.calls = append(*f.calls, "reply.trigger") }
func (f *fakeReply) HoldStart()         { *f.calls = append(*f.calls, "reply.start") }
func (f *fakeReply) HoldStop()          { *f.calls = append(*f.calls, "reply.stop") }

func TestRouter(t *testing.T) {
	tests := []struct {
		name      string
		dictation dictation.State
		reply     reply.State
		pending   bool
		event     gesture.Event
		want      []string
	}{
		{"hold goes to dictation", dictation.Idle, reply.Idle, false, gesture.HoldStart, []string{"dictation.start"}},
		{"hold records a ready reply", dictation.Idle, reply.Ready, false, gesture.HoldStart, []string{"reply.start"}},
		{"hold ignored while translating", dictation.Idle, reply.Translating, false, gesture.HoldStart, nil},
		{"hold ignored while snapshot pending", dictation.Idle, reply.Idle, true, gesture.HoldStart, nil},
		{"release finishes reply", dictation.Idle, reply.Recording, false, gesture.HoldStop, []string{"reply.stop"}},
		{"release finishes dictation", dictation.Recording, reply.Idle, false, gesture.HoldStop, []string{"dictation.stop"}},
		{"trigger starts reply", dictation.Idle, reply.Idle, false, gesture.SingleShotTrigger, []string{"reply.trigger"}},
		{"trigger dismisses reply", dictation.Idle, reply.Ready, false, gesture.SingleShotTrigger, []string{"reply.trigger"}},
		{"trigger ignored while recording", dictation.Recording, reply.Idle, false, gesture.SingleShotTrigger, nil},
		{"trigger ignored while processing", dictation.Processing, reply.Idle, false, gesture.SingleShotTrigger, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDictation{state: tt.dictation}
			r := &fakeReply{state: tt.reply, pending: tt.pending, calls: &d.calls}
			(&router{dictation: d, reply: r}).handle(tt.event)
			assert.Equal(t, tt.want, d.calls)
		})
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Wake word commands
// ─────────────────────────────────────────────────────────────────────────────

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newEntitlement(t *testing.T, trial bool) *entitlement.Manager {
	t.Helper()
	m := entitlement.New(usage.NewMemoryStore(), func() time.Time { return testNow })
	require.NoError(t, m.Load())
	if trial {
		require.NoError(t, m.StartTrial())
	}
	return m
}

func newConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	return cfg
}

func TestApplyCommand(t *testing.T) {
	tests := []struct {
		name     string
		trial    bool
		language string
		res      command.Result
		wantMsg  string
		wantOK   bool
		wantMode types.Mode
		wantLang string
	}{
		{
			name:     "requires pro or trial",
			res:      command.Result{Kind: command.KindMode, Mode: types.ModeEmail},
			wantMsg:  "Wake word commands require Pro. Upgrade to unlock.",
			wantMode: types.ModeText, wantLang: "en",
		},
		{
			name:     "mode",
			trial:    true,
			res:      command.Result{Kind: command.KindMode, Mode: types.ModeEmail},
			wantMsg:  "Mode switched to: Email",
			wantOK:   true,
			wantMode: types.ModeEmail, wantLang: "en",
		},
		{
			name:     "language",
			trial:    true,
			res:      command.Result{Kind: command.KindLanguage, Language: "ja"},
			wantMsg:  "Language switched to: Japanese",
			wantOK:   true,
			wantMode: types.ModeText, wantLang: "ja",
		},
		{
			name:     "next language",
			trial:    true,
			language: "en",
			res:      command.Result{Kind: command.KindNextLanguage},
			wantMsg:  "Language: Spanish",
			wantOK:   true,
			wantMode: types.ModeText, wantLang: "es",
		},
		{
			name:     "previous language wraps",
			trial:    true,
			language: "pt",
			res:      command.Result{Kind: command.KindPreviousLanguage},
			wantMsg:  "Language: Catalan",
			wantOK:   true,
			wantMode: types.ModeText, wantLang: "ca",
		},
		{
			name:     "unknown kind",
			trial:    true,
			res:      command.Result{},
			wantMsg:  "Wake word detected but command not recognized.",
			wantMode: types.ModeText, wantLang: "en",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newConfig(t)
			if tt.language != "" {
				cfg.Language = tt.language
			}
			msg, ok := applyCommand(cfg, newEntitlement(t, tt.trial), tt.res)
			assert.Equal(t, tt.wantMsg, msg)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantMode, cfg.Mode)
			assert.Equal(t, tt.wantLang, cfg.Language)

			if ok {
				saved, err := config.LoadFrom(cfg.Path())
				require.NoError(t, err)
				assert.Equal(t, cfg.Mode, saved.Mode)
				assert.Equal(t, cfg.Language, saved.Language)
			}
		})
	}
}

func TestAllowedLanguages(t *testing.T) {
	assert.Equal(t, []string{"pt", "en"}, allowedLanguages(newEntitlement(t, false)))
	assert.Len(t, allowedLanguages(newEntitlement(t, true)), len(types.Languages()))
}

// ─────────────────────────────────────────────────────────────────────────────
// Backends
// ─────────────────────────────────────────────────────────────────────────────

func TestConfigureRemotes(t *testing.T) {
	cfg := newConfig(t)
	reg := stt.NewRegistry()

	configureRemotes(reg, cfg)
	_, ok := reg.Get(engine.UserKey)
	assert.False(t, ok)
	_, ok = reg.Get(engine.CloudProxy)
	assert.False(t, ok)

	require.NoError(t, cfg.SetUserKey(config.UserKey{APIKey: "sk-test"}))
	cfg.Proxy.BaseURL = "https://proxy.example.com/v1"
	require.NoError(t, cfg.SignIn("u1", "token"))
	configureRemotes(reg, cfg)
	_, ok = reg.Get(engine.UserKey)
	assert.True(t, ok)
	_, ok = reg.Get(engine.CloudProxy)
	assert.True(t, ok)

	require.NoError(t, cfg.ClearUserKey())
	require.NoError(t, cfg.SignOut())
	configureRemotes(reg, cfg)
	_, ok = reg.Get(engine.UserKey)
	assert.False(t, ok)
	_, ok = reg.Get(engine.CloudProxy)
	assert.False(t, ok)
}

func TestNewLocalBackend(t *testing.T) {
	cfg := newConfig(t)
	dir := t.TempDir()

	local, err := NewLocalBackend(cfg, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "models", "ggml-base.bin"), local.ModelPath())
	assert.False(t, local.IsReady())

	cfg.OnDevice.ModelSize = "huge"
	_, err = NewLocalBackend(cfg, dir)
	assert.Error(t, err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Usage
// ─────────────────────────────────────────────────────────────────────────────

func TestSummarize(t *testing.T) {
	ent := newEntitlement(t, true)
	_, err := ent.RecordTrialUse()
	require.NoError(t, err)
	_, _, err = ent.RecordFreeUse()
	require.NoError(t, err)

	got := Summarize(ent)
	assert.Equal(t, "free", got.Plan)
	assert.Equal(t, "active", got.Trial)
	assert.Equal(t, 7, got.TrialDaysRemaining)
	assert.Equal(t, 1, got.TrialUsed)
	assert.Equal(t, entitlement.TrialLimit, got.TrialLimit)
	assert.Equal(t, 1, got.FreeUsed)
	assert.Equal(t, entitlement.FreeMonthlyLimit-1, got.FreeRemaining)
	assert.False(t, got.NeedsValidation)
}

// ─────────────────────────────────────────────────────────────────────────────
// Account
// ─────────────────────────────────────────────────────────────────────────────

func TestRefreshAccountRevalidatesPro(t *testing.T) {
	cfg := newConfig(t)
	ent := newEntitlement(t, false)
	require.NoError(t, ent.SetPlan(entitlement.PlanPro))
	require.NoError(t, ent.MarkValidated(testNow.Add(-72*time.Hour)))
	require.True(t, ent.NeedsOnlineValidation())

	require.NoError(t, refreshAccount(cfg, ent, "pro", 40, testNow))

	assert.True(t, ent.IsPro())
	assert.False(t, ent.NeedsOnlineValidation())
	assert.Equal(t, testNow, ent.LastValidated())
	assert.Equal(t, 40, ent.FreeUsed())

	saved, err := config.LoadFrom(cfg.Path())
	require.NoError(t, err)
	assert.Equal(t, "pro", saved.Account.Plan)
	assert.True(t, testNow.Equal(saved.Account.LastValidatedAt))
}

func TestRefreshAccountFreeUsage(t *testing.T) {
	tests := []struct {
		name       string
		plan       string
		serverFree int
		wantPlan   string
		wantUsed   int
	}{
		{"higher server count adopted", "free", 20, "free", 20},
		{"lower server count ignored", "free", 3, "free", 5},
		{"unknown count skips sync", "free", -1, "free", 5},
		{"unknown plan is free", "enterprise", -1, "free", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newConfig(t)
			ent := newEntitlement(t, false)
			for range 5 {
				_, _, err := ent.RecordFreeUse()
				require.NoError(t, err)
			}

			require.NoError(t, refreshAccount(cfg, ent, tt.plan, tt.serverFree, testNow))
			assert.Equal(t, tt.wantPlan, cfg.Account.Plan)
			assert.Equal(t, tt.wantUsed, ent.FreeUsed())
			assert.False(t, ent.IsPro())
		})
	}
}

type failingGate struct{ err error }

func (g failingGate) SetPlan(entitlement.Plan) error { return g.err }
func (g failingGate) MarkValidated(time.Time) error  { return nil }
func (g failingGate) SyncFreeUsage(int) error        { return nil }

func TestRefreshAccountError(t *testing.T) {
	cfg := newConfig(t)
	boom := errors.New("store closed")

	err := refreshAccount(cfg, failingGate{err: boom}, "pro", 0, testNow)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, cfg.Account.Plan)
	assert.True(t, cfg.Account.LastValidatedAt.IsZero())
}

// ─────────────────────────────────────────────────────────────────────────────
// Key hook
// ─────────────────────────────────────────────────────────────────────────────

func TestInstallHook(t *testing.T) {
	denied := errors.New("accessibility permission denied")
	tests := []struct {
		name       string
		installErr error
		want       []types.Status
	}{
		{"installed", nil, nil},
		{"refused", denied, []types.Status{{Source: "app", Message: hookUnavailable, Error: true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []types.Status
			err := installHook(func() error { return tt.installErr }, func(st types.Status) { got = append(got, st) })
			assert.ErrorIs(t, err, tt.installErr)
			assert.Equal(t, tt.want, got)
		})
	}
}
