// Package entitlement tracks the user's plan, the device trial and free-tier
// usage, and answers the gating questions the orchestrators ask.
package entitlement

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.aimuz.me/voxtype/internal/types"
	"go.aimuz.me/voxtype/usage"
)

const (
	// FreeMonthlyLimit is the number of on-device transcriptions per month on the free tier.
	FreeMonthlyLimit = 75
	// TrialLimit caps cloud transcriptions during the trial.
	TrialLimit = 50
	// TrialDuration is the length of the trial window.
	TrialDuration = 7 * 24 * time.Hour
	// ValidationGrace is how long a pro plan is honored without an online check.
	ValidationGrace = 48 * time.Hour
	// UpgradeReminderEvery is the free-use interval between upgrade reminders.
	UpgradeReminderEvery = 15

	freeSalt  = "v0x41g0_wh15p3r"
	trialSalt = "v0x41g0_tr14l"

	stateKey      = "entitlement/state"
	freeCountKey  = "usage/free"
	trialCountKey = "usage/trial"
)

// Plan is the subscription plan.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// TrialState is the device trial lifecycle.
type TrialState int

const (
	TrialUnknown TrialState = iota
	TrialActive
	TrialExpired
)

func (s TrialState) String() string {
	switch s {
	case TrialActive:
		return "active"
	case TrialExpired:
		return "expired"
	default:
		return "unknown"
	}
}

type state struct {
	Plan            Plan      `json:"plan"`
	LastValidatedAt time.Time `json:"last_validated_at,omitzero"`
	TrialStartedAt  time.Time `json:"trial_started_at,omitzero"`
	TrialEndsAt     time.Time `json:"trial_ends_at,omitzero"`
	TrialRegistered bool      `json:"trial_registered"`
}

// Manager answers entitlement queries. It is safe for concurrent use.
type Manager struct {
	store usage.Store
	now   func() time.Time

	mu sync.RWMutex
	st state

	free  *usage.Counter
	trial *usage.Counter
}

// New creates a Manager persisting to store. now defaults to time.Now.
func New(store usage.Store, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	m := &Manager{store: store, now: now, st: state{Plan: PlanFree}}
	m.free = usage.New(store, usage.Config{
		Key:           freeCountKey,
		Salt:          freeSalt,
		Period:        usage.Monthly,
		Limit:         FreeMonthlyLimit,
		Now:           now,
		LastValidated: m.LastValidated,
	})
	m.trial = usage.New(store, usage.Config{
		Key:           trialCountKey,
		Salt:          trialSalt,
		Period:        usage.Lifetime,
		Limit:         TrialLimit,
		Now:           now,
		LastValidated: m.LastValidated,
	})
	return m
}

// Load restores plan, trial and counters from the store.
func (m *Manager) Load() error {
	data, err := m.store.Get(stateKey)
	switch {
	case errors.Is(err, usage.ErrNotFound):
	case err != nil:
		return fmt.Errorf("read entitlement state: %w", err)
	default:
		var st state
		if err := json.Unmarshal(data, &st); err != nil {
			slog.Warn("entitlement state unreadable, using defaults", "error", err)
		} else {
			if st.Plan == "" {
				st.Plan = PlanFree
			}
			m.mu.Lock()
			m.st = st
			m.mu.Unlock()
		}
	}

	if err := m.free.Load(); err != nil {
		return fmt.Errorf("load free counter: %w", err)
	}
	if err := m.trial.Load(); err != nil {
		return fmt.Errorf("load trial counter: %w", err)
	}
	return nil
}

func (m *Manager) saveLocked() error {
	data, err := json.Marshal(m.st)
	if err != nil {
		return fmt.Errorf("marshal entitlement state: %w", err)
	}
	return m.store.Set(stateKey, data)
}

// ─────────────────────────────────────────────────────────────────────────────
// Plan & Online Validation
// ─────────────────────────────────────────────────────────────────────────────

// SetPlan records the plan reported by the account service and marks the
// account as validated now.
func (m *Manager) SetPlan(p Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.Plan = p
	m.st.LastValidatedAt = m.now()
	return m.saveLocked()
}

// MarkValidated records a successful online validation at t.
func (m *Manager) MarkValidated(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.LastValidatedAt = t
	return m.saveLocked()
}

// LastValidated returns the last online validation time, zero if never.
func (m *Manager) LastValidated() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.LastValidatedAt
}

// NeedsOnlineValidation reports whether the plan must be revalidated online.
// A clock earlier than the last validation counts as stale.
func (m *Manager) NeedsOnlineValidation() bool {
	last := m.LastValidated()
	if last.IsZero() {
		return false
	}
	elapsed := m.now().Sub(last)
	return elapsed < 0 || elapsed > ValidationGrace
}

// IsPro reports whether the user has a pro plan.
func (m *Manager) IsPro() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.Plan == PlanPro
}

// IsProOrTrialActive reports whether the user is entitled to cloud features.
func (m *Manager) IsProOrTrialActive() bool {
	return m.IsPro() || m.TrialState() == TrialActive
}

// CanUseMode reports whether mode is available to the user.
func (m *Manager) CanUseMode(mode types.Mode) bool {
	return mode.IsFree() || m.IsProOrTrialActive()
}

// CanUseLanguage reports whether the language code is available to the user.
func (m *Manager) CanUseLanguage(code string) bool {
	if l, ok := types.LookupLanguage(code); ok && l.Free {
		return true
	}
	return m.IsProOrTrialActive()
}

// ─────────────────────────────────────────────────────────────────────────────
// Trial
// ─────────────────────────────────────────────────────────────────────────────

// TrialState returns the current trial state.
func (m *Manager) TrialState() TrialState {
	m.mu.RLock()
	ends, registered := m.st.TrialEndsAt, m.st.TrialRegistered
	m.mu.RUnlock()

	if ends.IsZero() {
		if registered {
			return TrialExpired
		}
		return TrialUnknown
	}
	if m.now().Before(ends) && !m.trial.LimitReached() {
		return TrialActive
	}
	return TrialExpired
}

// TrialDaysRemaining returns whole days left in an active trial, at least 1.
func (m *Manager) TrialDaysRemaining() int {
	if m.TrialState() != TrialActive {
		return 0
	}
	m.mu.RLock()
	ends := m.st.TrialEndsAt
	m.mu.RUnlock()
	return max(1, int(ends.Sub(m.now())/(24*time.Hour)))
}

// StartTrial opens the trial window on this device. Starting a trial twice
// is refused.
func (m *Manager) StartTrial() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.st.TrialRegistered {
		return errors.New("trial already used on this device")
	}
	now := m.now()
	m.st.TrialStartedAt = now
	m.st.TrialEndsAt = now.Add(TrialDuration)
	m.st.TrialRegistered = true
	if err := m.saveLocked(); err != nil {
		return err
	}
	return m.trial.Reset()
}

// ForceExpireTrial ends the trial immediately.
func (m *Manager) ForceExpireTrial() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.st.TrialStartedAt = now.Add(-TrialDuration)
	m.st.TrialEndsAt = now.Add(-time.Second)
	m.st.TrialRegistered = true
	return m.saveLocked()
}

// TrialLimitReached reports whether the trial window is still open but its
// transcription cap has been used up.
func (m *Manager) TrialLimitReached() bool {
	m.mu.RLock()
	ends := m.st.TrialEndsAt
	m.mu.RUnlock()
	return !ends.IsZero() && m.now().Before(ends) && m.trial.LimitReached()
}

// RecordTrialUse counts one successful cloud transcription against the trial.
func (m *Manager) RecordTrialUse() (int, error) {
	return m.trial.Increment()
}

// TrialUsed returns the number of trial transcriptions used.
func (m *Manager) TrialUsed() int { return m.trial.Value() }

// ─────────────────────────────────────────────────────────────────────────────
// Free Tier
// ─────────────────────────────────────────────────────────────────────────────

// FreeLimitReached reports whether a non-entitled user has used the monthly
// on-device allowance.
func (m *Manager) FreeLimitReached() bool {
	if m.IsProOrTrialActive() {
		return false
	}
	return m.free.LimitReached()
}

// FreeUsed returns the on-device transcriptions used this month.
func (m *Manager) FreeUsed() int { return m.free.Value() }

// FreeRemaining returns the on-device transcriptions left this month.
func (m *Manager) FreeRemaining() int { return m.free.Remaining() }

// RecordFreeUse counts one successful on-device transcription. remind is
// true when the user should see an upgrade reminder.
func (m *Manager) RecordFreeUse() (count int, remind bool, err error) {
	count, err = m.free.Increment()
	if err != nil {
		return count, false, err
	}
	remind = !m.IsProOrTrialActive() &&
		count%UpgradeReminderEvery == 0 &&
		count < FreeMonthlyLimit
	return count, remind, nil
}

// SyncFreeUsage adopts a higher server-side free usage count.
func (m *Manager) SyncFreeUsage(server int) error {
	return m.free.Sync(server)
}

// FreeTierDefaults returns mode and language coerced to free-tier values,
// and whether the wake word may stay enabled.
func FreeTierDefaults(mode types.Mode, lang string) (types.Mode, string, bool) {
	if !mode.IsFree() {
		mode = types.ModeText
	}
	if l, ok := types.LookupLanguage(lang); !ok || !l.Free {
		lang = types.DefaultLanguage
	}
	return mode, lang, false
}
