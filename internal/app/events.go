package app

import "go.aimuz.me/voxtype/internal/types"

// Event names for frontend communication.
const (
	EventDictationState = "dictation-state"
	EventReplyView      = "reply-view"
	EventReplyTimeout   = "reply-timeout"
	EventStatus         = "status"
	EventSelection      = "selection-changed"
	EventModelProgress  = "model-download-progress"
)

// Selection is the user's current dictation selection, emitted whenever a
// setting or a spoken command changes it.
type Selection struct {
	Mode          types.Mode `json:"mode"`
	Language      string     `json:"language"`
	WakeWord      bool       `json:"wakeWord"`
	WakePhrase    string     `json:"wakePhrase"`
	ForceOffline  bool       `json:"forceOffline"`
	HasUserKey    bool       `json:"hasUserKey"`
	Authenticated bool       `json:"authenticated"`
	Route         string     `json:"route"`
}

// UsageSummary is the plan, trial and free-tier counters shown to the user.
type UsageSummary struct {
	Plan               string `json:"plan"`
	Trial              string `json:"trial"`
	TrialDaysRemaining int    `json:"trialDaysRemaining"`
	TrialUsed          int    `json:"trialUsed"`
	TrialLimit         int    `json:"trialLimit"`
	FreeUsed           int    `json:"freeUsed"`
	FreeRemaining      int    `json:"freeRemaining"`
	FreeLimit          int    `json:"freeLimit"`
	NeedsValidation    bool   `json:"needsValidation"`
}
