// Package config handles application configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"go.aimuz.me/voxtype/internal/types"
)

const (
	appName        = "voxtype"
	configFileName = "config.json"
)

// Config represents the application configuration.
type Config struct {
	Mode         types.Mode `json:"mode"`
	Language     string     `json:"language"`
	WakeWord     WakeWord   `json:"wake_word"`
	ForceOffline bool       `json:"force_offline"`
	// Instruction is the user's custom mode instruction.
	Instruction  string             `json:"instruction,omitempty"`
	WritingStyle types.WritingStyle `json:"writing_style"`

	UserKey  *UserKey `json:"user_key,omitempty"`
	Account  Account  `json:"account"`
	Proxy    Proxy    `json:"proxy"`
	OnDevice OnDevice `json:"on_device"`

	Audio    Audio    `json:"audio"`
	Reply    Reply    `json:"reply"`
	Delivery Delivery `json:"delivery"`

	Sounds        bool   `json:"sounds"`
	Notifications bool   `json:"notifications"`
	LogLevel      string `json:"log_level,omitempty"`

	path string
}

// WakeWord configures spoken commands.
type WakeWord struct {
	Enabled bool   `json:"enabled"`
	Phrase  string `json:"phrase"`
}

// UserKey is a user-supplied API credential. It bypasses the account and
// entitlement system.
type UserKey struct {
	ID                 string `json:"id"`
	Type               string `json:"type"` // "openai" or "openai-compatible"
	BaseURL            string `json:"base_url,omitempty"`
	APIKey             string `json:"api_key"`
	TranscriptionModel string `json:"transcription_model,omitempty"`
	ChatModel          string `json:"chat_model,omitempty"`
}

// Account is the signed-in account.
type Account struct {
	UserID          string    `json:"user_id,omitempty"`
	AccessToken     string    `json:"access_token,omitempty"`
	Plan            string    `json:"plan,omitempty"`
	LastValidatedAt time.Time `json:"last_validated_at,omitzero"`
}

// Proxy is the cloud proxy endpoint.
type Proxy struct {
	BaseURL string `json:"base_url"`
}

// OnDevice configures the whisper.cpp backend.
type OnDevice struct {
	ModelSize string `json:"model_size"`
	BinPath   string `json:"bin_path,omitempty"`
	ModelDir  string `json:"model_dir,omitempty"`
}

// Audio configures capture.
type Audio struct {
	DeviceID string `json:"device_id,omitempty"`
	// SettleDelay is the pause after stopping the stream before the buffer is read.
	SettleDelay Duration `json:"settle_delay"`
	KeepFiles   int      `json:"keep_files"`
}

// Reply configures conversation reply.
type Reply struct {
	Timeout  Duration `json:"timeout"`
	Tick     Duration `json:"tick"`
	Debounce Duration `json:"debounce"`
}

// Delivery configures output delivery.
type Delivery struct {
	ClipboardRetries  int      `json:"clipboard_retries"`
	ClipboardBackoff  Duration `json:"clipboard_backoff"`
	FocusPolls        int      `json:"focus_polls"`
	FocusPollInterval Duration `json:"focus_poll_interval"`
	FocusSettle       Duration `json:"focus_settle"`
}

// Duration is a time.Duration stored as a Go duration string.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// bare numbers are milliseconds
		var ms int64
		if err := json.Unmarshal(b, &ms); err != nil {
			return fmt.Errorf("invalid duration %s", b)
		}
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Load loads configuration from the config file.
// Returns default config if file doesn't exist.
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, fmt.Errorf("get config path: %w", err)
	}
	return LoadFrom(path)
}

// LoadFrom loads configuration from path.
func LoadFrom(path string) (*Config, error) {
	cfg := defaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save persists the configuration to disk.
func (c *Config) Save() error {
	path := c.path
	if path == "" {
		p, err := configPath()
		if err != nil {
			return fmt.Errorf("get config path: %w", err)
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// The file holds API keys and the account token.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Path returns the file the config is saved to.
func (c *Config) Path() string { return c.path }

// ─────────────────────────────────────────────────────────────────────────────
// User Key
// ─────────────────────────────────────────────────────────────────────────────

// HasUserKey reports whether a usable user key is configured.
func (c *Config) HasUserKey() bool {
	return c.UserKey != nil && c.UserKey.APIKey != ""
}

// SetUserKey validates and stores a user key.
func (c *Config) SetUserKey(k UserKey) error {
	if err := validateUserKey(k); err != nil {
		return err
	}
	if k.ID == "" {
		k.ID = uuid.New().String()
	}
	if k.Type == "" {
		k.Type = "openai"
	}
	c.UserKey = &k
	return c.Save()
}

// ClearUserKey removes the user key.
func (c *Config) ClearUserKey() error {
	c.UserKey = nil
	return c.Save()
}

func validateUserKey(k UserKey) error {
	if k.APIKey == "" {
		return errors.New("api key required")
	}
	switch k.Type {
	case "", "openai":
	case "openai-compatible":
		if k.BaseURL == "" {
			return errors.New("base url required for openai-compatible")
		}
	default:
		return fmt.Errorf("unsupported key type: %s", k.Type)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Account
// ─────────────────────────────────────────────────────────────────────────────

// Authenticated reports whether an account is signed in.
func (c *Config) Authenticated() bool {
	return c.Account.AccessToken != ""
}

// SignIn stores the account session.
func (c *Config) SignIn(userID, token string) error {
	if token == "" {
		return errors.New("access token required")
	}
	c.Account.UserID = userID
	c.Account.AccessToken = token
	return c.Save()
}

// SignOut clears the account session.
func (c *Config) SignOut() error {
	c.Account = Account{}
	return c.Save()
}

// ─────────────────────────────────────────────────────────────────────────────
// Defaults
// ─────────────────────────────────────────────────────────────────────────────

// DataDir returns the directory holding the usage store, history, snippets
// and captures.
func DataDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName), nil
}

func configPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

func defaultConfig() *Config {
	c := &Config{
		Sounds:        true,
		Notifications: true,
		WakeWord:      WakeWord{Enabled: true},
		WritingStyle:  types.DefaultWritingStyle(),
	}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if _, ok := types.LookupMode(string(c.Mode)); !ok {
		c.Mode = types.DefaultMode
	}
	if _, ok := types.LookupLanguage(c.Language); !ok {
		c.Language = types.DefaultLanguage
	}
	c.Language = strings.ToLower(c.Language)
	if c.WakeWord.Phrase == "" {
		c.WakeWord.Phrase = "Hey Vox"
	}
	if c.UserKey != nil {
		if c.UserKey.TranscriptionModel == "" {
			c.UserKey.TranscriptionModel = "whisper-1"
		}
		if c.UserKey.ChatModel == "" {
			c.UserKey.ChatModel = "gpt-4o-mini"
		}
	}
	ws := &c.WritingStyle
	ws.Formality = min(max(ws.Formality, 0), 100)
	ws.Verbosity = min(max(ws.Verbosity, 0), 100)
	ws.Technical = min(max(ws.Technical, 0), 100)
	ws.Instructions = strings.TrimSpace(ws.Instructions)

	if c.OnDevice.ModelSize == "" {
		c.OnDevice.ModelSize = "base"
	}

	setDefault(&c.Audio.SettleDelay, 150*time.Millisecond)
	if c.Audio.KeepFiles == 0 {
		c.Audio.KeepFiles = 5
	}

	setDefault(&c.Reply.Timeout, 25*time.Second)
	setDefault(&c.Reply.Tick, 50*time.Millisecond)
	setDefault(&c.Reply.Debounce, 500*time.Millisecond)

	if c.Delivery.ClipboardRetries == 0 {
		c.Delivery.ClipboardRetries = 10
	}
	setDefault(&c.Delivery.ClipboardBackoff, 50*time.Millisecond)
	if c.Delivery.FocusPolls == 0 {
		c.Delivery.FocusPolls = 50
	}
	setDefault(&c.Delivery.FocusPollInterval, 10*time.Millisecond)
	setDefault(&c.Delivery.FocusSettle, 50*time.Millisecond)
}

func setDefault(d *Duration, v time.Duration) {
	if *d == 0 {
		*d = Duration(v)
	}
}
