package app

import (
	"log/slog"
	"path/filepath"

	"go.aimuz.me/voxtype/config"
	"go.aimuz.me/voxtype/engine"
	"go.aimuz.me/voxtype/stt"
)

// configureRemotes registers the user key and cloud proxy backends the
// configuration can serve and removes the others.
func configureRemotes(reg *stt.Registry, cfg *config.Config) {
	if cfg.HasUserKey() {
		k := cfg.UserKey
		reg.Register(engine.UserKey, stt.NewRemote(stt.RemoteConfig{
			APIKey:             k.APIKey,
			BaseURL:            k.BaseURL,
			TranscriptionModel: k.TranscriptionModel,
			ChatModel:          k.ChatModel,
		}))
	} else {
		reg.Register(engine.UserKey, nil)
	}

	if cfg.Authenticated() && cfg.Proxy.BaseURL != "" {
		reg.Register(engine.CloudProxy, stt.NewRemote(stt.RemoteConfig{
			APIKey:  cfg.Account.AccessToken,
			BaseURL: cfg.Proxy.BaseURL,
			TagMode: true,
		}))
	} else {
		reg.Register(engine.CloudProxy, nil)
	}
}

// NewLocalBackend creates the whisper.cpp backend from the configuration.
func NewLocalBackend(cfg *config.Config, dataDir string) (*stt.WhisperLocal, error) {
	dir := cfg.OnDevice.ModelDir
	if dir == "" {
		dir = filepath.Join(dataDir, "models")
	}
	return stt.NewWhisperLocal(stt.WhisperLocalConfig{
		ModelSize: cfg.OnDevice.ModelSize,
		ModelDir:  dir,
		BinPath:   cfg.OnDevice.BinPath,
	})
}

// NewBackends builds the backend registry for every route the configuration
// can serve. The on-device backend is nil when it could not be created.
func NewBackends(cfg *config.Config, dataDir string) (*stt.Registry, *stt.WhisperLocal) {
	reg := stt.NewRegistry()
	configureRemotes(reg, cfg)

	local, err := NewLocalBackend(cfg, dataDir)
	if err != nil {
		slog.Error("init whisper local", "error", err)
		return reg, nil
	}
	reg.Register(engine.OnDevice, local)
	if !local.HasBinary() {
		slog.Warn("whisper.cpp binary not found, on-device transcription unavailable")
	} else {
		slog.Info("registered on-device backend", "ready", local.IsReady(), "model", local.ModelPath())
	}
	return reg, local
}
