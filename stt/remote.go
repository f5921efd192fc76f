package stt

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"go.aimuz.me/voxtype/command"
	"go.aimuz.me/voxtype/internal/types"
	"go.aimuz.me/voxtype/llm"
)

// DefaultTranscriptionModel is used when no model is configured.
const DefaultTranscriptionModel = "whisper-1"

// ModeHeader carries the mode tag on proxied requests.
const ModeHeader = "X-Voxtype-Mode"

// RemoteConfig holds configuration for Remote.
type RemoteConfig struct {
	APIKey             string // user key, or the account access token for the proxy
	BaseURL            string // empty for api.openai.com
	TranscriptionModel string
	ChatModel          string
	Headers            map[string]string
	// TagMode sends the mode as ModeHeader on every request.
	TagMode bool
}

// Remote transcribes through an OpenAI-compatible audio endpoint and formats
// the transcript with a chat completion.
type Remote struct {
	client  openai.Client
	chat    llm.Completer
	model   string
	tagMode bool
	ready   bool
}

// NewRemote creates a Remote backend.
func NewRemote(cfg RemoteConfig) *Remote {
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = DefaultTranscriptionModel
	}
	return &Remote{
		client: openai.NewClient(llm.ClientOptions(cfg.APIKey, cfg.BaseURL, cfg.Headers)...),
		chat: llm.NewCompleter(llm.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.ChatModel,
			Headers: cfg.Headers,
		}),
		model:   cfg.TranscriptionModel,
		tagMode: cfg.TagMode,
		ready:   cfg.APIKey != "",
	}
}

// Transcribe implements Backend.
func (r *Remote) Transcribe(ctx context.Context, req Request) (string, error) {
	if !r.ready {
		return "", ErrNotReady
	}

	var opts []option.RequestOption
	headers := map[string]string{}
	if r.tagMode {
		opts = append(opts, option.WithHeader(ModeHeader, string(req.Mode)))
		headers[ModeHeader] = string(req.Mode)
	}

	resp, err := r.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(req.WAV), "audio.wav", "audio/wav"),
		Model: openai.AudioModel(r.model),
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}

	raw := strings.TrimSpace(resp.Text)
	if raw == "" {
		return "", nil
	}
	if req.WakeWord != "" {
		if _, ok := command.Detect(raw, req.WakeWord); ok {
			return raw, nil
		}
	}

	info := req.Mode.Info()
	out, usage, err := r.chat.Complete(ctx,
		llm.FormatMessages(info.Mode, types.LanguageName(req.Language), req.Instruction, req.Style, raw),
		llm.Options{MaxTokens: info.MaxTokens, Temperature: info.Temperature, Headers: headers})
	if err != nil {
		return "", fmt.Errorf("format transcript: %w", err)
	}
	slog.Debug("transcript formatted", "mode", info.Mode, "raw_chars", len(raw), "tokens", usage.TotalTokens)
	return llm.CleanOutput(out), nil
}

// Translate implements Backend.
func (r *Remote) Translate(ctx context.Context, text, targetLanguage string) (*types.Translation, error) {
	if !r.ready {
		return nil, ErrNotReady
	}
	return llm.Translate(ctx, r.chat, text, targetLanguage)
}
