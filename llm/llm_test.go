package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.aimuz.me/voxtype/internal/types"
)

// mockCompleter implements Completer for testing.
type mockCompleter struct {
	response string
	err      error

	got  []Message
	opts Options
}

func (m *mockCompleter) Complete(_ context.Context, msgs []Message, opts Options) (string, types.Usage, error) {
	m.got, m.opts = msgs, opts
	return m.response, types.Usage{}, m.err
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     *types.Translation
		wantErr  bool
	}{
		{
			name:     "plain json",
			response: `{"translation":"Hello","fromLanguageName":"Japanese","fromLanguageCode":"JA"}`,
			want:     &types.Translation{Text: "Hello", SourceLanguageName: "Japanese", SourceLanguageCode: "ja"},
		},
		{
			name:     "fenced json",
			response: "```json\n{\"translation\":\"Olá\",\"fromLanguageName\":\"English\",\"fromLanguageCode\":\"en\"}\n```",
			want:     &types.Translation{Text: "Olá", SourceLanguageName: "English", SourceLanguageCode: "en"},
		},
		{
			name:     "leading prose",
			response: `Sure: {"translation":"Hola","fromLanguageName":"","fromLanguageCode":""}`,
			want:     &types.Translation{Text: "Hola"},
		},
		{name: "not json", response: "Hello there", wantErr: true},
		{name: "empty translation", response: `{"translation":"  "}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockCompleter{response: tt.response}
			got, err := Translate(context.Background(), m, "こんにちは", "English")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			require.Len(t, m.got, 1)
			assert.Contains(t, m.got[0].Content, "Translate the following text to English.")
			assert.Contains(t, m.got[0].Content, "こんにちは")
		})
	}
}

func TestTranslateCompleterError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Translate(context.Background(), &mockCompleter{err: boom}, "x", "English")
	assert.ErrorIs(t, err, boom)
}

func TestFormatPrompt(t *testing.T) {
	neutral := types.DefaultWritingStyle()
	p := FormatPrompt(types.ModeEmail, "Portuguese", "", neutral)
	assert.Contains(t, p, "professional email")
	assert.Contains(t, p, "Write the result in Portuguese")
	assert.NotContains(t, p, "USER INSTRUCTION")
	assert.NotContains(t, p, "WRITING STYLE")

	p = FormatPrompt(types.ModeCustom, "English", "Answer like a pirate.", neutral)
	assert.Contains(t, p, "USER INSTRUCTION:\nAnswer like a pirate.")

	// unknown modes fall back to text
	assert.Equal(t, FormatPrompt(types.ModeText, "English", "", neutral), FormatPrompt("bogus", "English", "", neutral))

	msgs := FormatMessages(types.ModeChat, "English", "", neutral, "hey whats up")
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "hey whats up", msgs[1].Content)
}

func TestStylePrompt(t *testing.T) {
	tests := []struct {
		name  string
		style types.WritingStyle
		want  []string
	}{
		{"disabled", types.WritingStyle{Formality: 0, Verbosity: 100, Technical: 0}, nil},
		{"neutral", types.WritingStyle{Enabled: true, Formality: 50, Verbosity: 50, Technical: 50}, nil},
		{"thresholds are exclusive", types.WritingStyle{Enabled: true, Formality: 30, Verbosity: 70, Technical: 30}, nil},
		{"casual", types.WritingStyle{Enabled: true, Formality: 29, Verbosity: 50, Technical: 50},
			[]string{"Use a casual, conversational tone."}},
		{"formal", types.WritingStyle{Enabled: true, Formality: 71, Verbosity: 50, Technical: 50},
			[]string{"Use a formal, professional tone."}},
		{"concise and technical", types.WritingStyle{Enabled: true, Formality: 50, Verbosity: 0, Technical: 100},
			[]string{"Be very concise and brief.", "Use precise technical terminology."}},
		{"detailed and simple", types.WritingStyle{Enabled: true, Formality: 50, Verbosity: 90, Technical: 10},
			[]string{"Be detailed and thorough.", "Use simple, non-technical language."}},
		{"instructions only", types.WritingStyle{Enabled: true, Formality: 50, Verbosity: 50, Technical: 50, Instructions: "  Use British spelling. "},
			[]string{"Use British spelling."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StylePrompt(tt.style)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, "WRITING STYLE INSTRUCTIONS:\n"+strings.Join(tt.want, "\n"), got)
		})
	}
}

func TestFormatPromptWritingStyle(t *testing.T) {
	style := types.WritingStyle{Enabled: true, Formality: 100, Verbosity: 50, Technical: 50}
	tests := []struct {
		mode types.Mode
		want bool
	}{
		{types.ModeText, true},
		{types.ModeEmail, true},
		{types.ModeCustom, false},
		{types.ModeVibeCoder, false},
		{"bogus", true},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			p := FormatPrompt(tt.mode, "English", "", style)
			if tt.want {
				assert.Contains(t, p, "WRITING STYLE INSTRUCTIONS:\nUse a formal, professional tone.")
			} else {
				assert.NotContains(t, p, "WRITING STYLE")
			}
		})
	}
}

func TestCleanOutput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello world", "Hello world"},
		{"Sure! Hello world", "Hello world"},
		{"```go\nfmt.Println(1)\n```", "fmt.Println(1)"},
		{"  claro, tudo bem  ", "tudo bem"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanOutput(tt.in), tt.in)
	}
}

func TestOpenAICompleter(t *testing.T) {
	var gotAuth, gotMode string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotMode = r.Header.Get("X-Voxtype-Mode")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "c1", "object": "chat.completion", "created": 1, "model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "formatted"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`)
	}))
	defer srv.Close()

	c := NewCompleter(Config{APIKey: "sk-test", BaseURL: srv.URL})
	out, usage, err := c.Complete(context.Background(),
		[]Message{{Role: "system", Content: "sys"}, {Role: "user", Content: "raw"}},
		Options{MaxTokens: 512, Temperature: 0.3, Headers: map[string]string{"X-Voxtype-Mode": "email"}})
	require.NoError(t, err)

	assert.Equal(t, "formatted", out)
	assert.Equal(t, types.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15}, usage)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "email", gotMode)
	assert.Equal(t, DefaultChatModel, gotBody["model"])
	assert.EqualValues(t, 512, gotBody["max_completion_tokens"])
	msgs, _ := gotBody["messages"].([]any)
	assert.Len(t, msgs, 2)
}
