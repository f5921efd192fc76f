// Package types provides shared type definitions for the application.
package types

import (
	"slices"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Mode is a transcription formatting mode, identified by its API name.
type Mode string

const (
	ModeText        Mode = "text"
	ModeChat        Mode = "chat"
	ModeCode        Mode = "code"
	ModeVibeCoder   Mode = "vibe_coder"
	ModeEmail       Mode = "email"
	ModeFormal      Mode = "formal"
	ModeSocial      Mode = "social"
	ModeX           Mode = "x"
	ModeSummary     Mode = "summary"
	ModeTopics      Mode = "topics"
	ModeMeeting     Mode = "meeting"
	ModeUXDesign    Mode = "ux_design"
	ModeTranslation Mode = "translation"
	ModeCreative    Mode = "creative"
	ModeCustom      Mode = "custom"
)

// DefaultMode is used when the configured mode is unknown.
const DefaultMode = ModeText

// ModeInfo describes a transcription mode.
type ModeInfo struct {
	Mode        Mode     `json:"mode"`
	Name        string   `json:"name"`
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"maxTokens"`
	Aliases     []string `json:"aliases,omitempty"` // spoken names for wake-word commands
}

var modes = []ModeInfo{
	{ModeText, "Text", 0.3, 2048, []string{"texto", "text", "transcrição", "transcricao", "transcription", "normal"}},
	{ModeChat, "Chat", 0.4, 2048, []string{"chat", "conversa", "conversation", "reply"}},
	{ModeCode, "Code", 0.1, 4096, []string{"código", "codigo", "code", "programação", "programacao", "programming"}},
	{ModeVibeCoder, "Vibe Coder", 0.3, 1024, []string{"vibe coder", "vibe", "vibe coding", "vibecoder"}},
	{ModeEmail, "Email", 0.2, 2048, []string{"email", "e-mail", "emails", "mensagem", "message"}},
	{ModeFormal, "Formal", 0.2, 2048, []string{"formal", "profissional", "professional", "corporativo", "corporate"}},
	{ModeSocial, "Social", 0.5, 2048, []string{"social", "post", "instagram", "redes sociais"}},
	{ModeX, "X / Tweet", 0.5, 512, []string{"tweet", "x", "twitter"}},
	{ModeSummary, "Summary", 0.3, 2048, []string{"resumo", "summary", "resumir", "summarize", "sintetizar"}},
	{ModeTopics, "Topics", 0.2, 2048, []string{"tópicos", "topicos", "topics", "bullet points", "bullets", "lista", "list"}},
	{ModeMeeting, "Meeting", 0.3, 2048, []string{"reunião", "reuniao", "meeting", "ata", "minutes"}},
	{ModeUXDesign, "UX Design", 0.5, 2048, []string{"ux", "ux design", "design", "ui", "interface"}},
	{ModeTranslation, "Translation", 0.2, 4096, nil},
	{ModeCreative, "Creative", 0.7, 2048, []string{"criativo", "creative", "criatividade", "creativity", "storytelling"}},
	{ModeCustom, "Custom", 0.4, 2048, []string{"meu modo", "custom", "personalizado", "personal"}},
}

// Modes returns all modes in menu order.
func Modes() []ModeInfo {
	return slices.Clone(modes)
}

// LookupMode finds a mode by API name.
func LookupMode(name string) (ModeInfo, bool) {
	for _, m := range modes {
		if string(m.Mode) == name {
			return m, true
		}
	}
	return ModeInfo{}, false
}

// Info returns the mode description, falling back to DefaultMode.
func (m Mode) Info() ModeInfo {
	if info, ok := LookupMode(string(m)); ok {
		return info
	}
	info, _ := LookupMode(string(DefaultMode))
	return info
}

// IsFree reports whether the mode is available on the free tier.
func (m Mode) IsFree() bool { return m == ModeText }

// ─────────────────────────────────────────────────────────────────────────────
// Speech Languages
// ─────────────────────────────────────────────────────────────────────────────

// Language is a speech language the user can dictate in.
type Language struct {
	Code    string   `json:"code"`
	Aliases []string `json:"aliases,omitempty"`
	Free    bool     `json:"free"`
}

// DefaultLanguage is used when the configured language is unknown.
const DefaultLanguage = "en"

var languages = []Language{
	{"pt", []string{"português", "portugues", "portuguese", "brasil"}, true},
	{"en", []string{"inglês", "ingles", "english", "americano"}, true},
	{"es", []string{"espanhol", "spanish", "castelhano"}, false},
	{"fr", []string{"francês", "frances", "french"}, false},
	{"de", []string{"alemão", "alemao", "german"}, false},
	{"it", []string{"italiano", "italian"}, false},
	{"ja", []string{"japonês", "japones", "japanese", "nihongo"}, false},
	{"zh", []string{"chinês", "chines", "chinese", "mandarin"}, false},
	{"ru", []string{"russo", "russian"}, false},
	{"nl", []string{"holandês", "dutch"}, false},
	{"ko", []string{"coreano", "korean"}, false},
	{"ar", []string{"árabe", "arabe", "arabic"}, false},
	{"hi", []string{"hindi", "indiano"}, false},
	{"tr", []string{"turco", "turkish"}, false},
	{"pl", []string{"polonês", "polish"}, false},
	{"sv", []string{"sueco", "swedish"}, false},
	{"no", []string{"norueguês", "norwegian"}, false},
	{"da", []string{"dinamarquês", "danish"}, false},
	{"fi", []string{"finlandês", "finnish"}, false},
	{"cs", []string{"checo", "czech"}, false},
	{"el", []string{"grego", "greek"}, false},
	{"he", []string{"hebraico", "hebrew"}, false},
	{"th", []string{"tailandês", "thai"}, false},
	{"vi", []string{"vietnamita", "vietnamese"}, false},
	{"id", []string{"indonésio", "indonesian"}, false},
	{"ms", []string{"malaio", "malay"}, false},
	{"uk", []string{"ucraniano", "ukrainian"}, false},
	{"ro", []string{"romeno", "romanian"}, false},
	{"hu", []string{"húngaro", "hungarian"}, false},
	{"ca", []string{"catalão", "catalan"}, false},
}

// Languages returns all speech languages in menu order.
func Languages() []Language {
	return slices.Clone(languages)
}

// LookupLanguage finds a language by ISO 639-1 code (case-insensitive).
func LookupLanguage(code string) (Language, bool) {
	code = strings.ToLower(code)
	for _, l := range languages {
		if l.Code == code {
			return l, true
		}
	}
	return Language{}, false
}

// Name returns the English name of the language, e.g. "Portuguese".
func (l Language) Name() string {
	return LanguageName(l.Code)
}

// NativeName returns the language's name in itself, e.g. "português".
func (l Language) NativeName() string {
	tag, err := language.Parse(l.Code)
	if err != nil {
		return l.Code
	}
	return display.Self.Name(tag)
}

// LanguageName returns the English name for an ISO 639 code, or the code
// itself when it cannot be parsed.
func LanguageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}

// ─────────────────────────────────────────────────────────────────────────────
// Backend Results
// ─────────────────────────────────────────────────────────────────────────────

// Usage represents token usage statistics from LLM API calls.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Translation is the result of translating a piece of text.
type Translation struct {
	Text               string `json:"translation"`
	SourceLanguageName string `json:"fromLanguageName"`
	SourceLanguageCode string `json:"fromLanguageCode"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Writing Style
// ─────────────────────────────────────────────────────────────────────────────

// WritingStyle tunes formatted output. Levels run from 0 to 100 with 50 as
// neutral: formality goes casual to formal, verbosity concise to detailed,
// technical simple to highly technical.
type WritingStyle struct {
	Enabled      bool   `json:"enabled"`
	Formality    int    `json:"formality"`
	Verbosity    int    `json:"verbosity"`
	Technical    int    `json:"technical"`
	Instructions string `json:"instructions,omitempty"`
}

// DefaultWritingStyle is disabled with every level neutral.
func DefaultWritingStyle() WritingStyle {
	return WritingStyle{Formality: 50, Verbosity: 50, Technical: 50}
}

// ─────────────────────────────────────────────────────────────────────────────
// Frontend Events
// ─────────────────────────────────────────────────────────────────────────────

// Status is a user-facing status line emitted by the orchestrators.
type Status struct {
	Source  string `json:"source"` // "dictation", "reply", "app"
	Message string `json:"message"`
	Error   bool   `json:"error"`
}

// ReplyView is the state of the conversation reply HUD.
type ReplyView struct {
	State        string  `json:"state"`
	Original     string  `json:"original,omitempty"`
	Translation  string  `json:"translation,omitempty"`
	FromLanguage string  `json:"fromLanguage,omitempty"`
	FromCode     string  `json:"fromCode,omitempty"`
	ToLanguage   string  `json:"toLanguage,omitempty"`
	Progress     float64 `json:"progress"` // countdown 1 -> 0 while ready
}
