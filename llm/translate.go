package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.aimuz.me/voxtype/internal/types"
)

const translatePrompt = `Translate the following text to %s.
Detect the source language.
Respond with valid JSON only, no markdown and no explanation:
{"translation":"<translated text>","fromLanguageName":"<source language in English>","fromLanguageCode":"<ISO 639-1 code, e.g. ja>"}

Text:
%s`

// ErrEmptyTranslation is returned when the model replies without a translation.
var ErrEmptyTranslation = errors.New("empty translation")

// Translate translates text into the named target language and reports the
// detected source language. SourceLanguageCode is lower-cased and may be
// empty when the model could not tell.
func Translate(ctx context.Context, c Completer, text, targetLanguage string) (*types.Translation, error) {
	msgs := []Message{{Role: "user", Content: fmt.Sprintf(translatePrompt, targetLanguage, text)}}

	out, _, err := c.Complete(ctx, msgs, Options{Temperature: 0.2, MaxTokens: 4096})
	if err != nil {
		return nil, fmt.Errorf("translate: %w", err)
	}
	return ParseTranslation(out)
}

// ParseTranslation decodes a translation reply, tolerating code fences.
func ParseTranslation(out string) (*types.Translation, error) {
	body := stripFences(out)
	if i, j := strings.IndexByte(body, '{'), strings.LastIndexByte(body, '}'); i >= 0 && j > i {
		body = body[i : j+1]
	}

	var tr types.Translation
	if err := json.Unmarshal([]byte(body), &tr); err != nil {
		return nil, fmt.Errorf("parse translation: %w", err)
	}
	tr.Text = strings.TrimSpace(tr.Text)
	if tr.Text == "" {
		return nil, ErrEmptyTranslation
	}
	tr.SourceLanguageName = strings.TrimSpace(tr.SourceLanguageName)
	tr.SourceLanguageCode = strings.ToLower(strings.TrimSpace(tr.SourceLanguageCode))
	return &tr, nil
}

var fenceRE = regexp.MustCompile("```[a-zA-Z]*\n?")

func stripFences(s string) string {
	return strings.TrimSpace(fenceRE.ReplaceAllString(s, ""))
}

var greetings = []string{
	"Hello!", "Hi!", "Sure!", "Sure,", "Certainly!", "Here is:", "Here's the text:", "Here's the code:",
	"Olá!", "Olá,", "Oi!", "Claro!", "Claro,", "Aqui está:", "Segue:", "Certo!",
}

// CleanOutput strips code fences and a leading canned greeting from model output.
func CleanOutput(s string) string {
	s = stripFences(s)
	for _, g := range greetings {
		if len(s) >= len(g) && strings.EqualFold(s[:len(g)], g) {
			s = strings.TrimSpace(s[len(g):])
		}
	}
	return s
}
