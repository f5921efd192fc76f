// Package command recognizes spoken wake-word commands in a transcription.
package command

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"go.aimuz.me/voxtype/internal/types"
)

// DefaultWakeWord is the phrase used when none is configured.
const DefaultWakeWord = "Hey Vox"

// Kind is the kind of command recognized.
type Kind int

const (
	KindMode Kind = iota + 1
	KindLanguage
	KindNextLanguage
	KindPreviousLanguage
)

func (k Kind) String() string {
	switch k {
	case KindMode:
		return "mode"
	case KindLanguage:
		return "language"
	case KindNextLanguage:
		return "next-language"
	case KindPreviousLanguage:
		return "previous-language"
	default:
		return "unknown"
	}
}

// Result is a recognized command. Mode is set for KindMode, Language for
// KindLanguage.
type Result struct {
	Kind     Kind
	Mode     types.Mode
	Language string
}

// Mishearings of the default phrase that speech recognition commonly returns.
var defaultVariants = []string{"ei vox", "hey fox", "hey box", "a vox", "hey vocs"}

var fillers = []string{
	"please", "por favor", "agora", "now", "mudar para", "switch to",
	"trocar para", "change to", "usar", "use", "modo", "mode",
	"idioma", "language", "em", "in", "para", "to", "o", "a",
}

var (
	nextPhrases     = []string{"próximo idioma", "proximo idioma", "next language", "próxima língua", "proxima lingua"}
	previousPhrases = []string{"idioma anterior", "previous language", "língua anterior", "lingua anterior"}
)

var (
	fold  = cases.Fold()
	punct = strings.NewReplacer(",", " ", ".", " ", "!", " ", "?", " ")
)

// Detect reports whether text opens with wakeWord followed by a command.
func Detect(text, wakeWord string) (Result, bool) {
	lower := fold.String(strings.TrimSpace(text))
	if lower == "" {
		return Result{}, false
	}
	if strings.TrimSpace(wakeWord) == "" {
		wakeWord = DefaultWakeWord
	}
	phrase := fold.String(strings.TrimSpace(wakeWord))

	variants := []string{phrase}
	if phrase == "hey vox" {
		variants = append(variants, defaultVariants...)
	}

	var rest string
	matched := false
	for _, v := range variants {
		r, ok := strings.CutPrefix(lower, v)
		// "hey voxel" is not the wake word
		if ok && (r == "" || strings.ContainsRune(" ,.!", rune(r[0]))) {
			rest, matched = r, true
			break
		}
	}
	if !matched {
		return Result{}, false
	}

	raw := strings.Join(strings.Fields(punct.Replace(rest)), " ")
	cmd := stripFillers(raw)
	if cmd == "" {
		return Result{}, false
	}

	// Navigation phrases contain filler words ("idioma anterior"), so they
	// are matched before stripping.
	switch {
	case containsAny(raw, nextPhrases):
		return Result{Kind: KindNextLanguage}, true
	case containsAny(raw, previousPhrases):
		return Result{Kind: KindPreviousLanguage}, true
	}

	for _, m := range types.Modes() {
		if containsAny(cmd, m.Aliases) {
			return Result{Kind: KindMode, Mode: m.Mode}, true
		}
	}
	for _, l := range types.Languages() {
		if containsAny(cmd, l.Aliases) {
			return Result{Kind: KindLanguage, Language: l.Code}, true
		}
	}
	return Result{}, false
}

// stripFillers drops leading filler words and phrases.
func stripFillers(cmd string) string {
	words := strings.Fields(cmd)
	for len(words) > 0 {
		n := fillerLen(words)
		if n == 0 {
			break
		}
		words = words[n:]
	}
	return strings.Join(words, " ")
}

func fillerLen(words []string) int {
	for _, f := range fillers {
		fw := strings.Fields(f)
		if len(fw) <= len(words) && slices.Equal(fw, words[:len(fw)]) {
			return len(fw)
		}
	}
	return 0
}

// containsAny matches aliases on word boundaries so short aliases like "x"
// or "ui" do not fire inside other words.
func containsAny(cmd string, aliases []string) bool {
	padded := " " + cmd + " "
	for _, a := range aliases {
		if strings.Contains(padded, " "+fold.String(a)+" ") {
			return true
		}
	}
	return false
}

// Cycle returns the language after (step 1) or before (step -1) current in
// the allowed list, wrapping around. It returns current when allowed is empty.
func Cycle(current string, allowed []string, step int) string {
	if len(allowed) == 0 {
		return current
	}
	i := slices.Index(allowed, current)
	if i < 0 {
		if step < 0 {
			return allowed[len(allowed)-1]
		}
		return allowed[0]
	}
	n := len(allowed)
	return allowed[((i+step)%n+n)%n]
}
