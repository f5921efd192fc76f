// Package langdetect guesses the language of a piece of text.
package langdetect

import (
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"

	"go.aimuz.me/voxtype/internal/types"
)

// minChars is the shortest input worth detecting.
const minChars = 3

// Detector detects languages among the supported speech languages.
// The zero value is ready to use; models load on first Detect.
type Detector struct {
	once     sync.Once
	detector lingua.LanguageDetector
}

// lingua has no macrolanguage code for Norwegian.
var isoAliases = map[string]string{"no": "nb"}

func (d *Detector) build() {
	var codes []lingua.IsoCode639_1
	for _, l := range types.Languages() {
		code := l.Code
		if alias, ok := isoAliases[code]; ok {
			code = alias
		}
		iso := lingua.GetIsoCode639_1FromValue(code)
		if iso == lingua.UnknownIsoCode639_1 {
			continue
		}
		codes = append(codes, iso)
	}
	d.detector = lingua.NewLanguageDetectorBuilder().
		FromIsoCodes639_1(codes...).
		WithMinimumRelativeDistance(0.1).
		Build()
}

// Detect returns the ISO 639-1 code and English name of text's language.
func (d *Detector) Detect(text string) (code, name string, ok bool) {
	text = strings.TrimSpace(text)
	if len([]rune(text)) < minChars {
		return "", "", false
	}
	d.once.Do(d.build)

	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return "", "", false
	}
	code = strings.ToLower(lang.IsoCode639_1().String())
	for k, v := range isoAliases {
		if v == code {
			code = k
		}
	}
	return code, types.LanguageName(code), true
}
