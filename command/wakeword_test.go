package command

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"go.aimuz.me/voxtype/internal/types"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wakeWord string
		want     Result
		ok       bool
	}{
		{"mode", "Hey Vox, email", "Hey Vox", Result{Kind: KindMode, Mode: types.ModeEmail}, true},
		{"mode with fillers", "hey vox switch to mode code", "Hey Vox", Result{Kind: KindMode, Mode: types.ModeCode}, true},
		{"portuguese filler", "Hey Vox mudar para modo formal.", "Hey Vox", Result{Kind: KindMode, Mode: types.ModeFormal}, true},
		{"language", "Hey Vox, Spanish", "Hey Vox", Result{Kind: KindLanguage, Language: "es"}, true},
		{"language with filler", "hey vox please language german", "Hey Vox", Result{Kind: KindLanguage, Language: "de"}, true},
		{"next language", "Hey Vox next language", "Hey Vox", Result{Kind: KindNextLanguage}, true},
		{"previous language", "hey vox, idioma anterior", "Hey Vox", Result{Kind: KindPreviousLanguage}, true},
		{"misheard variant", "hey fox english", "Hey Vox", Result{Kind: KindLanguage, Language: "en"}, true},
		{"default phrase when empty", "hey box chat", "", Result{Kind: KindMode, Mode: types.ModeChat}, true},
		{"custom phrase", "Computer, summary", "Computer", Result{Kind: KindMode, Mode: types.ModeSummary}, true},
		{"variants only for default phrase", "hey fox summary", "Computer", Result{}, false},
		{"mode beats language", "hey vox email in english", "Hey Vox", Result{Kind: KindMode, Mode: types.ModeEmail}, true},
		{"no wake word", "send an email to bob", "Hey Vox", Result{}, false},
		{"wake word only", "Hey Vox.", "Hey Vox", Result{}, false},
		{"fillers only", "hey vox please now", "Hey Vox", Result{}, false},
		{"unknown command", "hey vox make coffee", "Hey Vox", Result{}, false},
		{"wake word inside a word", "hey voxel email", "Hey Vox", Result{}, false},
		{"alias must be a whole word", "hey vox textile", "Hey Vox", Result{}, false},
		{"empty", "   ", "Hey Vox", Result{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Detect(tt.text, tt.wakeWord)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCycle(t *testing.T) {
	allowed := []string{"pt", "en", "es"}

	tests := []struct {
		name    string
		current string
		step    int
		want    string
	}{
		{"next", "pt", 1, "en"},
		{"next wraps", "es", 1, "pt"},
		{"previous", "en", -1, "pt"},
		{"previous wraps", "pt", -1, "es"},
		{"unknown current next", "de", 1, "pt"},
		{"unknown current previous", "de", -1, "es"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Cycle(tt.current, allowed, tt.step))
		})
	}

	assert.Equal(t, "en", Cycle("en", nil, 1))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "mode", KindMode.String())
	assert.Equal(t, "next-language", KindNextLanguage.String())
	assert.Equal(t, "unknown", Kind(0).String())
}
