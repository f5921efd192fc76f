package langdetect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	var d Detector

	tests := []struct {
		name     string
		text     string
		wantCode string
		wantName string
	}{
		{"english", "Could you please send me the report before the meeting tomorrow?", "en", "English"},
		{"portuguese", "Você pode me enviar o relatório antes da reunião de amanhã?", "pt", "Portuguese"},
		{"japanese", "明日の会議の前にレポートを送ってもらえますか？", "ja", "Japanese"},
		{"german", "Kannst du mir bitte den Bericht vor dem Treffen morgen schicken?", "de", "German"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, name, ok := d.Detect(tt.text)
			assert.True(t, ok)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantName, name)
		})
	}
}

func TestDetectTooShort(t *testing.T) {
	var d Detector
	_, _, ok := d.Detect(" a ")
	assert.False(t, ok)
}
