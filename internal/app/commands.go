package app

import (
	"fmt"
	"log/slog"

	"go.aimuz.me/voxtype/command"
	"go.aimuz.me/voxtype/config"
	"go.aimuz.me/voxtype/internal/types"
)

type commandGate interface {
	IsProOrTrialActive() bool
	CanUseMode(mode types.Mode) bool
	CanUseLanguage(code string) bool
}

// applyCommand changes the selection named by a spoken command and saves it.
// It returns the status line to show and whether anything changed.
func applyCommand(cfg *config.Config, gate commandGate, res command.Result) (string, bool) {
	if !gate.IsProOrTrialActive() {
		return "Wake word commands require Pro. Upgrade to unlock.", false
	}

	var msg string
	switch res.Kind {
	case command.KindMode:
		name := res.Mode.Info().Name
		if !gate.CanUseMode(res.Mode) {
			return fmt.Sprintf("Mode '%s' requires Pro.", name), false
		}
		cfg.Mode = res.Mode
		msg = "Mode switched to: " + name

	case command.KindLanguage:
		name := types.LanguageName(res.Language)
		if !gate.CanUseLanguage(res.Language) {
			return fmt.Sprintf("Language '%s' requires Pro.", name), false
		}
		cfg.Language = res.Language
		msg = "Language switched to: " + name

	case command.KindNextLanguage, command.KindPreviousLanguage:
		step := 1
		if res.Kind == command.KindPreviousLanguage {
			step = -1
		}
		cfg.Language = command.Cycle(cfg.Language, allowedLanguages(gate), step)
		msg = "Language: " + types.LanguageName(cfg.Language)

	default:
		return "Wake word detected but command not recognized.", false
	}

	if err := cfg.Save(); err != nil {
		slog.Error("save config", "error", err)
	}
	slog.Info("wake word command applied", "kind", res.Kind, "mode", cfg.Mode, "language", cfg.Language)
	return msg, true
}

func allowedLanguages(gate commandGate) []string {
	var codes []string
	for _, l := range types.Languages() {
		if gate.CanUseLanguage(l.Code) {
			codes = append(codes, l.Code)
		}
	}
	return codes
}
