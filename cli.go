package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"go.aimuz.me/voxtype/audiocapture"
	"go.aimuz.me/voxtype/config"
	"go.aimuz.me/voxtype/engine"
	"go.aimuz.me/voxtype/entitlement"
	"go.aimuz.me/voxtype/history"
	"go.aimuz.me/voxtype/internal/app"
	"go.aimuz.me/voxtype/internal/types"
	"go.aimuz.me/voxtype/stt"
	"go.aimuz.me/voxtype/usage"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp() *cli.App {
	cliApp := &cli.App{
		Name:    "voxtype",
		Usage:   "Hold-to-talk dictation and conversation reply",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Usage: "debug|info|warn|error (default from config, else info)"},
		},
		Before: func(c *cli.Context) error {
			level := c.String("log-level")
			if level == "" {
				if cfg, err := config.Load(); err == nil {
					level = cfg.LogLevel
				}
			}
			setupLogging(level)
			return nil
		},
		Action: func(*cli.Context) error {
			return runTray()
		},
		Commands: []*cli.Command{
			runCmd(),
			usageCmd(),
			historyCmd(),
			devicesCmd(),
			transcribeCmd(),
			modelCmd(),
			trialCmd(),
		},
	}
	// main reports the error and sets the exit code
	cliApp.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return cliApp
}

func setupLogging(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Start the tray application (default)",
		Action: func(*cli.Context) error {
			return runTray()
		},
	}
}

func usageCmd() *cli.Command {
	return &cli.Command{
		Name:  "usage",
		Usage: "Show plan, trial and free-tier usage",
		Action: func(*cli.Context) error {
			ent, closeStore, err := openEntitlement()
			if err != nil {
				return outputError(err)
			}
			defer closeStore()
			return outputJSON(app.Summarize(ent))
		},
	}
}

func historyCmd() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recent transcriptions",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "Maximum records"},
			&cli.BoolFlag{Name: "clear", Usage: "Delete all records"},
		},
		Action: func(c *cli.Context) error {
			dir, err := config.DataDir()
			if err != nil {
				return outputError(err)
			}
			store, err := history.Open(filepath.Join(dir, history.FileName))
			if err != nil {
				return outputError(err)
			}
			defer store.Close()

			if c.Bool("clear") {
				if err := store.Clear(c.Context); err != nil {
					return outputError(err)
				}
				return outputJSON(map[string]bool{"cleared": true})
			}
			records, err := store.List(c.Context, c.Int("limit"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(records)
		},
	}
}

func devicesCmd() *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "List microphones",
		Action: func(*cli.Context) error {
			devices, err := audiocapture.ListInputDevices()
			if err != nil {
				return outputError(err)
			}
			return outputJSON(devices)
		},
	}
}

func transcribeCmd() *cli.Command {
	return &cli.Command{
		Name:      "transcribe",
		Usage:     "Transcribe a WAV file with the configured backend",
		ArgsUsage: "<file.wav>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Usage: "Mode API name (default from config)"},
			&cli.StringFlag{Name: "language", Aliases: []string{"l"}, Usage: "Output language code (default from config)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(errors.New("exactly one wav file required"))
			}
			cfg, err := config.Load()
			if err != nil {
				return outputError(err)
			}
			mode, lang := cfg.Mode, cfg.Language
			if m := c.String("mode"); m != "" {
				info, ok := types.LookupMode(m)
				if !ok {
					return outputError(fmt.Errorf("unknown mode: %s", m))
				}
				mode = info.Mode
			}
			if l := c.String("language"); l != "" {
				if _, ok := types.LookupLanguage(l); !ok {
					return outputError(fmt.Errorf("unknown language: %s", l))
				}
				lang = strings.ToLower(l)
			}

			ent, closeStore, err := openEntitlement()
			if err != nil {
				return outputError(err)
			}
			defer closeStore()

			route := engine.Route(engine.Inputs{
				HasUserKey:    cfg.HasUserKey(),
				Authenticated: cfg.Authenticated(),
				ForcedOffline: cfg.ForceOffline,
				Entitled:      ent.IsProOrTrialActive(),
			})
			dir, err := config.DataDir()
			if err != nil {
				return outputError(err)
			}
			reg, _ := app.NewBackends(cfg, dir)
			backend, ok := reg.Get(route)
			if !ok {
				return outputError(fmt.Errorf("no %s backend configured", route))
			}

			samples, format, err := audiocapture.ReadWAVFile(c.Args().First())
			if err != nil {
				return outputError(err)
			}
			rec := &audiocapture.Recording{Samples: samples, Format: format}
			wav, err := rec.ModelWAV()
			if err != nil {
				return outputError(err)
			}

			ctx, cancel := context.WithTimeout(c.Context, 2*time.Minute)
			defer cancel()
			text, err := backend.Transcribe(ctx, stt.Request{WAV: wav, Mode: mode, Language: lang, Instruction: cfg.Instruction, Style: cfg.WritingStyle})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]string{"route": route.String(), "text": text})
		},
	}
}

func modelCmd() *cli.Command {
	return &cli.Command{
		Name:  "model",
		Usage: "Manage the on-device model",
		Subcommands: []*cli.Command{
			{
				Name:  "download",
				Usage: "Download the configured whisper.cpp model",
				Action: func(c *cli.Context) error {
					cfg, err := config.Load()
					if err != nil {
						return outputError(err)
					}
					dir, err := config.DataDir()
					if err != nil {
						return outputError(err)
					}
					local, err := app.NewLocalBackend(cfg, dir)
					if err != nil {
						return outputError(err)
					}
					last := -1
					err = local.Setup(c.Context, func(percent int) {
						if percent/10 != last/10 {
							fmt.Fprintf(os.Stderr, "downloading %s: %d%%\n", filepath.Base(local.ModelPath()), percent)
						}
						last = percent
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"model": local.ModelPath(), "ready": local.IsReady()})
				},
			},
		},
	}
}

func trialCmd() *cli.Command {
	run := func(f func(*entitlement.Manager) error) cli.ActionFunc {
		return func(*cli.Context) error {
			ent, closeStore, err := openEntitlement()
			if err != nil {
				return outputError(err)
			}
			defer closeStore()
			if err := f(ent); err != nil {
				return outputError(err)
			}
			return outputJSON(app.Summarize(ent))
		}
	}
	return &cli.Command{
		Name:  "trial",
		Usage: "Manage the device trial",
		Subcommands: []*cli.Command{
			{
				Name:   "start",
				Usage:  "Start the 7-day trial",
				Action: run((*entitlement.Manager).StartTrial),
			},
			{
				Name:   "expire",
				Usage:  "End the trial now",
				Action: run((*entitlement.Manager).ForceExpireTrial),
			},
		},
	}
}

// openEntitlement opens the usage store and loads the entitlement state.
// The store is locked by a running tray application.
func openEntitlement() (*entitlement.Manager, func(), error) {
	dir, err := config.DataDir()
	if err != nil {
		return nil, nil, err
	}
	store, err := usage.OpenBadger(filepath.Join(dir, app.UsageDir))
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() {
		if err := store.Close(); err != nil {
			slog.Error("close usage store", "error", err)
		}
	}
	ent := entitlement.New(store, time.Now)
	if err := ent.Load(); err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("load entitlement: %w", err)
	}
	return ent, closeStore, nil
}

// outputJSON writes v to stdout as indented JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	return cli.Exit(err.Error(), 1)
}
