package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/wailsapp/wails/v3/pkg/application"

	"go.aimuz.me/voxtype/internal/app"
	"go.aimuz.me/voxtype/internal/types"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newCLIApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// runTray starts the tray application and blocks until it quits.
func runTray() error {
	slog.Info("starting app", "version", version, "commit", commit, "date", date)
	svc := app.New(version)

	wapp := application.New(application.Options{
		Name:        "VoxType",
		Description: "Voice dictation and conversation reply",
		Services: []application.Service{
			application.NewService(svc),
		},
		// The panels are rendered by a separate frontend build; the tray
		// works without one.
		Assets: application.AssetOptions{
			Handler: http.NotFoundHandler(),
		},
		Mac: application.MacOptions{
			ApplicationShouldTerminateAfterLastWindowClosed: false,
		},
	})

	if err := svc.Init(wapp); err != nil {
		svc.Shutdown()
		return fmt.Errorf("init service: %w", err)
	}

	systemTray := wapp.SystemTray.New()
	systemTray.SetLabel("VoxType")
	systemTray.SetMenu(buildTrayMenu(wapp, svc))

	if err := wapp.Run(); err != nil {
		slog.Error("run app", "error", err)
		return err
	}
	return nil
}

func buildTrayMenu(wapp *application.App, svc *app.Service) *application.Menu {
	sel, err := svc.GetSelection()
	if err != nil {
		slog.Error("get selection", "error", err)
	}

	trayMenu := wapp.NewMenu()

	modeMenu := trayMenu.AddSubmenu("Mode")
	for _, m := range types.Modes() {
		modeMenu.AddRadio(m.Name, m.Mode == sel.Mode).OnClick(func(ctx *application.Context) {
			if err := svc.SetMode(string(m.Mode)); err != nil {
				slog.Warn("set mode from tray", "mode", m.Mode, "error", err)
			}
		})
	}

	langMenu := trayMenu.AddSubmenu("Language")
	for _, l := range types.Languages() {
		langMenu.AddRadio(l.NativeName(), l.Code == sel.Language).OnClick(func(ctx *application.Context) {
			if err := svc.SetLanguage(l.Code); err != nil {
				slog.Warn("set language from tray", "language", l.Code, "error", err)
			}
		})
	}

	trayMenu.AddCheckbox("Wake word", sel.WakeWord).OnClick(func(ctx *application.Context) {
		if err := svc.SetWakeWord(ctx.ClickedMenuItem().Checked(), ""); err != nil {
			slog.Warn("set wake word from tray", "error", err)
		}
	})
	trayMenu.AddCheckbox("Offline mode", sel.ForceOffline).OnClick(func(ctx *application.Context) {
		if err := svc.SetForceOffline(ctx.ClickedMenuItem().Checked()); err != nil {
			slog.Warn("set offline mode from tray", "error", err)
		}
	})

	trayMenu.AddSeparator()
	trayMenu.Add("Start Trial").OnClick(func(ctx *application.Context) {
		if err := svc.StartTrial(); err != nil {
			slog.Warn("start trial from tray", "error", err)
		}
	})
	trayMenu.Add("Download Local Model").OnClick(func(ctx *application.Context) {
		if err := svc.DownloadModel(); err != nil {
			slog.Warn("download model from tray", "error", err)
		}
	})
	trayMenu.Add("Reinstall Shortcuts").OnClick(func(ctx *application.Context) {
		if err := svc.ReinstallHook(); err != nil {
			slog.Warn("reinstall key hook from tray", "error", err)
		}
	})

	trayMenu.AddSeparator()
	trayMenu.Add("Quit").
		SetAccelerator("CmdOrCtrl+Q").
		OnClick(func(ctx *application.Context) {
			svc.Shutdown()
			wapp.Quit()
		})

	return trayMenu
}
