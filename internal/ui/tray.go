// Package ui hosts the system tray menu: transport state, generation
// runner control, and a save/quit surface for the agent.
package ui

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/getlantern/systray"

	"github.com/clipforge/clipforge-agent/internal/jobs"
	"github.com/clipforge/clipforge-agent/internal/playback"
	"github.com/clipforge/clipforge-agent/internal/project"
	"github.com/clipforge/clipforge-agent/internal/timecode"
)

type Tray struct {
	store  *project.Store
	clock  *playback.Clock
	runner *jobs.Runner
	logger *slog.Logger

	transportItem *systray.MenuItem
	projectItem   *systray.MenuItem
	playItem      *systray.MenuItem
	genItem       *systray.MenuItem

	mu sync.Mutex

	onSave func() error
	onQuit func()

	unsubscribe []func()
}

type TrayConfig struct {
	Store  *project.Store
	Clock  *playback.Clock
	Runner *jobs.Runner
	Logger *slog.Logger
	OnSave func() error
	OnQuit func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		store:  cfg.Store,
		clock:  cfg.Clock,
		runner: cfg.Runner,
		logger: cfg.Logger,
		onSave: cfg.OnSave,
		onQuit: cfg.OnQuit,
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("ClipForge")
	systray.SetTooltip("ClipForge Agent")

	t.transportItem = systray.AddMenuItem("Stopped 00:00:00:00", "Transport state")
	t.transportItem.Disable()

	t.projectItem = systray.AddMenuItem("Project: -", "Open project")
	t.projectItem.Disable()

	systray.AddSeparator()

	t.playItem = systray.AddMenuItem("Play", "Toggle playback")
	t.genItem = systray.AddMenuItem("Pause Generation", "Pause the generation runner")
	saveItem := systray.AddMenuItem("Save Project", "Flush pending changes to disk")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit ClipForge Agent")

	t.unsubscribe = append(t.unsubscribe,
		t.clock.Subscribe(t.refreshTransport),
		t.store.Subscribe(t.refreshProject),
	)
	t.refreshTransport()
	t.refreshProject()

	go func() {
		for {
			select {
			case <-t.playItem.ClickedCh:
				t.togglePlayback()
			case <-t.genItem.ClickedCh:
				t.toggleGeneration()
			case <-saveItem.ClickedCh:
				t.handleSave()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	for _, unsub := range t.unsubscribe {
		unsub()
	}
	t.logger.Info("system tray exiting")
}

// togglePlayback must not hold t.mu: the clock notifies subscribers
// synchronously and refreshTransport takes the lock.
func (t *Tray) togglePlayback() {
	if t.clock.IsPlaying() {
		t.clock.Pause()
	} else {
		t.clock.SetDuration(t.store.Snapshot().Duration)
		t.clock.Play()
	}
}

func (t *Tray) toggleGeneration() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runner == nil {
		return
	}

	if t.runner.IsPaused() {
		t.runner.Resume()
		t.genItem.SetTitle("Pause Generation")
	} else {
		t.runner.Pause()
		t.genItem.SetTitle("Resume Generation")
	}
}

func (t *Tray) handleSave() {
	if t.onSave == nil {
		return
	}
	if err := t.onSave(); err != nil {
		t.logger.Error("failed to save project", "error", err)
	}
}

func (t *Tray) refreshTransport() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.transportItem == nil {
		return
	}

	fps := t.store.Snapshot().FPS
	if fps <= 0 {
		fps = 30
	}
	state := t.clock.State()
	tc := timecode.Format(t.clock.CurrentTime(), fps)
	// Title-case the state for menu display.
	label := map[playback.State]string{
		playback.Playing: "Playing",
		playback.Paused:  "Paused",
		playback.Stopped: "Stopped",
	}[state]
	t.transportItem.SetTitle(fmt.Sprintf("%s %s", label, tc))

	if state == playback.Playing {
		t.playItem.SetTitle("Pause")
	} else {
		t.playItem.SetTitle("Play")
	}
}

func (t *Tray) refreshProject() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.projectItem == nil {
		return
	}

	p := t.store.Snapshot()
	name := p.Name
	if name == "" {
		name = "Untitled"
	}
	suffix := ""
	if t.store.Dirty() {
		suffix = " *"
	}
	t.projectItem.SetTitle("Project: " + name + suffix)
}

func (t *Tray) Quit() {
	systray.Quit()
}
