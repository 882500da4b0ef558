package ui

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dmgcore/gbdmg/internal/joypad"
	"github.com/dmgcore/gbdmg/internal/system"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/sqweek/dialog"
)

// App drives one System against an Ebiten window: keyboard to joypad,
// framebuffer to texture, and a small overlay menu for save states and
// switching ROMs.
type App struct {
	cfg    Config
	sys    *system.System
	romDir string

	tex    *ebiten.Image
	paused bool
	fast   bool

	audioCtx    *audioContext
	audioPlayer *audioPlayer
	audioSrc    *apuStream
	audioMuted  bool

	showMenu bool
	menuIdx  int
	romList  []string
}

// NewApp builds the Ebiten game loop around an already-constructed System.
func NewApp(cfg Config, sys *system.System) *App {
	cfg.Defaults()
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(160*cfg.Scale, 144*cfg.Scale)
	a := &App{cfg: cfg, sys: sys}
	a.startAudio()
	return a
}

func (a *App) Run() error { return ebiten.RunGame(a) }

func (a *App) Update() error {
	a.pollButtons()

	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		a.paused = !a.paused
	}
	a.fast = ebiten.IsKeyPressed(ebiten.KeyTab)

	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		a.sys.Reset()
	}

	if a.paused && inpututil.IsKeyJustPressed(ebiten.KeyN) {
		a.sys.RunFrame()
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		a.showMenu = !a.showMenu
		if a.showMenu {
			a.romList = a.findROMs()
		}
	}
	if a.showMenu {
		a.updateMenu()
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyF12) {
		_ = a.saveScreenshot()
	}

	if !a.paused && !a.showMenu {
		if a.fast {
			for i := 0; i < 5; i++ {
				a.sys.RunFrame()
			}
		} else {
			a.sys.RunFrame()
		}
	}
	return nil
}

func (a *App) pollButtons() {
	type mapping struct {
		key ebiten.Key
		btn joypad.Button
	}
	for _, m := range []mapping{
		{ebiten.KeyRight, joypad.Right},
		{ebiten.KeyLeft, joypad.Left},
		{ebiten.KeyUp, joypad.Up},
		{ebiten.KeyDown, joypad.Down},
		{ebiten.KeyZ, joypad.A},
		{ebiten.KeyX, joypad.B},
		{ebiten.KeyEnter, joypad.Start},
		{ebiten.KeyShiftRight, joypad.Select},
	} {
		a.sys.SetButton(m.btn, ebiten.IsKeyPressed(m.key))
	}
}

// menu items: 0 Save state, 1 Load state, 2 Switch ROM, 3 Close
func (a *App) updateMenu() {
	const items = 4
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowUp) && a.menuIdx > 0 {
		a.menuIdx--
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowDown) && a.menuIdx < items-1 {
		a.menuIdx++
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		switch a.menuIdx {
		case 0:
			_ = a.saveStateToFile(a.slotPath())
		case 1:
			_ = a.loadStateFromFile(a.slotPath())
		case 2:
			if path, err := dialog.File().Filter("Game Boy ROM", "gb").Load(); err == nil && path != "" {
				_ = a.loadROMFromFile(path)
			} else if len(a.romList) > 0 {
				_ = a.loadROMFromFile(a.romList[0])
			}
		case 3:
			a.showMenu = false
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyBackspace) {
		a.showMenu = false
	}
}

func (a *App) slotPath() string { return "slot0.savestate" }

func (a *App) saveStateToFile(path string) error {
	data, err := a.sys.SaveState()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (a *App) loadStateFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return a.sys.LoadState(data)
}

func (a *App) loadROMFromFile(path string) error {
	rom, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := a.sys.LoadCartridge(rom); err != nil {
		return err
	}
	if strings.HasSuffix(strings.ToLower(path), ".gb") {
		sav := strings.TrimSuffix(path, ".gb") + ".sav"
		if data, err := os.ReadFile(sav); err == nil {
			_ = a.sys.RestoreBattery(data)
		}
	}
	return nil
}

func (a *App) findROMs() []string {
	var out []string
	entries, err := os.ReadDir(a.cfg.ROMsDir)
	if err != nil {
		return out
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".gb") {
			out = append(out, filepath.Join(a.cfg.ROMsDir, e.Name()))
		}
	}
	sort.Strings(out)
	return out
}

func (a *App) Draw(screen *ebiten.Image) {
	if a.tex == nil {
		a.tex = ebiten.NewImage(160, 144)
	}
	a.tex.WritePixels(a.sys.Framebuffer())
	screen.DrawImage(a.tex, nil)

	if a.showMenu {
		overlay := ebiten.NewImage(160, 144)
		overlay.Fill(color.RGBA{0, 0, 0, 128})
		screen.DrawImage(overlay, nil)
		lines := []string{
			"Menu:",
			"  Save state",
			"  Load state",
			"  Switch ROM",
			"  Close",
		}
		for i, s := range lines {
			prefix := "  "
			if i == a.menuIdx+1 {
				prefix = "> "
			}
			ebitenutil.DebugPrintAt(screen, prefix+s, 10, 10+i*14)
		}
	}
}

func (a *App) Layout(outW, outH int) (int, int) { return 160, 144 }

func (a *App) saveScreenshot() error {
	fb := a.sys.Framebuffer()
	img := &image.RGBA{
		Pix:    make([]byte, len(fb)),
		Stride: 4 * 160,
		Rect:   image.Rect(0, 0, 160, 144),
	}
	copy(img.Pix, fb)
	ts := time.Now().Format("20060102_150405")
	name := fmt.Sprintf("screenshot_%s.png", ts)
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
