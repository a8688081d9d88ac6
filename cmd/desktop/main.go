// Command desktop shows the Neptune framebuffer in a window and feeds
// key presses to the keyboard device. The -debug overlay polls the CPU's
// public state between frames.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text"
	"golang.org/x/image/font/basicfont"

	"neptune/pkg/asm"
	"neptune/pkg/boot"
	"neptune/pkg/cpu"
	"neptune/pkg/devices"
	"neptune/pkg/mem"
)

// stepsPerFrame bounds how many instructions run per 60 Hz tick.
const stepsPerFrame = 100000

const (
	screenScale  = 2
	screenWidth  = mem.VramWidth * screenScale
	screenHeight = mem.VramHeight * screenScale
)

// specialKeys are the host keys forwarded through the device's key-event
// mapping rather than as input characters.
var specialKeys = map[ebiten.Key]string{
	ebiten.KeyEnter:     "Enter",
	ebiten.KeyBackspace: "Backspace",
	ebiten.KeyTab:       "Tab",
}

type Game struct {
	vm    *cpu.CPU
	kb    *devices.Keyboard
	fb    *ebiten.Image
	debug bool
	fault error
}

func (g *Game) Update() error {
	for _, r := range ebiten.AppendInputChars(nil) {
		if r > 0 && r < 128 {
			g.kb.Enqueue(byte(r))
		}
	}
	for key, name := range specialKeys {
		if inpututil.IsKeyJustPressed(key) {
			g.kb.Enqueue(devices.MapKey(name, ""))
		}
	}

	if g.fault != nil {
		return nil
	}
	for i := 0; i < stepsPerFrame; i++ {
		if g.vm.Halted() {
			break
		}
		if err := g.vm.Step(); err != nil {
			g.fault = err
			break
		}
	}
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	if g.fb == nil {
		g.fb = ebiten.NewImage(mem.VramWidth, mem.VramHeight)
	}
	g.fb.WritePixels(g.vm.FramebufferRGBA())

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(screenScale, screenScale)
	screen.DrawImage(g.fb, op)

	if g.debug {
		g.drawOverlay(screen)
	}
}

func (g *Game) drawOverlay(screen *ebiten.Image) {
	var b strings.Builder
	f := g.vm.Flags()
	fmt.Fprintf(&b, "PC %08X  SP %08X  HP %08X\n", g.vm.PC(), g.vm.SP(), g.vm.HP())
	fmt.Fprintf(&b, "Z%d N%d C%d V%d", bit(f.Zero), bit(f.Negative), bit(f.Carry), bit(f.Overflow))
	if g.vm.Halted() {
		b.WriteString("  HALT")
	}
	b.WriteString("\n")
	for i, v := range g.vm.Registers()[:8] {
		fmt.Fprintf(&b, "r%d %08X  ", i, v)
		if i%4 == 3 {
			b.WriteString("\n")
		}
	}
	if g.fault != nil {
		fmt.Fprintf(&b, "FAULT: %v\n", g.fault)
	}
	face := basicfont.Face7x13
	y := face.Metrics().Ascent.Ceil() + 2
	for _, line := range strings.Split(b.String(), "\n") {
		text.Draw(screen, line, face, 4, y, color.White)
		y += face.Metrics().Height.Ceil() + 1
	}
}

func bit(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenWidth, screenHeight
}

func main() {
	inPath := flag.String("in", "", "program assembly file (default: embedded demo)")
	romPath := flag.String("rom", "", "boot ROM assembly file (default: embedded boot ROM)")
	large := flag.Bool("large", false, "use the 1 MB RAM layout")
	debug := flag.Bool("debug", false, "draw the CPU state overlay")
	shot := flag.String("screenshot", "", "write a PNG of the framebuffer on exit")
	flag.Parse()

	m := mem.DefaultMap()
	if *large {
		m = mem.LargeMap()
	}

	vm := cpu.New(m, cpu.NewSet(), 0)
	iobus := devices.NewIOBus(m.IoStart, mem.IoSize)
	kb := devices.NewKeyboard()
	tm := devices.NewTimer()
	defer tm.Close()
	for _, d := range []devices.Device{kb, devices.NewConsole(os.Stdout), tm} {
		if err := iobus.Register(d); err != nil {
			log.Fatalf("register device: %v", err)
		}
	}
	vm.Bus().AttachIO(iobus)

	romSrc := boot.RomSource
	if *romPath != "" {
		romSrc = readSource(*romPath)
	}
	progSrc := boot.DemoSource
	if *inPath != "" {
		progSrc = readSource(*inPath)
	}

	loader := asm.New(vm)
	if err := loader.AssembleAndLoad(boot.Lines(romSrc), mem.SyscallCodeStart); err != nil {
		log.Fatalf("boot ROM: %v", err)
	}
	if err := loader.AssembleAndLoad(boot.Lines(progSrc), m.RamStart); err != nil {
		log.Fatalf("program: %v", err)
	}

	ebiten.SetWindowSize(screenWidth*2, screenHeight*2)
	ebiten.SetWindowTitle("Neptune")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	game := &Game{vm: vm, kb: kb, debug: *debug}
	if err := ebiten.RunGame(game); err != nil {
		log.Fatalf("ebiten: %v", err)
	}
	if *shot != "" {
		if err := vm.SaveScreenshot(*shot); err != nil {
			log.Fatalf("screenshot: %v", err)
		}
	}
}

func readSource(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}
	return strings.ReplaceAll(string(data), "\r\n", "\n")
}
