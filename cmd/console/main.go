// Command console runs a Neptune program headless: console-out goes to
// stdout and, with -keys, raw terminal input feeds the keyboard device.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"neptune/pkg/asm"
	"neptune/pkg/boot"
	"neptune/pkg/cpu"
	"neptune/pkg/devices"
	"neptune/pkg/mem"
)

func main() {
	inPath := flag.String("in", "", "program assembly file (default: embedded demo)")
	romPath := flag.String("rom", "", "boot ROM assembly file (default: embedded boot ROM)")
	large := flag.Bool("large", false, "use the 1 MB RAM layout")
	layout := flag.Bool("layout", false, "print the memory and device maps and exit")
	keys := flag.Bool("keys", false, "forward raw terminal input to the keyboard device")
	hz := flag.Int("hz", 0, "instruction rate limit in steps per second (0 = unthrottled)")
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

	if *layout {
		fmt.Print(m.Describe())
		fmt.Print(iobus.Describe())
		return
	}

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

	restore := func() {}
	if *keys && term.IsTerminal(int(os.Stdin.Fd())) {
		old, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			log.Fatalf("raw mode: %v", err)
		}
		restore = func() { term.Restore(int(os.Stdin.Fd()), old) }
		go feedKeys(kb)
	}
	defer restore()

	if err := run(vm, *hz); err != nil {
		restore()
		log.Fatalf("cpu fault at PC 0x%08X: %v", vm.PC(), err)
	}
}

// run drives the CPU to halt. A non-zero hz spreads the step budget
// over fixed time slices, like the desktop command's per-frame budget.
func run(vm *cpu.CPU, hz int) error {
	if hz <= 0 {
		return vm.Run()
	}
	slice := 10 * time.Millisecond
	budget := hz / int(time.Second/slice)
	if budget < 1 {
		budget = 1
		slice = time.Second / time.Duration(hz)
	}
	ticker := time.NewTicker(slice)
	defer ticker.Stop()
	for range ticker.C {
		for i := 0; i < budget; i++ {
			if vm.Halted() {
				return nil
			}
			if err := vm.Step(); err != nil {
				return err
			}
		}
	}
	return nil
}

// feedKeys pumps raw stdin bytes into the keyboard buffer. Ctrl-C still
// exits since raw mode swallows the signal.
func feedKeys(kb *devices.Keyboard) {
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		if buf[0] == 0x03 {
			os.Exit(130)
		}
		kb.Enqueue(buf[0])
	}
}

func readSource(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}
	return strings.ReplaceAll(string(data), "\r\n", "\n")
}
