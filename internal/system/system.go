// Package system wires the CPU, bus, and attached subsystems into the
// single entry point a host uses to run a cartridge: load a ROM, advance
// frames, read back pixels and audio, and persist battery RAM or full
// save states.
package system

import (
	"bytes"
	"encoding/gob"
	"errors"
	"io"

	"github.com/dmgcore/gbdmg/internal/bus"
	"github.com/dmgcore/gbdmg/internal/cart"
	"github.com/dmgcore/gbdmg/internal/cpu"
	"github.com/dmgcore/gbdmg/internal/joypad"
)

// CyclesPerFrame is the nominal CPU cycle budget for one 59.73 Hz DMG frame
// (154 scanlines * 456 dots).
const CyclesPerFrame = 70224

var (
	// ErrInvalidCartridge is returned by LoadCartridge when the ROM image is
	// too small to contain a header, or the header fails validation.
	ErrInvalidCartridge = errors.New("system: invalid cartridge image")
	// ErrUnsupportedFeature is returned by RestoreBattery when the loaded
	// cartridge has no external-RAM save interface. Cartridges with an
	// unrecognized type byte are not rejected; they load as ROM-only.
	ErrUnsupportedFeature = errors.New("system: unsupported hardware feature")
	// ErrIllegalOpcode is surfaced once the CPU latches a fault on an
	// undefined/illegal opcode; RunFrame and Step become no-ops afterward.
	ErrIllegalOpcode = errors.New("system: illegal opcode")
	// ErrStateIncompatible is returned by LoadState when a snapshot cannot
	// be decoded into the current subsystem layout.
	ErrStateIncompatible = errors.New("system: incompatible save state")
)

// System is the public core: a loaded cartridge, its CPU/bus, and the
// bookkeeping needed to drive it one frame or one instruction at a time.
type System struct {
	bus *bus.Bus
	cpu *cpu.CPU

	loaded bool
	err    error
}

// New returns a System with no cartridge loaded; call LoadCartridge before
// RunFrame/Step.
func New() *System {
	return &System{}
}

// LoadCartridge parses the ROM header, constructs the matching MBC, and
// resets the CPU to canonical post-boot state at PC=0x0100 (the core skips
// the boot ROM entirely).
func (s *System) LoadCartridge(rom []byte) error {
	if _, err := cart.ParseHeader(rom); err != nil {
		return ErrInvalidCartridge
	}
	if !cart.HeaderChecksumOK(rom) {
		return ErrInvalidCartridge
	}
	s.bus = bus.New(rom)
	s.cpu = cpu.New(s.bus)
	s.applyPostBootState()
	s.loaded = true
	s.err = nil
	return nil
}

// Reset restarts execution at PC=0x0100 without reloading the cartridge,
// preserving battery-backed external RAM.
func (s *System) Reset() {
	if !s.loaded {
		return
	}
	s.cpu = cpu.New(s.bus)
	s.applyPostBootState()
	s.err = nil
}

// applyPostBootState pokes the IO registers a real boot ROM would have left
// behind, so games starting cold at 0x0100 see LCD on, BG on, and APU
// powered with sane default routing.
func (s *System) applyPostBootState() {
	s.cpu.ResetNoBoot()
	s.cpu.SetPC(0x0100)

	b := s.bus
	b.Write(0xFF00, 0xCF)
	b.Write(0xFF05, 0x00)
	b.Write(0xFF06, 0x00)
	b.Write(0xFF07, 0x00)
	b.Write(0xFF40, 0x91)
	b.Write(0xFF42, 0x00)
	b.Write(0xFF43, 0x00)
	b.Write(0xFF45, 0x00)
	b.Write(0xFF47, 0xFC)
	b.Write(0xFF48, 0xFF)
	b.Write(0xFF49, 0xFF)
	b.Write(0xFF4A, 0x00)
	b.Write(0xFF4B, 0x00)
	b.Write(0xFFFF, 0x00)
	b.Write(0xFF26, 0x80)
	b.Write(0xFF24, 0x77)
	b.Write(0xFF25, 0xFF)
}

// RunFrame advances the core by approximately one frame (70,224 cycles) and
// returns promptly; it performs no I/O. A latched CPU fault makes this a
// no-op.
func (s *System) RunFrame() {
	if !s.loaded || s.cpu.Faulted() {
		s.latchFault()
		return
	}
	acc := 0
	for acc < CyclesPerFrame {
		acc += s.cpu.Step()
		if s.cpu.Faulted() {
			s.latchFault()
			return
		}
	}
}

// Step executes one CPU instruction, or dispatches one pending interrupt
// instead, and returns the cycle count consumed. Returns 0 once a
// fault is latched.
func (s *System) Step() int {
	if !s.loaded || s.cpu.Faulted() {
		s.latchFault()
		return 0
	}
	cycles := s.cpu.Step()
	if s.cpu.Faulted() {
		s.latchFault()
	}
	return cycles
}

func (s *System) latchFault() {
	if s.cpu != nil && s.cpu.Faulted() {
		s.err = ErrIllegalOpcode
	}
}

// Err reports the fault that halted execution, if any.
func (s *System) Err() error { return s.err }

// Framebuffer returns the 160x144 RGBA pixel buffer for the most recently
// completed frame.
func (s *System) Framebuffer() []byte {
	if !s.loaded {
		return nil
	}
	return s.bus.PPU().Framebuffer()
}

// SetSerialWriter routes bytes shifted out over the serial port (SB/SC) to w,
// one byte per completed transfer. Primarily used by headless test-ROM
// harnesses that report pass/fail over the link cable.
func (s *System) SetSerialWriter(w io.Writer) {
	if !s.loaded {
		return
	}
	s.bus.SetSerialWriter(w)
}

// AudioSamples pulls up to n interleaved stereo int16 samples ([L0,R0,L1,R1,...]).
func (s *System) AudioSamples(n int) []int16 {
	if !s.loaded {
		return nil
	}
	return s.bus.APU().PullStereo(n)
}

// SetButton updates one logical button's pressed state.
func (s *System) SetButton(b joypad.Button, pressed bool) {
	if !s.loaded {
		return
	}
	s.bus.Pad().SetButton(b, pressed)
}

// ButtonsState returns the full pressed/released snapshot.
func (s *System) ButtonsState() joypad.Buttons {
	if !s.loaded {
		return joypad.Buttons{}
	}
	return s.bus.Pad().ButtonsState()
}

// BatterySnapshot returns the cartridge's external RAM. The second return is
// false when the mapper has no external RAM; the header's battery flag is
// not checked, so a cartridge with RAM but no battery also returns its RAM.
func (s *System) BatterySnapshot() ([]byte, bool) {
	if !s.loaded {
		return nil, false
	}
	bb, ok := s.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return nil, false
	}
	data := bb.SaveRAM()
	if len(data) == 0 {
		return nil, false
	}
	return data, true
}

// RestoreBattery loads previously saved external RAM into the cartridge.
func (s *System) RestoreBattery(data []byte) error {
	if !s.loaded {
		return ErrInvalidCartridge
	}
	bb, ok := s.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return ErrUnsupportedFeature
	}
	bb.LoadRAM(data)
	return nil
}

// snapshot bundles the CPU register file with the bus's own serialized
// subsystem state into one self-describing gob blob.
type snapshot struct {
	CPU cpu.State
	Bus []byte
}

// SaveState serializes CPU registers plus the entire bus (and every
// subsystem it owns) into a self-describing gob blob.
func (s *System) SaveState() ([]byte, error) {
	if !s.loaded {
		return nil, ErrInvalidCartridge
	}
	var buf bytes.Buffer
	snap := snapshot{CPU: s.cpu.SaveState(), Bus: s.bus.SaveState()}
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoadState restores a snapshot produced by SaveState.
func (s *System) LoadState(data []byte) error {
	if !s.loaded {
		return ErrInvalidCartridge
	}
	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return ErrStateIncompatible
	}
	if err := s.bus.LoadState(snap.Bus); err != nil {
		return ErrStateIncompatible
	}
	s.cpu.LoadState(snap.CPU)
	s.err = nil
	return nil
}
