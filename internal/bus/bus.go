// Package bus implements the 16-bit address space: the sole authority for
// memory-mapped I/O, routing CPU reads/writes to WRAM/HRAM, the cartridge,
// the PPU, the APU, the timer, and the joypad.
package bus

import (
	"bytes"
	"encoding/gob"

	"github.com/dmgcore/gbdmg/internal/apu"
	"github.com/dmgcore/gbdmg/internal/cart"
	"github.com/dmgcore/gbdmg/internal/joypad"
	"github.com/dmgcore/gbdmg/internal/ppu"
	"github.com/dmgcore/gbdmg/internal/timer"
)

// Joypad button bits for SetJoypadState, matching the P1 register's active-low nibble layout.
const (
	JoypRight  = 1 << 0
	JoypLeft   = 1 << 1
	JoypUp     = 1 << 2
	JoypDown   = 1 << 3
	JoypA      = 1 << 0
	JoypB      = 1 << 1
	JoypSelect = 1 << 2
	JoypStart  = 1 << 3
)

// SerialWriter receives bytes shifted out over the serial port.
type SerialWriter interface {
	Write(p []byte) (int, error)
}

// Bus owns WRAM/HRAM and the interrupt registers, and dispatches all other
// addresses to the cartridge, PPU, APU, timer, and joypad.
type Bus struct {
	cart cart.Cartridge
	ppu  *ppu.PPU
	apu  *apu.APU
	tim  *timer.Timer
	pad  *joypad.Joypad

	wram [0x2000]byte // 0xC000-0xDFFF
	hram [0x7F]byte   // 0xFF80-0xFFFE

	ifReg byte // 0xFF0F, lower 5 bits
	ieReg byte // 0xFFFF

	sb, sc byte // 0xFF01/0xFF02
	serial SerialWriter

	dmaActive   bool
	dmaSrc      uint16
	dmaProgress int
}

// New constructs a Bus around a ROM image, auto-detecting the MBC type from
// its header.
func New(rom []byte) *Bus {
	b := &Bus{cart: cart.NewCartridge(rom)}
	b.ppu = ppu.New(func(bit int) { b.requestInterrupt(bit) })
	b.apu = apu.New(44100)
	b.tim = timer.New(func() { b.requestInterrupt(2) })
	b.pad = joypad.New(func() { b.requestInterrupt(4) })
	return b
}

// SetSerialWriter installs a sink for bytes transferred over SB/SC.
func (b *Bus) SetSerialWriter(w SerialWriter) { b.serial = w }

// SetJoypadState sets the pressed bitmask using the Joyp* constants for the
// currently-selected column (direction or action).
func (b *Bus) SetJoypadState(mask byte) {
	b.pad.SetButton(joypad.Right, mask&JoypRight != 0)
	b.pad.SetButton(joypad.Left, mask&JoypLeft != 0)
	b.pad.SetButton(joypad.Up, mask&JoypUp != 0)
	b.pad.SetButton(joypad.Down, mask&JoypDown != 0)
	b.pad.SetButton(joypad.A, mask&JoypA != 0)
	b.pad.SetButton(joypad.B, mask&JoypB != 0)
	b.pad.SetButton(joypad.Select, mask&JoypSelect != 0)
	b.pad.SetButton(joypad.Start, mask&JoypStart != 0)
}

func (b *Bus) requestInterrupt(bit int) { b.ifReg |= 1 << uint(bit) }

// PPU/APU expose their owning packages for higher-level orchestration
// (framebuffer readout, audio pulls, save states).
func (b *Bus) PPU() *ppu.PPU         { return b.ppu }
func (b *Bus) APU() *apu.APU         { return b.apu }
func (b *Bus) Cart() cart.Cartridge  { return b.cart }
func (b *Bus) Pad() *joypad.Joypad   { return b.pad }

func (b *Bus) Read(addr uint16) byte {
	switch {
	case addr < 0x8000:
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.ppu.CPURead(addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		return b.cart.Read(addr)
	case addr >= 0xC000 && addr <= 0xDFFF:
		return b.wram[addr-0xC000]
	case addr >= 0xE000 && addr <= 0xFDFF:
		return b.wram[addr-0xE000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.dmaActive {
			return 0xFF
		}
		return b.ppu.CPURead(addr)
	case addr == 0xFF00:
		return b.pad.ReadP1()
	case addr == 0xFF01:
		return b.sb
	case addr == 0xFF02:
		return b.sc | 0x7E
	case addr == 0xFF04:
		return b.tim.ReadDIV()
	case addr == 0xFF05:
		return b.tim.ReadTIMA()
	case addr == 0xFF06:
		return b.tim.ReadTMA()
	case addr == 0xFF07:
		return b.tim.ReadTAC()
	case addr == 0xFF0F:
		return 0xE0 | (b.ifReg & 0x1F)
	case addr >= 0xFF10 && addr <= 0xFF3F:
		return b.apu.CPURead(addr)
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45, addr == 0xFF47, addr == 0xFF48,
		addr == 0xFF49, addr == 0xFF4A, addr == 0xFF4B:
		return b.ppu.CPURead(addr)
	case addr == 0xFF46:
		return 0xFF
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.hram[addr-0xFF80]
	case addr == 0xFFFF:
		return b.ieReg
	default:
		return 0xFF
	}
}

func (b *Bus) Write(addr uint16, v byte) {
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, v)
	case addr >= 0x8000 && addr <= 0x9FFF:
		b.ppu.CPUWrite(addr, v)
	case addr >= 0xA000 && addr <= 0xBFFF:
		b.cart.Write(addr, v)
	case addr >= 0xC000 && addr <= 0xDFFF:
		b.wram[addr-0xC000] = v
	case addr >= 0xE000 && addr <= 0xFDFF:
		b.wram[addr-0xE000] = v
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if !b.dmaActive {
			b.ppu.CPUWrite(addr, v)
		}
	case addr == 0xFF00:
		b.pad.WriteP1(v)
	case addr == 0xFF01:
		b.sb = v
	case addr == 0xFF02:
		b.sc = v
		if v&0x80 != 0 {
			if b.serial != nil {
				b.serial.Write([]byte{b.sb})
			}
			b.sc &^= 0x80
			b.requestInterrupt(3)
		}
	case addr == 0xFF04:
		b.tim.WriteDIV()
	case addr == 0xFF05:
		b.tim.WriteTIMA(v)
	case addr == 0xFF06:
		b.tim.WriteTMA(v)
	case addr == 0xFF07:
		b.tim.WriteTAC(v)
	case addr == 0xFF0F:
		b.ifReg = v & 0x1F
	case addr >= 0xFF10 && addr <= 0xFF3F:
		b.apu.CPUWrite(addr, v)
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45, addr == 0xFF47, addr == 0xFF48,
		addr == 0xFF49, addr == 0xFF4A, addr == 0xFF4B:
		b.ppu.CPUWrite(addr, v)
	case addr == 0xFF46:
		b.startDMA(v)
	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.hram[addr-0xFF80] = v
	case addr == 0xFFFF:
		b.ieReg = v
	}
}

func (b *Bus) startDMA(v byte) {
	b.dmaActive = true
	b.dmaSrc = uint16(v) << 8
	b.dmaProgress = 0
}

// Tick advances every subsystem by n CPU cycles, stepping OAM DMA one byte
// per cycle while active (160 cycles for a full transfer).
func (b *Bus) Tick(n int) {
	if b.dmaActive {
		for i := 0; i < n && b.dmaActive; i++ {
			idx := b.dmaProgress
			v := b.readRaw(b.dmaSrc + uint16(idx))
			b.ppu.CPUWriteRaw(0xFE00+uint16(idx), v)
			b.dmaProgress++
			if b.dmaProgress >= 0xA0 {
				b.dmaActive = false
			}
		}
	}
	b.ppu.Tick(n)
	b.apu.Tick(n)
	b.tim.Advance(n)
}

// readRaw reads a DMA source byte, bypassing PPU access-mode restrictions
// (DMA itself is unaffected by the current PPU mode).
func (b *Bus) readRaw(addr uint16) byte {
	switch {
	case addr < 0x8000:
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.ppu.Read(addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		return b.cart.Read(addr)
	case addr >= 0xC000 && addr <= 0xDFFF:
		return b.wram[addr-0xC000]
	case addr >= 0xE000 && addr <= 0xFDFF:
		return b.wram[addr-0xE000]
	default:
		return 0xFF
	}
}

type busState struct {
	WRAM  [0x2000]byte
	HRAM  [0x7F]byte
	IF    byte
	IE    byte
	SB    byte
	SC    byte
	Cart  []byte
	PPU   []byte
	APU   []byte
	Timer []byte
	Pad   joypad.Buttons
}

// SaveState serializes WRAM/HRAM/interrupt registers plus every owned
// subsystem's own state.
func (b *Bus) SaveState() []byte {
	var buf bytes.Buffer
	s := busState{
		WRAM: b.wram, HRAM: b.hram, IF: b.ifReg, IE: b.ieReg, SB: b.sb, SC: b.sc,
		Cart: b.cart.SaveState(), PPU: b.ppu.SaveState(), APU: b.apu.SaveState(),
	}
	tstate := b.tim.SaveState()
	var tbuf bytes.Buffer
	_ = gob.NewEncoder(&tbuf).Encode(tstate)
	s.Timer = tbuf.Bytes()
	s.Pad = b.pad.SaveState()
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

// LoadState restores a snapshot produced by SaveState.
func (b *Bus) LoadState(data []byte) error {
	var s busState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	b.wram, b.hram = s.WRAM, s.HRAM
	b.ifReg, b.ieReg, b.sb, b.sc = s.IF, s.IE, s.SB, s.SC
	b.cart.LoadState(s.Cart)
	b.ppu.LoadState(s.PPU)
	b.apu.LoadState(s.APU)
	var tstate timer.State
	_ = gob.NewDecoder(bytes.NewReader(s.Timer)).Decode(&tstate)
	b.tim.LoadState(tstate)
	b.pad.LoadState(s.Pad)
	return nil
}
