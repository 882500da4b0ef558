package cart

import (
	"bytes"
	"encoding/gob"
	"time"
)

// MBC3 implements ROM/RAM banking plus the real-time-clock register select
// and latch-clock path. Unlike a fully static stub, the clock actually
// advances with wall time: each Read/Write call folds in whatever real
// seconds elapsed since the last call before servicing the request. nowUnix
// is a package variable so tests can substitute a deterministic clock.
// Banking behavior:
// - 0000-1FFF: RAM/RTC enable (0x0A in low nibble)
// - 2000-3FFF: ROM bank low 7 bits (0 maps to 1)
// - 4000-5FFF: RAM bank (0-3) or RTC reg select (08-0C)
// - 6000-7FFF: Latch clock (0 then 1 latches the RTC snapshot)
// - A000-BFFF: External RAM, or the latched RTC register when 08-0C is selected
// ROM: bank 0 fixed at 0000-3FFF; switchable 4000-7FFF uses bank (1..127)

var nowUnix = func() int64 { return time.Now().Unix() }

// RTC register-select codes written to 0x4000-0x5FFF.
const (
	rtcSeconds = 0x08
	rtcMinutes = 0x09
	rtcHours   = 0x0A
	rtcDaysLo  = 0x0B
	rtcDaysHi  = 0x0C
)

// rtcSnapshot is the register file latched by the 0->1 write sequence on
// 0x6000-0x7FFF; Read observes this, not the live ticking registers.
type rtcSnapshot struct {
	Sec, Min, Hour byte
	Day            uint16
	Halt, Carry    bool
}

type MBC3 struct {
	rom []byte
	ram []byte

	ramEnabled bool
	romBank    byte // 7 bits (1..127)
	ramBank    byte // 0..3, meaningful only when rtcSelect == 0
	rtcSelect  byte // 0, or 0x08..0x0C

	// Live clock registers; tick forward by elapsed wall time on every access.
	rtcSec, rtcMin, rtcHour byte
	rtcDay                  uint16 // 9-bit day counter
	rtcHalt, rtcCarry       bool
	lastRTCWallSec          int64

	latch   rtcSnapshot
	latchIn byte // previous byte written to the latch port
}

func NewMBC3(rom []byte, ramSize int) *MBC3 {
	m := &MBC3{rom: rom}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	m.romBank = 1
	m.lastRTCWallSec = nowUnix()
	return m
}

// updateRTC folds elapsed wall-clock seconds into the live registers. Called
// on every Read/Write regardless of address, matching real MBC3 hardware
// where the clock free-runs off its own crystal rather than off CPU cycles.
func (m *MBC3) updateRTC() {
	now := nowUnix()
	delta := now - m.lastRTCWallSec
	m.lastRTCWallSec = now
	if delta <= 0 || m.rtcHalt {
		return
	}
	total := int(m.rtcSec) + int(delta)
	m.rtcSec = byte(total % 60)
	carryMin := total / 60
	total = int(m.rtcMin) + carryMin
	m.rtcMin = byte(total % 60)
	carryHour := total / 60
	total = int(m.rtcHour) + carryHour
	m.rtcHour = byte(total % 24)
	carryDay := total / 24
	day := int(m.rtcDay) + carryDay
	if day > 511 {
		m.rtcCarry = true
		day %= 512
	}
	m.rtcDay = uint16(day)
}

func (m *MBC3) Read(addr uint16) byte {
	m.updateRTC()
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank & 0x7F)
		if bank == 0 {
			bank = 1
		}
		off := bank*0x4000 + int(addr-0x4000)
		if off >= 0 && off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		if m.rtcSelect != 0 {
			return m.readLatchedRTC()
		}
		if len(m.ram) == 0 {
			return 0xFF
		}
		rb := int(m.ramBank & 0x03)
		off := rb*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC3) Write(addr uint16, value byte) {
	m.updateRTC()
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x4000:
		v := value & 0x7F
		if v == 0 {
			v = 1
		}
		m.romBank = v
	case addr < 0x6000:
		switch {
		case value <= 0x03:
			m.ramBank = value & 0x03
			m.rtcSelect = 0
		case value >= rtcSeconds && value <= rtcDaysHi:
			m.rtcSelect = value
		default:
			m.ramBank = 0
			m.rtcSelect = 0
		}
	case addr < 0x8000:
		if m.latchIn == 0x00 && value == 0x01 {
			m.latch = rtcSnapshot{
				Sec: m.rtcSec, Min: m.rtcMin, Hour: m.rtcHour,
				Day: m.rtcDay, Halt: m.rtcHalt, Carry: m.rtcCarry,
			}
		}
		m.latchIn = value
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		if m.rtcSelect != 0 {
			m.writeRTC(value)
			return
		}
		if len(m.ram) == 0 {
			return
		}
		rb := int(m.ramBank & 0x03)
		off := rb*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

func (m *MBC3) readLatchedRTC() byte {
	switch m.rtcSelect {
	case rtcSeconds:
		return m.latch.Sec
	case rtcMinutes:
		return m.latch.Min
	case rtcHours:
		return m.latch.Hour
	case rtcDaysLo:
		return byte(m.latch.Day & 0xFF)
	case rtcDaysHi:
		b := byte((m.latch.Day >> 8) & 0x01)
		if m.latch.Halt {
			b |= 0x40
		}
		if m.latch.Carry {
			b |= 0x80
		}
		return b
	default:
		return 0xFF
	}
}

// writeRTC writes directly to the live clock registers; the latched
// snapshot only changes on the next 0->1 latch sequence.
func (m *MBC3) writeRTC(value byte) {
	switch m.rtcSelect {
	case rtcSeconds:
		m.rtcSec = value
	case rtcMinutes:
		m.rtcMin = value
	case rtcHours:
		m.rtcHour = value
	case rtcDaysLo:
		m.rtcDay = (m.rtcDay & 0x100) | uint16(value)
	case rtcDaysHi:
		if value&0x01 != 0 {
			m.rtcDay |= 0x100
		} else {
			m.rtcDay &^= 0x100
		}
		m.rtcHalt = value&0x40 != 0
		m.rtcCarry = value&0x80 != 0
	}
}

// mbc3PersistState bundles external RAM with the RTC registers, matching how
// real MBC3 .sav files carry both together.
type mbc3PersistState struct {
	RAM                     []byte
	RtcSec, RtcMin, RtcHour byte
	RtcDay                  uint16
	RtcHalt, RtcCarry       bool
	LastRTCWallSec          int64
}

func (m *MBC3) snapshot() mbc3PersistState {
	return mbc3PersistState{
		RAM:            append([]byte(nil), m.ram...),
		RtcSec:         m.rtcSec,
		RtcMin:         m.rtcMin,
		RtcHour:        m.rtcHour,
		RtcDay:         m.rtcDay,
		RtcHalt:        m.rtcHalt,
		RtcCarry:       m.rtcCarry,
		LastRTCWallSec: m.lastRTCWallSec,
	}
}

func (m *MBC3) restore(s mbc3PersistState) {
	if len(m.ram) > 0 && len(s.RAM) > 0 {
		copy(m.ram, s.RAM)
	}
	m.rtcSec, m.rtcMin, m.rtcHour = s.RtcSec, s.RtcMin, s.RtcHour
	m.rtcDay, m.rtcHalt, m.rtcCarry = s.RtcDay, s.RtcHalt, s.RtcCarry
	m.lastRTCWallSec = s.LastRTCWallSec
}

// BatteryBacked implementation; bundles the RTC registers with RAM since
// that is what real battery-backed MBC3 cartridges persist together.
func (m *MBC3) SaveRAM() []byte {
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(m.snapshot())
	return buf.Bytes()
}

func (m *MBC3) LoadRAM(data []byte) {
	var s mbc3PersistState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	m.restore(s)
}

type mbc3State struct {
	Persist    mbc3PersistState
	RamEnabled bool
	RomBank    byte
	RamBank    byte
	RTCSelect  byte
	Latch      rtcSnapshot
	LatchIn    byte
}

func (m *MBC3) SaveState() []byte {
	var buf bytes.Buffer
	s := mbc3State{
		Persist:    m.snapshot(),
		RamEnabled: m.ramEnabled,
		RomBank:    m.romBank,
		RamBank:    m.ramBank,
		RTCSelect:  m.rtcSelect,
		Latch:      m.latch,
		LatchIn:    m.latchIn,
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (m *MBC3) LoadState(data []byte) {
	var s mbc3State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	m.restore(s.Persist)
	m.ramEnabled, m.romBank, m.ramBank = s.RamEnabled, s.RomBank, s.RamBank
	m.rtcSelect, m.latch, m.latchIn = s.RTCSelect, s.Latch, s.LatchIn
}
