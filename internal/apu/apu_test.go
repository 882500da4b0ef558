package apu

import "testing"

// Writing NR12 (CH1 envelope) with the upper 5 bits clear disables the DAC,
// which forces the channel off even if it was just triggered.
func TestAPU_NR12DACDisableTurnsChannelOff(t *testing.T) {
	a := New(48000)
	a.CPUWrite(0xFF12, 0x00) // DAC off
	a.CPUWrite(0xFF14, 0x80) // trigger CH1
	if a.ch1.enabled {
		t.Fatalf("CH1 enabled after trigger with DAC disabled")
	}

	a.CPUWrite(0xFF12, 0xF0) // DAC on, envelope volume 15
	a.CPUWrite(0xFF14, 0x80) // trigger
	if !a.ch1.enabled {
		t.Fatalf("CH1 not enabled after trigger with DAC enabled")
	}
}

// Clearing DAC on an already-running channel (NR22 for CH2) turns it off
// immediately, independent of the trigger bit.
func TestAPU_NR22DACClearDisablesRunningChannel(t *testing.T) {
	a := New(48000)
	a.CPUWrite(0xFF17, 0xF0) // DAC on
	a.CPUWrite(0xFF19, 0x80) // trigger CH2
	if !a.ch2.enabled {
		t.Fatalf("CH2 not enabled after trigger")
	}
	a.CPUWrite(0xFF17, 0x00) // DAC off
	if a.ch2.enabled {
		t.Fatalf("CH2 still enabled after DAC disabled")
	}
}

// Powering the APU off via NR52 bit 7 must zero every register except the
// length counters and wave RAM.
func TestAPU_NR52PowerOffPreservesLengthAndWaveRAM(t *testing.T) {
	a := New(48000)
	a.CPUWrite(0xFF26, 0x80) // power on
	a.CPUWrite(0xFF11, 0x3F) // CH1 length load
	a.CPUWrite(0xFF1B, 0x10) // CH3 length load
	for i := 0; i < 16; i++ {
		a.ch3.ram[i] = byte(i + 1)
	}
	wantCh1Len := a.ch1.length
	wantCh3Len := a.ch3.length
	var wantRAM [16]byte
	copy(wantRAM[:], a.ch3.ram[:])

	a.CPUWrite(0xFF24, 0x77) // NR50
	a.CPUWrite(0xFF25, 0xFF) // NR51

	a.CPUWrite(0xFF26, 0x00) // power off
	if a.enabled {
		t.Fatalf("APU still enabled after power-off write")
	}
	if a.nr50 != 0 || a.nr51 != 0 {
		t.Fatalf("NR50/NR51 not cleared on power-off: %02X %02X", a.nr50, a.nr51)
	}
	if a.ch1.length != wantCh1Len {
		t.Fatalf("CH1 length not preserved: got %d want %d", a.ch1.length, wantCh1Len)
	}
	if a.ch3.length != wantCh3Len {
		t.Fatalf("CH3 length not preserved: got %d want %d", a.ch3.length, wantCh3Len)
	}
	if a.ch3.ram != wantRAM {
		t.Fatalf("wave RAM not preserved across power-off")
	}
}

func TestAPU_SaveStateRoundTrip(t *testing.T) {
	a := New(48000)
	a.CPUWrite(0xFF12, 0xF0)
	a.CPUWrite(0xFF14, 0x80)
	a.CPUWrite(0xFF17, 0x00) // CH2 DAC off
	a.CPUWrite(0xFF21, 0xF0)
	a.CPUWrite(0xFF23, 0x80)

	data := a.SaveState()

	b := New(48000)
	b.LoadState(data)
	if b.ch1.dacEn != a.ch1.dacEn || b.ch1.enabled != a.ch1.enabled {
		t.Fatalf("CH1 DAC/enabled not restored: dacEn=%v enabled=%v", b.ch1.dacEn, b.ch1.enabled)
	}
	if b.ch2.dacEn != a.ch2.dacEn {
		t.Fatalf("CH2 DAC-disabled state not restored: got %v want %v", b.ch2.dacEn, a.ch2.dacEn)
	}
	if b.ch4.dacEn != a.ch4.dacEn || b.ch4.enabled != a.ch4.enabled {
		t.Fatalf("CH4 DAC/enabled not restored: dacEn=%v enabled=%v", b.ch4.dacEn, b.ch4.enabled)
	}
}
