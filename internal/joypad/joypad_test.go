package joypad

import "testing"

func TestJoypad_DirectionColumn(t *testing.T) {
	j := New(nil)
	j.WriteP1(0xEF) // select direction column (bit4=0), action deselected
	j.SetButton(Right, true)
	got := j.ReadP1()
	if got&0x01 != 0 {
		t.Fatalf("Right bit not pulled low: P1=%02X", got)
	}
	if got&0x20 == 0 {
		t.Fatalf("action column bit should read 1 (deselected): P1=%02X", got)
	}
}

func TestJoypad_ActionColumn(t *testing.T) {
	j := New(nil)
	j.WriteP1(0xDF) // select action column
	j.SetButton(A, true)
	got := j.ReadP1()
	if got&0x01 != 0 {
		t.Fatalf("A bit not pulled low: P1=%02X", got)
	}
}

func TestJoypad_NoColumnSelected_ReadsAllOnes(t *testing.T) {
	j := New(nil)
	j.WriteP1(0xFF)
	j.SetButton(A, true)
	if got := j.ReadP1() & 0x0F; got != 0x0F {
		t.Fatalf("P1 low nibble got %02X want 0F with no column selected", got)
	}
}

func TestJoypad_InterruptOnEdgeOnlyWhenColumnSelected(t *testing.T) {
	var fired int
	j := New(func() { fired++ })
	j.WriteP1(0xDF) // action column selected, direction not
	j.SetButton(Right, true) // direction column not selected: no interrupt
	if fired != 0 {
		t.Fatalf("unexpected interrupt for unselected column, fired=%d", fired)
	}
	j.SetButton(A, true) // action column selected: interrupt fires
	if fired != 1 {
		t.Fatalf("interrupt not fired on selected-column press, fired=%d", fired)
	}
	j.SetButton(A, true) // already pressed: no new edge
	if fired != 1 {
		t.Fatalf("interrupt fired again without a release/press edge, fired=%d", fired)
	}
}
