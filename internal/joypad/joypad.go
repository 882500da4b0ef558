// Package joypad models the P1 (0xFF00) register and button-edge interrupts.
package joypad

// Button identifies one of the eight logical Game Boy inputs.
type Button int

const (
	Right Button = iota
	Left
	Up
	Down
	A
	B
	Select
	Start
)

// Buttons is the full pressed/released state snapshot.
type Buttons struct {
	Right, Left, Up, Down bool
	A, B, Select, Start   bool
}

// RequestFunc raises the joypad interrupt (IF bit 4).
type RequestFunc func()

// Joypad tracks logical button state and renders it through the P1 register,
// which exposes only the column currently selected by the CPU.
type Joypad struct {
	buttons Buttons
	selDirection bool // P1 bit 4 == 0 selects the direction keys
	selAction    bool // P1 bit 5 == 0 selects the action keys

	requestInterrupt RequestFunc
}

func New(request RequestFunc) *Joypad {
	return &Joypad{requestInterrupt: request}
}

func (j *Joypad) Reset() {
	j.buttons = Buttons{}
	j.selDirection, j.selAction = false, false
}

// SetButton updates one logical button and requests the joypad interrupt on
// a released-to-pressed edge, but only if the corresponding column is
// currently selected in P1 (matching real hardware, which only latches a
// transition that the selected multiplexer can see).
func (j *Joypad) SetButton(b Button, pressed bool) {
	wasPressed := j.isPressed(b)
	j.setPressed(b, pressed)
	if pressed && !wasPressed && j.columnSelected(b) {
		if j.requestInterrupt != nil {
			j.requestInterrupt()
		}
	}
}

func (j *Joypad) ButtonsState() Buttons { return j.buttons }

func (j *Joypad) columnSelected(b Button) bool {
	switch b {
	case Right, Left, Up, Down:
		return j.selDirection
	default:
		return j.selAction
	}
}

func (j *Joypad) isPressed(b Button) bool {
	switch b {
	case Right:
		return j.buttons.Right
	case Left:
		return j.buttons.Left
	case Up:
		return j.buttons.Up
	case Down:
		return j.buttons.Down
	case A:
		return j.buttons.A
	case B:
		return j.buttons.B
	case Select:
		return j.buttons.Select
	case Start:
		return j.buttons.Start
	}
	return false
}

func (j *Joypad) setPressed(b Button, v bool) {
	switch b {
	case Right:
		j.buttons.Right = v
	case Left:
		j.buttons.Left = v
	case Up:
		j.buttons.Up = v
	case Down:
		j.buttons.Down = v
	case A:
		j.buttons.A = v
	case B:
		j.buttons.B = v
	case Select:
		j.buttons.Select = v
	case Start:
		j.buttons.Start = v
	}
}

// ReadP1 renders the register given the CPU-selected column(s). Both columns
// may be selected at once, in which case the two nibbles are ANDed together
// (active-low: a press on either column pulls its shared line low).
func (j *Joypad) ReadP1() byte {
	direction := byte(0x0F)
	if j.selDirection {
		if j.buttons.Right {
			direction &^= 0x01
		}
		if j.buttons.Left {
			direction &^= 0x02
		}
		if j.buttons.Up {
			direction &^= 0x04
		}
		if j.buttons.Down {
			direction &^= 0x08
		}
	}
	action := byte(0x0F)
	if j.selAction {
		if j.buttons.A {
			action &^= 0x01
		}
		if j.buttons.B {
			action &^= 0x02
		}
		if j.buttons.Select {
			action &^= 0x04
		}
		if j.buttons.Start {
			action &^= 0x08
		}
	}
	nibble := byte(0x0F)
	if j.selDirection {
		nibble &= direction
	}
	if j.selAction {
		nibble &= action
	}
	sel := byte(0x00)
	if !j.selDirection {
		sel |= 0x10
	}
	if !j.selAction {
		sel |= 0x20
	}
	return 0xC0 | sel | nibble
}

// WriteP1 stores only bits 4-5 (column select); bits 0-3 are joypad-supplied
// and ignored on write.
func (j *Joypad) WriteP1(v byte) {
	j.selDirection = v&0x10 == 0
	j.selAction = v&0x20 == 0
}

func (j *Joypad) SaveState() Buttons { return j.buttons }
func (j *Joypad) LoadState(b Buttons) { j.buttons = b }
