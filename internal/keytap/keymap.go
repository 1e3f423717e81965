package keytap

import (
	"encoding/binary"
	"time"
)

// Linux input event constants.
const (
	evKey      = 0x01
	keyRelease = 0
	keyPress   = 1

	// EventSize is the size of struct input_event on 64-bit platforms.
	EventSize = 24
)

const (
	keyLeftCtrl   = 29
	keyLeftShift  = 42
	keyRightShift = 54
	keyLeftAlt    = 56
	keyCapsLock   = 58
	keyRightCtrl  = 97
	keyRightAlt   = 100
	keyLeftMeta   = 125
	keyRightMeta  = 126
)

// inputEvent is the decoded form of struct input_event.
type inputEvent struct {
	At    time.Time
	Type  uint16
	Code  uint16
	Value int32
}

func parseEvent(buf []byte) (inputEvent, bool) {
	if len(buf) < EventSize {
		return inputEvent{}, false
	}
	sec := int64(binary.LittleEndian.Uint64(buf[0:8]))
	usec := int64(binary.LittleEndian.Uint64(buf[8:16]))
	return inputEvent{
		At:    time.Unix(sec, usec*int64(time.Microsecond)),
		Type:  binary.LittleEndian.Uint16(buf[16:18]),
		Code:  binary.LittleEndian.Uint16(buf[18:20]),
		Value: int32(binary.LittleEndian.Uint32(buf[20:24])),
	}, true
}

type keyChars struct {
	plain, shifted byte
}

// usKeys maps evdev key codes to the characters of a US layout.
var usKeys = map[uint16]keyChars{
	1:  {0x1b, 0x1b},
	2:  {'1', '!'},
	3:  {'2', '@'},
	4:  {'3', '#'},
	5:  {'4', '$'},
	6:  {'5', '%'},
	7:  {'6', '^'},
	8:  {'7', '&'},
	9:  {'8', '*'},
	10: {'9', '('},
	11: {'0', ')'},
	12: {'-', '_'},
	13: {'=', '+'},
	14: {0x7f, 0x7f},
	15: {'\t', '\t'},
	16: {'q', 'Q'},
	17: {'w', 'W'},
	18: {'e', 'E'},
	19: {'r', 'R'},
	20: {'t', 'T'},
	21: {'y', 'Y'},
	22: {'u', 'U'},
	23: {'i', 'I'},
	24: {'o', 'O'},
	25: {'p', 'P'},
	26: {'[', '{'},
	27: {']', '}'},
	28: {'\r', '\r'},
	30: {'a', 'A'},
	31: {'s', 'S'},
	32: {'d', 'D'},
	33: {'f', 'F'},
	34: {'g', 'G'},
	35: {'h', 'H'},
	36: {'j', 'J'},
	37: {'k', 'K'},
	38: {'l', 'L'},
	39: {';', ':'},
	40: {'\'', '"'},
	41: {'`', '~'},
	43: {'\\', '|'},
	44: {'z', 'Z'},
	45: {'x', 'X'},
	46: {'c', 'C'},
	47: {'v', 'V'},
	48: {'b', 'B'},
	49: {'n', 'N'},
	50: {'m', 'M'},
	51: {',', '<'},
	52: {'.', '>'},
	53: {'/', '?'},
	55: {'*', '*'},
	57: {' ', ' '},
	71: {'7', '7'},
	72: {'8', '8'},
	73: {'9', '9'},
	74: {'-', '-'},
	75: {'4', '4'},
	76: {'5', '5'},
	77: {'6', '6'},
	78: {'+', '+'},
	79: {'1', '1'},
	80: {'2', '2'},
	81: {'3', '3'},
	82: {'0', '0'},
	83: {'.', '.'},
	96: {'\r', '\r'},
	98: {'/', '/'},
}

// Translator turns evdev key events into character codes, tracking the
// shift and caps lock state of one device.
type Translator struct {
	shiftLeft, shiftRight bool
	capsLock              bool
}

// Translate handles one EV_KEY event. It reports the character code of a
// key press and whether the event is a countable key-down.
func (t *Translator) Translate(code uint16, value int32) (int, bool) {
	switch code {
	case keyLeftShift:
		t.shiftLeft = value != keyRelease
		return 0, false
	case keyRightShift:
		t.shiftRight = value != keyRelease
		return 0, false
	case keyCapsLock:
		if value == keyPress {
			t.capsLock = !t.capsLock
		}
		return 0, false
	case keyLeftCtrl, keyRightCtrl, keyLeftAlt, keyRightAlt, keyLeftMeta, keyRightMeta:
		return 0, false
	}
	if value != keyPress {
		return 0, false
	}
	chars, ok := usKeys[code]
	if !ok {
		return -1, true
	}
	shifted := t.shiftLeft || t.shiftRight
	if chars.plain >= 'a' && chars.plain <= 'z' && t.capsLock {
		shifted = !shifted
	}
	if shifted {
		return int(chars.shifted), true
	}
	return int(chars.plain), true
}
