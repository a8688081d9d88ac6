package devices

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestKeyboard() *Keyboard {
	k := NewKeyboard()
	k.SetBase(0x32000)
	return k
}

func TestKeyboardBufferProtocol(t *testing.T) {
	assert := assert.New(t)
	k := newTestKeyboard()

	for _, ch := range []byte{'A', 'B', 'C'} {
		k.Enqueue(ch)
	}

	assert.Equal(uint32('A'), k.ReadWord(k.Base()+KeyboardFirstChar))
	assert.Equal(uint32(1), k.ReadWord(k.Base()+KeyboardBufferReady))
	assert.Equal(uint32('C'), k.ReadWord(k.Base()+KeyboardCurrentChar))

	k.WriteWord(k.Base()+KeyboardControl, 1)
	assert.Equal(uint32('B'), k.ReadWord(k.Base()+KeyboardFirstChar))
	assert.Equal(uint32(1), k.ReadWord(k.Base()+KeyboardBufferReady))

	k.WriteWord(k.Base()+KeyboardControl, 1)
	k.WriteWord(k.Base()+KeyboardControl, 1)
	assert.Equal(uint32(0), k.ReadWord(k.Base()+KeyboardFirstChar))
	assert.Equal(uint32(0), k.ReadWord(k.Base()+KeyboardBufferReady))
	assert.Equal(uint32(0), k.ReadWord(k.Base()+KeyboardCurrentChar))
}

func TestKeyboardOverflowDropsOldest(t *testing.T) {
	assert := assert.New(t)
	k := newTestKeyboard()

	for i := 0; i < keyboardBufferCap; i++ {
		k.Enqueue(byte('a' + i%26))
	}
	assert.Equal(uint32('a'), k.ReadWord(k.Base()+KeyboardFirstChar))

	k.Enqueue('!')
	assert.Equal(uint32('b'), k.ReadWord(k.Base()+KeyboardFirstChar))
	assert.Equal(uint32('!'), k.ReadWord(k.Base()+KeyboardCurrentChar))
}

func TestKeyboardClearAndReset(t *testing.T) {
	assert := assert.New(t)
	k := newTestKeyboard()

	k.Enqueue('x')
	k.Enqueue('y')
	k.WriteWord(k.Base()+KeyboardControl, 2)
	assert.Equal(uint32(0), k.ReadWord(k.Base()+KeyboardFirstChar))

	k.Enqueue('z')
	k.WriteWord(k.Base()+KeyboardControl, 3)
	assert.Equal(uint32(0), k.ReadWord(k.Base()+KeyboardCurrentChar))
}

func TestKeyboardControlReadsZero(t *testing.T) {
	k := newTestKeyboard()
	k.Enqueue('q')
	assert.Equal(t, uint32(0), k.ReadWord(k.Base()+KeyboardControl))
}

func TestKeyboardByteAccess(t *testing.T) {
	assert := assert.New(t)
	k := newTestKeyboard()
	k.Enqueue('A')
	k.Enqueue('B')

	// Low byte of FIRST_CHAR, then the zero high bytes.
	assert.Equal(byte('A'), k.ReadByte(k.Base()+KeyboardFirstChar))
	assert.Equal(byte(0), k.ReadByte(k.Base()+KeyboardFirstChar+1))

	// A byte write landing in CONTROL still runs the command handler.
	k.WriteByte(k.Base()+KeyboardControl, 1)
	assert.Equal(uint32('B'), k.ReadWord(k.Base()+KeyboardFirstChar))
}

func TestMapKey(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(byte('\n'), MapKey("Enter", ""))
	assert.Equal(byte('\b'), MapKey("Backspace", ""))
	assert.Equal(byte('\t'), MapKey("Tab", ""))
	assert.Equal(byte(' '), MapKey("Space", ""))
	assert.Equal(byte('g'), MapKey("G", "g"))
	assert.Equal(byte(0), MapKey("Shift", ""))
}
