package devices

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeTimer builds a Timer driven by a manual clock, without the tick
// goroutine.
func fakeTimer() (*Timer, *time.Time) {
	now := time.Unix(0, 0)
	t := &Timer{done: make(chan struct{})}
	t.clock = func() time.Time { return now }
	t.start = now
	t.SetBase(0x32020)
	return t, &now
}

func TestTimerCurrentTime(t *testing.T) {
	assert := assert.New(t)
	tm, now := fakeTimer()

	assert.Equal(uint32(0), tm.ReadWord(tm.Base()+TimerCurrentTime))
	*now = now.Add(250 * time.Millisecond)
	assert.Equal(uint32(250), tm.ReadWord(tm.Base()+TimerCurrentTime))
}

func TestTimerCompareMatch(t *testing.T) {
	assert := assert.New(t)
	tm, now := fakeTimer()

	tm.WriteWord(tm.Base()+TimerCompareValue, 5)
	assert.Equal(uint32(5), tm.ReadWord(tm.Base()+TimerCompareValue))

	*now = now.Add(4 * time.Millisecond)
	tm.tick()
	assert.Equal(uint32(0), tm.ReadWord(tm.Base()+TimerStatus))

	*now = now.Add(1 * time.Millisecond)
	tm.tick()
	assert.Equal(uint32(1), tm.ReadWord(tm.Base()+TimerStatus))

	// STATUS stays latched after the match passes.
	*now = now.Add(10 * time.Millisecond)
	tm.tick()
	assert.Equal(uint32(1), tm.ReadWord(tm.Base()+TimerStatus))
}

func TestTimerControl(t *testing.T) {
	assert := assert.New(t)
	tm, now := fakeTimer()

	tm.WriteWord(tm.Base()+TimerCompareValue, 1)
	*now = now.Add(1 * time.Millisecond)
	tm.tick()
	assert.Equal(uint32(1), tm.ReadWord(tm.Base()+TimerStatus))

	tm.WriteWord(tm.Base()+TimerControl, 1)
	assert.Equal(uint32(1), tm.ReadWord(tm.Base()+TimerCurrentTime))
	assert.Equal(uint32(0), tm.ReadWord(tm.Base()+TimerStatus))

	*now = now.Add(7 * time.Millisecond)
	tm.tick()
	tm.WriteWord(tm.Base()+TimerControl, 2)
	assert.Equal(uint32(0), tm.ReadWord(tm.Base()+TimerCurrentTime))
	assert.Equal(uint32(0), tm.ReadWord(tm.Base()+TimerStatus))
}

func TestTimerControlReadsZero(t *testing.T) {
	tm, _ := fakeTimer()
	assert.Equal(t, uint32(0), tm.ReadWord(tm.Base()+TimerControl))
}

func TestTimerRunsAutonomously(t *testing.T) {
	tm := NewTimer()
	defer tm.Close()
	tm.SetBase(0x32020)

	tm.WriteWord(tm.Base()+TimerControl, 2)
	deadline := time.Now().Add(time.Second)
	for tm.ReadWord(tm.Base()+TimerCurrentTime) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("CURRENT_TIME never advanced")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
