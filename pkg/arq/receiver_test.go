package arq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func payload(b ...bool) []bool { return b }

func TestReceiverWindow_OutOfOrder(t *testing.T) {
	w := NewReceiverWindow(4, 256)
	p0, p1, p2 := payload(true), payload(false, true), payload(true, true)

	assert.Equal(t, 0, w.Receive(p0, 0))
	assert.Equal(t, 0, w.Receive(p2, 2))
	assert.Equal(t, 1, w.Collected())
	assert.Equal(t, 2, w.Receive(p1, 1))

	assert.Equal(t, [][]bool{p0, p1, p2}, w.Drain())
	assert.Equal(t, 0, w.Collected())
}

func TestReceiverWindow_NothingYet(t *testing.T) {
	w := NewReceiverWindow(4, 256)
	assert.Equal(t, -1, w.Receive(payload(true), 1))
	assert.Equal(t, -1, w.Receive(payload(true), 9), "outside the window")
}

func TestReceiverWindow_DuplicateIsIgnored(t *testing.T) {
	w := NewReceiverWindow(4, 256)
	w.Receive(payload(true), 0)
	w.Drain()
	assert.Equal(t, 0, w.Receive(payload(false), 0))
	assert.Equal(t, 0, w.Collected())
}

func TestReceiverWindow_WrapAround(t *testing.T) {
	w := NewReceiverWindow(4, 8)
	for seq := range 7 {
		w.Receive(payload(seq%2 == 0), seq)
	}
	w.Drain()

	assert.Equal(t, 6, w.Receive(payload(true), 1), "seq 1 lies in the wrapped window")
	assert.Equal(t, 7, w.Receive(payload(true), 7))
	assert.Equal(t, 1, w.Receive(payload(true), 0), "seq 0 releases the buffered seq 1")
	assert.Equal(t, 3, w.Collected())
}

func TestReceiverWindow_StoresCopy(t *testing.T) {
	w := NewReceiverWindow(4, 256)
	p := payload(true, false)
	w.Receive(p, 0)
	p[0] = false
	assert.Equal(t, [][]bool{{true, false}}, w.Drain())
}
