package utils

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBitsRoundTrip(t *testing.T) {
	data := []byte{0x00, 0xff, 0xa5, 0x01}
	bits := BytesToBits(data)
	require.Len(t, bits, 32)
	assert.Equal(t, []bool{true, false, true, false, false, true, false, true}, bits[16:24])
	assert.Equal(t, data, BitsToBytes(bits))
}

func TestBitsToBytesPads(t *testing.T) {
	assert.Equal(t, []byte{0xe0}, BitsToBytes([]bool{true, true, true}))
	assert.Empty(t, BitsToBytes(nil))
}

func TestUnpackerAcrossChunks(t *testing.T) {
	first, err := Pack(1, []byte("hello"))
	require.NoError(t, err)
	second, err := Pack(2, nil)
	require.NoError(t, err)
	stream := append(first, second...)

	var u Unpacker
	for len(stream) > 0 {
		n := min(len(stream), 13)
		u.Feed(stream[:n])
		stream = stream[n:]
		if len(stream) > len(second) {
			_, _, ok := u.Next()
			assert.False(t, ok)
		}
	}

	kind, data, ok := u.Next()
	require.True(t, ok)
	assert.Equal(t, byte(1), kind)
	assert.Equal(t, []byte("hello"), data)

	kind, data, ok = u.Next()
	require.True(t, ok)
	assert.Equal(t, byte(2), kind)
	assert.Empty(t, data)

	_, _, ok = u.Next()
	assert.False(t, ok)
	assert.Zero(t, u.Pending())
}

func TestPackTooLong(t *testing.T) {
	_, err := Pack(0, make([]byte, MaxMessage+1))
	assert.ErrorIs(t, err, ErrMessageTooLong)
}

func TestBinaryFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "data.bin")
	want := []int16{1, -2, 300, -400}
	require.NoError(t, WriteBinary(name, want))

	got, err := ReadBinary[int16](name)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = ReadBinary[byte](filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
