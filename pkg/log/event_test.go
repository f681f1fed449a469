package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "IN", DirectionIn.String())
	assert.Equal(t, "OUT", DirectionOut.String())
	assert.Equal(t, "UNKNOWN", Direction(9).String())

	assert.Equal(t, "TRANSPORT", LayerTransport.String())
	assert.Equal(t, "NFC", LayerNFC.String())
	assert.Equal(t, "SESSION", LayerSession.String())
	assert.Equal(t, "UNKNOWN", Layer(9).String())

	assert.Equal(t, "DATA", CategoryData.String())
	assert.Equal(t, "HANDSHAKE", CategoryHandshake.String())
	assert.Equal(t, "STATE", CategoryState.String())
	assert.Equal(t, "ERROR", CategoryError.String())
	assert.Equal(t, "UNKNOWN", Category(9).String())

	assert.Equal(t, "ACCEPTOR", RoleAcceptor.String())
	assert.Equal(t, "INITIATOR", RoleInitiator.String())
	assert.Equal(t, "UNKNOWN", RoleUnknown.String())
}

func TestParseCategory(t *testing.T) {
	for _, c := range []Category{CategoryData, CategoryHandshake, CategoryState, CategoryError} {
		got, ok := ParseCategory(c.String())
		assert.True(t, ok)
		assert.Equal(t, c, got)
	}

	_, ok := ParseCategory("data")
	assert.False(t, ok)
}

func TestNewFrameEvent(t *testing.T) {
	t.Run("Small", func(t *testing.T) {
		data := []byte("hello")
		fe := NewFrameEvent(data)
		assert.Equal(t, 5, fe.Size)
		assert.False(t, fe.Truncated)
		assert.Equal(t, data, fe.Data)

		// The event owns its copy.
		data[0] = 'j'
		assert.Equal(t, []byte("hello"), fe.Data)
	})

	t.Run("Truncated", func(t *testing.T) {
		data := bytes.Repeat([]byte{0xAB}, MaxFrameData+10)
		fe := NewFrameEvent(data)
		assert.Equal(t, MaxFrameData+10, fe.Size)
		assert.True(t, fe.Truncated)
		assert.Len(t, fe.Data, MaxFrameData)
	})
}
