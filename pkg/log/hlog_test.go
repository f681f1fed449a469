package log

import (
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeEvent(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 123456789, time.UTC)

	tests := []struct {
		name  string
		event Event
	}{
		{
			name: "Frame",
			event: Event{
				Timestamp:    ts,
				ConnectionID: "c1",
				Direction:    DirectionOut,
				Layer:        LayerTransport,
				Category:     CategoryData,
				LocalRole:    RoleInitiator,
				RemoteAddr:   "AA:BB:CC:DD:EE:FF",
				Frame:        &FrameEvent{Size: 3, Data: []byte{1, 2, 3}},
			},
		},
		{
			name: "Handshake",
			event: Event{
				Timestamp: ts,
				Layer:     LayerNFC,
				Category:  CategoryHandshake,
				SessionID: "0b7e5f3c-1d2a-4f61-9c1e-8f6e0c8f2a11",
				Handshake: &HandshakeEvent{
					AppLink:     "https://example.com/app",
					PeerAddress: "AA:BB:CC:DD:EE:FF",
					SessionID:   "0b7e5f3c-1d2a-4f61-9c1e-8f6e0c8f2a11",
					Raw:         []byte{0xD1, 0x01},
				},
			},
		},
		{
			name: "StateChange",
			event: Event{
				Timestamp:   ts,
				Layer:       LayerSession,
				Category:    CategoryState,
				PeerName:    "phone",
				StateChange: &StateChangeEvent{OldState: "CONNECTING", NewState: "CONNECTED", Epoch: 2},
			},
		},
		{
			name: "Error",
			event: Event{
				Timestamp: ts,
				Layer:     LayerSession,
				Category:  CategoryError,
				Error:     &ErrorEventData{Layer: LayerTransport, Message: "boom", Context: "read"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeEvent(tt.event)
			require.NoError(t, err)

			got, err := DecodeEvent(data)
			require.NoError(t, err)
			assert.True(t, tt.event.Timestamp.Equal(got.Timestamp))
			got.Timestamp = tt.event.Timestamp
			assert.Equal(t, tt.event, got)
		})
	}
}

func TestEncodeEventUsesIntegerKeys(t *testing.T) {
	data, err := EncodeEvent(Event{ConnectionID: "c1"})
	require.NoError(t, err)

	var raw map[any]any
	require.NoError(t, cbor.Unmarshal(data, &raw))
	for k := range raw {
		assert.IsType(t, uint64(0), k)
	}
	assert.Equal(t, "c1", raw[uint64(2)])
}

func TestDecodeEventInvalid(t *testing.T) {
	_, err := DecodeEvent([]byte{0xFF, 0x00})
	assert.Error(t, err)
}

func TestEncodeEventDeterministic(t *testing.T) {
	ev := Event{
		Timestamp:   time.Date(2026, 3, 4, 5, 6, 7, 8, time.UTC),
		SessionID:   "s1",
		RemoteAddr:  "AA:BB:CC:DD:EE:FF",
		StateChange: &StateChangeEvent{NewState: "CONNECTED"},
	}
	first, err := EncodeEvent(ev)
	require.NoError(t, err)
	second, err := EncodeEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDecodeEventRejectsDuplicateKeys(t *testing.T) {
	// {2: "a", 2: "b"}
	_, err := DecodeEvent([]byte{0xA2, 0x02, 0x61, 'a', 0x02, 0x61, 'b'})
	assert.Error(t, err)
}

func TestHeader(t *testing.T) {
	header, err := encodeHeader()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDA, 'h', 'l', 'o', 'g', 0x01}, header)

	var tag cbor.RawTag
	require.NoError(t, cbor.Unmarshal(header, &tag))
	require.NoError(t, checkHeader(tag))

	tag.Content = cbor.RawMessage{0x02}
	assert.ErrorIs(t, checkHeader(tag), ErrUnsupportedFormat)

	tag.Number = 1
	assert.ErrorIs(t, checkHeader(tag), ErrNotHandoverLog)
}
