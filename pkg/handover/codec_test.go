package handover

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfchandover/handover-go/pkg/ndef"
)

var testSessionID = uuid.MustParse("5f2b1c3e-9d4a-4e7b-8a1f-0c2d3e4f5a6b")

func TestEncodeShape(t *testing.T) {
	data, err := Encode("https://app/x", "00:11:22:33:44:55", testSessionID)
	require.NoError(t, err)

	msg, err := ndef.Unmarshal(data)
	require.NoError(t, err)
	require.Len(t, msg.Records, RecordCount)

	uri, err := msg.Records[0].URI()
	require.NoError(t, err)
	assert.Equal(t, "https://app/x", uri)

	marker, lang, err := msg.Records[1].Text()
	require.NoError(t, err)
	assert.Equal(t, Marker, marker)
	assert.Equal(t, "en", lang)

	addr, _, err := msg.Records[2].Text()
	require.NoError(t, err)
	assert.Equal(t, "00:11:22:33:44:55", addr)

	id, _, err := msg.Records[3].Text()
	require.NoError(t, err)
	assert.Equal(t, "5f2b1c3e-9d4a-4e7b-8a1f-0c2d3e4f5a6b", id)
}

func TestEncodeBytes(t *testing.T) {
	data, err := Encode("a", "00:11:22:33:44:55", testSessionID)
	require.NoError(t, err)

	// First record: MB|SR|TNF=1, type "U", payload 0x00 'a'.
	assert.Equal(t, []byte{0x91, 0x01, 0x02, 'U', 0x00, 'a'}, data[:6])
	// Second record: SR|TNF=1, type "T", status 0x02 "en".
	marker := 3 + len(Marker)
	assert.Equal(t, []byte{0x11, 0x01, byte(marker), 'T', 0x02, 'e', 'n'}, data[6:13])
	assert.Equal(t, Marker, string(data[13:13+len(Marker)]))
	// The last record carries ME.
	last := data[len(data)-(4+3+36)]
	assert.Equal(t, byte(0x51), last)
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		appLink string
		address string
		want    string
	}{
		{"Canonical", "https://app/x", "00:11:22:33:44:55", "00:11:22:33:44:55"},
		{"LowerCase", "market://details?id=com.example", "aa:bb:cc:dd:ee:ff", "AA:BB:CC:DD:EE:FF"},
		{"Dashes", "https://example.com/a/b", "0A-1B-2C-3D-4E-5F", "0A:1B:2C:3D:4E:5F"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.appLink, tt.address, testSessionID)
			require.NoError(t, err)

			hs, ok := Decode(data)
			require.True(t, ok)
			assert.Equal(t, tt.appLink, hs.AppLink)
			assert.Equal(t, tt.want, hs.PeerAddress)
			assert.Equal(t, testSessionID, hs.SessionID)
		})
	}
}

func TestEncodeErrors(t *testing.T) {
	_, err := Encode("", "00:11:22:33:44:55", testSessionID)
	assert.ErrorIs(t, err, ErrEmptyAppLink)

	_, err = Encode("https://app/x", "00:11:22:33:44", testSessionID)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = Encode("https://app/x", "00:11:22:33:44:55", uuid.Nil)
	assert.ErrorIs(t, err, ErrNilSessionID)
}

func TestDecodeNotHandover(t *testing.T) {
	encode := func(t *testing.T, records ...ndef.Record) []byte {
		t.Helper()
		data, err := ndef.NewMessage(records...).Marshal()
		require.NoError(t, err)
		return data
	}
	uri := ndef.NewURIRecord("https://app/x")
	text := func(s string) ndef.Record { return ndef.NewTextRecord("en", s) }

	tests := []struct {
		name string
		data func(t *testing.T) []byte
	}{
		{"Nil", func(*testing.T) []byte { return nil }},
		{"Garbage", func(*testing.T) []byte { return []byte{0xDE, 0xAD, 0xBE, 0xEF} }},
		{"SingleRecord", func(t *testing.T) []byte { return encode(t, uri) }},
		{"ThreeRecords", func(t *testing.T) []byte {
			return encode(t, uri, text(Marker), text("00:11:22:33:44:55"))
		}},
		{"FiveRecords", func(t *testing.T) []byte {
			return encode(t, uri, text(Marker), text("00:11:22:33:44:55"), text(testSessionID.String()), text("x"))
		}},
		{"WrongMarker", func(t *testing.T) []byte {
			return encode(t, uri, text("SomethingElse"), text("00:11:22:33:44:55"), text(testSessionID.String()))
		}},
		{"BadAddress", func(t *testing.T) []byte {
			return encode(t, uri, text(Marker), text("not-an-address"), text(testSessionID.String()))
		}},
		{"BadUUID", func(t *testing.T) []byte {
			return encode(t, uri, text(Marker), text("00:11:22:33:44:55"), text("not-a-uuid"))
		}},
		{"NilUUID", func(t *testing.T) []byte {
			return encode(t, uri, text(Marker), text("00:11:22:33:44:55"), text(uuid.Nil.String()))
		}},
		{"FirstNotURI", func(t *testing.T) []byte {
			return encode(t, text("x"), text(Marker), text("00:11:22:33:44:55"), text(testSessionID.String()))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs, ok := Decode(tt.data(t))
			assert.False(t, ok)
			assert.Equal(t, Handshake{}, hs)
		})
	}
}

func TestDecodeExpandsURIPrefix(t *testing.T) {
	abbreviated := ndef.Record{TNF: ndef.TNFWellKnown, Type: ndef.TypeURI, Payload: append([]byte{0x04}, "app/x"...)}
	msg := ndef.NewMessage(
		abbreviated,
		ndef.NewTextRecord("en", Marker),
		ndef.NewTextRecord("en", "00:11:22:33:44:55"),
		ndef.NewTextRecord("en", testSessionID.String()),
	)
	hs, ok := DecodeMessage(msg)
	require.True(t, ok)
	assert.Equal(t, "https://app/x", hs.AppLink)
}

func TestIsHandover(t *testing.T) {
	msg, err := EncodeMessage("https://app/x", "00:11:22:33:44:55", testSessionID)
	require.NoError(t, err)
	assert.True(t, IsHandover(msg))
	assert.False(t, IsHandover(nil))
	assert.False(t, IsHandover(ndef.NewMessage(ndef.NewURIRecord("https://app/x"))))
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "00:11:22:33:44:55", want: "00:11:22:33:44:55"},
		{in: " ab:cd:ef:01:23:45 ", want: "AB:CD:EF:01:23:45"},
		{in: "AB-CD-EF-01-23-45", want: "AB:CD:EF:01:23:45"},
		{in: "", wantErr: true},
		{in: "00:11:22:33:44", wantErr: true},
		{in: "00:11:22:33:44:5G", wantErr: true},
		{in: "00.11.22.33.44.55", wantErr: true},
		{in: "001122334455", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAddress)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
