package ndef

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSingleTextRecord(t *testing.T) {
	msg := NewMessage(NewTextRecord("en", "hi"))
	data, err := msg.Marshal()
	require.NoError(t, err)

	// MB|ME|SR|TNF=1, type len 1, payload len 5, "T", 0x02 "en" "hi"
	want := []byte{0xD1, 0x01, 0x05, 'T', 0x02, 'e', 'n', 'h', 'i'}
	assert.Equal(t, want, data)
}

func TestMarshalFlagsAcrossRecords(t *testing.T) {
	msg := NewMessage(
		NewURIRecord("https://example.com"),
		NewTextRecord("en", "a"),
		NewTextRecord("en", "b"),
	)
	data, err := msg.Marshal()
	require.NoError(t, err)

	parsed, err := Unmarshal(data)
	require.NoError(t, err)
	require.Len(t, parsed.Records, 3)

	// First header has MB only, last has ME only.
	assert.Equal(t, byte(flagMB|flagSR|0x01), data[0])
	uriLen := 3 + 1 + len("https://example.com") + 1
	assert.Equal(t, byte(flagSR|0x01), data[uriLen])
}

func TestLongRecordRoundTrip(t *testing.T) {
	text := string(bytes.Repeat([]byte("x"), 600))
	msg := NewMessage(NewTextRecord("en", text))
	data, err := msg.Marshal()
	require.NoError(t, err)
	assert.Zero(t, data[0]&flagSR, "long payload must not use short record form")

	parsed, err := Unmarshal(data)
	require.NoError(t, err)
	got, lang, err := parsed.Records[0].Text()
	require.NoError(t, err)
	assert.Equal(t, "en", lang)
	assert.Equal(t, text, got)
}

func TestRecordWithID(t *testing.T) {
	r := NewTextRecord("en", "id")
	r.ID = []byte("rec-1")
	data, err := NewMessage(r).Marshal()
	require.NoError(t, err)

	parsed, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, []byte("rec-1"), parsed.Records[0].ID)
}

func TestUnmarshalErrors(t *testing.T) {
	valid, err := NewMessage(NewTextRecord("en", "hello")).Marshal()
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrEmptyMessage},
		{"missing MB", append([]byte{valid[0] &^ flagMB}, valid[1:]...), ErrInvalidHeader},
		{"chunked", append([]byte{valid[0] | flagCF}, valid[1:]...), ErrChunked},
		{"truncated payload", valid[:len(valid)-2], ErrTruncated},
		{"header only", valid[:1], ErrTruncated},
		{"missing ME", append([]byte{valid[0] &^ flagME}, valid[1:]...), ErrInvalidHeader},
		{"trailing bytes", append(append([]byte{}, valid...), 0x00), ErrInvalidHeader},
		{"huge long length", []byte{0xC1, 0x01, 0xFF, 0xFF, 0xFF, 0xFF, 'T'}, ErrTruncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal(tt.data)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestURIRecord(t *testing.T) {
	r := NewURIRecord("https://app/x")
	assert.True(t, r.IsURI())
	assert.Equal(t, byte(0x00), r.Payload[0])

	uri, err := r.URI()
	require.NoError(t, err)
	assert.Equal(t, "https://app/x", uri)
}

func TestURIPrefixExpansion(t *testing.T) {
	r := Record{TNF: TNFWellKnown, Type: TypeURI, Payload: append([]byte{0x04}, "example.com"...)}
	uri, err := r.URI()
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", uri)

	r.Payload[0] = 0x7F
	_, err = r.URI()
	assert.ErrorIs(t, err, ErrNotURI)
}

func TestTextRecordUTF16(t *testing.T) {
	// status: UTF-16 flag, lang "en", BOM big-endian, "hi"
	payload := []byte{0x82, 'e', 'n', 0xFE, 0xFF, 0x00, 'h', 0x00, 'i'}
	r := Record{TNF: TNFWellKnown, Type: TypeText, Payload: payload}
	text, lang, err := r.Text()
	require.NoError(t, err)
	assert.Equal(t, "en", lang)
	assert.Equal(t, "hi", text)
}

func TestTextRecordErrors(t *testing.T) {
	_, _, err := NewURIRecord("x").Text()
	assert.ErrorIs(t, err, ErrNotText)

	r := Record{TNF: TNFWellKnown, Type: TypeText, Payload: []byte{0x05, 'e'}}
	_, _, err = r.Text()
	assert.ErrorIs(t, err, ErrNotText)

	r = Record{TNF: TNFWellKnown, Type: TypeText, Payload: []byte{0x00, 0xFF, 0xFE}}
	_, _, err = r.Text()
	assert.ErrorIs(t, err, ErrNotText)
}

func TestHexString(t *testing.T) {
	assert.Equal(t, "00A1FF", HexString([]byte{0x00, 0xA1, 0xFF}))
	assert.Equal(t, "", HexString(nil))
}

func TestRecordString(t *testing.T) {
	assert.Equal(t, "URI https://a", NewURIRecord("https://a").String())
	assert.Equal(t, "TEXT[en] hi", NewTextRecord("en", "hi").String())

	r := Record{TNF: TNFMedia, Type: []byte("a/b"), Payload: []byte{0x01}}
	assert.Equal(t, `MEDIA type="a/b" payload=01`, r.String())
}
