package log

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// A .hlog file is a CBOR sequence: one header item, then one Event map per
// logged event. The header is the format version wrapped in headerTag, so
// the first bytes of every file are DA 68 6C 6F 67 ("hlog").
const (
	FileExtension = ".hlog"

	// FormatVersion is the layout written by FileLogger.
	FormatVersion uint64 = 1

	headerTag uint64 = 0x686c6f67
)

var (
	// ErrNotHandoverLog is returned for files that do not start with the
	// .hlog header.
	ErrNotHandoverLog = errors.New("not a handover protocol log")

	// ErrUnsupportedFormat is returned for .hlog files of another version.
	ErrUnsupportedFormat = errors.New("unsupported protocol log format")
)

// Event maps use the integer keys of their struct tags and sort them, so
// the same event always encodes to the same bytes. Timestamps are written as
// tagged RFC 3339 strings to keep nanoseconds.
var (
	encMode = mustEncMode(cbor.EncOptions{
		Sort:          cbor.SortCoreDeterministic,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
		TimeTag:       cbor.EncTagRequired,
	})
	decMode = mustDecMode(cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		IndefLength:      cbor.IndefLengthForbidden,
		MaxNestedLevels:  8,
		MaxMapPairs:      64,
		MaxArrayElements: 1024,
	})
)

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("log: encoder options: %v", err))
	}
	return em
}

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	dm, err := opts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("log: decoder options: %v", err))
	}
	return dm
}

// EncodeEvent encodes one event as it appears in a .hlog file.
func EncodeEvent(event Event) ([]byte, error) {
	return encMode.Marshal(event)
}

// DecodeEvent decodes one event item.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := decMode.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}

func encodeHeader() ([]byte, error) {
	return encMode.Marshal(cbor.Tag{Number: headerTag, Content: FormatVersion})
}

// checkHeader validates the first item of a file.
func checkHeader(tag cbor.RawTag) error {
	if tag.Number != headerTag {
		return fmt.Errorf("%w: leading tag %d", ErrNotHandoverLog, tag.Number)
	}
	var version uint64
	if err := decMode.Unmarshal(tag.Content, &version); err != nil {
		return fmt.Errorf("%w: bad version: %w", ErrNotHandoverLog, err)
	}
	if version != FormatVersion {
		return fmt.Errorf("%w: version %d", ErrUnsupportedFormat, version)
	}
	return nil
}
