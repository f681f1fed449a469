package log

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects events. Zero fields match everything.
type Filter struct {
	ConnectionID string
	SessionID    string

	// RemoteAddr is compared case-insensitively.
	RemoteAddr string

	Direction *Direction
	Layer     *Layer
	Category  *Category

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time
}

// Match reports whether event passes every set criterion.
func (f Filter) Match(event Event) bool {
	switch {
	case f.ConnectionID != "" && f.ConnectionID != event.ConnectionID,
		f.SessionID != "" && f.SessionID != event.SessionID,
		f.RemoteAddr != "" && !strings.EqualFold(f.RemoteAddr, event.RemoteAddr):
		return false
	case f.Direction != nil && *f.Direction != event.Direction,
		f.Layer != nil && *f.Layer != event.Layer,
		f.Category != nil && *f.Category != event.Category:
		return false
	case f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart),
		f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd):
		return false
	}
	return true
}

// Reader streams the events of a .hlog file.
type Reader struct {
	f      *os.File
	dec    *cbor.Decoder
	filter Filter
	n      int
}

// NewReader opens path and checks its header.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader is NewReader returning only events that match filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec := decMode.NewDecoder(f)
	empty, err := readHeader(dec)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r := &Reader{f: f, dec: dec, filter: filter}
	if empty {
		r.dec = nil
	}
	return r, nil
}

// readHeader consumes the header item. An empty stream is a valid log with
// no events.
func readHeader(dec *cbor.Decoder) (empty bool, err error) {
	var tag cbor.RawTag
	if err := dec.Decode(&tag); err != nil {
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		return false, fmt.Errorf("%w: %w", ErrNotHandoverLog, err)
	}
	return false, checkHeader(tag)
}

// Next returns the next matching event, or io.EOF at the end of the file.
func (r *Reader) Next() (Event, error) {
	if r.dec == nil {
		return Event{}, io.EOF
	}
	for {
		var event Event
		if err := r.dec.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, fmt.Errorf("event %d: %w", r.n+1, err)
		}
		r.n++
		if r.filter.Match(event) {
			return event, nil
		}
	}
}

// All ranges over the remaining matching events. Iteration stops after the
// first error.
func (r *Reader) All() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			event, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(event, err) || err != nil {
				return
			}
		}
	}
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.f.Close()
}
