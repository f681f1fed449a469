package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// FileLogger appends events to a .hlog file. Log never blocks the caller on
// a failed write; the first error is kept and returned by Close.
type FileLogger struct {
	mu     sync.Mutex
	f      *os.File
	err    error
	closed bool
}

// NewFileLogger opens path for appending. A new or empty file gets the .hlog
// header; an existing file must already carry it.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open protocol log: %w", err)
	}
	if err := prepare(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("open protocol log %s: %w", path, err)
	}
	return &FileLogger{f: f}, nil
}

// prepare writes the header to an empty file or checks the existing one.
func prepare(f *os.File) error {
	empty, err := isEmpty(f)
	if err != nil {
		return err
	}
	if empty {
		header, err := encodeHeader()
		if err != nil {
			return err
		}
		_, err = f.Write(header)
		return err
	}
	_, err = readHeader(decMode.NewDecoder(io.NewSectionReader(f, 0, 1<<20)))
	return err
}

func isEmpty(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	return info.Size() == 0, nil
}

// Log appends event. Events logged after Close are dropped.
func (l *FileLogger) Log(event Event) {
	data, err := EncodeEvent(event)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.err != nil {
		return
	}
	if err != nil {
		l.err = fmt.Errorf("encode event: %w", err)
		return
	}
	if _, err := l.f.Write(data); err != nil {
		l.err = fmt.Errorf("write event: %w", err)
	}
}

// Close syncs and closes the file. It returns the first error Log hit, if
// any. Further calls return nil.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return errors.Join(l.err, l.f.Sync(), l.f.Close())
}

var _ Logger = (*FileLogger)(nil)
