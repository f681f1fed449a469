package nfc

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nfchandover/handover-go/pkg/ndef"
)

// File layout of a tag directory.
const (
	OutboxName = "outbox.ndef"
	InboxName  = "inbox"
	Extension  = ".ndef"
)

// DirTag publishes outbound messages into a tag directory.
type DirTag struct {
	dir    string
	logger *slog.Logger
}

// NewDirTag prepares dir and its inbox.
func NewDirTag(dir string, logger *slog.Logger) (*DirTag, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(filepath.Join(dir, InboxName), 0o755); err != nil {
		return nil, fmt.Errorf("create tag directory: %w", err)
	}
	return &DirTag{dir: dir, logger: logger.With("component", "nfc")}, nil
}

// Dir returns the tag directory.
func (d *DirTag) Dir() string { return d.dir }

// OutboxPath returns the file holding the published message.
func (d *DirTag) OutboxPath() string { return filepath.Join(d.dir, OutboxName) }

// InboxDir returns the directory watched for taps.
func (d *DirTag) InboxDir() string { return filepath.Join(d.dir, InboxName) }

// WriteHandover replaces the published message.
func (d *DirTag) WriteHandover(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeAtomic(d.OutboxPath(), data); err != nil {
		return fmt.Errorf("publish tag: %w", err)
	}
	d.logger.Debug("tag published", "path", d.OutboxPath(), "bytes", ndef.HexString(data))
	return nil
}

// Tap copies the message in src into the inbox, as if the tag had been read.
func (d *DirTag) Tap(src string) (string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", err
	}
	name := filepath.Base(src)
	if filepath.Ext(name) != Extension {
		name += Extension
	}
	dst := filepath.Join(d.InboxDir(), name)
	if err := writeAtomic(dst, data); err != nil {
		return "", fmt.Errorf("tap: %w", err)
	}
	return dst, nil
}

// writeAtomic writes data next to path and renames it into place, so a
// watcher never sees a partial file under the final name.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
