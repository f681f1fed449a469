package nfc

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfchandover/handover-go/pkg/ndef"
)

func TestDirTagWriteHandover(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tag")
	tag, err := NewDirTag(dir, nil)
	require.NoError(t, err)

	assert.DirExists(t, tag.InboxDir())

	require.NoError(t, tag.WriteHandover(context.Background(), []byte{0xD1, 0x01}))
	require.NoError(t, tag.WriteHandover(context.Background(), []byte{0xD1, 0x02}))

	data, err := os.ReadFile(tag.OutboxPath())
	require.NoError(t, err)
	assert.Equal(t, []byte{0xD1, 0x02}, data)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "only outbox and inbox should remain")
}

func TestDirTagWriteHandoverCancelled(t *testing.T) {
	tag, err := NewDirTag(t.TempDir(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, tag.WriteHandover(ctx, []byte{1}), context.Canceled)
	assert.NoFileExists(t, tag.OutboxPath())
}

func TestDirTagTap(t *testing.T) {
	tag, err := NewDirTag(t.TempDir(), nil)
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "peer")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	dst, err := tag.Tap(src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tag.InboxDir(), "peer.ndef"), dst)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	_, err = tag.Tap(filepath.Join(t.TempDir(), "missing.ndef"))
	assert.Error(t, err)
}

func TestWatcherDispatchesTaps(t *testing.T) {
	tag, err := NewDirTag(t.TempDir(), nil)
	require.NoError(t, err)

	taps := make(chan []byte, 4)
	w, err := NewWatcher(tag.InboxDir(), func(_ context.Context, data []byte) error {
		taps <- data
		return errors.New("ignored")
	})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Not a tag file.
	require.NoError(t, os.WriteFile(filepath.Join(tag.InboxDir(), "notes.txt"), []byte("x"), 0o644))

	src := filepath.Join(t.TempDir(), "a.ndef")
	require.NoError(t, os.WriteFile(src, []byte{0xD1, 0x01, 0x00, 'T'}, 0o644))
	dst, err := tag.Tap(src)
	require.NoError(t, err)

	select {
	case data := <-taps:
		assert.Equal(t, []byte{0xD1, 0x01, 0x00, 'T'}, data)
	case <-time.After(2 * time.Second):
		t.Fatal("tap not dispatched")
	}

	assert.Eventually(t, func() bool {
		_, err := os.Stat(dst)
		return os.IsNotExist(err)
	}, time.Second, 10*time.Millisecond)

	select {
	case data := <-taps:
		t.Fatalf("unexpected tap %x", data)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWatcherKeepFiles(t *testing.T) {
	dir := t.TempDir()
	taps := make(chan []byte, 1)
	w, err := NewWatcher(dir, func(_ context.Context, data []byte) error {
		taps <- data
		return nil
	}, WithKeepFiles())
	require.NoError(t, err)

	go func() { _ = w.Run(context.Background()) }()

	path := filepath.Join(dir, "b.ndef")
	require.NoError(t, writeAtomic(path, []byte{1, 2, 3}))

	select {
	case <-taps:
	case <-time.After(2 * time.Second):
		t.Fatal("tap not dispatched")
	}
	assert.FileExists(t, path)
	require.NoError(t, w.Close())
}

func TestNewWatcherMissingDir(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "nope"), func(context.Context, []byte) error { return nil })
	assert.Error(t, err)
}

func TestIsTagFile(t *testing.T) {
	assert.True(t, isTagFile("/x/inbox/a.ndef"))
	assert.False(t, isTagFile("/x/inbox/a.txt"))
	assert.False(t, isTagFile("/x/inbox/.a.ndef.tmp123"))
	assert.False(t, isTagFile("/x/inbox/.hidden.ndef"))
}

func TestLogPassthrough(t *testing.T) {
	var buf bytes.Buffer
	p := LogPassthrough{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	data, err := ndef.NewMessage(
		ndef.NewURIRecord("https://example.com"),
		ndef.NewTextRecord("en", "hello"),
	).Marshal()
	require.NoError(t, err)
	p.HandleMessage(data)

	out := buf.String()
	assert.Contains(t, out, "URI https://example.com")
	assert.Contains(t, out, "TEXT[en] hello")

	buf.Reset()
	p.HandleMessage([]byte{0xAB, 0xCD})
	assert.Contains(t, buf.String(), "raw=ABCD")

	// A zero passthrough discards.
	LogPassthrough{}.HandleMessage(data)
}
