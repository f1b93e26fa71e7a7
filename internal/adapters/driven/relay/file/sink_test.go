package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/layerforge/internal/core/domain"
)

var stamp = time.UnixMilli(1700000000123).UTC()

func testEvent(kind string) domain.RelayEvent {
	return domain.RelayEvent{
		ID:      "evt-1",
		Type:    kind,
		Time:    stamp,
		Session: "s-1",
		Row:     domain.RowNumber(2),
		Message: "row done",
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names
}

func TestSink_Emit_WritesTimestampedFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "relay")
	sink := NewSink(dir)

	path, err := sink.Emit(context.Background(), testEvent(domain.EventRowCompleted))

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "1700000000123.json"), path)

	got, err := ReadEvent(path)
	require.NoError(t, err)
	assert.Equal(t, domain.EventRowCompleted, got.Type)
	assert.Equal(t, "s-1", got.Session)
	require.NotNil(t, got.Row)
	assert.Equal(t, 2, *got.Row)
	assert.True(t, stamp.Equal(got.Time))
}

func TestSink_Emit_ZeroTimeUsesClock(t *testing.T) {
	dir := t.TempDir()
	sink := NewSink(dir)
	sink.now = func() time.Time { return time.UnixMilli(42) }

	event := testEvent(domain.EventError)
	event.Time = time.Time{}
	path, err := sink.Emit(context.Background(), event)

	require.NoError(t, err)
	assert.Equal(t, "42.json", filepath.Base(path))
}

func TestSink_Emit_CollisionSuffix(t *testing.T) {
	dir := t.TempDir()
	sink := NewSink(dir)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := sink.Emit(ctx, testEvent(domain.EventFieldApplied))
		require.NoError(t, err)
	}

	assert.ElementsMatch(t,
		[]string{"1700000000123.json", "1700000000123-1.json", "1700000000123-2.json"},
		listDir(t, dir))
}

func TestSink_Emit_FallsBackToTempAndRename(t *testing.T) {
	dir := t.TempDir()
	sink := NewSink(dir)
	sink.write = func(string, []byte) error { return errors.New("disk busy") }

	path, err := sink.Emit(context.Background(), testEvent(domain.EventExported))

	require.NoError(t, err)
	assert.Equal(t, []string{"1700000000123.json"}, listDir(t, dir), "temp file should be renamed into place")
	got, err := ReadEvent(path)
	require.NoError(t, err)
	assert.Equal(t, domain.EventExported, got.Type)
}

func TestSink_Emit_BothWritesFail(t *testing.T) {
	dir := t.TempDir()
	sink := NewSink(dir)
	sink.write = func(string, []byte) error { return errors.New("disk busy") }
	sink.rename = func(string, string) error { return errors.New("cross-device link") }

	_, err := sink.Emit(context.Background(), testEvent(domain.EventError))

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRelay)
	assert.Equal(t, domain.KindRelay, domain.KindOf(err))
	assert.Contains(t, err.Error(), "disk busy")
	assert.Contains(t, err.Error(), "cross-device link")
	assert.Empty(t, listDir(t, dir), "temp file should be cleaned up")
}

func TestSink_Emit_UnusableDir(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "relay")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, err := NewSink(blocker).Emit(context.Background(), testEvent(domain.EventError))

	assert.ErrorIs(t, err, domain.ErrRelay)
}

func TestSink_Emit_Cancelled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSink(dir).Emit(ctx, testEvent(domain.EventError))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, listDir(t, dir))
}

func TestIsEventFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"1700000000123.json", true},
		{"/tmp/relay/1700000000123-4.json", true},
		{".relay-123.tmp", false},
		{".hidden.json", false},
		{"notes.txt", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsEventFile(tt.name))
		})
	}
}

func TestReadEvent_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadEvent(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
	_, err = ReadEvent(bad)
	assert.ErrorContains(t, err, "decoding event bad.json")
}
