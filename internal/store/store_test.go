package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	wmerrors "github.com/turtacn/wmswitch/pkg/errors"
)

func newTestStore(t *testing.T) (*Store, string, string) {
	t.Helper()
	dir := t.TempDir()
	user := filepath.Join(dir, "user", "deepin-wm-switcher", "config.json")
	global := filepath.Join(dir, "etc", "config.json")
	return New(user, global), user, global
}

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func TestStore_DefaultsWithoutFiles(t *testing.T) {
	s, _, _ := newTestStore(t)
	require.NoError(t, s.Load())

	assert.Equal(t, "", s.CurrentSelection())
	assert.True(t, s.AllowSwitch())
}

func TestStore_RecordSelectionRoundTrip(t *testing.T) {
	s, user, _ := newTestStore(t)
	require.NoError(t, s.Load())
	require.NoError(t, s.RecordSelection("deepin-metacity"))
	require.NoError(t, s.Load())
	assert.Equal(t, "deepin-metacity", s.CurrentSelection())

	fresh := New(user, "")
	require.NoError(t, fresh.Load())
	assert.Equal(t, "deepin-metacity", fresh.CurrentSelection())
}

func TestStore_GlobalIsLowerPriority(t *testing.T) {
	s, user, global := newTestStore(t)
	writeFile(t, global, `{"last_wm": "deepin-wm", "allow_switch": false}`)
	require.NoError(t, s.Load())

	assert.Equal(t, "deepin-wm", s.CurrentSelection())
	assert.False(t, s.AllowSwitch())

	writeFile(t, user, `{"last_wm": "deepin-metacity", "allow_switch": true}`)
	require.NoError(t, s.Load())
	assert.Equal(t, "deepin-metacity", s.CurrentSelection())
	assert.True(t, s.AllowSwitch())
}

func TestStore_AllowSwitchNormalized(t *testing.T) {
	s, user, _ := newTestStore(t)
	writeFile(t, user, `{"allow_switch": "nope", "extra": 3}`)
	require.NoError(t, s.Load())

	assert.True(t, s.AllowSwitch())
	require.NoError(t, s.Save())

	data, err := os.ReadFile(user)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"allow_switch": true`)
	assert.Contains(t, string(data), `"extra": 3`)
}

func TestStore_SetAllowSwitch(t *testing.T) {
	s, user, _ := newTestStore(t)
	require.NoError(t, s.SetAllowSwitch(false))

	fresh := New(user, "")
	require.NoError(t, fresh.Load())
	assert.False(t, fresh.AllowSwitch())
}

func TestStore_MalformedFileFallsBackToDefaults(t *testing.T) {
	s, user, _ := newTestStore(t)
	writeFile(t, user, `{"last_wm": `)

	err := s.Load()
	require.Error(t, err)
	assert.True(t, wmerrors.Is(err, wmerrors.ErrCodeConfigLoad))
	assert.Equal(t, "", s.CurrentSelection())
	assert.True(t, s.AllowSwitch())
}

func TestStore_SaveFailureIsReported(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	writeFile(t, blocker, "x")

	s := New(filepath.Join(blocker, "sub", "config.json"), "")
	err := s.RecordSelection("deepin-wm")
	require.Error(t, err)
	assert.True(t, wmerrors.Is(err, wmerrors.ErrCodeConfigSave))
	assert.Equal(t, "deepin-wm", s.CurrentSelection())
}

func TestStore_ChangedOnDisk(t *testing.T) {
	s, user, _ := newTestStore(t)
	require.NoError(t, s.RecordSelection("deepin-wm"))
	assert.False(t, s.ChangedOnDisk())

	writeFile(t, user, `{"allow_switch": false}`)
	assert.True(t, s.ChangedOnDisk())

	require.NoError(t, s.Load())
	assert.False(t, s.ChangedOnDisk())
}

func TestWatcher_ReportsExternalWrite(t *testing.T) {
	s, user, _ := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(user), 0o755))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 4)
	done := make(chan error, 1)
	w := NewWatcher(s.Path(), 20*time.Millisecond)
	go func() { done <- w.Run(ctx, func() { changed <- struct{}{} }) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(filepath.Dir(user), "unrelated.json"), "{}")
	require.NoError(t, s.SetAllowSwitch(false))

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not report the config change")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}
