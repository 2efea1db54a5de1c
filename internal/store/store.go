package store

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/turtacn/wmswitch/pkg/consts"
	wmerrors "github.com/turtacn/wmswitch/pkg/errors"
	"github.com/turtacn/wmswitch/pkg/logger"
)

const (
	keyLastWM      = "last_wm"
	keyAllowSwitch = "allow_switch"
)

// Store persists the user's window manager selection and switch policy.
// The user file is read-write; the global file is a read-only source of
// defaults for keys the user file lacks.
type Store struct {
	mu         sync.Mutex
	userPath   string
	globalPath string
	user       map[string]any
	global     map[string]any
	snapshot   []byte // user file bytes as last loaded or saved
	log        logger.Logger
}

// DefaultUserPath resolves $XDG_CONFIG_HOME (or ~/.config) plus the
// deepin-wm-switcher subdirectory.
func DefaultUserPath() (string, error) {
	base := os.Getenv(consts.EnvXDGConfigHome)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, consts.DefaultUserStateSubdir, consts.DefaultStateFileName), nil
}

func New(userPath, globalPath string) *Store {
	return &Store{
		userPath:   filepath.Clean(userPath),
		globalPath: globalPath,
		user:       map[string]any{},
		global:     map[string]any{},
		log:        logger.Log.With("component", "store"),
	}
}

// Path returns the user file location.
func (s *Store) Path() string { return s.userPath }

// Load re-reads both files. Missing files are not errors. A malformed file
// leaves that layer empty and is reported, so callers can carry on with defaults.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if s.globalPath != "" {
		g, _, err := readObject(s.globalPath)
		if err != nil {
			s.log.Warn("Global config unreadable", "path", s.globalPath, "err", err)
			firstErr = err
		} else if len(g) > 0 {
			s.log.Info("Global config loaded", "path", s.globalPath)
		}
		s.global = g
	}

	u, raw, err := readObject(s.userPath)
	if err != nil {
		s.log.Warn("User config unreadable", "path", s.userPath, "err", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	s.user = u
	s.snapshot = raw
	return firstErr
}

func readObject(path string) (map[string]any, []byte, error) {
	obj := map[string]any{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return obj, nil, nil
	}
	if err != nil {
		return obj, nil, wmerrors.New(wmerrors.ErrCodeConfigLoad, "load", "cannot read "+path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return obj, data, nil
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return map[string]any{}, data, wmerrors.New(wmerrors.ErrCodeConfigLoad, "load", "malformed JSON in "+path, err)
	}
	return obj, data, nil
}

// Save writes the user layer atomically, creating the directory if needed.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	dir := filepath.Dir(s.userPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return wmerrors.New(wmerrors.ErrCodeConfigSave, "save", "cannot create "+dir, err)
	}
	data, err := json.MarshalIndent(s.user, "", "    ")
	if err != nil {
		return wmerrors.New(wmerrors.ErrCodeConfigSave, "save", "cannot encode config", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return wmerrors.New(wmerrors.ErrCodeConfigSave, "save", "cannot open config file to save", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return wmerrors.New(wmerrors.ErrCodeConfigSave, "save", "write failed", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return wmerrors.New(wmerrors.ErrCodeConfigSave, "save", "close failed", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		s.log.Debug("chmod failed", "err", err)
	}
	if err := os.Rename(tmp.Name(), s.userPath); err != nil {
		os.Remove(tmp.Name())
		return wmerrors.New(wmerrors.ErrCodeConfigSave, "save", "rename failed", err)
	}
	s.snapshot = data
	return nil
}

// CurrentSelection returns the last selected executable, or "".
func (s *Store) CurrentSelection() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.user
	if _, ok := s.user[keyLastWM]; !ok {
		src = s.global
	}
	v, _ := src[keyLastWM].(string)
	return v
}

// AllowSwitch reports the stored switch policy, defaulting to true.
// A non-boolean user value is normalized back to true.
func (s *Store) AllowSwitch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.user[keyAllowSwitch]
	if !ok {
		if g, isBool := s.global[keyAllowSwitch].(bool); isBool {
			return g
		}
		return true
	}
	b, isBool := v.(bool)
	if !isBool {
		s.log.Warn("allow_switch is not a boolean, resetting to true", "value", v)
		s.user[keyAllowSwitch] = true
		return true
	}
	return b
}

// SetAllowSwitch stores the policy and saves.
func (s *Store) SetAllowSwitch(allow bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user[keyAllowSwitch] = allow
	return s.saveLocked()
}

// RecordSelection stores id as the last selected executable and saves.
func (s *Store) RecordSelection(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user[keyLastWM] = id
	return s.saveLocked()
}

// ChangedOnDisk reports whether the user file differs from what this
// store last loaded or wrote. Used to ignore our own saves.
func (s *Store) ChangedOnDisk() bool {
	data, err := os.ReadFile(s.userPath)
	if err != nil {
		data = nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !bytes.Equal(data, s.snapshot)
}

// Personal.AI order the ending
