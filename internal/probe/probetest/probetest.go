// Package probetest provides in-memory stand-ins for the probe package's
// command runner and filesystem.
package probetest

import (
	"context"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/turtacn/wmswitch/internal/probe"
)

// Runner answers commands from a table keyed by the joined argv.
type Runner struct {
	mu      sync.Mutex
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func NewRunner() *Runner {
	return &Runner{outputs: map[string]string{}, errs: map[string]error{}}
}

// On registers stdout for argv.
func (r *Runner) On(out string, argv ...string) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs[strings.Join(argv, " ")] = out
	return r
}

// Fail makes argv return err.
func (r *Runner) Fail(err error, argv ...string) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[strings.Join(argv, " ")] = err
	return r
}

func (r *Runner) Output(_ context.Context, argv []string) ([]byte, error) {
	key := strings.Join(argv, " ")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, key)
	if err, ok := r.errs[key]; ok {
		return nil, err
	}
	if out, ok := r.outputs[key]; ok {
		return []byte(out), nil
	}
	return nil, &fs.PathError{Op: "exec", Path: argv[0], Err: fs.ErrNotExist}
}

// Calls returns every command run so far.
func (r *Runner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// FS is a map-backed probe.SysFS.
type FS struct {
	Files    map[string]string
	ModTimes map[string]time.Time
	Links    map[string]string
	Denied   map[string]bool
}

func NewFS() *FS {
	return &FS{
		Files:    map[string]string{},
		ModTimes: map[string]time.Time{},
		Links:    map[string]string{},
		Denied:   map[string]bool{},
	}
}

func (f *FS) ReadFile(path string) ([]byte, error) {
	if f.Denied[path] {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrPermission}
	}
	data, ok := f.Files[path]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return []byte(data), nil
}

func (f *FS) Readlink(path string) (string, error) {
	if f.Denied[path] {
		return "", &fs.PathError{Op: "readlink", Path: path, Err: fs.ErrPermission}
	}
	target, ok := f.Links[path]
	if !ok {
		return "", &fs.PathError{Op: "readlink", Path: path, Err: fs.ErrNotExist}
	}
	return target, nil
}

func (f *FS) Stat(path string) (os.FileInfo, error) {
	data, ok := f.Files[path]
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
	}
	return fileInfo{name: path, size: int64(len(data)), mod: f.ModTimes[path]}, nil
}

type fileInfo struct {
	name string
	size int64
	mod  time.Time
}

func (fi fileInfo) Name() string       { return fi.name }
func (fi fileInfo) Size() int64        { return fi.size }
func (fi fileInfo) Mode() fs.FileMode  { return 0o644 }
func (fi fileInfo) ModTime() time.Time { return fi.mod }
func (fi fileInfo) IsDir() bool        { return false }
func (fi fileInfo) Sys() any           { return nil }

var (
	_ probe.Runner = (*Runner)(nil)
	_ probe.SysFS  = (*FS)(nil)
)

// Personal.AI order the ending
