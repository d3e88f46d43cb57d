// Package tempfile manages short-lived scratch files, such as the buffer a
// config value is edited in. Every file belongs to a Registry, and releasing
// the registry removes whatever is still on disk.
package tempfile

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/experius/pwa-buildpack/internal/logging"
)

const namePrefix = "pwa-buildpack-"

// removeFile is swapped in tests.
var removeFile = os.Remove

// Registry tracks live temp files.
type Registry struct {
	// Dir is where files are created; empty means os.TempDir.
	Dir string

	mu    sync.Mutex
	files map[*File]struct{}
}

// Default is the process-wide registry used by the package-level functions.
var Default = &Registry{}

// File is one temp file. Contents caches what was last written or read.
type File struct {
	reg      *Registry
	path     string
	contents string
	known    bool
}

// Create makes an empty file whose name ends in suffix and writes contents
// to it when contents is not empty.
func (r *Registry) Create(contents, suffix string) (*File, error) {
	f, err := os.CreateTemp(r.Dir, namePrefix+"*"+suffix)
	if err != nil {
		return nil, err
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		_ = removeFile(path)
		return nil, err
	}

	tf := &File{reg: r, path: path}
	r.track(tf)
	logging.TempFileDebug("created %s", path)

	if contents != "" {
		if err := tf.Write(contents); err != nil {
			tf.Destroy()
			return nil, err
		}
	}
	return tf, nil
}

// Create makes a file in the Default registry.
func Create(contents, suffix string) (*File, error) {
	return Default.Create(contents, suffix)
}

// With creates a file, passes it to fn and destroys it afterwards.
func With(contents, suffix string, fn func(*File) error) error {
	f, err := Create(contents, suffix)
	if err != nil {
		return err
	}
	defer f.Destroy()
	return fn(f)
}

// Path returns the file's location.
func (f *File) Path() string { return f.path }

// Contents returns the cached contents and whether any are known.
func (f *File) Contents() (string, bool) { return f.contents, f.known }

// Write replaces the file's contents.
func (f *File) Write(s string) error {
	if err := os.WriteFile(f.path, []byte(s), 0600); err != nil {
		return err
	}
	f.contents, f.known = s, true
	return nil
}

// Read loads the file's contents from disk and caches them.
func (f *File) Read() (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", err
	}
	f.contents, f.known = string(data), true
	return f.contents, nil
}

// Destroy removes the file and forgets its contents. Failures are logged,
// never returned, and calling it again does nothing.
func (f *File) Destroy() {
	if f.reg != nil && !f.reg.untrack(f) {
		return
	}
	f.contents, f.known = "", false
	if err := removeFile(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.TempFileWarn("failed to remove %s: %v", f.path, err)
		return
	}
	logging.TempFileDebug("removed %s", f.path)
}

// Live returns how many files the registry still tracks.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.files)
}

// Release destroys every tracked file.
func (r *Registry) Release() {
	r.mu.Lock()
	files := make([]*File, 0, len(r.files))
	for f := range r.files {
		files = append(files, f)
	}
	r.mu.Unlock()

	for _, f := range files {
		f.Destroy()
	}
}

func (r *Registry) track(f *File) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.files == nil {
		r.files = make(map[*File]struct{})
	}
	r.files[f] = struct{}{}
}

func (r *Registry) untrack(f *File) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.files[f]; !ok {
		return false
	}
	delete(r.files, f)
	return true
}

// Interrupt cancels a context when the process receives SIGINT or SIGTERM.
type Interrupt struct {
	ctx    context.Context
	cancel context.CancelFunc
	sigCh  chan os.Signal
	once   sync.Once

	mu  sync.Mutex
	sig os.Signal
}

// ReleaseOnSignal returns an Interrupt whose context is derived from parent.
// On the first SIGINT or SIGTERM the Default registry is released, the
// context is cancelled and signal handling is handed back to the runtime,
// so a second signal terminates the process as usual.
func ReleaseOnSignal(parent context.Context) *Interrupt {
	ctx, cancel := context.WithCancel(parent)
	i := &Interrupt{ctx: ctx, cancel: cancel, sigCh: make(chan os.Signal, 1)}
	signal.Notify(i.sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-i.sigCh:
			signal.Stop(i.sigCh)
			logging.TempFileDebug("received %s, releasing temp files", sig)
			i.mu.Lock()
			i.sig = sig
			i.mu.Unlock()
			Default.Release()
			cancel()
		case <-ctx.Done():
		}
	}()
	return i
}

// Context is cancelled by a signal or by Stop.
func (i *Interrupt) Context() context.Context { return i.ctx }

// Signal returns the signal that cancelled the context, or nil.
func (i *Interrupt) Signal() os.Signal {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.sig
}

// Stop stops listening for signals and cancels the context.
func (i *Interrupt) Stop() {
	i.once.Do(func() {
		signal.Stop(i.sigCh)
		i.cancel()
	})
}
