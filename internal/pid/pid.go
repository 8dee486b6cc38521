// Package pid keeps a single bridge instance per PID file.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
	"golang.org/x/sys/unix"
)

const filePerm = 0o644

// File is a held PID file. A nil *File is valid and releases nothing.
type File struct {
	path string
}

// Acquire records the current process in path. A file naming a live process
// fails with ErrAlreadyRunning; a stale or unreadable one is replaced. An
// empty path disables the check.
func Acquire(path string) (*File, error) {
	errFactory := errors.New()

	if path == "" {
		return nil, nil
	}

	if owner, ok := readPID(path); ok && owner != os.Getpid() && alive(owner) {
		return nil, errFactory.WithData(errors.ErrAlreadyRunning, struct {
			Path string
			PID  int
		}{path, owner})
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errFactory.Wrap(errors.ErrInitFailed, err).WithData(path)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), filePerm); err != nil {
		return nil, errFactory.Wrap(errors.ErrInitFailed, err).WithData(path)
	}

	return &File{path: path}, nil
}

func (f *File) Path() string {
	if f == nil {
		return ""
	}
	return f.path
}

// Release removes the file if it still names this process.
func (f *File) Release() error {
	if f == nil {
		return nil
	}

	if owner, ok := readPID(f.path); !ok || owner != os.Getpid() {
		return nil
	}

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrShutdownFailed, err).WithData(f.path)
	}

	return nil
}

func readPID(path string) (int, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0, false
	}

	return pid, true
}

// alive probes pid with signal 0. EPERM means the process exists under
// another user.
func alive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
