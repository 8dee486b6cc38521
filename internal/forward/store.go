package forward

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
)

const (
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
)

// storeFile is the part of *os.File the Store writes through.
type storeFile interface {
	io.WriteCloser
	Sync() error
	Truncate(size int64) error
}

// Store is the append-only CSV log of forwarded lines. Rows are only ever
// appended, one per record, in call order. The file handle is owned by the
// Store for its lifetime.
type Store struct {
	path   string
	file   storeFile
	size   int64
	mu     sync.Mutex
	rows   int64
	closed bool
}

// OpenStore opens path for appending, creating it and its directory if needed.
func OpenStore(path string) (*Store, error) {
	errFactory := errors.New()

	if path == "" {
		return nil, errFactory.WithData(ErrStoreOpen, "empty path")
	}

	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStoreOpen, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  path,
			Error: err.Error(),
		})
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, defaultFilePerm)
	if err != nil {
		return nil, errFactory.Wrap(ErrStoreOpen, err).WithData(path)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errFactory.Wrap(ErrStoreOpen, err).WithData(path)
	}

	return &Store{
		path: path,
		file: file,
		size: info.Size(),
	}, nil
}

// Append writes rec as one row and syncs it to disk before returning. A row
// that fails to write is cut back off the file so the next row starts clean.
func (s *Store) Append(rec Record) error {
	errFactory := errors.New()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(rec.Fields()); err != nil {
		return errFactory.Wrap(ErrPersistFailed, err).WithData(rec.Seq)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errFactory.Wrap(ErrPersistFailed, err).WithData(rec.Seq)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errFactory.New(ErrStoreClosed)
	}

	if _, err := s.file.Write(buf.Bytes()); err != nil {
		return errFactory.Wrap(ErrPersistFailed, errors.Join(err, s.file.Truncate(s.size))).WithData(rec.Seq)
	}
	if err := s.file.Sync(); err != nil {
		return errFactory.Wrap(ErrPersistFailed, errors.Join(err, s.file.Truncate(s.size))).WithData(rec.Seq)
	}

	s.size += int64(buf.Len())
	s.rows++
	return nil
}

// Rows returns the number of rows appended through this Store.
func (s *Store) Rows() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

func (s *Store) Path() string {
	return s.path
}

// Close syncs and closes the file. Later appends fail with ErrStoreClosed.
func (s *Store) Close() error {
	errFactory := errors.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	syncErr := s.file.Sync()
	closeErr := s.file.Close()

	if err := errors.Join(syncErr, closeErr); err != nil {
		return errFactory.Wrap(errors.ErrShutdownFailed, err).WithData(s.path)
	}
	return nil
}
