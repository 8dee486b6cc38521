// Package journal keeps an optional SQLite history of what the bridge did
// with each line: predictions, rejections and delivery results.
package journal

import (
	"time"

	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/logger"
)

const (
	defaultDirPerm   = 0o755
	defaultBatchSize = 32
)

// Kind classifies an outcome.
type Kind string

const (
	KindIdentified    Kind = "identified"
	KindUnidentified  Kind = "unidentified"
	KindRejected      Kind = "rejected"
	KindPersisted     Kind = "persisted"
	KindPersistFailed Kind = "persist_failed"
	KindPublished     Kind = "published"
	KindPublishFailed Kind = "publish_failed"
)

// Outcome is one journal row. Seq is the gateway receipt number and zero in
// predict mode. ErrorCode is empty for successes.
type Outcome struct {
	At        time.Time
	Seq       uint64
	Mode      string
	Kind      Kind
	Label     string
	ErrorCode errors.ErrorCode
	Line      string
}

// Recorder accepts outcomes. Implementations are safe for concurrent use.
type Recorder interface {
	Record(o Outcome) error
	Close() error
}

// Reader is implemented by recorders that can list their history.
type Reader interface {
	Recent(limit int) ([]Outcome, error)
}

type Config struct {
	Enabled       bool
	DBPath        string
	BatchSize     int
	FlushInterval time.Duration
}

func (c Config) Validate() error {
	if c.Enabled && c.DBPath == "" {
		return errors.New().New(ErrInvalidDBPath)
	}
	return nil
}

// Open returns the SQLite recorder when the journal is enabled and a no-op
// recorder otherwise.
func Open(cfg Config, log logger.Logger) (Recorder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return Nop(), nil
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = defaultBatchSize
	}

	return newRepository(cfg, log)
}

type nopRecorder struct{}

func (nopRecorder) Record(Outcome) error { return nil }
func (nopRecorder) Close() error         { return nil }

func Nop() Recorder {
	return nopRecorder{}
}
