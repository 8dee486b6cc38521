package journal

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

// repository buffers outcomes and writes them in batches, either when the
// buffer fills or on every flush tick.
type repository struct {
	db     *sql.DB
	log    logger.Logger
	cfg    Config
	mu     sync.Mutex
	buffer []Outcome
	closed bool

	shutdown  chan struct{}
	flushDone chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func newRepository(cfg Config, log logger.Logger) (*repository, error) {
	errFactory := errors.New()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}
	// One connection keeps WAL checkpoints and tests deterministic.
	db.SetMaxOpenConns(1)

	if err := migrate(db, cfg.DBPath, log); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("flush_interval", cfg.FlushInterval).
		Msg("Journal opened")

	r := &repository{
		db:        db,
		log:       log,
		cfg:       cfg,
		buffer:    make([]Outcome, 0, cfg.BatchSize),
		shutdown:  make(chan struct{}),
		flushDone: make(chan struct{}),
	}

	go r.flusher()

	return r, nil
}

func (r *repository) Record(o Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.New().New(ErrClosed)
	}

	if o.At.IsZero() {
		o.At = time.Now()
	}
	r.buffer = append(r.buffer, o)

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

// Recent returns up to limit outcomes, newest first. Buffered outcomes are
// flushed first so the result includes them.
func (r *repository) Recent(limit int) ([]Outcome, error) {
	errFactory := errors.New()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errFactory.New(ErrClosed)
	}
	if err := r.flush(); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.mu.Unlock()

	rows, err := r.db.Query(recentOutcomesSQL, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageQuery, err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var (
			o         Outcome
			at        int64
			seq       int64
			kind      string
			errorCode string
		)
		if err := rows.Scan(&at, &seq, &o.Mode, &kind, &o.Label, &errorCode, &o.Line); err != nil {
			return nil, errFactory.Wrap(ErrStorageQuery, err)
		}
		o.At = time.UnixMilli(at)
		o.Seq = uint64(seq)
		o.Kind = Kind(kind)
		o.ErrorCode = errors.ErrorCode(errorCode)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageQuery, err)
	}

	return out, nil
}

func (r *repository) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()

		close(r.shutdown)
		<-r.flushDone

		if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			r.log.Warn().Err(err).Msg("Failed to checkpoint journal WAL")
		}

		if err := r.db.Close(); err != nil {
			r.closeErr = errors.New().WithData(ErrStorageClose, struct {
				Phase string
				Error string
			}{
				Phase: "close_database",
				Error: err.Error(),
			})
			return
		}

		r.log.Debug().Msg("Journal closed")
	})

	return r.closeErr
}

func (r *repository) flusher() {
	defer close(r.flushDone)

	var tick <-chan time.Time
	if r.cfg.FlushInterval > 0 {
		ticker := time.NewTicker(r.cfg.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-tick:
			r.mu.Lock()
			_ = r.flush()
			r.mu.Unlock()
		case <-r.shutdown:
			r.mu.Lock()
			_ = r.flush()
			r.mu.Unlock()
			return
		}
	}
}

// flush writes the buffer in one transaction. Callers hold r.mu. A failed
// batch is dropped so a broken journal cannot grow memory without bound.
func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()
	batch := len(r.buffer)
	defer func() { r.buffer = r.buffer[:0] }()

	tx, err := r.db.Begin()
	if err != nil {
		r.log.Error().Err(err).Int("dropped", batch).Msg("Failed to begin journal transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.Prepare(insertOutcomeSQL)
	if err != nil {
		r.log.Error().Err(err).Int("dropped", batch).Msg("Failed to prepare journal insert")
		if err := tx.Rollback(); err != nil {
			r.log.Error().Err(err).Msg("Failed to roll back journal transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, o := range r.buffer {
		if _, err := stmt.Exec(
			o.At.UnixMilli(),
			int64(o.Seq),
			o.Mode,
			string(o.Kind),
			o.Label,
			string(o.ErrorCode),
			o.Line,
		); err != nil {
			r.log.Error().Err(err).Int("dropped", batch).Msg("Failed to insert journal row")
			if err := tx.Rollback(); err != nil {
				r.log.Error().Err(err).Msg("Failed to roll back journal transaction")
			}
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		r.log.Error().Err(err).Int("dropped", batch).Msg("Failed to commit journal transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.log.Debug().Int("records", batch).Msg("Flushed journal")

	return nil
}
