package journal

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T, cfg Config) *repository {
	t.Helper()
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(t.TempDir(), "journal.db")
	}
	cfg.Enabled = true

	rec, err := Open(cfg, logger.Nop())
	require.NoError(t, err)
	repo, ok := rec.(*repository)
	require.True(t, ok)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestOpenDisabledIsNop(t *testing.T) {
	rec, err := Open(Config{Enabled: false}, logger.Nop())
	require.NoError(t, err)

	assert.NoError(t, rec.Record(Outcome{Kind: KindIdentified}))
	assert.NoError(t, rec.Close())
	_, isReader := rec.(Reader)
	assert.False(t, isReader)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{Enabled: true}, logger.Nop())
	assert.True(t, errors.HasCode(err, ErrInvalidDBPath))
}

func TestRecordAndRecent(t *testing.T) {
	repo := openTest(t, Config{BatchSize: 2})

	at := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, repo.Record(Outcome{At: at, Mode: "predict", Kind: KindIdentified, Label: "User3", Line: "DATA:..."}))
	require.NoError(t, repo.Record(Outcome{At: at, Mode: "predict", Kind: KindRejected, ErrorCode: "pipeline_dimension_mismatch", Line: "DATA:1,2,3"}))
	require.NoError(t, repo.Record(Outcome{At: at, Seq: 7, Mode: "gateway", Kind: KindPublished, Line: "START SWIPE"}))

	got, err := repo.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, KindPublished, got[0].Kind)
	assert.Equal(t, uint64(7), got[0].Seq)
	assert.Equal(t, errors.ErrorCode("pipeline_dimension_mismatch"), got[1].ErrorCode)
	assert.Equal(t, "User3", got[2].Label)
	assert.True(t, at.Equal(got[2].At))

	got, err = repo.Recent(1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestFlushOnInterval(t *testing.T) {
	repo := openTest(t, Config{BatchSize: 100, FlushInterval: 5 * time.Millisecond})

	require.NoError(t, repo.Record(Outcome{Mode: "gateway", Kind: KindPersisted, Line: "x"}))

	assert.Eventually(t, func() bool {
		var n int
		err := repo.db.QueryRow("SELECT COUNT(*) FROM outcomes").Scan(&n)
		return err == nil && n == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCloseFlushesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	rec, err := Open(Config{Enabled: true, DBPath: path, BatchSize: 100}, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, rec.Record(Outcome{Mode: "gateway", Kind: KindPersistFailed, ErrorCode: "forward_persist_failed", Line: "x"}))
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())

	assert.True(t, errors.HasCode(rec.Record(Outcome{}), ErrClosed))

	reopened := openTest(t, Config{DBPath: path})
	got, err := reopened.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, KindPersistFailed, got[0].Kind)
}

func TestConcurrentRecord(t *testing.T) {
	repo := openTest(t, Config{BatchSize: 3})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = repo.Record(Outcome{Mode: "gateway", Kind: KindPublished, Line: "x"})
			}
		}()
	}
	wg.Wait()

	got, err := repo.Recent(100)
	require.NoError(t, err)
	assert.Len(t, got, 40)
}

func TestMigrateBacksUpOldSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`
        CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
        INSERT INTO schema_versions VALUES (99, datetime('now'));
        CREATE TABLE outcomes (legacy TEXT);`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	repo := openTest(t, Config{DBPath: path})

	version, err := schemaVersion(repo.db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)

	backups, err := os.ReadDir(filepath.Join(dir, backupDirName))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Contains(t, backups[0].Name(), "journal_v99_")
}

func TestMigrateKeepsCurrentSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	first := openTest(t, Config{DBPath: path, BatchSize: 1})
	require.NoError(t, first.Record(Outcome{Mode: "predict", Kind: KindUnidentified, Line: "x"}))
	require.NoError(t, first.Close())

	second := openTest(t, Config{DBPath: path})
	got, err := second.Recent(10)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = os.Stat(filepath.Join(filepath.Dir(path), backupDirName))
	assert.True(t, os.IsNotExist(err))
}
