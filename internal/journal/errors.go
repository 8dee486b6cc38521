package journal

import "github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"

const (
	ErrInvalidDBPath = errors.ErrorCode("journal_invalid_db_path")

	// Schema errors
	ErrSchemaInitFailed       = errors.ErrorCode("journal_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("journal_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("journal_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("journal_transaction_failed")

	// Storage errors
	ErrStorageInit  = errors.ErrInitFailed
	ErrStorageQuery = errors.ErrorCode("journal_query_failed")
	ErrStorageClose = errors.ErrShutdownFailed
	ErrClosed       = errors.ErrorCode("journal_closed")
)
