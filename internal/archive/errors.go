package archive

import "codeberg.org/mutker/anemone/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("archive_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("archive_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("archive_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("archive_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("archive_transaction_failed")

	// Storage Errors
	ErrStorageInit  = errors.ErrInitArchive
	ErrStorageRead  = errors.ErrorCode("archive_storage_read_failed")
	ErrStorageClose = errors.ErrCloseArchive

	// Recording Errors
	ErrRecord       = errors.ErrRecordPoints
	ErrInvalidBatch = errors.ErrorCode("archive_invalid_batch")

	ErrOperationTimeout = errors.ErrTimeout
)
