package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/ahmadzakiakmal/medichain/repository/models"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// PostgreSQL error codes as constants
const (
	// Class 23: Integrity Constraint Violation
	PgErrForeignKeyViolation = "23503" // foreign_key_violation
	PgErrUniqueViolation     = "23505" // unique_violation
	PgErrCheckViolation      = "23514" // check_violation
	PgErrNotNullViolation    = "23502" // not_null_violation

	// Class 22: Data Exception
	PgErrNumericValueOutOfRange = "22003" // numeric_value_out_of_range
	PgErrInvalidDatetimeFormat  = "22007" // invalid_datetime_format

	// Class 08: Connection Exception
	PgErrConnectionException = "08000" // connection_exception
	PgErrConnectionFailure   = "08006" // connection_failure
)

// Repository error codes that are not PostgreSQL SQLSTATEs
const (
	ErrCodeNotFound     = "ENTITY_NOT_FOUND"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeInvalidState = "INVALID_STATE"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeDuplicate    = "DUPLICATE"
	ErrCodeDatabase     = "DATABASE_ERROR"
	ErrCodeCommitFailed = "COMMIT_FAILED"
)

// RepositoryError represent an error in the repository layer
type RepositoryError struct {
	Code    string
	Message string
	Detail  string
}

func (e *RepositoryError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
}

// Options toggles order lifecycle behaviour
type Options struct {
	// StrictTransitions rejects any transition out of completed or cancelled.
	StrictTransitions bool
	// WebhookReputation credits the fulfilling hospital when a gateway
	// webhook completes an order.
	WebhookReputation bool
}

type Repository struct {
	db     *gorm.DB
	logger cmtlog.Logger
	opts   Options
}

// NewRepository wraps an already opened database handle
func NewRepository(db *gorm.DB, logger cmtlog.Logger, opts Options) *Repository {
	return &Repository{
		db:     db,
		logger: logger.With("module", "repository"),
		opts:   opts,
	}
}

// OpenPostgres connects to PostgreSQL, retrying up to attempts times
func OpenPostgres(dsn string, attempts int, log cmtlog.Logger) (*gorm.DB, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := range attempts {
		log.Info("Connecting to Postgres", "attempt", i+1)
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if err == nil {
			log.Info("Connected to Postgres")
			return db, nil
		}
		lastErr = err
		log.Error("Connection attempt failed", "attempt", i+1, "err", err)
		if i < attempts-1 {
			time.Sleep(2 * time.Second)
		}
	}
	return nil, fmt.Errorf("connect to postgres after %d attempts: %w", attempts, lastErr)
}

// Migrate creates or updates the tables of all models
func (r *Repository) Migrate() error {
	err := r.db.AutoMigrate(
		&models.Hospital{},
		&models.Medicine{},
		&models.Order{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	r.logger.Info("Database migration completed successfully")
	return nil
}

// Options returns the lifecycle options the repository was built with
func (r *Repository) Options() Options {
	return r.opts
}

// dbError converts a gorm/pgx error into a RepositoryError
func dbError(err error, notFoundMessage string) *RepositoryError {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &RepositoryError{
			Code:    ErrCodeNotFound,
			Message: notFoundMessage,
			Detail:  err.Error(),
		}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &RepositoryError{
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Detail:  pgErr.Detail,
		}
	}
	return &RepositoryError{
		Code:    ErrCodeDatabase,
		Message: "Database error occured",
		Detail:  err.Error(),
	}
}

func commit(dbTx *gorm.DB) *RepositoryError {
	if err := dbTx.Commit().Error; err != nil {
		return &RepositoryError{
			Code:    ErrCodeCommitFailed,
			Message: "Failed to commit transaction",
			Detail:  err.Error(),
		}
	}
	return nil
}

// forUpdate takes row locks on dialects that support them
func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "postgres" {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}
