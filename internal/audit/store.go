package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Store persists operation records to PostgreSQL for audit retention beyond
// the bounded local history log. It is optional: callers hold a nil *Store
// when auditing is disabled, and every method is nil-safe.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore connects to the audit database and ensures the schema exists.
func NewStore(config *Config, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	store := &Store{
		db:     db,
		logger: logger,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize audit store: %w", err)
	}

	logger.Info("Audit store initialized",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns))

	return store, nil
}

// initialize checks the connection and creates the audit table when absent.
func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS alias_operations (
			id BIGSERIAL PRIMARY KEY,
			operation_id TEXT NOT NULL UNIQUE,
			direction TEXT NOT NULL,
			input_hash TEXT NOT NULL,
			output_hash TEXT NOT NULL,
			substitution_count INTEGER NOT NULL DEFAULT 0,
			backup_path TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure audit schema: %w", err)
	}

	return nil
}

// Insert appends one operation record.
func (s *Store) Insert(ctx context.Context, record *Record) error {
	if s == nil {
		return nil
	}

	query := `
		INSERT INTO alias_operations (operation_id, direction, input_hash, output_hash, substitution_count, backup_path)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (operation_id) DO NOTHING
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query,
		record.OperationID,
		record.Direction,
		record.InputHash,
		record.OutputHash,
		record.SubstitutionCount,
		record.BackupPath,
	).Scan(&record.ID, &record.CreatedAt)

	if err != nil {
		s.logger.Error("Failed to insert audit record",
			zap.Error(err),
			zap.String("operation_id", record.OperationID))
		return fmt.Errorf("failed to insert audit record: %w", err)
	}

	s.logger.Debug("Audit record inserted",
		zap.Int64("id", record.ID),
		zap.String("operation_id", record.OperationID))

	return nil
}

// Recent lists the newest records, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	var records []Record
	query := `
		SELECT id, operation_id, direction, input_hash, output_hash, substitution_count, backup_path, created_at
		FROM alias_operations
		ORDER BY created_at DESC
		LIMIT $1`

	if err := s.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}

	return records, nil
}

// GetTotals aggregates the audit table.
func (s *Store) GetTotals(ctx context.Context) (*Totals, error) {
	if s == nil {
		return &Totals{}, nil
	}

	totals := &Totals{}
	query := `
		SELECT
			COUNT(*) as total,
			COUNT(CASE WHEN direction = 'encode' THEN 1 END) as encodes,
			COUNT(CASE WHEN direction = 'decode' THEN 1 END) as decodes,
			COALESCE(SUM(substitution_count), 0) as substitutions
		FROM alias_operations`

	if err := s.db.GetContext(ctx, totals, query); err != nil {
		return nil, fmt.Errorf("failed to get audit totals: %w", err)
	}

	return totals, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// maskDatabaseURL masks sensitive information in database URL for logging
func maskDatabaseURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
