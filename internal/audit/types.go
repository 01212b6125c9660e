package audit

import "time"

// Config contains database configuration
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// Record mirrors one engine operation in the audit table. The text itself
// never reaches the database; only hashes and counts do.
type Record struct {
	ID                int64     `db:"id" json:"id"`
	OperationID       string    `db:"operation_id" json:"operation_id"`
	Direction         string    `db:"direction" json:"direction"`
	InputHash         string    `db:"input_hash" json:"input_hash"`
	OutputHash        string    `db:"output_hash" json:"output_hash"`
	SubstitutionCount int       `db:"substitution_count" json:"substitution_count"`
	BackupPath        string    `db:"backup_path" json:"backup_path"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// Totals aggregates the audit table.
type Totals struct {
	TotalOperations    int64 `db:"total" json:"total_operations"`
	EncodeCount        int64 `db:"encodes" json:"encode_count"`
	DecodeCount        int64 `db:"decodes" json:"decode_count"`
	TotalSubstitutions int64 `db:"substitutions" json:"total_substitutions"`
}
