package etl

import (
	"strings"
	"time"
)

// DataRecord represents a single rule row from the input dataset
type DataRecord struct {
	Original string `csv:"original" parquet:"original" json:"original"`
	Alias    string `csv:"alias" parquet:"alias" json:"alias"`
	Category string `csv:"category" parquet:"category" json:"category"`
}

// ProcessingResult represents the result of importing a dataset
type ProcessingResult struct {
	TotalRecords    int64         `json:"total_records"`
	ProcessedOK     int64         `json:"processed_ok"`
	ProcessedFailed int64         `json:"processed_failed"`
	Duplicates      int64         `json:"duplicates"`
	Merged          int64         `json:"merged"`
	Duration        time.Duration `json:"duration"`
	Errors          []string      `json:"errors,omitempty"`
}

// Config contains importer configuration
type Config struct {
	BatchSize      int  `yaml:"batch_size" mapstructure:"batch_size"`           // 1000
	SkipDuplicates bool `yaml:"skip_duplicates" mapstructure:"skip_duplicates"` // true
	ValidateOnly   bool `yaml:"validate_only" mapstructure:"validate_only"`     // false
	DryRun         bool `yaml:"dry_run" mapstructure:"dry_run"`                 // false
	ProgressReport int  `yaml:"progress_report" mapstructure:"progress_report"` // 1000
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch {
	case strings.HasSuffix(filename, ".parquet"):
		return FormatParquet
	case strings.HasSuffix(filename, ".json"):
		return FormatJSON
	default:
		return FormatCSV
	}
}
