package history

import (
	"errors"
	"time"
)

// MaxEntries bounds the operation log; the oldest entry is evicted when a
// new record would exceed it.
const MaxEntries = 50

// maxBackups bounds the backup directory; only the newest files survive a
// prune.
const maxBackups = 20

// ErrNoHistory is returned by Undo when the operation log is empty.
var ErrNoHistory = errors.New("history is empty, nothing to undo")

// Operation is one recorded mutating call. Immutable after creation;
// ordering in the log is insertion order.
type Operation struct {
	ID                string         `json:"id"`
	Timestamp         time.Time      `json:"timestamp"`
	Direction         string         `json:"direction"`
	InputHash         string         `json:"input_hash"`
	OutputHash        string         `json:"output_hash"`
	SubstitutionCount int            `json:"substitution_count"`
	BackupPath        string         `json:"backup_path"`
	RuleCounts        map[string]int `json:"rule_counts,omitempty"`
}
