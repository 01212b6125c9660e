package history

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/termveil/termveil/internal/logger"
	"go.uber.org/zap"
)

// Store owns the operation log and the backup directory. It snapshots the
// pre-mutation text before every recorded operation, so a later Undo can
// restore it byte for byte. Not safe for concurrent use from two processes;
// a concurrent host must serialize history mutations itself.
type Store struct {
	backupDir string
	logPath   string
	logger    *logger.Logger

	mu  sync.Mutex
	ops []Operation
}

// NewStore opens (or creates) the history log and backup directory.
func NewStore(backupDir, logPath string, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	s := &Store{
		backupDir: backupDir,
		logPath:   logPath,
		logger:    log,
	}

	if err := s.loadLog(); err != nil {
		return nil, err
	}

	return s, nil
}

// loadLog reads the persisted operation log. A missing file is an empty
// history; a corrupt one is an error rather than silent data loss.
func (s *Store) loadLog() error {
	data, err := os.ReadFile(s.logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read history log: %w", err)
	}

	if err := json.Unmarshal(data, &s.ops); err != nil {
		return fmt.Errorf("history log %s is corrupt: %w", s.logPath, err)
	}

	if len(s.ops) > MaxEntries {
		s.ops = s.ops[len(s.ops)-MaxEntries:]
	}

	return nil
}

// Record snapshots inputText to a backup, then appends an Operation to the
// log, evicting the oldest entry past MaxEntries. The backup is written
// first and never overwritten; if persisting the log fails, the in-memory
// log is rolled back and the orphan backup removed, leaving history exactly
// as it was.
func (s *Store) Record(direction, inputText, outputText string, ruleCounts map[string]int, substitutions int) (*Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	inputHash := HashText(inputText)

	backupPath := filepath.Join(s.backupDir,
		fmt.Sprintf("work_%s_%s.txt", now.Format("20060102_150405.000000000"), inputHash[:8]))

	if err := os.WriteFile(backupPath, []byte(inputText), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write backup: %w", err)
	}

	op := Operation{
		ID:                strconv.FormatInt(now.UnixNano(), 10),
		Timestamp:         now,
		Direction:         direction,
		InputHash:         inputHash,
		OutputHash:        HashText(outputText),
		SubstitutionCount: substitutions,
		BackupPath:        backupPath,
		RuleCounts:        ruleCounts,
	}

	previous := s.ops
	s.ops = append(append([]Operation(nil), previous...), op)
	if len(s.ops) > MaxEntries {
		s.ops = s.ops[len(s.ops)-MaxEntries:]
	}

	if err := s.persistLog(); err != nil {
		s.ops = previous
		os.Remove(backupPath)
		return nil, err
	}

	s.pruneBackups()

	s.logger.Debug("Operation recorded",
		zap.String("id", op.ID),
		zap.String("direction", op.Direction),
		zap.Int("substitutions", op.SubstitutionCount),
		zap.String("backup", filepath.Base(op.BackupPath)),
	)

	return &op, nil
}

// Undo pops the most recent operation and returns the content of its
// backup as the restored state. Repeatable while the log is non-empty.
// If the backup cannot be read the log is left untouched.
func (s *Store) Undo() (string, *Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.ops) == 0 {
		return "", nil, ErrNoHistory
	}

	last := s.ops[len(s.ops)-1]

	content, err := os.ReadFile(last.BackupPath)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read backup %s: %w", last.BackupPath, err)
	}

	previous := s.ops
	s.ops = previous[:len(previous)-1]

	if err := s.persistLog(); err != nil {
		s.ops = previous
		return "", nil, err
	}

	s.logger.Info("Operation undone",
		zap.String("id", last.ID),
		zap.String("direction", last.Direction),
	)

	return string(content), &last, nil
}

// List returns the operations in insertion order, oldest first.
func (s *Store) List() []Operation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Operation, len(s.ops))
	copy(out, s.ops)
	return out
}

// Get looks up one operation by ID.
func (s *Store) Get(id string) (Operation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range s.ops {
		if op.ID == id {
			return op, true
		}
	}
	return Operation{}, false
}

// Len returns the number of logged operations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ops)
}

// BackupCount counts the backup files currently on disk.
func (s *Store) BackupCount() int {
	return len(s.backupFiles())
}

// persistLog writes the log atomically: temp file then rename, so a crash
// mid-write cannot corrupt the existing log.
func (s *Store) persistLog() error {
	data, err := json.MarshalIndent(s.ops, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history log: %w", err)
	}

	tmp := s.logPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write history log: %w", err)
	}

	if err := os.Rename(tmp, s.logPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace history log: %w", err)
	}

	return nil
}

// pruneBackups removes all but the newest maxBackups files. Best effort:
// a prune failure never fails the operation that triggered it.
func (s *Store) pruneBackups() {
	files := s.backupFiles()
	if len(files) <= maxBackups {
		return
	}

	// Timestamped names sort chronologically.
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	for _, old := range files[maxBackups:] {
		if err := os.Remove(old); err != nil {
			s.logger.Warn("Failed to prune backup", zap.String("path", old), zap.Error(err))
		}
	}
}

func (s *Store) backupFiles() []string {
	matches, err := filepath.Glob(filepath.Join(s.backupDir, "work_*.txt"))
	if err != nil {
		return nil
	}
	return matches
}

// HashText returns the truncated content digest used for tamper and audit
// detection: the first 128 bits of SHA-256, hex encoded.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:32]
}
