package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/termveil/termveil/internal/logger"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "backups"), filepath.Join(dir, "history.json"), &logger.Logger{Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store, dir
}

func TestRecordAndUndo(t *testing.T) {
	t.Run("UndoRestoresByteForByte", func(t *testing.T) {
		store, _ := newTestStore(t)

		input := "line one\nline twö\n\ttabbed"
		op, err := store.Record("encode", input, "masked output", map[string]int{"exploit": 1}, 1)
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		if op.ID == "" || op.InputHash == "" || op.BackupPath == "" {
			t.Errorf("Operation missing fields: %+v", op)
		}

		restored, undone, err := store.Undo()
		if err != nil {
			t.Fatalf("Undo failed: %v", err)
		}
		if restored != input {
			t.Errorf("Restored text differs:\n  want %q\n  got  %q", input, restored)
		}
		if undone.ID != op.ID {
			t.Errorf("Undo returned wrong operation: %s != %s", undone.ID, op.ID)
		}
		if store.Len() != 0 {
			t.Errorf("Log should be empty after undo, got %d", store.Len())
		}
	})

	t.Run("UndoEmptyLog", func(t *testing.T) {
		store, _ := newTestStore(t)
		if _, _, err := store.Undo(); !errors.Is(err, ErrNoHistory) {
			t.Errorf("Expected ErrNoHistory, got %v", err)
		}
	})

	t.Run("RepeatedUndoWalksBack", func(t *testing.T) {
		store, _ := newTestStore(t)

		for i := 0; i < 3; i++ {
			if _, err := store.Record("encode", fmt.Sprintf("state %d", i), "out", nil, 0); err != nil {
				t.Fatalf("Record %d failed: %v", i, err)
			}
		}

		for i := 2; i >= 0; i-- {
			restored, _, err := store.Undo()
			if err != nil {
				t.Fatalf("Undo failed: %v", err)
			}
			if restored != fmt.Sprintf("state %d", i) {
				t.Errorf("Expected state %d, got %q", i, restored)
			}
		}
	})

	t.Run("UndoMissingBackupLeavesLog", func(t *testing.T) {
		store, _ := newTestStore(t)

		op, err := store.Record("encode", "input", "output", nil, 0)
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		if err := os.Remove(op.BackupPath); err != nil {
			t.Fatalf("Failed to remove backup: %v", err)
		}

		if _, _, err := store.Undo(); err == nil {
			t.Fatal("Expected error for missing backup")
		}
		if store.Len() != 1 {
			t.Errorf("Failed undo must leave the log untouched, got %d entries", store.Len())
		}
	})
}

func TestLogBounds(t *testing.T) {
	t.Run("EvictsOldestPastMax", func(t *testing.T) {
		store, _ := newTestStore(t)

		for i := 0; i < MaxEntries+1; i++ {
			if _, err := store.Record("encode", fmt.Sprintf("input %d", i), "out", nil, 0); err != nil {
				t.Fatalf("Record %d failed: %v", i, err)
			}
		}

		if store.Len() != MaxEntries {
			t.Errorf("Expected %d entries, got %d", MaxEntries, store.Len())
		}

		ops := store.List()
		if ops[0].InputHash == HashText("input 0") {
			t.Error("Oldest entry should have been evicted")
		}
		if ops[len(ops)-1].InputHash != HashText(fmt.Sprintf("input %d", MaxEntries)) {
			t.Error("Newest entry should be last")
		}
	})

	t.Run("BackupsPruned", func(t *testing.T) {
		store, _ := newTestStore(t)

		for i := 0; i < maxBackups+5; i++ {
			if _, err := store.Record("encode", fmt.Sprintf("input %d", i), "out", nil, 0); err != nil {
				t.Fatalf("Record %d failed: %v", i, err)
			}
		}

		if got := store.BackupCount(); got != maxBackups {
			t.Errorf("Expected %d backups after pruning, got %d", maxBackups, got)
		}
	})
}

func TestPersistence(t *testing.T) {
	t.Run("LogSurvivesReopen", func(t *testing.T) {
		dir := t.TempDir()
		logPath := filepath.Join(dir, "history.json")
		log := &logger.Logger{Logger: zap.NewNop()}

		store, err := NewStore(filepath.Join(dir, "backups"), logPath, log)
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		op, err := store.Record("decode", "input", "output", map[string]int{"database": 2}, 2)
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}

		reopened, err := NewStore(filepath.Join(dir, "backups"), logPath, log)
		if err != nil {
			t.Fatalf("Failed to reopen store: %v", err)
		}
		if reopened.Len() != 1 {
			t.Fatalf("Expected 1 entry after reopen, got %d", reopened.Len())
		}

		loaded, ok := reopened.Get(op.ID)
		if !ok {
			t.Fatal("Recorded operation not found after reopen")
		}
		if loaded.Direction != "decode" || loaded.RuleCounts["database"] != 2 {
			t.Errorf("Operation fields lost on reload: %+v", loaded)
		}
	})

	t.Run("CorruptLogIsAnError", func(t *testing.T) {
		dir := t.TempDir()
		logPath := filepath.Join(dir, "history.json")
		if err := os.WriteFile(logPath, []byte("{not json"), 0o644); err != nil {
			t.Fatalf("Failed to write corrupt log: %v", err)
		}

		if _, err := NewStore(filepath.Join(dir, "backups"), logPath, &logger.Logger{Logger: zap.NewNop()}); err == nil {
			t.Fatal("Expected error for corrupt history log")
		}
	})
}

func TestHashText(t *testing.T) {
	a := HashText("same")
	b := HashText("same")
	c := HashText("different")

	if a != b {
		t.Error("HashText should be deterministic")
	}
	if a == c {
		t.Error("Different inputs should hash differently")
	}
	if len(a) != 32 {
		t.Errorf("Expected 32 hex chars, got %d", len(a))
	}
}
