package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rigdev/apprig/internal/core"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func completedTurn(instruction string, changes ...core.FileChange) *core.Turn {
	turn := core.NewTurn(instruction)
	turn.Status = core.PhaseCompleted
	turn.Changes = changes
	now := time.Now().UTC()
	turn.CompletedAt = &now
	return turn
}

// --- Turns ---

func TestTurns_SaveAndGet(t *testing.T) {
	db := testDB(t)

	turn := completedTurn("add a settings screen", core.FileChange{
		Path: "lib/screens/settings_screen.dart", Kind: core.OpCreate, Added: 12, Revision: 1,
	})
	turn.Plan = &core.TaskPlan{
		Instruction: turn.Instruction,
		Operations:  []core.FileOperation{{Path: "lib/screens/settings_screen.dart", Kind: core.OpCreate}},
	}
	turn.Attempts = []core.Attempt{{Number: 1, Path: "lib/screens/settings_screen.dart", Status: "passed"}}

	if err := db.SaveTurn(turn); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := db.GetTurn(turn.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("turn not found")
	}
	if got.Instruction != turn.Instruction || got.Status != core.PhaseCompleted {
		t.Errorf("got %q/%s", got.Instruction, got.Status)
	}
	if got.Plan == nil || len(got.Plan.Operations) != 1 {
		t.Errorf("plan not round-tripped: %+v", got.Plan)
	}
	if len(got.Changes) != 1 || got.Changes[0].Added != 12 {
		t.Errorf("changes not round-tripped: %+v", got.Changes)
	}
	if len(got.Attempts) != 1 || got.Attempts[0].Status != "passed" {
		t.Errorf("attempts not round-tripped: %+v", got.Attempts)
	}
}

func TestTurns_GetMissing(t *testing.T) {
	db := testDB(t)

	got, err := db.GetTurn("nonexistent")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestTurns_Upsert(t *testing.T) {
	db := testDB(t)

	turn := core.NewTurn("rename the list screen")
	turn.Status = core.PhaseGenerating
	if err := db.SaveTurn(turn); err != nil {
		t.Fatalf("save 1: %v", err)
	}

	turn.Status = core.PhaseFailed
	turn.FailReason = core.ReasonGeneration
	if err := db.SaveTurn(turn); err != nil {
		t.Fatalf("save 2: %v", err)
	}

	all, err := db.ListTurns(0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d turns, want 1", len(all))
	}
	if all[0].Status != core.PhaseFailed || all[0].FailReason != core.ReasonGeneration {
		t.Errorf("got %s/%s", all[0].Status, all[0].FailReason)
	}
}

func TestTurns_ListNewestFirst(t *testing.T) {
	db := testDB(t)

	for _, instr := range []string{"first", "second", "third"} {
		if err := db.SaveTurn(completedTurn(instr)); err != nil {
			t.Fatalf("save %s: %v", instr, err)
		}
	}

	all, err := db.ListTurns(0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].Instruction != "third" || all[2].Instruction != "first" {
		t.Errorf("unexpected order: %+v", all)
	}

	two, err := db.ListTurns(2)
	if err != nil {
		t.Fatalf("list limit: %v", err)
	}
	if len(two) != 2 || two[0].Instruction != "third" {
		t.Errorf("limit 2: %+v", two)
	}
}

func TestTurns_RecentSkipsDryRunsOldestFirst(t *testing.T) {
	db := testDB(t)

	for _, instr := range []string{"one", "two", "preview", "three"} {
		turn := completedTurn(instr)
		turn.DryRun = instr == "preview"
		if err := db.SaveTurn(turn); err != nil {
			t.Fatalf("save %s: %v", instr, err)
		}
	}

	recent, err := db.RecentTurns(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0].Instruction != "two" || recent[1].Instruction != "three" {
		var got []string
		for _, r := range recent {
			got = append(got, r.Instruction)
		}
		t.Errorf("recent = %v, want [two three]", got)
	}
}

func TestTurns_CountByStatus(t *testing.T) {
	db := testDB(t)

	db.SaveTurn(completedTurn("a"))
	db.SaveTurn(completedTurn("b"))
	failed := core.NewTurn("c")
	failed.Status = core.PhaseFailed
	db.SaveTurn(failed)

	counts, err := db.CountByStatus()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[core.PhaseCompleted] != 2 || counts[core.PhaseFailed] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

// --- Logs ---

func TestLogs_AppendAndGet(t *testing.T) {
	db := testDB(t)

	if err := db.AppendLog("turn-001", "info", "planning"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := db.AppendLog("turn-001", "warn", "attempt 1 invalid"); err != nil {
		t.Fatalf("append: %v", err)
	}

	logs, err := db.GetLogs("turn-001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("got %d logs, want 2", len(logs))
	}
	if logs[0].Message != "planning" || logs[1].Level != "warn" {
		t.Errorf("unexpected logs: %+v", logs)
	}
	if logs[0].TurnID != "turn-001" || logs[0].Timestamp.IsZero() {
		t.Errorf("missing fields: %+v", logs[0])
	}
}

func TestLogs_GetSince(t *testing.T) {
	db := testDB(t)

	db.AppendLog("turn-001", "info", "msg1")
	db.AppendLog("turn-001", "info", "msg2")
	db.AppendLog("turn-001", "info", "msg3")

	all, _ := db.GetLogs("turn-001")
	if len(all) != 3 {
		t.Fatalf("got %d logs, want 3", len(all))
	}

	since, err := db.GetLogsSince("turn-001", all[0].ID)
	if err != nil {
		t.Fatalf("get since: %v", err)
	}
	if len(since) != 2 || since[0].Message != "msg2" {
		t.Errorf("since = %+v", since)
	}
}

func TestLogs_IsolationByTurn(t *testing.T) {
	db := testDB(t)

	db.AppendLog("turn-001", "info", "a")
	db.AppendLog("turn-002", "info", "b")

	logs1, _ := db.GetLogs("turn-001")
	logs2, _ := db.GetLogs("turn-002")

	if len(logs1) != 1 || logs1[0].Message != "a" {
		t.Errorf("turn-001 logs: %+v", logs1)
	}
	if len(logs2) != 1 || logs2[0].Message != "b" {
		t.Errorf("turn-002 logs: %+v", logs2)
	}
}

// --- DB Lifecycle ---

func TestOpen_CreatesDir(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, ".apprig", "nested", "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Dir(dbPath)); err != nil {
		t.Errorf("dir not created: %v", err)
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	turn := completedTurn("persisted")
	if err := db.SaveTurn(turn); err != nil {
		t.Fatalf("save: %v", err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	got, err := db.GetTurn(turn.ID)
	if err != nil || got == nil {
		t.Fatalf("turn lost across reopen: %v", err)
	}
}
