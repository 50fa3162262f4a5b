package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rigdev/apprig/internal/core"
)

// Compile-time interface check.
var _ core.TurnRecorder = (*DB)(nil)

// SaveTurn upserts a turn. The full turn is stored as JSON in the data column.
func (d *DB) SaveTurn(turn *core.Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	_, err = d.db.Exec(
		`INSERT INTO turns (id, instruction, status, fail_reason, dry_run, data, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			fail_reason = excluded.fail_reason,
			data = excluded.data,
			completed_at = excluded.completed_at`,
		turn.ID, turn.Instruction, string(turn.Status), string(turn.FailReason), turn.DryRun,
		string(data), turn.CreatedAt, turn.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("save turn %s: %w", turn.ID, err)
	}
	return nil
}

// GetTurn retrieves a turn by its ID. It returns nil, nil when the turn
// does not exist.
func (d *DB) GetTurn(turnID string) (*core.Turn, error) {
	var data string
	err := d.db.QueryRow("SELECT data FROM turns WHERE id = ?", turnID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get turn %s: %w", turnID, err)
	}

	var turn core.Turn
	if err := json.Unmarshal([]byte(data), &turn); err != nil {
		return nil, fmt.Errorf("unmarshal turn %s: %w", turnID, err)
	}
	return &turn, nil
}

// ListTurns returns up to limit turns, newest first. A non-positive limit
// returns all of them.
func (d *DB) ListTurns(limit int) ([]core.Turn, error) {
	if limit <= 0 {
		limit = -1
	}
	return d.queryTurns("SELECT data FROM turns ORDER BY seq DESC LIMIT ?", limit)
}

// RecentTurns returns the last limit turns that were not dry runs, oldest
// first, for use as planning history.
func (d *DB) RecentTurns(limit int) ([]core.Turn, error) {
	return d.queryTurns(
		`SELECT data FROM (
			SELECT seq, data FROM turns WHERE dry_run = 0 ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`,
		limit,
	)
}

// CountByStatus returns the number of turns per status.
func (d *DB) CountByStatus() (map[core.TurnPhase]int, error) {
	rows, err := d.db.Query("SELECT status, COUNT(*) FROM turns GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count turns: %w", err)
	}
	defer rows.Close()

	counts := make(map[core.TurnPhase]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[core.TurnPhase(status)] = n
	}
	return counts, rows.Err()
}

func (d *DB) queryTurns(query string, args ...any) ([]core.Turn, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var turns []core.Turn
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		var turn core.Turn
		if err := json.Unmarshal([]byte(data), &turn); err != nil {
			return nil, fmt.Errorf("unmarshal turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}
