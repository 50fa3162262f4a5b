package storage

import (
	"fmt"
	"time"
)

// LogEntry is one progress line of a turn.
type LogEntry struct {
	ID        int64     `json:"id"`
	TurnID    string    `json:"turn_id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// AppendLog adds a log entry for a turn.
func (d *DB) AppendLog(turnID, level, message string) error {
	_, err := d.db.Exec(
		`INSERT INTO turn_logs (turn_id, timestamp, level, message) VALUES (?, ?, ?, ?)`,
		turnID, time.Now().UTC(), level, message,
	)
	if err != nil {
		return fmt.Errorf("append log for %s: %w", turnID, err)
	}
	return nil
}

// GetLogs returns all log entries for a turn in insertion order.
func (d *DB) GetLogs(turnID string) ([]LogEntry, error) {
	return d.GetLogsSince(turnID, 0)
}

// GetLogsSince returns entries with an id greater than afterID, for
// polling clients.
func (d *DB) GetLogsSince(turnID string, afterID int64) ([]LogEntry, error) {
	rows, err := d.db.Query(
		`SELECT id, turn_id, timestamp, level, message FROM turn_logs
		 WHERE turn_id = ? AND id > ? ORDER BY id`,
		turnID, afterID,
	)
	if err != nil {
		return nil, fmt.Errorf("get logs for %s: %w", turnID, err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.TurnID, &l.Timestamp, &l.Level, &l.Message); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
