// Package metrics summarises turn history.
package metrics

import (
	"sort"
	"time"

	"github.com/rigdev/apprig/internal/core"
)

// DefaultWindow is the look-back period used by the CLI and HTTP API.
const DefaultWindow = 30 * 24 * time.Hour

// TurnStats summarises how instructions fared over a window.
type TurnStats struct {
	Turns     int `json:"turns"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	DryRuns   int `json:"dry_runs"`

	// SuccessRate is completed / (completed + failed), in percent.
	SuccessRate float64 `json:"success_rate"`
	// SimplifiedRate is the share of finished turns that fell back to a
	// simplified plan, in percent.
	SimplifiedRate float64 `json:"simplified_rate"`
	// AvgAttempts is the mean number of generation attempts per turn.
	AvgAttempts float64 `json:"avg_attempts"`
	// RepairRate is the share of passing attempts that needed the
	// validator's repair pass, in percent.
	RepairRate float64 `json:"repair_rate"`

	AvgDuration time.Duration `json:"avg_duration"`
	// MTTR is the mean time from a failed turn to the next completed one.
	MTTR time.Duration `json:"mttr"`

	FilesChanged int                     `json:"files_changed"`
	LinesAdded   int                     `json:"lines_added"`
	LinesRemoved int                     `json:"lines_removed"`
	FailReasons  map[core.FailReason]int `json:"fail_reasons,omitempty"`
}

// Calculate computes stats over the turns created within window of now.
func Calculate(turns []core.Turn, now time.Time, window time.Duration) TurnStats {
	since := now.Add(-window)
	stats := TurnStats{}

	var inWindow []core.Turn
	for _, turn := range turns {
		if turn.CreatedAt.After(since) {
			inWindow = append(inWindow, turn)
		}
	}
	if len(inWindow) == 0 {
		return stats
	}

	var totalDuration time.Duration
	var attempts, passed, repaired, simplified, timed int
	for _, turn := range inWindow {
		stats.Turns++
		if turn.DryRun {
			stats.DryRuns++
		}
		attempts += len(turn.Attempts)
		for _, a := range turn.Attempts {
			if a.Status == core.AttemptPassed {
				passed++
				if a.Repaired {
					repaired++
				}
			}
		}

		switch turn.Status {
		case core.PhaseCompleted:
			stats.Completed++
			if !turn.DryRun {
				for _, c := range turn.Changes {
					stats.FilesChanged++
					stats.LinesAdded += c.Added
					stats.LinesRemoved += c.Removed
				}
			}
		case core.PhaseFailed:
			stats.Failed++
			if turn.FailReason != "" {
				if stats.FailReasons == nil {
					stats.FailReasons = make(map[core.FailReason]int)
				}
				stats.FailReasons[turn.FailReason]++
			}
		default:
			continue
		}

		if turn.Simplified {
			simplified++
		}
		if turn.CompletedAt != nil {
			totalDuration += turn.CompletedAt.Sub(turn.CreatedAt)
			timed++
		}
	}

	finished := stats.Completed + stats.Failed
	if finished > 0 {
		stats.SuccessRate = percent(stats.Completed, finished)
		stats.SimplifiedRate = percent(simplified, finished)
	}
	stats.AvgAttempts = float64(attempts) / float64(stats.Turns)
	if passed > 0 {
		stats.RepairRate = percent(repaired, passed)
	}
	if timed > 0 {
		stats.AvgDuration = totalDuration / time.Duration(timed)
	}
	stats.MTTR = calculateMTTR(inWindow)
	return stats
}

func percent(n, of int) float64 {
	return float64(n) / float64(of) * 100.0
}

// calculateMTTR pairs each run of failures with the next completed turn.
// Dry runs never count as a recovery.
func calculateMTTR(turns []core.Turn) time.Duration {
	type event struct {
		failed bool
		at     time.Time
	}

	events := make([]event, 0, len(turns))
	for _, turn := range turns {
		if turn.CompletedAt == nil {
			continue
		}
		switch {
		case turn.Status == core.PhaseFailed:
			events = append(events, event{failed: true, at: *turn.CompletedAt})
		case turn.Status == core.PhaseCompleted && !turn.DryRun:
			events = append(events, event{at: *turn.CompletedAt})
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].at.Before(events[j].at) })

	var openFailure *time.Time
	var total time.Duration
	recoveries := 0
	for _, ev := range events {
		if ev.failed {
			if openFailure == nil {
				at := ev.at
				openFailure = &at
			}
			continue
		}
		if openFailure != nil && ev.at.After(*openFailure) {
			total += ev.at.Sub(*openFailure)
			recoveries++
			openFailure = nil
		}
	}

	if recoveries == 0 {
		return 0
	}
	return total / time.Duration(recoveries)
}
