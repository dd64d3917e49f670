package store

import (
	"context"
	"time"

	"github.com/macaron-software/agentcore/internal/corerr"
	"github.com/macaron-software/agentcore/internal/model"
)

// DefaultRetention is how long a terminal run's record (run row,
// messages, tool calls, verdicts) is kept before PurgeOlderThan
// sweeps it, per the Open Question decision to make retention
// configurable with this as the default.
const DefaultRetention = 7 * 24 * time.Hour

// PurgeOlderThan deletes every run whose status is terminal
// (completed/failed/cancelled) and whose updated_at is older than
// cutoff, cascading to its messages, tool calls, and verdicts. Running
// or paused runs are never purged regardless of age.
func (s *Store) PurgeOlderThan(cutoff time.Time) (int, error) {
	ctx := context.Background()
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id FROM runs
		WHERE status IN (?, ?, ?) AND updated_at < ?`,
		string(model.RunCompleted), string(model.RunFailed), string(model.RunCancelled), cutoff)
	if err != nil {
		return 0, corerr.New(component, "PurgeOlderThan", corerr.ErrStorageUnavailable, "query purge candidates", err)
	}
	var runIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, corerr.New(component, "PurgeOlderThan", corerr.ErrStorageUnavailable, "scan purge candidate", err)
		}
		runIDs = append(runIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, corerr.New(component, "PurgeOlderThan", corerr.ErrStorageUnavailable, "iterate purge candidates", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, corerr.New(component, "PurgeOlderThan", corerr.ErrStorageUnavailable, "begin purge transaction", err)
	}
	defer tx.Rollback()

	for _, id := range runIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE run_id = ?`, id); err != nil {
			return 0, corerr.New(component, "PurgeOlderThan", corerr.ErrStorageUnavailable, "purge messages for "+id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tool_calls WHERE run_id = ?`, id); err != nil {
			return 0, corerr.New(component, "PurgeOlderThan", corerr.ErrStorageUnavailable, "purge tool calls for "+id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM verdicts WHERE run_id = ?`, id); err != nil {
			return 0, corerr.New(component, "PurgeOlderThan", corerr.ErrStorageUnavailable, "purge verdicts for "+id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, id); err != nil {
			return 0, corerr.New(component, "PurgeOlderThan", corerr.ErrStorageUnavailable, "purge run "+id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, corerr.New(component, "PurgeOlderThan", corerr.ErrStorageUnavailable, "commit purge transaction", err)
	}
	return len(runIDs), nil
}
