package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/owl-api/internal/domain"
	"github.com/phrazzld/owl-api/internal/redact"
	"github.com/phrazzld/owl-api/internal/task"
)

const taskColumns = `id, seq, owner_id, kind, state, progress, current_step, reserved_units,
	spec, result, failure, estimated_seconds, created_at, started_at, completed_at`

// TaskStore implements task.Store using PostgreSQL.
type TaskStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ task.Store = (*TaskStore)(nil)

// NewTaskStore creates a TaskStore on db.
func NewTaskStore(db *sql.DB, logger *slog.Logger) *TaskStore {
	return &TaskStore{db: db, logger: logger.With("component", "task_store")}
}

// Insert implements task.Store.
func (s *TaskStore) Insert(ctx context.Context, rec *task.Record) error {
	row, err := toRow(rec)
	if err != nil {
		return err
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO tasks (id, owner_id, kind, state, progress, current_step, reserved_units,
			spec, result, failure, estimated_seconds, created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING seq`,
		rec.ID, rec.OwnerID, string(rec.Kind), string(rec.State), rec.Progress, rec.CurrentStep,
		row.units, row.spec, row.result, row.failure, rec.EstimatedSeconds,
		rec.CreatedAt, rec.StartedAt, rec.CompletedAt,
	).Scan(&rec.Seq)
	if err != nil {
		s.logger.Error("failed to insert task", "task_id", rec.ID, redact.Attr(err))
		return MapError(err)
	}
	return nil
}

// Get implements task.Store.
func (s *TaskStore) Get(ctx context.Context, id uuid.UUID) (*task.Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		return nil, MapError(err)
	}
	return rec, nil
}

// Update implements task.Store. The row is locked for the duration of fn.
func (s *TaskStore) Update(ctx context.Context, id uuid.UUID, fn func(*task.Record) error) (*task.Record, error) {
	var updated *task.Record
	err := withTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		rec, err := scanRecord(tx.QueryRowContext(ctx,
			`SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return MapError(err)
		}
		if err := fn(rec); err != nil {
			return err
		}

		row, err := toRow(rec)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE tasks SET state = $2, progress = $3, current_step = $4, reserved_units = $5,
				result = $6, failure = $7, started_at = $8, completed_at = $9
			WHERE id = $1`,
			id, string(rec.State), rec.Progress, rec.CurrentStep, row.units,
			row.result, row.failure, rec.StartedAt, rec.CompletedAt,
		)
		if err != nil {
			return MapError(err)
		}
		if err := expectOneRow(res); err != nil {
			return err
		}
		updated = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete implements task.Store. The DELETE holds the row lock until it
// commits, so onDelete runs right after the commit: from then on no Get or
// Update can reach the row.
func (s *TaskStore) Delete(ctx context.Context, id uuid.UUID, onDelete func(*task.Record)) (*task.Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`DELETE FROM tasks WHERE id = $1 RETURNING `+taskColumns, id))
	if err != nil {
		return nil, MapError(err)
	}
	if onDelete != nil {
		onDelete(rec.Clone())
	}
	return rec, nil
}

// List implements task.Store. The count and the page are read in one
// REPEATABLE READ transaction so the total always agrees with the rows.
func (s *TaskStore) List(ctx context.Context, filter task.ListFilter) ([]*task.Record, int, error) {
	where, args := whereClause(filter)

	query := `SELECT ` + taskColumns + ` FROM tasks` + where + ` ORDER BY created_at DESC, seq DESC`
	pageArgs := append([]any(nil), args...)
	if filter.Limit > 0 {
		pageArgs = append(pageArgs, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(pageArgs))
	}
	if filter.Offset > 0 {
		pageArgs = append(pageArgs, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(pageArgs))
	}

	var (
		recs  []*task.Record
		total int
	)
	err := withTx(ctx, s.db, readSnapshot, func(ctx context.Context, tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`+where, args...).Scan(&total); err != nil {
			return MapError(err)
		}
		var err error
		recs, err = queryRecords(ctx, tx, query, pageArgs...)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

// ListUnfinished implements task.Store.
func (s *TaskStore) ListUnfinished(ctx context.Context) ([]*task.Record, error) {
	return queryRecords(ctx, s.db, `SELECT `+taskColumns+` FROM tasks
		WHERE state IN ('pending', 'processing') ORDER BY created_at, seq`)
}

// DeleteFinishedBefore implements task.Store.
func (s *TaskStore) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM tasks
		WHERE state IN ('completed', 'failed') AND completed_at < $1`, cutoff)
	if err != nil {
		return 0, MapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// LatestSeq implements task.Store. Sequence numbers are handed out before
// commit, so a row with a lower seq can still become visible afterwards.
func (s *TaskStore) LatestSeq(ctx context.Context) (uint64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM tasks`).Scan(&seq); err != nil {
		return 0, MapError(err)
	}
	return uint64(seq), nil
}

func queryRecords(ctx context.Context, q querier, query string, args ...any) ([]*task.Record, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	recs := []*task.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return recs, nil
}

func whereClause(f task.ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.OwnerID != "" {
		args = append(args, f.OwnerID)
		conds = append(conds, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if len(f.States) > 0 {
		states := make([]string, len(f.States))
		for i, st := range f.States {
			states[i] = string(st)
		}
		args = append(args, states)
		conds = append(conds, fmt.Sprintf("state = ANY($%d)", len(args)))
	}
	if f.MaxSeq != 0 {
		args = append(args, int64(f.MaxSeq))
		conds = append(conds, fmt.Sprintf("seq <= $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// taskRow holds the JSONB encodings of a record's structured columns.
type taskRow struct {
	units   []byte
	spec    []byte
	result  []byte
	failure []byte
}

func toRow(rec *task.Record) (taskRow, error) {
	var row taskRow
	var err error

	units := rec.ReservedUnits
	if units == nil {
		units = []string{}
	}
	if row.units, err = json.Marshal(units); err != nil {
		return row, fmt.Errorf("encode reserved units: %w", err)
	}
	if row.spec, err = domain.MarshalJobSpec(rec.Spec); err != nil {
		return row, fmt.Errorf("encode spec: %w", err)
	}
	if len(rec.Result) > 0 {
		row.result = rec.Result
	}
	if rec.Failure != nil {
		if row.failure, err = json.Marshal(rec.Failure); err != nil {
			return row, fmt.Errorf("encode failure: %w", err)
		}
	}
	return row, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*task.Record, error) {
	var (
		rec       task.Record
		seq       int64
		kind      string
		state     string
		units     []byte
		spec      []byte
		result    []byte
		failure   []byte
		startedAt sql.NullTime
		doneAt    sql.NullTime
	)
	if err := sc.Scan(
		&rec.ID, &seq, &rec.OwnerID, &kind, &state, &rec.Progress, &rec.CurrentStep, &units,
		&spec, &result, &failure, &rec.EstimatedSeconds, &rec.CreatedAt, &startedAt, &doneAt,
	); err != nil {
		return nil, err
	}

	rec.Seq = uint64(seq)
	rec.Kind = domain.JobKind(kind)
	rec.State = task.State(state)
	rec.CreatedAt = rec.CreatedAt.UTC()

	if err := json.Unmarshal(units, &rec.ReservedUnits); err != nil {
		return nil, fmt.Errorf("decode reserved units of task %s: %w", rec.ID, err)
	}
	if len(rec.ReservedUnits) == 0 {
		rec.ReservedUnits = nil
	}
	js, err := domain.UnmarshalJobSpec(rec.Kind, spec)
	if err != nil {
		return nil, fmt.Errorf("decode spec of task %s: %w", rec.ID, err)
	}
	rec.Spec = js
	if len(result) > 0 {
		rec.Result = json.RawMessage(result)
	}
	if len(failure) > 0 {
		rec.Failure = &task.Failure{}
		if err := json.Unmarshal(failure, rec.Failure); err != nil {
			return nil, fmt.Errorf("decode failure of task %s: %w", rec.ID, err)
		}
	}
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		rec.StartedAt = &t
	}
	if doneAt.Valid {
		t := doneAt.Time.UTC()
		rec.CompletedAt = &t
	}
	return &rec, nil
}
