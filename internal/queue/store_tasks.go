package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

func cleanTaskPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", errors.New("task path is empty")
	}
	return filepath.Clean(trimmed), nil
}

// Put enqueues path. It returns false when the path is already queued in this tier.
func (s *Store) Put(ctx context.Context, path string) (bool, error) {
	cleaned, err := cleanTaskPath(path)
	if err != nil {
		return false, err
	}
	now := nowString()
	res, err := s.execWithRetry(ctx,
		`INSERT INTO tasks (path, status, attempts, created_at, updated_at)
		 VALUES (?, ?, 0, ?, ?) ON CONFLICT(path) DO NOTHING`,
		cleaned, StatusPending, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", cleaned, err)
	}
	added, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", cleaned, err)
	}
	return added > 0, nil
}

// PutMany enqueues paths in a single transaction and returns how many were new.
func (s *Store) PutMany(ctx context.Context, paths []string) (int, error) {
	ctx = ensureContext(ctx)
	if len(paths) == 0 {
		return 0, nil
	}
	added := 0
	err := retryOnBusy(ctx, func() error {
		added = 0
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO tasks (path, status, attempts, created_at, updated_at)
			 VALUES (?, ?, 0, ?, ?) ON CONFLICT(path) DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := nowString()
		for _, path := range paths {
			cleaned, err := cleanTaskPath(path)
			if err != nil {
				continue
			}
			res, err := stmt.ExecContext(ctx, cleaned, StatusPending, now, now)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err == nil {
				added += int(n)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("enqueue batch of %d: %w", len(paths), err)
	}
	return added, nil
}

// Get returns the oldest task without removing it, marking it in flight.
// A task that is never acked is returned again by the next Get. Get returns
// nil when the queue is empty.
func (s *Store) Get(ctx context.Context) (*Task, error) {
	ctx = ensureContext(ctx)
	var task *Task
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`UPDATE tasks SET status = ?, attempts = attempts + 1, updated_at = ?
			 WHERE id = (SELECT id FROM tasks ORDER BY id LIMIT 1)
			 RETURNING `+taskColumns,
			StatusInFlight, nowString(),
		)
		scanned, err := scanTask(row)
		if errors.Is(err, sql.ErrNoRows) {
			task = nil
			return nil
		}
		if err != nil {
			return err
		}
		task = scanned
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	return task, nil
}

// Ack permanently removes a task. Acking a task twice is a no-op.
func (s *Store) Ack(ctx context.Context, task *Task) error {
	if task == nil {
		return nil
	}
	if _, err := s.execWithRetry(ctx, `DELETE FROM tasks WHERE id = ?`, task.ID); err != nil {
		return fmt.Errorf("ack %s: %w", task.Path, err)
	}
	return nil
}

// Count returns the number of queued tasks, including in-flight ones.
func (s *Store) Count(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)
	var count int
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks`).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return count, nil
}

// List returns up to limit tasks in delivery order. limit <= 0 lists everything.
func (s *Store) List(ctx context.Context, limit int) ([]*Task, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// Clear removes every task and returns how many were deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM tasks`)
	if err != nil {
		return 0, fmt.Errorf("clear tasks: %w", err)
	}
	return res.RowsAffected()
}
