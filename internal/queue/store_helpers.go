package queue

import (
	"errors"
	"time"
)

const taskColumns = "id, path, status, attempts, created_at, updated_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		task       Task
		statusStr  string
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&task.ID, &task.Path, &statusStr, &task.Attempts, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	task.Status = Status(statusStr)
	if created, err := parseTimeString(createdRaw); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		task.UpdatedAt = updated
	}
	return &task, nil
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
