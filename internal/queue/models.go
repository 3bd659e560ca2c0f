package queue

import (
	"fmt"
	"strings"
	"time"
)

// Tier identifies one of the two work queues.
type Tier string

const (
	// TierManual holds operator submissions. It is always drained first.
	TierManual Tier = "manual"
	// TierCrawler holds directories discovered by walking catalog spots.
	TierCrawler Tier = "crawler"
)

// Tiers lists every tier in service order.
func Tiers() []Tier {
	return []Tier{TierManual, TierCrawler}
}

// ParseTier maps CLI input to a Tier. The legacy file names are accepted too.
func ParseTier(value string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "manual", "priority":
		return TierManual, nil
	case "crawler", "bot":
		return TierCrawler, nil
	default:
		return "", fmt.Errorf("unknown queue tier %q (want manual or crawler)", value)
	}
}

func (t Tier) String() string { return string(t) }

// Status tracks delivery state of a task.
type Status string

const (
	StatusPending  Status = "pending"
	StatusInFlight Status = "in_flight"
)

// Task is one queued directory path.
type Task struct {
	ID        int64
	Path      string
	Status    Status
	Attempts  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stats summarizes one queue file.
type Stats struct {
	Total    int
	Pending  int
	InFlight int
	// Oldest is the creation time of the next task Get would return.
	Oldest time.Time
}

// DatabaseHealth captures diagnostic information about a queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TableExists      bool
	MissingColumns   []string
	IntegrityCheck   bool
	TotalTasks       int
	Error            string
}
