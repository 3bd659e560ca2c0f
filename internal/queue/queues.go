package queue

import (
	"context"
	"errors"
	"fmt"

	"fbicheck/internal/config"
)

// Queues pairs the manual and crawler tiers.
type Queues struct {
	Manual  *Store
	Crawler *Store
}

// OpenQueues opens both tier databases under the configured queue directory.
func OpenQueues(cfg *config.Config) (*Queues, error) {
	manual, err := Open(cfg.ManualQueuePath())
	if err != nil {
		return nil, fmt.Errorf("open manual queue: %w", err)
	}
	crawler, err := Open(cfg.CrawlerQueuePath())
	if err != nil {
		_ = manual.Close()
		return nil, fmt.Errorf("open crawler queue: %w", err)
	}
	return &Queues{Manual: manual, Crawler: crawler}, nil
}

// For returns the store backing tier, or nil for an unknown tier.
func (q *Queues) For(tier Tier) *Store {
	switch tier {
	case TierManual:
		return q.Manual
	case TierCrawler:
		return q.Crawler
	default:
		return nil
	}
}

// Depths returns the task count of every tier.
func (q *Queues) Depths(ctx context.Context) (map[Tier]int, error) {
	depths := make(map[Tier]int, 2)
	for _, tier := range Tiers() {
		count, err := q.For(tier).Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s queue: %w", tier, err)
		}
		depths[tier] = count
	}
	return depths, nil
}

// RecoverInFlight requeues in-flight tasks in every tier and returns the
// number recovered.
func (q *Queues) RecoverInFlight(ctx context.Context) (int64, error) {
	var total int64
	for _, tier := range Tiers() {
		n, err := q.For(tier).RecoverInFlight(ctx)
		if err != nil {
			return total, fmt.Errorf("%s queue: %w", tier, err)
		}
		total += n
	}
	return total, nil
}

// Close closes both stores.
func (q *Queues) Close() error {
	if q == nil {
		return nil
	}
	return errors.Join(q.Manual.Close(), q.Crawler.Close())
}
