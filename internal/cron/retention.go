package cron

import (
	"context"
	"fmt"
	"time"
)

// RetentionSpec runs the sweep daily at 03:00.
const RetentionSpec = "0 0 3 * * *"

const RetentionJobName = "job-retention"

// Pruner deletes finished job records older than a cutoff.
type Pruner interface {
	PruneFinished(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionJob removes finished jobs last touched more than days ago.
func RetentionJob(p Pruner, days int, now func() time.Time) JobFunc {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context) (string, error) {
		if days <= 0 {
			return "retention disabled", nil
		}
		cutoff := now().AddDate(0, 0, -days)
		n, err := p.PruneFinished(ctx, cutoff)
		if err != nil {
			return "", fmt.Errorf("retention sweep: %w", err)
		}
		return fmt.Sprintf("pruned %d jobs finished before %s", n, cutoff.Format(time.DateOnly)), nil
	}
}
