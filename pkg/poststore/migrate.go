package poststore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/pkg/errors"

	"github.com/abustany/monthly-board/pkg/posttree"
	"github.com/abustany/monthly-board/pkg/types"
)

// MigrationReport summarizes what Migrate did.
type MigrationReport struct {
	// Ran is false when there was no legacy data to migrate.
	Ran bool

	// Months lists the partitions that were written, in ascending order.
	Months []string

	// Migrated is the number of legacy posts added to a partition.
	Migrated int

	// Skipped is the number of legacy posts that were already present in
	// their partition.
	Skipped int
}

// Migrate moves the posts stored under LegacyKey into monthly partitions.
// Posts without a date are dated now.
//
// Legacy posts whose id is already present in their partition are skipped,
// so running Migrate again after a partial failure never duplicates posts.
// The legacy key is only removed once every partition has been written.
func (s *Store) Migrate(ctx context.Context, now time.Time) (MigrationReport, error) {
	var report MigrationReport

	value, found, err := s.kv.Get(ctx, LegacyKey)

	if err != nil {
		return report, errors.Wrap(err, "Error while reading legacy posts")
	}

	if !found {
		return report, nil
	}

	report.Ran = true

	var legacy []types.Post

	if err := json.Unmarshal([]byte(value), &legacy); err != nil {
		return report, errors.Wrapf(ErrCorruptLegacyData, "%s", err)
	}

	byMonth := treemap.NewWithStringComparator()

	for _, post := range legacy {
		if post.Date.IsZero() {
			post.Date = now
		}

		monthKey := s.MonthKey(post.Date)
		posts, _ := byMonth.Get(monthKey)

		if posts == nil {
			posts = []types.Post{}
		}

		byMonth.Put(monthKey, append(posts.([]types.Post), post))
	}

	it := byMonth.Iterator()

	for it.Next() {
		monthKey := it.Key().(string)

		// A partition that cannot be decoded is treated as empty and replaced
		existing, err := s.ReadPartition(ctx, monthKey)

		if err != nil && !IsRecovered(err) {
			return report, err
		}

		merged := existing

		for _, post := range it.Value().([]types.Post) {
			if posttree.Contains(existing, post.ID) {
				report.Skipped++
				continue
			}

			merged = append(merged, post)
			report.Migrated++
		}

		if err := s.WritePartition(ctx, monthKey, merged); err != nil {
			return report, errors.Wrapf(err, "Migration of %s failed", monthKey)
		}

		report.Months = append(report.Months, monthKey)
	}

	if err := s.kv.Remove(ctx, LegacyKey); err != nil {
		return report, errors.Wrap(err, "Error while removing legacy posts")
	}

	return report, nil
}
