package poststore

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/emirpasic/gods/sets/treeset"
	"github.com/pkg/errors"

	"github.com/abustany/monthly-board/pkg/kvstore"
	"github.com/abustany/monthly-board/pkg/types"
)

// PartitionPrefix prefixes the key of every monthly partition, followed by
// the month key ("boardPosts_2024/01").
const PartitionPrefix = "boardPosts_"

// LegacyKey holds the flat list of posts written before posts were
// partitioned by month.
const LegacyKey = "boardPosts"

const monthKeyLayout = "2006/01"

// Store splits the board into one partition per calendar month. A top-level
// post and all its replies live in the partition of the top-level post's
// date.
type Store struct {
	kv       kvstore.Store
	location *time.Location
}

// New returns a Store persisting partitions in kv. Month keys are computed in
// location, time.Local if nil.
func New(kv kvstore.Store, location *time.Location) *Store {
	if location == nil {
		location = time.Local
	}

	return &Store{kv: kv, location: location}
}

// MonthKey returns the key of the partition holding posts created at t.
func (s *Store) MonthKey(t time.Time) string {
	return t.In(s.location).Format(monthKeyLayout)
}

// ValidMonthKey checks that key looks like "YYYY/MM".
func ValidMonthKey(key string) bool {
	_, err := time.Parse(monthKeyLayout, key)
	return err == nil && len(key) == len(monthKeyLayout)
}

func partitionKey(monthKey string) string {
	return PartitionPrefix + monthKey
}

// ReadPartition returns the top-level posts stored for monthKey, or an empty
// list if there are none. If the stored value cannot be decoded, the empty
// list is returned along with a recovered error.
func (s *Store) ReadPartition(ctx context.Context, monthKey string) ([]types.Post, error) {
	value, found, err := s.kv.Get(ctx, partitionKey(monthKey))

	if err != nil {
		return []types.Post{}, errors.Wrapf(err, "Error while reading partition %s", monthKey)
	}

	if !found {
		return []types.Post{}, nil
	}

	var posts []types.Post

	if err := json.Unmarshal([]byte(value), &posts); err != nil {
		return []types.Post{}, &recoveredError{errors.Wrapf(ErrCorruptPartition, "Partition %s: %s", monthKey, err)}
	}

	if posts == nil {
		posts = []types.Post{}
	}

	return posts, nil
}

// WritePartition replaces the content of the partition for monthKey. Storage
// failures are returned as recovered errors: callers carry on with their
// in-memory state.
func (s *Store) WritePartition(ctx context.Context, monthKey string, posts []types.Post) error {
	if posts == nil {
		posts = []types.Post{}
	}

	data, err := json.Marshal(posts)

	if err != nil {
		return errors.Wrapf(err, "Error while encoding partition %s", monthKey)
	}

	if err := s.kv.Set(ctx, partitionKey(monthKey), string(data)); err != nil {
		return &recoveredError{errors.Wrapf(err, "Error while writing partition %s", monthKey)}
	}

	return nil
}

// ListPartitionKeys returns the month keys of all the stored partitions, in
// ascending order.
func (s *Store) ListPartitionKeys(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx)

	if err != nil {
		return nil, errors.Wrap(err, "Error while listing stored keys")
	}

	months := treeset.NewWithStringComparator()

	for _, key := range keys {
		if strings.HasPrefix(key, PartitionPrefix) {
			months.Add(strings.TrimPrefix(key, PartitionPrefix))
		}
	}

	res := make([]string, 0, months.Size())

	for _, month := range months.Values() {
		res = append(res, month.(string))
	}

	return res, nil
}

// ReadAllPosts returns the top-level posts of every partition, most recent
// first. Posts with the same date keep their storage order.
//
// Partitions that cannot be decoded are skipped, and reported in a single
// recovered error returned along with the posts of the other partitions.
func (s *Store) ReadAllPosts(ctx context.Context) ([]types.Post, error) {
	months, err := s.ListPartitionKeys(ctx)

	if err != nil {
		return nil, err
	}

	posts := []types.Post{}
	var corrupt []string

	for _, month := range months {
		monthPosts, err := s.ReadPartition(ctx, month)

		if IsRecovered(err) {
			corrupt = append(corrupt, month)
			continue
		}

		if err != nil {
			return nil, err
		}

		posts = append(posts, monthPosts...)
	}

	sortByDateReverse(posts)

	if len(corrupt) > 0 {
		return posts, &recoveredError{errors.Wrapf(ErrCorruptPartition, "Skipped partitions %s", strings.Join(corrupt, ", "))}
	}

	return posts, nil
}

// sortByDateReverse sorts posts with the most recent first.
func sortByDateReverse(posts []types.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].Date.After(posts[j].Date)
	})
}
