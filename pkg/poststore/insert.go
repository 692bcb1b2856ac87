package poststore

import (
	"context"

	"github.com/pkg/errors"

	"github.com/abustany/monthly-board/pkg/posttree"
	"github.com/abustany/monthly-board/pkg/types"
)

// InsertTopLevel appends post to the partition of its date.
func (s *Store) InsertTopLevel(ctx context.Context, post types.Post) error {
	if post.Replies == nil {
		post.Replies = []types.Post{}
	}

	monthKey := s.MonthKey(post.Date)
	posts, err := s.ReadPartition(ctx, monthKey)
	var recovered firstRecovered

	if IsRecovered(err) {
		recovered.add(err)
	} else if err != nil {
		return err
	}

	if err := s.WritePartition(ctx, monthKey, append(posts, post)); err != nil {
		return err
	}

	return recovered.err
}

// locate returns the month key of the partition holding the post with the
// given id. It only reads the store.
func (s *Store) locate(ctx context.Context, id float64) (string, bool, error) {
	all, err := s.ReadAllPosts(ctx)

	if err != nil && !IsRecovered(err) {
		return "", false, err
	}

	for _, top := range all {
		if posttree.Contains([]types.Post{top}, id) {
			return s.MonthKey(top.Date), true, nil
		}
	}

	return "", false, nil
}

// InsertReply appends reply to the replies of the post parentID. If the
// parent cannot be found, nothing is written and ErrParentNotFound is
// returned.
//
// The parent is first looked up among all posts to find which partition holds
// it, then the reply is added to that partition's own copy.
func (s *Store) InsertReply(ctx context.Context, reply types.Post, parentID float64) error {
	monthKey, found, err := s.locate(ctx, parentID)

	if err != nil {
		return err
	}

	if !found {
		return ErrParentNotFound
	}

	posts, err := s.ReadPartition(ctx, monthKey)

	if err != nil {
		return err
	}

	posts, appended := posttree.AppendReply(posts, parentID, reply)

	if !appended {
		return errors.Wrapf(ErrParentNotFound, "Parent vanished from partition %s", monthKey)
	}

	return s.WritePartition(ctx, monthKey, posts)
}

// editAll applies f to every partition and writes back the ones f reports as
// changed. It returns ErrIDNotFound if no partition changed.
func (s *Store) editAll(ctx context.Context, f func([]types.Post) ([]types.Post, bool)) error {
	months, err := s.ListPartitionKeys(ctx)

	if err != nil {
		return err
	}

	changed := false
	var recovered firstRecovered

	for _, month := range months {
		posts, err := s.ReadPartition(ctx, month)

		if IsRecovered(err) {
			continue
		}

		if err != nil {
			return err
		}

		posts, ok := f(posts)

		if !ok {
			continue
		}

		changed = true

		if err := s.WritePartition(ctx, month, posts); err != nil {
			if !IsRecovered(err) {
				return err
			}

			recovered.add(err)
		}
	}

	if !changed {
		return ErrIDNotFound
	}

	return recovered.err
}

// Delete removes the post with the given id, and all its replies, from every
// partition holding it.
func (s *Store) Delete(ctx context.Context, id float64) error {
	return s.editAll(ctx, func(posts []types.Post) ([]types.Post, bool) {
		return posttree.Remove(posts, id)
	})
}

// Update applies update to the post with the given id in every partition
// holding it.
func (s *Store) Update(ctx context.Context, id float64, update types.PostUpdate) error {
	return s.editAll(ctx, func(posts []types.Post) ([]types.Post, bool) {
		return posttree.Update(posts, id, update)
	})
}

// Get looks up a post, top-level or reply, across all partitions.
func (s *Store) Get(ctx context.Context, id float64) (types.Post, error) {
	all, err := s.ReadAllPosts(ctx)

	if err != nil && !IsRecovered(err) {
		return types.Post{}, err
	}

	post, found := posttree.Find(all, id)

	if !found {
		return types.Post{}, ErrIDNotFound
	}

	return post, nil
}
