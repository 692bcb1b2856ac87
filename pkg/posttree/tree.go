// Package posttree implements lookups and edits over a forest of posts, where
// each post owns the list of its replies.
//
// Functions never modify the forest they are given: edits return a new forest
// in which only the path from the root to the edited post is copied, the
// other subtrees are shared with the input.
package posttree

import (
	"github.com/abustany/monthly-board/pkg/types"
)

// Find returns the first post with the given id, visiting each post before
// its replies and the replies before the next sibling.
func Find(forest []types.Post, id float64) (types.Post, bool) {
	for _, post := range forest {
		if post.ID == id {
			return post, true
		}

		if found, ok := Find(post.Replies, id); ok {
			return found, true
		}
	}

	return types.Post{}, false
}

// Contains reports whether a post with the given id exists anywhere in the
// forest.
func Contains(forest []types.Post, id float64) bool {
	_, found := Find(forest, id)
	return found
}

// edit walks the forest in Find order and replaces the first post matching id
// by f(post).
func edit(forest []types.Post, id float64, f func(types.Post) types.Post) ([]types.Post, bool) {
	for i, post := range forest {
		if post.ID == id {
			return replaceAt(forest, i, f(post)), true
		}

		if replies, ok := edit(post.Replies, id, f); ok {
			post.Replies = replies
			return replaceAt(forest, i, post), true
		}
	}

	return forest, false
}

func replaceAt(forest []types.Post, i int, post types.Post) []types.Post {
	res := make([]types.Post, len(forest))
	copy(res, forest)
	res[i] = post

	return res
}

// Update overwrites the fields provided by update on the first post matching
// id.
func Update(forest []types.Post, id float64, update types.PostUpdate) ([]types.Post, bool) {
	return edit(forest, id, func(post types.Post) types.Post {
		if update.Name != nil {
			post.Name = *update.Name
		}

		if update.Message != nil {
			post.Message = *update.Message
		}

		post.ImageData = update.Image.Apply(post.ImageData)

		return post
	})
}

// AppendReply adds reply at the end of the replies of the first post matching
// parentID.
func AppendReply(forest []types.Post, parentID float64, reply types.Post) ([]types.Post, bool) {
	if reply.Replies == nil {
		reply.Replies = []types.Post{}
	}

	return edit(forest, parentID, func(parent types.Post) types.Post {
		replies := make([]types.Post, len(parent.Replies), len(parent.Replies)+1)
		copy(replies, parent.Replies)
		parent.Replies = append(replies, reply)

		return parent
	})
}

// Remove deletes the post matching id along with all its replies.
//
// Each level is scanned from its last post to its first one. Only when no post
// of the level matches are the replies of each post searched, in order. The
// first match found is the only one removed.
func Remove(forest []types.Post, id float64) ([]types.Post, bool) {
	for i := len(forest) - 1; i >= 0; i-- {
		if forest[i].ID == id {
			res := make([]types.Post, 0, len(forest)-1)
			res = append(res, forest[:i]...)
			res = append(res, forest[i+1:]...)

			return res, true
		}
	}

	for i, post := range forest {
		if replies, ok := Remove(post.Replies, id); ok {
			post.Replies = replies
			return replaceAt(forest, i, post), true
		}
	}

	return forest, false
}

// Count returns the number of posts in the forest, replies included.
func Count(forest []types.Post) int {
	n := len(forest)

	for _, post := range forest {
		n += Count(post.Replies)
	}

	return n
}
