package postservice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	avl "github.com/emirpasic/gods/trees/avltree"
	"github.com/pkg/errors"

	"github.com/abustany/monthly-board/pkg/poststore"
	"github.com/abustany/monthly-board/pkg/types"
)

// Cursor points at the first post of the next page.
type Cursor struct {
	ID   float64
	Date time.Time
}

var EmptyCursor = Cursor{}

// sortPostsByDateReverse compares two posts by their date, sorting the most
// recent first.
func sortPostsByDateReverse(a, b interface{}) int {
	aKey, bKey := a.(Cursor), b.(Cursor)

	if aKey.Date.Before(bKey.Date) {
		return 1
	}

	if aKey.Date.After(bKey.Date) {
		return -1
	}

	// Posts have the same date, sort by ID
	if aKey.ID < bKey.ID {
		return -1
	}

	if aKey.ID > bKey.ID {
		return 1
	}

	return 0
}

func encodeCursor(cursor Cursor) (string, error) {
	if cursor == EmptyCursor {
		return "", nil
	}

	jsonEncoded, err := json.Marshal(cursor)

	if err != nil {
		return "", errors.Wrap(err, "Error while encoding cursor to JSON")
	}

	return base64.URLEncoding.EncodeToString(jsonEncoded), nil
}

func decodeCursor(cursor string) (Cursor, error) {
	if cursor == "" {
		return EmptyCursor, nil
	}

	jsonEncoded, err := base64.URLEncoding.DecodeString(cursor)

	if err != nil {
		return Cursor{}, errors.Wrap(err, "Error while decoding base64")
	}

	var decoded Cursor

	if err := json.Unmarshal(jsonEncoded, &decoded); err != nil {
		return Cursor{}, errors.Wrap(err, "Error while decoding JSON")
	}

	if decoded.ID == 0 {
		return Cursor{}, errors.New("Cursor has no ID")
	}

	return decoded, nil
}

// page returns up to n posts starting at the cursor c, along with the cursor of
// the following page.
func page(posts []types.Post, c Cursor, n uint) ([]types.Post, Cursor) {
	byDate := avl.NewWith(sortPostsByDateReverse)

	for i := range posts {
		byDate.Put(Cursor{ID: posts[i].ID, Date: posts[i].Date}, i)
	}

	var node *avl.Node

	if c == EmptyCursor {
		node = byDate.Left()
	} else {
		node, _ = byDate.Ceiling(c)
	}

	if node == nil {
		// No more posts to iterate
		return nil, EmptyCursor
	}

	res := make([]types.Post, 0, n)

	for ; node != nil && uint(len(res)) < n; node = node.Next() {
		res = append(res, posts[node.Value.(int)])
	}

	if node == nil {
		return res, EmptyCursor
	}

	return res, node.Key.(Cursor)
}

func (s *postService) List(ctx context.Context, view View, cursor string, n uint) ([]types.Post, string, error) {
	if n > MaxPageSize {
		return nil, "", ErrInvalidPageSize
	}

	if n == 0 {
		n = DefaultPageSize
	}

	decodedCursor, err := decodeCursor(cursor)

	if err != nil {
		return nil, "", ErrInvalidCursor
	}

	posts, err := s.Posts(ctx, view)

	if err != nil && !poststore.IsRecovered(err) {
		return nil, "", errors.Wrap(err, "Error while listing posts")
	}

	recovered := err

	pagePosts, nextCursor := page(posts, decodedCursor, n)
	nextCursorStr, err := encodeCursor(nextCursor)

	if err != nil {
		return nil, "", errors.Wrap(err, "Error while encoding next cursor")
	}

	return pagePosts, nextCursorStr, recovered
}
