package types

import (
	"encoding/json"
	"time"
)

// Post is either a top-level post or a reply, both share the same shape.
type Post struct {
	ID        float64   `json:"id"`
	Name      string    `json:"name"`
	Message   string    `json:"message"`
	Date      time.Time `json:"date"`
	ImageData *string   `json:"imageData"`
	Replies   []Post    `json:"replies"`
}

type postJSON Post

// MarshalJSON always writes replies as an array, never as null.
func (p Post) MarshalJSON() ([]byte, error) {
	if p.Replies == nil {
		p.Replies = []Post{}
	}

	return json.Marshal(postJSON(p))
}

// UnmarshalJSON materializes a missing or null replies field as an empty
// list.
func (p *Post) UnmarshalJSON(data []byte) error {
	var decoded postJSON

	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	if decoded.Replies == nil {
		decoded.Replies = []Post{}
	}

	*p = Post(decoded)

	return nil
}

// HasImage reports whether the post carries a non-empty image.
func (p Post) HasImage() bool {
	return p.ImageData != nil && *p.ImageData != ""
}

// Clone returns a deep copy of the post and its whole reply subtree.
func (p Post) Clone() Post {
	if p.ImageData != nil {
		image := *p.ImageData
		p.ImageData = &image
	}

	replies := make([]Post, len(p.Replies))

	for i := range p.Replies {
		replies[i] = p.Replies[i].Clone()
	}

	p.Replies = replies

	return p
}

func (p Post) Equal(other Post) bool {
	if p.ID != other.ID ||
		p.Name != other.Name ||
		p.Message != other.Message ||
		!p.Date.Equal(other.Date) ||
		!equalImage(p.ImageData, other.ImageData) ||
		len(p.Replies) != len(other.Replies) {
		return false
	}

	for i := range p.Replies {
		if !p.Replies[i].Equal(other.Replies[i]) {
			return false
		}
	}

	return true
}

func equalImage(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}

	return *a == *b
}

// CloneAll deep copies a list of posts.
func CloneAll(posts []Post) []Post {
	res := make([]Post, len(posts))

	for i := range posts {
		res[i] = posts[i].Clone()
	}

	return res
}
