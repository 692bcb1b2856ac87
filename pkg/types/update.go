package types

import (
	"bytes"
	"encoding/json"
)

type imageAction int

const (
	imageKeep imageAction = iota
	imageClear
	imageSet
)

// ImageUpdate tells an update what to do with a post's image. Its zero value
// leaves the image untouched.
type ImageUpdate struct {
	action imageAction
	data   string
}

func KeepImage() ImageUpdate {
	return ImageUpdate{}
}

func ClearImage() ImageUpdate {
	return ImageUpdate{action: imageClear}
}

func SetImage(dataURL string) ImageUpdate {
	return ImageUpdate{action: imageSet, data: dataURL}
}

// Provided reports whether the update touches the image at all.
func (u ImageUpdate) Provided() bool {
	return u.action != imageKeep
}

// Data returns the new image, nil meaning the image is cleared. It is only
// meaningful when Provided returns true.
func (u ImageUpdate) Data() *string {
	if u.action != imageSet {
		return nil
	}

	data := u.data
	return &data
}

// Apply returns the image a post should carry after the update.
func (u ImageUpdate) Apply(current *string) *string {
	if !u.Provided() {
		return current
	}

	return u.Data()
}

// PostUpdate lists the fields to overwrite on an existing post. Nil fields are
// left unchanged.
type PostUpdate struct {
	Name    *string
	Message *string
	Image   ImageUpdate
}

// Empty reports whether the update would not change anything.
func (u PostUpdate) Empty() bool {
	return u.Name == nil && u.Message == nil && !u.Image.Provided()
}

// UnmarshalJSON decodes {"name", "message", "imageData"}. An absent imageData
// keeps the image, null clears it and a string replaces it.
func (u *PostUpdate) UnmarshalJSON(data []byte) error {
	var fields struct {
		Name      *string         `json:"name"`
		Message   *string         `json:"message"`
		ImageData json.RawMessage `json:"imageData"`
	}

	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*u = PostUpdate{Name: fields.Name, Message: fields.Message}

	switch {
	case fields.ImageData == nil:
		u.Image = KeepImage()
	case bytes.Equal(bytes.TrimSpace(fields.ImageData), []byte("null")):
		u.Image = ClearImage()
	default:
		var image string

		if err := json.Unmarshal(fields.ImageData, &image); err != nil {
			return err
		}

		u.Image = SetImage(image)
	}

	return nil
}
