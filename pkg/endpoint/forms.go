package endpoint

import (
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/abustany/monthly-board/pkg/postservice"
	"github.com/abustany/monthly-board/pkg/types"
)

func parseForm(r *http.Request) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		return r.ParseMultipartForm(maxFormMemory)
	}

	return r.ParseForm()
}

// formValue returns the value of a form field and whether it was sent at all.
func formValue(r *http.Request, name string) (string, bool) {
	if values, ok := r.PostForm[name]; ok && len(values) > 0 {
		return values[0], true
	}

	if r.MultipartForm != nil {
		if values, ok := r.MultipartForm.Value[name]; ok && len(values) > 0 {
			return values[0], true
		}
	}

	return "", false
}

// redirectToBoard sends the browser back to the board, on the month it was
// looking at.
func redirectToBoard(w http.ResponseWriter, r *http.Request, query url.Values) {
	if month, _ := formValue(r, "month"); month != "" {
		query.Set("month", month)
	}

	target := "/"

	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (e *HttpEndpoint) handleFormPost(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	name, _ := formValue(r, "name")
	message, _ := formValue(r, "message")
	newPost := postservice.NewPost{Name: name, Message: message}

	if parentID, ok := formValue(r, "parent_id"); ok && parentID != "" {
		id, err := strconv.ParseFloat(parentID, 64)

		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, "Invalid parent ID")
			return
		}

		newPost.ParentID = &id
	}

	image, err := readImage(r)

	if err != nil {
		WriteError(w, err)
		return
	}

	newPost.ImageData = image

	ctx, cancel := e.context(r)
	defer cancel()

	_, err = e.service.AddPost(ctx, newPost)

	if err := swallowRecovered(e.logger, err); err != nil {
		WriteError(w, err)
		return
	}

	redirectToBoard(w, r, url.Values{})
}

func (e *HttpEndpoint) handleFormEdit(w http.ResponseWriter, r *http.Request) {
	id, err := postID(r)

	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if err := parseForm(r); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	update := types.PostUpdate{}

	if name, ok := formValue(r, "name"); ok {
		update.Name = &name
	}

	if message, ok := formValue(r, "message"); ok {
		update.Message = &message
	}

	image, err := readImage(r)

	if err != nil {
		WriteError(w, err)
		return
	}

	if clearImage, _ := formValue(r, "clear_image"); strings.EqualFold(clearImage, "on") {
		update.Image = types.ClearImage()
	} else if image != nil {
		update.Image = types.SetImage(*image)
	}

	ctx, cancel := e.context(r)
	defer cancel()

	if err := swallowRecovered(e.logger, e.service.UpdatePost(ctx, id, update)); err != nil {
		WriteError(w, err)
		return
	}

	redirectToBoard(w, r, url.Values{})
}

func (e *HttpEndpoint) handleFormDelete(w http.ResponseWriter, r *http.Request) {
	id, err := postID(r)

	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if err := parseForm(r); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// Without confirmation, show the prompt instead of deleting.
	if confirm, _ := formValue(r, "confirm"); confirm != "yes" {
		redirectToBoard(w, r, url.Values{"confirm": {FormatID(id)}})
		return
	}

	ctx, cancel := e.context(r)
	defer cancel()

	if err := swallowRecovered(e.logger, e.service.DeletePost(ctx, id)); err != nil {
		WriteError(w, err)
		return
	}

	redirectToBoard(w, r, url.Values{})
}
