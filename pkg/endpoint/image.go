package endpoint

import (
	"encoding/base64"
	"io"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/abustany/monthly-board/pkg/postservice"
)

// maxFormMemory is how much of a multipart form is kept in memory, the rest
// going to temporary files.
const maxFormMemory = 1 << 20

// readImage turns the uploaded "image" file of a multipart form into a data
// URL. It returns nil when no file was sent.
func readImage(r *http.Request) (*string, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}

	file, _, err := r.FormFile("image")

	if err == http.ErrMissingFile {
		return nil, nil
	}

	if err != nil {
		return nil, errors.Wrap(err, "Error while reading uploaded image")
	}

	defer file.Close()

	return encodeImage(file)
}

func encodeImage(r io.Reader) (*string, error) {
	data, err := ioutil.ReadAll(io.LimitReader(r, postservice.MaxImageSize+1))

	if err != nil {
		return nil, errors.Wrap(err, "Error while reading uploaded image")
	}

	if len(data) == 0 {
		return nil, nil
	}

	if len(data) > postservice.MaxImageSize {
		return nil, postservice.ErrInvalidImage
	}

	contentType := http.DetectContentType(data)

	if !strings.HasPrefix(contentType, "image/") {
		return nil, postservice.ErrInvalidImage
	}

	dataURL := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)

	return &dataURL, nil
}
