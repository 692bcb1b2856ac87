package endpoint

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	uuid "github.com/satori/go.uuid"

	"github.com/abustany/monthly-board/pkg/postservice"
	"github.com/abustany/monthly-board/pkg/poststore"
)

// JsonContentType is the MIME type of JSON requests/responses
const JsonContentType = "application/json"

// RequestIDHeader carries the id WithLogging assigns to each request.
const RequestIDHeader = "X-Request-Id"

type capturingResponseWriter struct {
	w    http.ResponseWriter
	code int
}

var _ http.ResponseWriter = &capturingResponseWriter{}

func (c *capturingResponseWriter) Header() http.Header {
	return c.w.Header()
}

func (c *capturingResponseWriter) Write(data []byte) (int, error) {
	if c.code == 0 {
		c.code = http.StatusOK
	}

	return c.w.Write(data)
}

func (c *capturingResponseWriter) WriteHeader(statusCode int) {
	if c.code == 0 {
		c.code = statusCode
	}

	c.w.WriteHeader(statusCode)
}

// WithLogging wraps a http.Handler, writing a log message to the given logger
// at the end of each request with the URL, returned status code, elapsed time
// etc. Each request gets an id, echoed back in the X-Request-Id header.
func WithLogging(logger log.Logger, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writer := capturingResponseWriter{w: w}
		requestID := uuid.NewV4().String()

		w.Header().Set(RequestIDHeader, requestID)

		defer func(start time.Time) {
			logger.Log(
				"event", "api_request",
				"request_id", requestID,
				"method", r.Method,
				"url", r.URL.String(),
				"status", writer.code,
				"elapsed", time.Since(start),
			)
		}(time.Now())

		handler.ServeHTTP(&writer, r)
	})
}

// WithContentType wraps a http.Handler, rejecting requests that don't have the
// given content type.
func WithContentType(contentType string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != contentType {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, "Invalid content type")
			return
		}

		handler.ServeHTTP(w, r)
	})
}

// WriteError write the given error to the ResponseWriter, using the
// appropriate HTTP status code depending on whether the error is a user or an
// internal error.
func WriteError(w http.ResponseWriter, err error) {
	if userError := postservice.UserError(err); userError != nil {
		if postservice.IsNotFound(err) {
			w.WriteHeader(http.StatusNotFound)
		} else {
			w.WriteHeader(http.StatusBadRequest)
		}

		io.WriteString(w, userError.Error())
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
}

// swallowRecovered logs non-fatal storage errors and swallows them: the operation went
// through as far as the reader is concerned. Other errors are returned as is.
func swallowRecovered(logger log.Logger, err error) error {
	if err == nil || !poststore.IsRecovered(err) {
		return err
	}

	level.Warn(logger).Log("event", "recovered_error", "err", err)

	return nil
}

// WriteJSON writes value as the JSON body of the response.
func WriteJSON(w http.ResponseWriter, statusCode int, value interface{}) {
	w.Header().Set("Content-Type", JsonContentType)
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(value)
}

// WithJSONBody adapts an http.Handler to a function handling an HTTP request
// where the request body is a single JSON object decoded into the value
// returned by newValue. The error returned by the function is written back to
// the response using WriteError.
func WithJSONBody(newValue func() interface{}, do func(r *http.Request, value interface{}) (int, interface{}, error)) http.Handler {
	handler := func(w http.ResponseWriter, r *http.Request) {
		value := newValue()

		if err := json.NewDecoder(r.Body).Decode(value); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, "Malformed JSON input")
			return
		}

		statusCode, response, err := do(r, value)

		if err != nil {
			WriteError(w, err)
		} else if response != nil {
			WriteJSON(w, statusCode, response)
		} else {
			w.WriteHeader(statusCode)
		}
	}

	return WithContentType(JsonContentType, http.HandlerFunc(handler))
}
