package endpoint

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/abustany/monthly-board/pkg/postservice"
	"github.com/abustany/monthly-board/pkg/types"
)

type HttpEndpoint struct {
	router   *mux.Router
	service  postservice.Service
	logger   log.Logger
	page     *pageRenderer
	timeout  time.Duration
	location *time.Location
}

type ListResponse struct {
	Posts []types.Post `json:"posts"`
	Next  string       `json:"next,omitempty"`
}

type MonthsResponse struct {
	Months []string `json:"months"`
}

// Options tunes the endpoint. The zero value is usable.
type Options struct {
	// Backgrounds lists the background images the board page picks from.
	Backgrounds []string

	// Location is the time zone dates are displayed in, time.Local if nil.
	Location *time.Location

	// Timeout bounds the time spent on the store by a single request.
	Timeout time.Duration

	// Rand picks the background image.
	Rand *rand.Rand
}

// Type assertion
var _ http.Handler = &HttpEndpoint{}

const idPattern = "{id:[0-9]+(?:\\.[0-9]+)?}"

func NewHttpEndpoint(logger log.Logger, service postservice.Service, opts Options) *HttpEndpoint {
	if opts.Location == nil {
		opts.Location = time.Local
	}

	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}

	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	logger = log.With(logger, "module", "http")

	endpoint := &HttpEndpoint{
		router:   mux.NewRouter(),
		service:  service,
		logger:   logger,
		page:     newPageRenderer(opts.Location, opts.Backgrounds, opts.Rand),
		timeout:  opts.Timeout,
		location: opts.Location,
	}

	handler := func(f http.HandlerFunc) http.Handler {
		return WithLogging(logger, f)
	}

	endpoint.router.Methods("GET").Path("/").Handler(handler(endpoint.handlePage))
	endpoint.router.Methods("POST").Path("/posts").Handler(handler(endpoint.handleFormPost))
	endpoint.router.Methods("POST").Path("/posts/" + idPattern + "/edit").Handler(handler(endpoint.handleFormEdit))
	endpoint.router.Methods("POST").Path("/posts/" + idPattern + "/delete").Handler(handler(endpoint.handleFormDelete))

	apiRouter := endpoint.router.PathPrefix("/api").Subrouter()

	apiRouter.Methods("GET").Path("/posts").Handler(handler(endpoint.handleList))
	apiRouter.Methods("POST").Path("/posts").Handler(WithLogging(logger, WithJSONBody(newPostValue, endpoint.handlePost)))
	apiRouter.Methods("GET").Path("/posts/" + idPattern).Handler(handler(endpoint.handleGet))
	apiRouter.Methods("POST").Path("/posts/" + idPattern).Handler(WithLogging(logger, WithJSONBody(newUpdateValue, endpoint.handleEdit)))
	apiRouter.Methods("DELETE").Path("/posts/" + idPattern).Handler(handler(endpoint.handleDelete))
	apiRouter.Methods("GET").Path("/months").Handler(handler(endpoint.handleMonths))

	endpoint.router.Methods("GET").Path("/health").Handler(WithLogging(logger, http.HandlerFunc(endpoint.handleHealth)))

	return endpoint
}

func (e *HttpEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.router.ServeHTTP(w, r)
}

func (e *HttpEndpoint) context(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), e.timeout)
}

func postID(r *http.Request) (float64, error) {
	id, err := strconv.ParseFloat(mux.Vars(r)["id"], 64)

	return id, errors.Wrap(err, "Invalid post ID")
}

// FormatID renders a post id the way the routes expect it.
func FormatID(id float64) string {
	return strconv.FormatFloat(id, 'f', -1, 64)
}

func newPostValue() interface{} {
	return &postservice.NewPost{}
}

func newUpdateValue() interface{} {
	return &types.PostUpdate{}
}

func (e *HttpEndpoint) handlePost(r *http.Request, value interface{}) (int, interface{}, error) {
	ctx, cancel := e.context(r)
	defer cancel()

	post, err := e.service.AddPost(ctx, *value.(*postservice.NewPost))

	if err := swallowRecovered(e.logger, err); err != nil {
		return 0, nil, errors.Wrap(err, "Error while adding post")
	}

	return http.StatusCreated, post, nil
}

func (e *HttpEndpoint) handleEdit(r *http.Request, value interface{}) (int, interface{}, error) {
	id, err := postID(r)

	if err != nil {
		return http.StatusNotFound, nil, nil
	}

	ctx, cancel := e.context(r)
	defer cancel()

	err = e.service.UpdatePost(ctx, id, *value.(*types.PostUpdate))

	if err := swallowRecovered(e.logger, err); err != nil {
		return 0, nil, errors.Wrap(err, "Error while editing post")
	}

	return http.StatusOK, nil, nil
}

func (e *HttpEndpoint) handleList(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	cursor := params.Get("cursor")
	pageSizeStr := params.Get("n")

	if pageSizeStr == "" {
		pageSizeStr = "0"
	}

	pageSize, err := strconv.ParseUint(pageSizeStr, 10, 32)

	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "Invalid page size")
		return
	}

	ctx, cancel := e.context(r)
	defer cancel()

	view := postservice.View{MonthFilter: params.Get("month")}
	posts, next, err := e.service.List(ctx, view, cursor, uint(pageSize))

	if err := swallowRecovered(e.logger, err); err != nil {
		WriteError(w, err)
		return
	}

	if posts == nil {
		posts = []types.Post{}
	}

	WriteJSON(w, http.StatusOK, ListResponse{
		Posts: posts,
		Next:  next,
	})
}

func (e *HttpEndpoint) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := postID(r)

	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	ctx, cancel := e.context(r)
	defer cancel()

	post, err := e.service.Get(ctx, id)

	if postservice.IsNotFound(err) {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, &post)
}

func (e *HttpEndpoint) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := postID(r)

	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	ctx, cancel := e.context(r)
	defer cancel()

	if err := swallowRecovered(e.logger, e.service.DeletePost(ctx, id)); err != nil {
		WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (e *HttpEndpoint) handleMonths(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := e.context(r)
	defer cancel()

	months, err := e.service.Months(ctx)

	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, MonthsResponse{Months: months})
}

func (e *HttpEndpoint) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
