package postservice

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/abustany/monthly-board/pkg/poststore"
	"github.com/abustany/monthly-board/pkg/types"
)

// View is the state a reader of the board is looking at. It belongs to the
// presentation layer and is passed along with each listing call.
type View struct {
	// MonthFilter restricts the board to one partition ("2024/01"). Empty
	// means all months.
	MonthFilter string
}

// NewPost is the data submitted when posting or replying.
type NewPost struct {
	Name      string   `json:"name"`
	Message   string   `json:"message"`
	ParentID  *float64 `json:"parentId,omitempty"`
	ImageData *string  `json:"imageData,omitempty"`
}

type Service interface {
	// Load runs the startup work: legacy posts are moved to their monthly
	// partitions.
	Load(ctx context.Context) (poststore.MigrationReport, error)

	// Posts returns the posts shown for the given view.
	Posts(ctx context.Context, view View) ([]types.Post, error)

	// Months returns all the month keys holding posts, most recent first.
	Months(ctx context.Context) ([]string, error)

	AddPost(ctx context.Context, post NewPost) (types.Post, error)
	DeletePost(ctx context.Context, id float64) error
	UpdatePost(ctx context.Context, id float64, update types.PostUpdate) error
	Get(ctx context.Context, id float64) (types.Post, error)
	List(ctx context.Context, view View, cursor string, n uint) (posts []types.Post, nextCursor string, err error)
}

type postService struct {
	mu     sync.RWMutex
	store  *poststore.Store
	logger log.Logger
	now    func() time.Time
	rand   *rand.Rand
}

type Option func(*postService)

// WithClock replaces time.Now as the source of post dates and ids.
func WithClock(now func() time.Time) Option {
	return func(s *postService) {
		s.now = now
	}
}

// WithRand sets the random source used for the fractional part of ids.
func WithRand(r *rand.Rand) Option {
	return func(s *postService) {
		s.rand = r
	}
}

func WithLogger(logger log.Logger) Option {
	return func(s *postService) {
		s.logger = log.With(logger, "module", "postservice")
	}
}

const MaxNameLength = 256
const MaxMessageLength = 2048
const MaxImageSize = 5 << 20
const MaxPageSize = 100
const DefaultPageSize = 20

var ErrInvalidName = &userError{errors.Errorf("Invalid name (should not be empty or longer than %d characters)", MaxNameLength)}
var ErrInvalidMessage = &userError{errors.Errorf("Invalid message (should not be empty or longer than %d characters)", MaxMessageLength)}
var ErrInvalidImage = &userError{errors.Errorf("Invalid image (should be an image data URL no larger than %d bytes)", MaxImageSize)}
var ErrInvalidMonth = &userError{errors.New("Invalid month (should look like YYYY/MM)")}
var ErrEmptyUpdate = &userError{errors.New("Nothing to update")}
var ErrInvalidCursor = &userError{errors.New("Invalid cursor")}
var ErrInvalidPageSize = &userError{errors.Errorf("Invalid page size (should not be larger than %d)", MaxPageSize)}

func New(store *poststore.Store, opts ...Option) Service {
	s := &postService{
		store:  store,
		logger: log.NewNopLogger(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.rand == nil {
		s.rand = rand.New(rand.NewSource(s.now().UnixNano()))
	}

	return s
}

// newID mixes the creation time in milliseconds with a random fraction. Two
// posts created in the same millisecond can still collide.
func (s *postService) newID(now time.Time) float64 {
	return float64(now.UnixNano()/int64(time.Millisecond)) + s.rand.Float64()
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)

	if name == "" || len(name) > MaxNameLength {
		return "", ErrInvalidName
	}

	return name, nil
}

func validateMessage(message string) (string, error) {
	message = strings.TrimSpace(message)

	if message == "" || len(message) > MaxMessageLength {
		return "", ErrInvalidMessage
	}

	return message, nil
}

func validateImage(image string) error {
	if !strings.HasPrefix(image, "data:image/") || len(image) > MaxImageSize {
		return ErrInvalidImage
	}

	return nil
}

func (s *postService) Load(ctx context.Context) (poststore.MigrationReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report, err := s.store.Migrate(ctx, s.now())

	if err != nil {
		return report, errors.Wrap(err, "Error while migrating legacy posts")
	}

	if report.Ran {
		s.logger.Log("event", "migration", "months", strings.Join(report.Months, ","), "migrated", report.Migrated, "skipped", report.Skipped)
	}

	return report, nil
}

func (s *postService) Posts(ctx context.Context, view View) ([]types.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if view.MonthFilter == "" {
		return s.store.ReadAllPosts(ctx)
	}

	if !poststore.ValidMonthKey(view.MonthFilter) {
		return nil, ErrInvalidMonth
	}

	return s.store.ReadPartition(ctx, view.MonthFilter)
}

func (s *postService) Months(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	months, err := s.store.ListPartitionKeys(ctx)

	if err != nil {
		return nil, errors.Wrap(err, "Error while listing months")
	}

	for i, j := 0, len(months)-1; i < j; i, j = i+1, j-1 {
		months[i], months[j] = months[j], months[i]
	}

	return months, nil
}

func (s *postService) AddPost(ctx context.Context, newPost NewPost) (types.Post, error) {
	name, err := validateName(newPost.Name)

	if err != nil {
		return types.Post{}, errors.Wrap(err, "Invalid post data")
	}

	message, err := validateMessage(newPost.Message)

	if err != nil {
		return types.Post{}, errors.Wrap(err, "Invalid post data")
	}

	if newPost.ImageData != nil {
		if err := validateImage(*newPost.ImageData); err != nil {
			return types.Post{}, errors.Wrap(err, "Invalid post data")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	post := types.Post{
		ID:        s.newID(now),
		Name:      name,
		Message:   message,
		Date:      now,
		ImageData: newPost.ImageData,
		Replies:   []types.Post{},
	}

	if newPost.ParentID == nil {
		return post, errors.Wrap(s.store.InsertTopLevel(ctx, post), "Error while adding post to store")
	}

	err = s.store.InsertReply(ctx, post, *newPost.ParentID)

	if errors.Cause(err) == poststore.ErrParentNotFound {
		err = &userError{err}
	}

	return post, errors.Wrap(err, "Error while adding reply to store")
}

func (s *postService) DeletePost(ctx context.Context, id float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.store.Delete(ctx, id)

	if err == poststore.ErrIDNotFound {
		err = &userError{err}
	}

	return errors.Wrap(err, "Error while deleting post from store")
}

func (s *postService) UpdatePost(ctx context.Context, id float64, update types.PostUpdate) error {
	if update.Empty() {
		return ErrEmptyUpdate
	}

	if update.Name != nil {
		name, err := validateName(*update.Name)

		if err != nil {
			return errors.Wrap(err, "Invalid post data")
		}

		update.Name = &name
	}

	if update.Message != nil {
		message, err := validateMessage(*update.Message)

		if err != nil {
			return errors.Wrap(err, "Invalid post data")
		}

		update.Message = &message
	}

	if image := update.Image.Data(); image != nil {
		if err := validateImage(*image); err != nil {
			return errors.Wrap(err, "Invalid post data")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.store.Update(ctx, id, update)

	if err == poststore.ErrIDNotFound {
		err = &userError{err}
	}

	return errors.Wrap(err, "Error while updating post in store")
}

func (s *postService) Get(ctx context.Context, id float64) (types.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, err := s.store.Get(ctx, id)

	if err == poststore.ErrIDNotFound {
		return types.Post{}, &userError{err}
	}

	return post, errors.Wrap(err, "Error while getting post from store")
}
