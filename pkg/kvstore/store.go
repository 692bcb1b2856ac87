// Package kvstore provides the string key-value storage the board persists
// its partitions in. Every backend offers the same contract as a browser's
// local storage: whole values are read and replaced, there are no partial
// updates and no transactions.
package kvstore

import (
	"context"

	"github.com/pkg/errors"
)

type Store interface {
	// Get returns the value stored under key. found is false if the key does
	// not exist.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing a key that does not exist is not an error.
	Remove(ctx context.Context, key string) error

	// Keys lists all the keys in the store, in ascending order.
	Keys(ctx context.Context) ([]string, error)

	Close() error
}

var ErrQuotaExceeded = errors.New("Storage quota exceeded")
var ErrClosed = errors.New("Store is closed")
var ErrUnknownBackend = errors.New("Unknown storage backend")

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Options selects and configures a backend for Open.
type Options struct {
	Backend string

	MemoryQuota int

	FilePath   string
	SQLitePath string

	PostgresDSN string

	MongoURI        string
	MongoDatabase   string
	MongoCollection string
}

// Open creates the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory, "":
		return NewMemoryStore(opts.MemoryQuota), nil
	case BackendFile:
		return NewFileStore(opts.FilePath)
	case BackendSQLite:
		return NewSQLiteStore(opts.SQLitePath)
	case BackendPostgres:
		return NewPostgresStore(ctx, opts.PostgresDSN)
	case BackendMongo:
		return NewMongoStore(ctx, opts.MongoURI, opts.MongoDatabase, opts.MongoCollection)
	}

	return nil, errors.Wrapf(ErrUnknownBackend, "Backend %q", opts.Backend)
}
