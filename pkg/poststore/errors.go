package poststore

import (
	"github.com/pkg/errors"
)

var ErrIDNotFound = errors.New("A post with this ID cannot be found")
var ErrParentNotFound = errors.New("The post being replied to cannot be found")
var ErrCorruptPartition = errors.New("Stored partition cannot be decoded")
var ErrCorruptLegacyData = errors.New("Legacy posts cannot be decoded")

// recoveredError marks errors after which the operation still completed,
// possibly with a degraded result: a partition that could not be decoded is
// treated as empty, a write that failed leaves the stored data behind the
// in-memory one.
type recoveredError struct {
	err error
}

func (e *recoveredError) Error() string {
	return e.err.Error()
}

var _ error = &recoveredError{}

// IsRecovered checks if the given error was flagged as non-fatal.
func IsRecovered(e error) bool {
	return Recovered(e) != nil
}

// Recovered returns the error inside the given recovered error if any, or
// nil if e is nil or was not flagged as recovered.
func Recovered(e error) error {
	for e != nil {
		if rerror, ok := e.(*recoveredError); ok {
			return rerror.err
		}

		cause := errors.Cause(e)

		if cause == e {
			return nil
		}

		e = cause
	}

	return nil
}

// firstRecovered keeps the first recovered error seen across a loop over
// partitions.
type firstRecovered struct {
	err error
}

func (f *firstRecovered) add(err error) {
	if f.err == nil && err != nil {
		f.err = err
	}
}
