package repository

import "errors"

var (
	// ErrNotFound is returned when a record does not exist or is not owned by the caller.
	ErrNotFound = errors.New("record not found")
	// ErrStale is returned by version-checked writes when the record changed
	// or disappeared since it was read.
	ErrStale = errors.New("record changed since it was read")
)

// ErrPermanent marks store failures that retrying will not fix, such as
// rejected credentials.
var ErrPermanent = errors.New("permanent store failure")

func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
