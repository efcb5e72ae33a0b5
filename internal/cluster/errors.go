package cluster

import (
	"errors"
	"fmt"
)

// ErrPipelineBusy is returned when a run cannot acquire the exclusive run
// lock because another run is in progress. It is a scheduling outcome, not
// an application error: callers report it and retry the whole run later.
var ErrPipelineBusy = errors.New("clustering pipeline already running")

// RepositoryError wraps a failure at the repository boundary and records
// whether it is worth retrying. Transient errors (timeouts, dropped
// connections, lock contention in the database) are retried with backoff;
// fatal ones (malformed data, constraint violations) skip the article.
type RepositoryError struct {
	Op        string
	Err       error
	Transient bool
}

func (e *RepositoryError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("repository %s (%s): %v", e.Op, kind, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as a retryable repository failure.
func NewTransientError(op string, err error) *RepositoryError {
	return &RepositoryError{Op: op, Err: err, Transient: true}
}

// NewFatalError wraps err as a non-retryable repository failure.
func NewFatalError(op string, err error) *RepositoryError {
	return &RepositoryError{Op: op, Err: err, Transient: false}
}

// IsTransient reports whether err is a retryable repository failure.
func IsTransient(err error) bool {
	var repoErr *RepositoryError
	return errors.As(err, &repoErr) && repoErr.Transient
}
