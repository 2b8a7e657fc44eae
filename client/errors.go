package client

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is matched by any 404 from the service
	ErrNotFound = errors.New("not found")

	// ErrUnavailable is returned by FetchLog when the job has no log
	ErrUnavailable = errors.New("log not available")
)

// RemoteError is a non-2xx response from the service
type RemoteError struct {
	Code   int
	Status string
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("received a non 2xx status response, got a %s with body %q", e.Status, e.Body)
}

// Is makes a 404 RemoteError match ErrNotFound
func (e *RemoteError) Is(target error) bool {
	return target == ErrNotFound && e.NotFound()
}

func (e *RemoteError) NotFound() bool {
	return e.Code == http.StatusNotFound
}

// IsNotFound reports whether err is, or wraps, a 404
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRemote reports whether err is, or wraps, a non-2xx response
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
