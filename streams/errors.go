package streams

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrNoActiveExecution is returned by Abort when no execution has been started.
var ErrNoActiveExecution = errors.New("no active stream execution")

// SerializationError is returned when rows can't be encoded. The upload
// buffer is left untouched.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialize rows: %s", e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// HTTPError is a non-success response from the Domo API.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

const maxErrorBodySize = 4096

func unwrapError(resp *http.Response) error {
	errorResp, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		return err
	}
	return &HTTPError{StatusCode: resp.StatusCode, Body: string(errorResp)}
}
