package download

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidState = errors.New("invalid task state")
	ErrCancelled    = errors.New("download cancelled")
	ErrUnknownSize  = errors.New("content length unknown")
)

// ProbeError reports that the size probe did not yield a usable positive length.
type ProbeError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *ProbeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("probe %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("probe %s: %v", e.URL, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// WriteError is a failure writing to the destination after the transfer began.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
