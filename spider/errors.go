package spider

import (
	"errors"
	"fmt"
)

// ErrIgnoreRequest is the sentinel wrapped with a reason when middleware
// drops a request silently.
var ErrIgnoreRequest = errors.New("spider: request ignored")

// ErrRetryRequest is the sentinel signaling a forced retry pass from
// exception middleware.
var ErrRetryRequest = errors.New("spider: retry requested")

// ErrDropItem is the sentinel a pipeline returns to discard an item.
var ErrDropItem = errors.New("spider: item dropped")

// CloseSpiderError carries the reason a callback asked the scheduler to
// stop admitting new work for its spider.
type CloseSpiderError struct {
	Reason string
}

func (e *CloseSpiderError) Error() string {
	return fmt.Sprintf("spider: close requested: %s", e.Reason)
}

// WrapIgnoreRequest wraps ErrIgnoreRequest with a human-readable reason.
func WrapIgnoreRequest(reason string) error {
	return fmt.Errorf("%w: %s", ErrIgnoreRequest, reason)
}

// WrapDropItem wraps ErrDropItem with a human-readable reason.
func WrapDropItem(reason string) error {
	return fmt.Errorf("%w: %s", ErrDropItem, reason)
}
