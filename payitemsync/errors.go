package payitemsync

import (
	"errors"
	"fmt"
)

// Error kinds returned by Collect. Match them with errors.Is.
var (
	ErrAuthentication    = errors.New("partner rejected the api key")
	ErrNotFound          = errors.New("partner does not know the business")
	ErrTransport         = errors.New("partner request failed")
	ErrMalformedResponse = errors.New("partner response is malformed")
	// ErrPageLimitExceeded belongs to the transport family: errors.Is(err, ErrTransport) also holds.
	ErrPageLimitExceeded = fmt.Errorf("%w: page limit exceeded", ErrTransport)
)

// FeedError describes a failed page of a partner feed collection.
type FeedError struct {
	Kind               error
	BusinessExternalId string
	Page               int
	StatusCode         int
	Err                error
}

func (e *FeedError) Error() string {
	msg := fmt.Sprintf("partner feed for %s (page %d): %s", e.BusinessExternalId, e.Page, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FeedError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// SyncFailure is the single failure a reconciliation run reports to its caller.
// Nothing the run wrote is kept once a SyncFailure is returned.
type SyncFailure struct {
	BusinessExternalId string
	RunId              uint
	Err                error
}

func (e *SyncFailure) Error() string {
	return fmt.Sprintf("pay item sync for %s failed: %s", e.BusinessExternalId, e.Err)
}

func (e *SyncFailure) Unwrap() error {
	return e.Err
}
