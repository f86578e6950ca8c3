// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is by callers and the HTTP layer.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrNoRecipients = errors.New("no active recipients")
	ErrNoSenders    = errors.New("no active sender accounts")
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrTransport    = errors.New("transport error")
)

// CampaignNotFoundError is returned both for a missing campaign and for one
// owned by somebody else.
type CampaignNotFoundError struct {
	CampaignID string
}

func (e *CampaignNotFoundError) Error() string {
	return fmt.Sprintf("campaign %s not found", e.CampaignID)
}

func (e *CampaignNotFoundError) Unwrap() error { return ErrNotFound }

// Helper constructor
func NewCampaignNotFound(id string) error {
	return &CampaignNotFoundError{CampaignID: id}
}

type InvalidStateError struct {
	CampaignID string
	Status     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("campaign %s cannot be processed in status %q", e.CampaignID, e.Status)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

func NewInvalidState(id, status string) error {
	return &InvalidStateError{CampaignID: id, Status: status}
}

// TransportError wraps a transport-level failure for one recipient. It is
// recorded and counted, never returned from a run.
type TransportError struct {
	AccountID string
	ContactID string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("send via account %s to contact %s: %v", e.AccountID, e.ContactID, e.Err)
}

func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }

// IsPrecondition reports whether err is one of the errors a campaign run
// raises before anything is queued.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrNoRecipients) ||
		errors.Is(err, ErrNoSenders)
}
