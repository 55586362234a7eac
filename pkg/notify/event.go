package notify

import (
	"errors"
	"fmt"
)

// DefaultChannel is the pub/sub channel content changes are announced on
const DefaultChannel = "sitesearch:documents"

// Event actions
const (
	ActionSaved   = "saved"
	ActionDeleted = "deleted"
)

// ErrMalformedEvent is returned for payloads that cannot be dispatched
var ErrMalformedEvent = errors.New("malformed event")

// Event announces that a document changed in the content store
type Event struct {
	DocumentID int64  `json:"document_id"`
	Action     string `json:"action"`
	Force      bool   `json:"force,omitempty"`
}

// Validate checks the event can be dispatched
func (e Event) Validate() error {
	if e.DocumentID <= 0 {
		return fmt.Errorf("%w: document_id must be positive, got %d", ErrMalformedEvent, e.DocumentID)
	}
	switch e.Action {
	case ActionSaved, ActionDeleted:
		return nil
	default:
		return fmt.Errorf("%w: unknown action %q", ErrMalformedEvent, e.Action)
	}
}
