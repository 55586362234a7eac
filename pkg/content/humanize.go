package content

import (
	"time"

	"github.com/dustin/go-humanize"
)

// HumanizedStore adds relative date formatting to any Store
type HumanizedStore struct {
	Store
	now func() time.Time
}

var _ HumanDateFormatter = (*HumanizedStore)(nil)

// NewHumanizedStore wraps store
func NewHumanizedStore(store Store) *HumanizedStore {
	return &HumanizedStore{Store: store, now: time.Now}
}

// HumanDate renders the document date relative to now, e.g. "3 days ago"
func (s *HumanizedStore) HumanDate(doc *Document) string {
	if doc == nil || doc.Date.IsZero() {
		return ""
	}
	return humanize.RelTime(doc.Date, s.now(), "ago", "from now")
}
