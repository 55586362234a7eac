package content

import (
	"context"
	"errors"
	"time"
)

// StatusPublished is the only status eligible for a from-scratch rebuild
const StatusPublished = "publish"

// ErrDocumentNotFound is returned when a document id does not exist
var ErrDocumentNotFound = errors.New("document not found")

// Attributes is a flat set of named string values
type Attributes map[string]string

// Document is the content store's view of a single piece of content
type Document struct {
	ID            int64
	Type          string
	Status        string
	Title         string
	Body          string
	Slug          string
	Excerpt       string
	Permalink     string
	FeaturedImage string
	Date          time.Time

	// Attributes holds arbitrary named values (post meta)
	Attributes Attributes

	// Collections holds named sub-collections, e.g. "speakers" -> [{name: ...}, ...]
	Collections map[string][]Attributes
}

// Attribute returns a named attribute and whether it was present
func (d *Document) Attribute(name string) (string, bool) {
	if d.Attributes == nil {
		return "", false
	}
	v, ok := d.Attributes[name]
	return v, ok
}

// Collection returns a named sub-collection, nil when absent
func (d *Document) Collection(name string) []Attributes {
	if d.Collections == nil {
		return nil
	}
	return d.Collections[name]
}

// Term is a taxonomy term attached to a document
type Term struct {
	ID       int64
	Name     string
	Taxonomy string
}

// Store is the external content store consumed by indexing and hydration
type Store interface {
	// GetDocument returns ErrDocumentNotFound when id does not exist
	GetDocument(ctx context.Context, id int64) (*Document, error)

	// GetDocumentsByIDs preserves the order of ids and omits missing documents
	GetDocumentsByIDs(ctx context.Context, ids []int64) ([]*Document, error)

	GetTaxonomyTerms(ctx context.Context, id int64) ([]Term, error)

	// ListDocumentIDs returns ids of the given types with the given status
	ListDocumentIDs(ctx context.Context, types []string, status string) ([]int64, error)
}

// HumanDateFormatter is an optional capability of a Store
type HumanDateFormatter interface {
	HumanDate(doc *Document) string
}
