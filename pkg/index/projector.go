package index

import (
	"database/sql"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/sitesearch/pkg/content"
	"github.com/platinummonkey/sitesearch/pkg/schema"
)

// Action is what the index should do with a projected document
type Action int

const (
	// ActionSkip leaves the index untouched (type not searchable)
	ActionSkip Action = iota
	// ActionUpsert inserts or replaces the row
	ActionUpsert
	// ActionDelete removes the row
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionUpsert:
		return "upsert"
	case ActionDelete:
		return "delete"
	default:
		return "skip"
	}
}

// nonIndexableStatuses never produce an index row unless forced
var nonIndexableStatuses = map[string]bool{
	"trash":      true,
	"pending":    true,
	"private":    true,
	"draft":      true,
	"auto-draft": true,
	"inherit":    true,
}

// IsIndexableStatus reports whether a document with status may be indexed
func IsIndexableStatus(status string) bool {
	return !nonIndexableStatuses[status]
}

// Row is one denormalized index record
type Row struct {
	DocumentID   int64
	DocumentType string
	Title        string
	Body         string
	Slug         string
	Date         time.Time
	TermIDs      string
	TermNames    string
	Taxonomies   string
	// Extra holds the K generic slots; NULL when a collection was empty
	Extra []sql.NullString
}

// Projection is the outcome of projecting one document
type Projection struct {
	Action Action
	Row    *Row
	Reason string
}

var specialCharacters = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// StripSpecialCharacters replaces every run of characters outside letters,
// digits and underscore with a single space.
func StripSpecialCharacters(s string) string {
	return strings.TrimSpace(specialCharacters.ReplaceAllString(s, " "))
}

// Projector turns a content document into an index row
type Projector struct {
	schema schema.Provider
}

// NewProjector creates a projector over a schema
func NewProjector(provider schema.Provider) *Projector {
	return &Projector{schema: provider}
}

// Project decides what to do with doc and builds its row. It performs no I/O.
func (p *Projector) Project(doc *content.Document, terms []content.Term, force bool) Projection {
	if doc == nil {
		return Projection{Action: ActionSkip, Reason: "no document"}
	}
	if !p.schema.HasType(doc.Type) {
		return Projection{Action: ActionSkip, Reason: "type " + doc.Type + " is not searchable"}
	}
	if !force && !IsIndexableStatus(doc.Status) {
		return Projection{Action: ActionDelete, Reason: "status " + doc.Status + " is not indexable"}
	}

	effectiveType := p.effectiveType(doc)
	extrasType := effectiveType
	if !p.schema.HasType(extrasType) {
		extrasType = doc.Type
	}

	var ids, names, taxonomies distinctList
	for _, term := range terms {
		ids.add(strconv.FormatInt(term.ID, 10))
		names.add(term.Name)
		taxonomies.add(term.Taxonomy)
	}

	row := &Row{
		DocumentID:   doc.ID,
		DocumentType: effectiveType,
		Title:        StripSpecialCharacters(doc.Title),
		Body:         StripSpecialCharacters(doc.Body),
		Slug:         StripSpecialCharacters(doc.Slug),
		Date:         doc.Date,
		TermIDs:      StripSpecialCharacters(ids.join()),
		TermNames:    StripSpecialCharacters(names.join()),
		Taxonomies:   StripSpecialCharacters(taxonomies.join()),
		Extra:        make([]sql.NullString, p.schema.SlotCount()),
	}

	for _, field := range p.schema.ExtraFields(extrasType) {
		if field.Slot >= len(row.Extra) {
			continue
		}
		row.Extra[field.Slot] = extraValue(doc, field)
	}

	return Projection{Action: ActionUpsert, Row: row}
}

// effectiveType narrows a type through its refine attribute when the
// attribute names another configured type.
func (p *Projector) effectiveType(doc *content.Document) string {
	attr := p.schema.RefineAttribute(doc.Type)
	if attr == "" {
		return doc.Type
	}
	refined, ok := doc.Attribute(attr)
	if !ok || refined == "" || !p.schema.HasType(refined) {
		return doc.Type
	}
	return refined
}

func extraValue(doc *content.Document, field schema.ExtraField) sql.NullString {
	if !field.IsCollection() {
		v, _ := doc.Attribute(field.Key)
		return sql.NullString{String: StripSpecialCharacters(v), Valid: true}
	}

	items := doc.Collection(field.Collection)
	if len(items) == 0 {
		return sql.NullString{}
	}
	values := make([]string, 0, len(items))
	for _, item := range items {
		values = append(values, item[field.Subfield])
	}
	return sql.NullString{String: StripSpecialCharacters(strings.Join(values, " ")), Valid: true}
}

// distinctList keeps first-seen order
type distinctList struct {
	seen  map[string]bool
	items []string
}

func (l *distinctList) add(v string) {
	if l.seen == nil {
		l.seen = make(map[string]bool)
	}
	if l.seen[v] {
		return
	}
	l.seen[v] = true
	l.items = append(l.items, v)
}

func (l *distinctList) join() string {
	return strings.Join(l.items, ", ")
}
