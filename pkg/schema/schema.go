package schema

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultSlotCount is the number of generic extra columns in the index table
	DefaultSlotCount = 10

	// MaxSlotCount bounds K so the table stays a sane width
	MaxSlotCount = 64

	// DefaultType is the reserved name of the type-agnostic section
	DefaultType = "default"

	// AccessorSeparator splits a collection accessor into collection and subfield
	AccessorSeparator = "::"
)

// Searchable default columns present on every index row
const (
	FieldTitle      = "title"
	FieldSlug       = "slug"
	FieldBody       = "body"
	FieldTermNames  = "term_names"
	FieldTaxonomies = "taxonomies"
)

var defaultColumns = []string{FieldTitle, FieldSlug, FieldBody, FieldTermNames, FieldTaxonomies}

// DefaultColumns returns the searchable text columns shared by all types
func DefaultColumns() []string {
	out := make([]string, len(defaultColumns))
	copy(out, defaultColumns)
	return out
}

// IsDefaultColumn reports whether name is one of the shared text columns
func IsDefaultColumn(name string) bool {
	for _, c := range defaultColumns {
		if c == name {
			return true
		}
	}
	return false
}

// ExtraColumn returns the column name of a generic extra slot
func ExtraColumn(slot int) string {
	return fmt.Sprintf("extra_%d", slot)
}

// DefaultRankingFields are used when a declaration has no default_fields
func DefaultRankingFields() []Weight {
	return []Weight{
		{Name: FieldTitle, Value: 5},
		{Name: FieldSlug, Value: 4},
		{Name: FieldBody, Value: 1},
		{Name: FieldTermNames, Value: 3},
	}
}

// FieldWeight is one scored column
type FieldWeight struct {
	Field  string // declared name (default column or extra key)
	Column string // index column the score reads
	Weight int
}

// ExtraField is a per-type field stored in a generic slot
type ExtraField struct {
	Key        string
	Weight     int
	Slot       int
	Collection string // set for "collection::subfield" accessors
	Subfield   string
}

// IsCollection reports whether the field flattens a sub-collection
func (f ExtraField) IsCollection() bool {
	return f.Collection != ""
}

// Column returns the slot column backing this field
func (f ExtraField) Column() string {
	return ExtraColumn(f.Slot)
}

// ParseExtraField splits an extra field key into its accessor parts
func ParseExtraField(key string, weight int) (ExtraField, error) {
	field := ExtraField{Key: key, Weight: weight}
	if key == "" {
		return field, configErr("", key, "empty extra field name")
	}
	if !strings.Contains(key, AccessorSeparator) {
		return field, nil
	}

	parts := strings.Split(key, AccessorSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return field, configErr("", key, "collection accessor must look like collection::subfield")
	}
	field.Collection = parts[0]
	field.Subfield = parts[1]
	return field, nil
}

// TypeConfig is the resolved configuration of one document type
type TypeConfig struct {
	Name     string
	Fields   []FieldWeight // default columns with this type's weights applied
	Extras   []ExtraField
	RefineBy string
}

// Provider is the capability the projector, query builder and search service
// depend on. It is injected once at construction.
type Provider interface {
	DefaultFields() []FieldWeight
	FieldsForType(docType string) ([]FieldWeight, error)
	ExtraFields(docType string) []ExtraField
	Types() []string
	HasType(docType string) bool
	RefineAttribute(docType string) string
	SlotCount() int
}

// Schema is an immutable, validated declaration. It implements Provider.
type Schema struct {
	slots    int
	defaults []FieldWeight
	types    []string
	byType   map[string]*TypeConfig
}

var _ Provider = (*Schema)(nil)

// New validates a declaration and builds a Schema
func New(def Definition) (*Schema, error) {
	slots := def.Slots
	if slots == 0 {
		slots = DefaultSlotCount
	}
	if slots < 1 || slots > MaxSlotCount {
		return nil, configErr("", "", "slots must be between 1 and %d, got %d", MaxSlotCount, slots)
	}

	defaultWeights := def.DefaultFields
	if len(defaultWeights) == 0 {
		defaultWeights = DefaultRankingFields()
	}

	s := &Schema{
		slots:  slots,
		byType: make(map[string]*TypeConfig, len(def.Types)),
	}

	seen := make(map[string]bool, len(defaultWeights))
	for _, w := range defaultWeights {
		if !IsDefaultColumn(w.Name) {
			return nil, configErr("", w.Name, "default field must be one of %s", strings.Join(defaultColumns, ", "))
		}
		if seen[w.Name] {
			return nil, configErr("", w.Name, "declared twice")
		}
		if w.Value < 0 {
			return nil, configErr("", w.Name, "weight must not be negative")
		}
		seen[w.Name] = true
		s.defaults = append(s.defaults, FieldWeight{Field: w.Name, Column: w.Name, Weight: w.Value})
	}

	// The type-agnostic section may only reweight declared default fields
	for _, w := range def.Default {
		idx := indexOfField(s.defaults, w.Name)
		if idx < 0 {
			return nil, configErr("", w.Name, "fields defined must be a default field or belong to a document type")
		}
		if w.Value < 0 {
			return nil, configErr("", w.Name, "weight must not be negative")
		}
		s.defaults[idx].Weight = w.Value
	}

	for _, td := range def.Types {
		tc, err := s.buildType(td)
		if err != nil {
			return nil, err
		}
		s.types = append(s.types, tc.Name)
		s.byType[tc.Name] = tc
	}

	return s, nil
}

func (s *Schema) buildType(td TypeDefinition) (*TypeConfig, error) {
	switch {
	case td.Name == "":
		return nil, configErr("", "", "document type name must not be empty")
	case td.Name == DefaultType:
		return nil, configErr(td.Name, "", "%q is reserved for type-agnostic fields", DefaultType)
	case s.byType[td.Name] != nil:
		return nil, configErr(td.Name, "", "declared twice")
	}

	if len(td.ExtraFields) > s.slots {
		return nil, configErr(td.Name, "", "declares %d extra fields but only %d slots exist", len(td.ExtraFields), s.slots)
	}

	tc := &TypeConfig{
		Name:     td.Name,
		Fields:   make([]FieldWeight, len(s.defaults)),
		RefineBy: td.RefineBy,
	}
	copy(tc.Fields, s.defaults)

	for _, w := range td.Fields {
		if !IsDefaultColumn(w.Name) {
			return nil, configErr(td.Name, w.Name, "unknown column; declare it under extra_fields")
		}
		if w.Value < 0 {
			return nil, configErr(td.Name, w.Name, "weight must not be negative")
		}
		if idx := indexOfField(tc.Fields, w.Name); idx >= 0 {
			tc.Fields[idx].Weight = w.Value
			continue
		}
		tc.Fields = append(tc.Fields, FieldWeight{Field: w.Name, Column: w.Name, Weight: w.Value})
	}

	keys := make(map[string]bool, len(td.ExtraFields))
	for slot, w := range td.ExtraFields {
		if keys[w.Name] {
			return nil, configErr(td.Name, w.Name, "declared twice")
		}
		keys[w.Name] = true

		extra, err := ParseExtraField(w.Name, w.Value)
		if err != nil {
			var cfgErr *ConfigError
			if errors.As(err, &cfgErr) {
				cfgErr.Type = td.Name
			}
			return nil, err
		}
		if w.Value < 0 {
			return nil, configErr(td.Name, w.Name, "weight must not be negative")
		}
		extra.Slot = slot
		tc.Extras = append(tc.Extras, extra)
	}

	return tc, nil
}

func indexOfField(fields []FieldWeight, name string) int {
	for i, f := range fields {
		if f.Field == name {
			return i
		}
	}
	return -1
}

// SlotCount returns K, the number of generic extra columns
func (s *Schema) SlotCount() int {
	return s.slots
}

// DefaultFields returns the type-agnostic weights in declaration order
func (s *Schema) DefaultFields() []FieldWeight {
	out := make([]FieldWeight, len(s.defaults))
	copy(out, s.defaults)
	return out
}

// Types returns every configured document type in declaration order
func (s *Schema) Types() []string {
	out := make([]string, len(s.types))
	copy(out, s.types)
	return out
}

// HasType reports whether docType is configured
func (s *Schema) HasType(docType string) bool {
	_, ok := s.byType[docType]
	return ok
}

// Type returns the resolved configuration of one type
func (s *Schema) Type(docType string) (*TypeConfig, bool) {
	tc, ok := s.byType[docType]
	return tc, ok
}

// FieldsForType returns every scored column of a type: the default columns
// with the type's weights, followed by its extra fields addressed by slot.
func (s *Schema) FieldsForType(docType string) ([]FieldWeight, error) {
	tc, ok := s.byType[docType]
	if !ok {
		return nil, configErr(docType, "", "unknown document type")
	}

	fields := make([]FieldWeight, 0, len(tc.Fields)+len(tc.Extras))
	fields = append(fields, tc.Fields...)
	for _, extra := range tc.Extras {
		fields = append(fields, FieldWeight{
			Field:  extra.Key,
			Column: extra.Column(),
			Weight: extra.Weight,
		})
	}
	return fields, nil
}

// ExtraFields returns a type's extra fields in slot order
func (s *Schema) ExtraFields(docType string) []ExtraField {
	tc, ok := s.byType[docType]
	if !ok {
		return nil
	}
	out := make([]ExtraField, len(tc.Extras))
	copy(out, tc.Extras)
	return out
}

// RefineAttribute returns the attribute that narrows docType to a sub-type
func (s *Schema) RefineAttribute(docType string) string {
	if tc, ok := s.byType[docType]; ok {
		return tc.RefineBy
	}
	return ""
}
