// Package schema declares which document types are searchable and how each of
// their fields is weighted.
//
// # Overview
//
// A Schema has three parts:
//
//   - default fields: weights for the denormalized columns every row carries
//     (title, slug, body, term_names, taxonomies)
//   - per-type configuration: weight overrides for those default columns plus an
//     ordered list of "extra" fields
//   - a fixed number of generic extra slots (K); a type's extra fields are
//     assigned to slots extra_0..extra_{K-1} in declaration order
//
// The slot order is shared by the index projector and the query builder. Both
// read it from the same Provider, so indexing and scoring never disagree about
// what extra_3 means for a given type.
//
// # Extra Fields
//
// An extra field key is either a plain attribute name ("subtitle") or a
// collection accessor ("speakers::name"). A collection accessor reads every item
// of the named collection, takes the subfield from each, and joins the values
// with single spaces.
//
// # File Format
//
//	slots: 10
//	default_fields: {title: 5, slug: 4, body: 1, term_names: 3}
//	default: {body: 2}
//	types:
//	  article:
//	    fields: {title: 8}
//	    extra_fields: {"tags::name": 3, subtitle: 2}
//	  fellow:
//	    refine_by: fellow_type
//
// Mapping order in the file is preserved.
package schema
