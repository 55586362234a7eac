// Package content describes the documents that get indexed and the store they
// are read from.
//
// The search index never owns content. It reads documents through the Store
// interface when projecting index rows and when hydrating search hits back
// into full documents.
//
// # Implementations
//
//   - SQLStore reads a relational content schema (documents, document_meta,
//     terms, document_terms) with portable SQL, so it runs on PostgreSQL and
//     SQLite alike
//   - HumanizedStore wraps any Store and adds relative dates ("3 days ago")
//
// # Collections
//
// A document_meta value that holds a JSON array of objects is also exposed as
// a named collection. The raw value stays readable as a plain attribute:
//
//	speakers = [{"name": "Ada"}, {"name": "Grace"}]
package content
