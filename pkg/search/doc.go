// Package search answers weighted keyword queries against the search table.
//
// # Scoring
//
// Every configured document type scores on its own fields. The score of a
// row is a CASE over its document_type; each branch sums weight * signal for
// the type's default columns and extra slots, where the signal is the
// Postgres full-text match of that column against the keywords:
//
//	CASE WHEN "document_type" = 'article' THEN (0 + 5 * title + 1 * body + 3 * extra_0) ... ELSE 0 END
//
// Ranking uses ts_rank; counting uses a 0/1 match per column and a row
// counts for its type when the weighted sum is positive.
//
// # Keywords
//
//	search.ParseKeywords(`red fox`)   // red | fox:*
//	search.ParseKeywords(`"red fox"`) // red <-> fox
//
// # Usage
//
//	svc := search.NewService(search.SingleDB(db), contents, schema)
//	resp, err := svc.SearchJSON(ctx, "fox", search.Options{DocumentType: "article"})
//
// All user input is bound as query arguments; type names from the schema
// are quoted literals and order columns come from a fixed list.
package search
