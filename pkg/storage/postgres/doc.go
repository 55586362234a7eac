// Package postgres manages the PostgreSQL connections of the search server:
// a primary for index writes and round-robin read replicas for queries.
package postgres
