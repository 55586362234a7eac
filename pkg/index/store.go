package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/platinummonkey/sitesearch/pkg/schema"
)

// DefaultTable is the name of the denormalized search table
const DefaultTable = "sitewidesearch"

// Fixed index columns
const (
	ColumnDocumentID   = "document_id"
	ColumnDocumentType = "document_type"
	ColumnTermIDs      = "term_ids"
	ColumnDocumentDate = "document_date"
)

// ErrRowNotFound is returned when a document has no index row
var ErrRowNotFound = errors.New("index row not found")

// StorageError wraps any failure of the backing database
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("index store: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// TSVector returns the text search vector expression of a column. The index
// store and the query builder must agree on it for the GIN indexes to apply.
func TSVector(column string) string {
	return fmt.Sprintf("to_tsvector('simple', coalesce(%s, ''))", pq.QuoteIdentifier(column))
}

// Store owns the search table
type Store struct {
	db    *sql.DB
	table string
	slots int
}

// NewStore creates a store for table with slots generic extra columns
func NewStore(db *sql.DB, table string, slots int) *Store {
	if table == "" {
		table = DefaultTable
	}
	return &Store{db: db, table: table, slots: slots}
}

// Table returns the unquoted table name
func (s *Store) Table() string {
	return s.table
}

// SlotCount returns the number of extra columns
func (s *Store) SlotCount() int {
	return s.slots
}

// Columns returns every column of the table in storage order
func (s *Store) Columns() []string {
	cols := []string{
		ColumnDocumentID,
		ColumnDocumentType,
		ColumnTermIDs,
		schema.FieldTitle,
		schema.FieldBody,
		schema.FieldSlug,
		ColumnDocumentDate,
		schema.FieldTermNames,
		schema.FieldTaxonomies,
	}
	for i := 0; i < s.slots; i++ {
		cols = append(cols, schema.ExtraColumn(i))
	}
	return cols
}

// FullTextColumns returns the columns that get a text search index
func (s *Store) FullTextColumns() []string {
	cols := schema.DefaultColumns()
	for i := 0; i < s.slots; i++ {
		cols = append(cols, schema.ExtraColumn(i))
	}
	return cols
}

func (s *Store) quotedTable() string {
	return pq.QuoteIdentifier(s.table)
}

func (s *Store) indexName(column string) string {
	return fmt.Sprintf("%s_%s_fts", s.table, column)
}

// EnsureSchema creates the table when missing and reports whether it did
func (s *Store) EnsureSchema(ctx context.Context) (bool, error) {
	var existing sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT to_regclass($1)::text`, s.quotedTable()).Scan(&existing)
	if err != nil {
		return false, storageErr("ensure schema", err)
	}
	if existing.Valid {
		return false, nil
	}

	defs := []string{
		fmt.Sprintf("%s BIGINT PRIMARY KEY", pq.QuoteIdentifier(ColumnDocumentID)),
		fmt.Sprintf("%s VARCHAR(255) NOT NULL", pq.QuoteIdentifier(ColumnDocumentType)),
		fmt.Sprintf("%s TEXT", pq.QuoteIdentifier(ColumnTermIDs)),
		fmt.Sprintf("%s TEXT", pq.QuoteIdentifier(schema.FieldTitle)),
		fmt.Sprintf("%s TEXT", pq.QuoteIdentifier(schema.FieldBody)),
		fmt.Sprintf("%s TEXT", pq.QuoteIdentifier(schema.FieldSlug)),
		fmt.Sprintf("%s TIMESTAMP", pq.QuoteIdentifier(ColumnDocumentDate)),
		fmt.Sprintf("%s TEXT", pq.QuoteIdentifier(schema.FieldTermNames)),
		fmt.Sprintf("%s TEXT", pq.QuoteIdentifier(schema.FieldTaxonomies)),
	}
	for i := 0; i < s.slots; i++ {
		defs = append(defs, fmt.Sprintf("%s TEXT", pq.QuoteIdentifier(schema.ExtraColumn(i))))
	}

	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", s.quotedTable(), strings.Join(defs, ",\n\t"))
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return false, storageErr("create table", err)
	}
	return true, nil
}

// CreateFullTextIndexes adds a GIN index per searchable column. Run it after
// bulk loading; it is idempotent.
func (s *Store) CreateFullTextIndexes(ctx context.Context) error {
	for _, col := range s.FullTextColumns() {
		query := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (%s)",
			pq.QuoteIdentifier(s.indexName(col)), s.quotedTable(), TSVector(col))
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return storageErr("create index on "+col, err)
		}
	}

	typeIdx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		pq.QuoteIdentifier(s.table+"_type_idx"), s.quotedTable(), pq.QuoteIdentifier(ColumnDocumentType))
	if _, err := s.db.ExecContext(ctx, typeIdx); err != nil {
		return storageErr("create type index", err)
	}
	return nil
}

// HasFullTextIndexes reports whether every text search index exists
func (s *Store) HasFullTextIndexes(ctx context.Context) (bool, error) {
	cols := s.FullTextColumns()
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = s.indexName(col)
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pg_indexes WHERE tablename = $1 AND indexname = ANY($2)`,
		s.table, pq.Array(names),
	).Scan(&count)
	if err != nil {
		return false, storageErr("list indexes", err)
	}
	return count == len(names), nil
}

// Upsert inserts or replaces the row of r.DocumentID in one statement
func (s *Store) Upsert(ctx context.Context, r *Row) error {
	if r == nil {
		return storageErr("upsert", errors.New("nil row"))
	}

	cols := s.Columns()
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	updates := make([]string, 0, len(cols)-1)
	for i, col := range cols {
		quoted[i] = pq.QuoteIdentifier(col)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if col != ColumnDocumentID {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", quoted[i], quoted[i]))
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		s.quotedTable(),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
		pq.QuoteIdentifier(ColumnDocumentID),
		strings.Join(updates, ", "),
	)

	if _, err := s.db.ExecContext(ctx, query, s.rowArgs(r)...); err != nil {
		return storageErr(fmt.Sprintf("upsert document %d", r.DocumentID), err)
	}
	return nil
}

func (s *Store) rowArgs(r *Row) []interface{} {
	var date interface{}
	if !r.Date.IsZero() {
		date = r.Date
	}

	args := []interface{}{
		r.DocumentID,
		r.DocumentType,
		r.TermIDs,
		r.Title,
		r.Body,
		r.Slug,
		date,
		r.TermNames,
		r.Taxonomies,
	}
	for i := 0; i < s.slots; i++ {
		var v sql.NullString
		if i < len(r.Extra) {
			v = r.Extra[i]
		}
		args = append(args, v)
	}
	return args
}

// Delete removes the row of id; absent rows are not an error
func (s *Store) Delete(ctx context.Context, id int64) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", s.quotedTable(), pq.QuoteIdentifier(ColumnDocumentID))
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return storageErr(fmt.Sprintf("delete document %d", id), err)
	}
	return nil
}

// GetRow reads back one row
func (s *Store) GetRow(ctx context.Context, id int64) (*Row, error) {
	cols := s.Columns()
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = pq.QuoteIdentifier(col)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		strings.Join(quoted, ", "), s.quotedTable(), pq.QuoteIdentifier(ColumnDocumentID))

	var (
		r                                                 Row
		termIDs, title, body, slug, termNames, taxonomies sql.NullString
		date                                              sql.NullTime
	)
	r.Extra = make([]sql.NullString, s.slots)

	dest := []interface{}{&r.DocumentID, &r.DocumentType, &termIDs, &title, &body, &slug, &date, &termNames, &taxonomies}
	for i := range r.Extra {
		dest = append(dest, &r.Extra[i])
	}

	if err := s.db.QueryRowContext(ctx, query, id).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRowNotFound
		}
		return nil, storageErr(fmt.Sprintf("get document %d", id), err)
	}

	r.TermIDs = termIDs.String
	r.Title = title.String
	r.Body = body.String
	r.Slug = slug.String
	r.TermNames = termNames.String
	r.Taxonomies = taxonomies.String
	if date.Valid {
		r.Date = date.Time
	}
	return &r, nil
}

// DocumentIDs lists every indexed document id
func (s *Store) DocumentIDs(ctx context.Context) ([]int64, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		pq.QuoteIdentifier(ColumnDocumentID), s.quotedTable(), pq.QuoteIdentifier(ColumnDocumentID))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storageErr("list documents", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("scan document id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list documents", err)
	}
	return ids, nil
}

// Count returns the number of indexed rows
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.quotedTable())).Scan(&n); err != nil {
		return 0, storageErr("count", err)
	}
	return n, nil
}

// DropSchema removes the table and its indexes
func (s *Store) DropSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", s.quotedTable())); err != nil {
		return storageErr("drop table", err)
	}
	return nil
}
