package content

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SQLStore reads documents from a relational content schema
type SQLStore struct {
	db *sql.DB
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore creates a content store over db
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const documentColumns = `id, type, status, title, body, slug, excerpt, permalink, featured_image, published_at`

// GetDocument loads one document with its meta
func (s *SQLStore) GetDocument(ctx context.Context, id int64) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document %d: %w", id, ErrDocumentNotFound)
		}
		return nil, fmt.Errorf("failed to get document %d: %w", id, err)
	}

	if err := s.loadMeta(ctx, map[int64]*Document{doc.ID: doc}); err != nil {
		return nil, err
	}
	return doc, nil
}

// GetDocumentsByIDs loads documents in the order of ids
func (s *SQLStore) GetDocumentsByIDs(ctx context.Context, ids []int64) ([]*Document, error) {
	if len(ids) == 0 {
		return []*Document{}, nil
	}

	placeholders, args := int64Placeholders(ids, 1)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get documents: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]*Document, len(ids))
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		byID[doc.ID] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	if err := s.loadMeta(ctx, byID); err != nil {
		return nil, err
	}

	docs := make([]*Document, 0, len(byID))
	for _, id := range ids {
		if doc, ok := byID[id]; ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// GetTaxonomyTerms returns the terms attached to a document
func (s *SQLStore) GetTaxonomyTerms(ctx context.Context, id int64) ([]Term, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.taxonomy
		FROM terms t
		JOIN document_terms dt ON dt.term_id = t.id
		WHERE dt.document_id = $1
		ORDER BY t.taxonomy, t.id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get terms for document %d: %w", id, err)
	}
	defer rows.Close()

	var terms []Term
	for rows.Next() {
		var term Term
		if err := rows.Scan(&term.ID, &term.Name, &term.Taxonomy); err != nil {
			return nil, fmt.Errorf("failed to scan term: %w", err)
		}
		terms = append(terms, term)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating terms: %w", err)
	}
	return terms, nil
}

// ListDocumentIDs returns ids of documents of the given types with status
func (s *SQLStore) ListDocumentIDs(ctx context.Context, types []string, status string) ([]int64, error) {
	if len(types) == 0 {
		return nil, nil
	}

	args := make([]interface{}, 0, len(types)+1)
	placeholders := make([]string, len(types))
	for i, t := range types {
		args = append(args, t)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	args = append(args, status)

	query := fmt.Sprintf(`SELECT id FROM documents WHERE type IN (%s) AND status = $%d ORDER BY id`,
		strings.Join(placeholders, ", "), len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan document id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document ids: %w", err)
	}
	return ids, nil
}

// loadMeta fills Attributes and Collections for every document in docs
func (s *SQLStore) loadMeta(ctx context.Context, docs map[int64]*Document) error {
	if len(docs) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	placeholders, args := int64Placeholders(ids, 1)

	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, meta_key, meta_value FROM document_meta WHERE document_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to load document meta: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    int64
			key   string
			value sql.NullString
		)
		if err := rows.Scan(&id, &key, &value); err != nil {
			return fmt.Errorf("failed to scan document meta: %w", err)
		}

		doc := docs[id]
		if doc == nil {
			continue
		}
		if items, ok := parseCollection(value.String); ok {
			if doc.Collections == nil {
				doc.Collections = make(map[string][]Attributes)
			}
			doc.Collections[key] = items
		}
		if doc.Attributes == nil {
			doc.Attributes = make(Attributes)
		}
		doc.Attributes[key] = value.String
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		doc                                      Document
		body, slug, excerpt, permalink, featured sql.NullString
		date                                     sql.NullTime
	)
	err := row.Scan(
		&doc.ID,
		&doc.Type,
		&doc.Status,
		&doc.Title,
		&body,
		&slug,
		&excerpt,
		&permalink,
		&featured,
		&date,
	)
	if err != nil {
		return nil, err
	}

	doc.Body = body.String
	doc.Slug = slug.String
	doc.Excerpt = excerpt.String
	doc.Permalink = permalink.String
	doc.FeaturedImage = featured.String
	if date.Valid {
		doc.Date = date.Time
	}
	return &doc, nil
}

// parseCollection decodes a JSON array of objects into string attributes
func parseCollection(value string) ([]Attributes, bool) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "[") {
		return nil, false
	}

	var raw []map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, false
	}

	items := make([]Attributes, 0, len(raw))
	for _, obj := range raw {
		item := make(Attributes, len(obj))
		for k, v := range obj {
			switch tv := v.(type) {
			case nil:
				item[k] = ""
			case string:
				item[k] = tv
			default:
				item[k] = fmt.Sprint(tv)
			}
		}
		items = append(items, item)
	}
	return items, true
}

func int64Placeholders(ids []int64, start int) (string, []interface{}) {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", start+i)
		args[i] = id
	}
	return strings.Join(placeholders, ", "), args
}
