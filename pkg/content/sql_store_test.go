package content

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for testing
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupContentDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE documents (
			id INTEGER PRIMARY KEY,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			title TEXT NOT NULL,
			body TEXT,
			slug TEXT,
			excerpt TEXT,
			permalink TEXT,
			featured_image TEXT,
			published_at TIMESTAMP
		);

		CREATE TABLE document_meta (
			document_id INTEGER NOT NULL,
			meta_key TEXT NOT NULL,
			meta_value TEXT
		);

		CREATE TABLE terms (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			taxonomy TEXT NOT NULL
		);

		CREATE TABLE document_terms (
			document_id INTEGER NOT NULL,
			term_id INTEGER NOT NULL
		);
	`)
	require.NoError(t, err)

	return db
}

func seedContent(t *testing.T, db *sql.DB) {
	published := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	docs := []struct {
		id     int64
		typ    string
		status string
		title  string
	}{
		{1, "article", "publish", "Wildlife of the coast"},
		{2, "article", "trash", "Old news"},
		{3, "event", "publish", "Annual meeting"},
		{4, "page", "publish", "About"},
	}
	for _, d := range docs {
		_, err := db.Exec(`
			INSERT INTO documents (id, type, status, title, body, slug, excerpt, permalink, featured_image, published_at)
			VALUES (?, ?, ?, ?, 'body text', 'slug', 'excerpt', '/p/slug', 'img.jpg', ?)
		`, d.id, d.typ, d.status, d.title, published)
		require.NoError(t, err)
	}

	_, err := db.Exec(`
		INSERT INTO document_meta (document_id, meta_key, meta_value) VALUES
			(1, 'subtitle', 'Seabirds'),
			(1, 'tags', '[{"name": "wildlife"}, {"name": "nature"}, {"name": null, "rank": 3}]'),
			(3, 'venue', 'Town hall'),
			(3, 'notes', '[not json');

		INSERT INTO terms (id, name, taxonomy) VALUES
			(7, 'Birds', 'category'),
			(9, 'Coast', 'region');

		INSERT INTO document_terms (document_id, term_id) VALUES (1, 9), (1, 7);
	`)
	require.NoError(t, err)
}

func TestSQLStore_GetDocument(t *testing.T) {
	db := setupContentDB(t)
	seedContent(t, db)
	store := NewSQLStore(db)

	doc, err := store.GetDocument(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, int64(1), doc.ID)
	assert.Equal(t, "article", doc.Type)
	assert.Equal(t, "publish", doc.Status)
	assert.Equal(t, "Wildlife of the coast", doc.Title)
	assert.Equal(t, "/p/slug", doc.Permalink)
	assert.Equal(t, 2024, doc.Date.Year())

	subtitle, ok := doc.Attribute("subtitle")
	assert.True(t, ok)
	assert.Equal(t, "Seabirds", subtitle)

	tags := doc.Collection("tags")
	require.Len(t, tags, 3)
	assert.Equal(t, "wildlife", tags[0]["name"])
	assert.Equal(t, "nature", tags[1]["name"])
	assert.Equal(t, "", tags[2]["name"])
	assert.Equal(t, "3", tags[2]["rank"])

	raw, ok := doc.Attribute("tags")
	assert.True(t, ok)
	assert.Equal(t, `[{"name": "wildlife"}, {"name": "nature"}, {"name": null, "rank": 3}]`, raw)
}

func TestSQLStore_GetDocument_EmptyCollectionKeepsAttribute(t *testing.T) {
	db := setupContentDB(t)
	seedContent(t, db)
	_, err := db.Exec(`INSERT INTO document_meta (document_id, meta_key, meta_value) VALUES (4, 'gallery', '[]')`)
	require.NoError(t, err)

	doc, err := NewSQLStore(db).GetDocument(context.Background(), 4)
	require.NoError(t, err)

	gallery, ok := doc.Attribute("gallery")
	assert.True(t, ok)
	assert.Equal(t, "[]", gallery)
	assert.Empty(t, doc.Collection("gallery"))
}

func TestSQLStore_GetDocument_NotFound(t *testing.T) {
	db := setupContentDB(t)
	store := NewSQLStore(db)

	_, err := store.GetDocument(context.Background(), 42)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestSQLStore_GetDocument_MalformedCollection(t *testing.T) {
	db := setupContentDB(t)
	seedContent(t, db)
	store := NewSQLStore(db)

	doc, err := store.GetDocument(context.Background(), 3)
	require.NoError(t, err)

	notes, ok := doc.Attribute("notes")
	assert.True(t, ok)
	assert.Equal(t, "[not json", notes)
	assert.Nil(t, doc.Collection("notes"))
}

func TestSQLStore_GetDocumentsByIDs(t *testing.T) {
	db := setupContentDB(t)
	seedContent(t, db)
	store := NewSQLStore(db)

	tests := []struct {
		name     string
		ids      []int64
		expected []int64
	}{
		{"preserves input order", []int64{3, 1, 4}, []int64{3, 1, 4}},
		{"omits missing", []int64{99, 1}, []int64{1}},
		{"empty input", nil, []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := store.GetDocumentsByIDs(context.Background(), tt.ids)
			require.NoError(t, err)

			got := make([]int64, 0, len(docs))
			for _, d := range docs {
				got = append(got, d.ID)
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSQLStore_GetTaxonomyTerms(t *testing.T) {
	db := setupContentDB(t)
	seedContent(t, db)
	store := NewSQLStore(db)

	terms, err := store.GetTaxonomyTerms(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []Term{
		{ID: 7, Name: "Birds", Taxonomy: "category"},
		{ID: 9, Name: "Coast", Taxonomy: "region"},
	}, terms)

	none, err := store.GetTaxonomyTerms(context.Background(), 3)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLStore_ListDocumentIDs(t *testing.T) {
	db := setupContentDB(t)
	seedContent(t, db)
	store := NewSQLStore(db)

	ids, err := store.ListDocumentIDs(context.Background(), []string{"article", "event"}, StatusPublished)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)

	ids, err = store.ListDocumentIDs(context.Background(), nil, StatusPublished)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestParseCollection(t *testing.T) {
	tests := []struct {
		name  string
		value string
		ok    bool
		items int
	}{
		{"plain text", "hello", false, 0},
		{"empty", "", false, 0},
		{"array of objects", `[{"a": "b"}]`, true, 1},
		{"empty array", `[]`, true, 0},
		{"array of strings", `["a", "b"]`, false, 0},
		{"broken json", `[{"a"`, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, ok := parseCollection(tt.value)
			assert.Equal(t, tt.ok, ok)
			assert.Len(t, items, tt.items)
		})
	}
}

func TestHumanizedStore_HumanDate(t *testing.T) {
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	store := NewHumanizedStore(NewSQLStore(setupContentDB(t)))
	store.now = func() time.Time { return now }

	assert.Equal(t, "3 days ago", store.HumanDate(&Document{Date: now.Add(-72 * time.Hour)}))
	assert.Equal(t, "", store.HumanDate(&Document{}))
	assert.Equal(t, "", store.HumanDate(nil))

	var _ Store = store
}
