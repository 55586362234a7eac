package search

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/platinummonkey/sitesearch/pkg/index"
	"github.com/platinummonkey/sitesearch/pkg/schema"
)

// Args accumulates positional query arguments
type Args struct {
	values []interface{}
}

// Add binds v and returns its placeholder
func (a *Args) Add(v interface{}) string {
	a.values = append(a.values, v)
	return "$" + strconv.Itoa(len(a.values))
}

// Values returns the bound arguments in placeholder order
func (a *Args) Values() []interface{} {
	return a.values
}

// orderColumns maps accepted order names to index columns
var orderColumns = map[string]string{
	"score":         "score",
	"date":          index.ColumnDocumentDate,
	"post_date":     index.ColumnDocumentDate,
	"document_date": index.ColumnDocumentDate,
	"title":         schema.FieldTitle,
	"post_title":    schema.FieldTitle,
	"id":            index.ColumnDocumentID,
	"post_id":       index.ColumnDocumentID,
	"document_id":   index.ColumnDocumentID,
	"type":          index.ColumnDocumentType,
	"post_type":     index.ColumnDocumentType,
	"document_type": index.ColumnDocumentType,
}

// OrderColumn resolves an order name; unknown names order by score
func OrderColumn(orderBy string) string {
	if col, ok := orderColumns[strings.ToLower(strings.TrimSpace(orderBy))]; ok {
		return col
	}
	return "score"
}

// OrderDirection normalizes a direction; anything but ASC is DESC
func OrderDirection(order string) string {
	if strings.EqualFold(strings.TrimSpace(order), "ASC") {
		return "ASC"
	}
	return "DESC"
}

// QueryBuilder compiles keywords and the schema into SQL. It keeps no state
// besides the schema and the table name.
type QueryBuilder struct {
	schema schema.Provider
	table  string
}

// NewQueryBuilder creates a builder for queries against table
func NewQueryBuilder(provider schema.Provider, table string) *QueryBuilder {
	if table == "" {
		table = index.DefaultTable
	}
	return &QueryBuilder{schema: provider, table: table}
}

// Validate checks that every scored column exists in the index table
func (b *QueryBuilder) Validate() error {
	for _, f := range b.schema.DefaultFields() {
		if !schema.IsDefaultColumn(f.Column) {
			return &schema.ConfigError{Field: f.Field, Reason: "field outside a type scope is not a default field"}
		}
	}
	for _, t := range b.types() {
		if _, err := b.typeFields(t); err != nil {
			return err
		}
	}
	return nil
}

func (b *QueryBuilder) types() []string {
	all := b.schema.Types()
	out := make([]string, 0, len(all))
	for _, t := range all {
		if t != schema.DefaultType {
			out = append(out, t)
		}
	}
	return out
}

func (b *QueryBuilder) typeFields(docType string) ([]schema.FieldWeight, error) {
	fields, err := b.schema.FieldsForType(docType)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		if !b.isIndexColumn(f.Column) {
			return nil, &schema.ConfigError{
				Type:   docType,
				Field:  f.Field,
				Reason: fmt.Sprintf("column %q is neither a default field nor an extra slot", f.Column),
			}
		}
	}
	return fields, nil
}

func (b *QueryBuilder) isIndexColumn(column string) bool {
	if schema.IsDefaultColumn(column) {
		return true
	}
	for slot := 0; slot < b.schema.SlotCount(); slot++ {
		if column == schema.ExtraColumn(slot) {
			return true
		}
	}
	return false
}

func matchSignal(column, query string, boolean bool) string {
	vector := index.TSVector(column)
	if boolean {
		return fmt.Sprintf("(CASE WHEN %s @@ %s THEN 1 ELSE 0 END)", vector, query)
	}
	return fmt.Sprintf("(CASE WHEN %s @@ %s THEN ts_rank(%s, %s) ELSE 0 END)", vector, query, vector, query)
}

// BuildScoreExpression returns the per-type weighted score of a row. Each
// type scores on its own fields; boolean mode yields 1 for a match and 0
// otherwise. Empty keywords or a schema without types produce an empty
// expression.
func (b *QueryBuilder) BuildScoreExpression(kw Keywords, boolean bool, args *Args) (string, error) {
	if kw.Empty() {
		return "", nil
	}
	if err := b.Validate(); err != nil {
		return "", err
	}
	types := b.types()
	if len(types) == 0 {
		return "", nil
	}

	query := fmt.Sprintf("to_tsquery('simple', %s)", args.Add(kw.TSQuery))

	var sb strings.Builder
	sb.WriteString("CASE")
	for _, t := range types {
		fields, err := b.typeFields(t)
		if err != nil {
			return "", err
		}

		terms := []string{"0"}
		for _, f := range fields {
			if f.Weight == 0 {
				continue
			}
			terms = append(terms, fmt.Sprintf("%d * %s", f.Weight, matchSignal(f.Column, query, boolean)))
		}

		typeScore := "(" + strings.Join(terms, " + ") + ")"
		if boolean {
			typeScore = "(" + typeScore + " > 0)::int"
		}
		fmt.Fprintf(&sb, " WHEN %s = %s THEN %s",
			pq.QuoteIdentifier(index.ColumnDocumentType), pq.QuoteLiteral(t), typeScore)
	}
	sb.WriteString(" ELSE 0 END")
	return sb.String(), nil
}

// BuildFilter restricts rows to one configured type, or to every configured
// type when documentType is empty or unknown
func (b *QueryBuilder) BuildFilter(documentType string, args *Args) string {
	column := pq.QuoteIdentifier(index.ColumnDocumentType)
	if documentType != "" && documentType != schema.DefaultType && b.schema.HasType(documentType) {
		return fmt.Sprintf("%s = %s", column, args.Add(documentType))
	}

	types := b.types()
	if len(types) == 0 {
		return "1 = 0"
	}
	placeholders := make([]string, len(types))
	for i, t := range types {
		placeholders[i] = args.Add(t)
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", "))
}

// BuildTermFilter matches rows tagged with any of termIDs. term_ids holds
// space separated ids, so each check is padded to whole tokens.
func (b *QueryBuilder) BuildTermFilter(termIDs []int64, args *Args) string {
	if len(termIDs) == 0 {
		return ""
	}
	column := pq.QuoteIdentifier(index.ColumnTermIDs)
	checks := make([]string, len(termIDs))
	for i, id := range termIDs {
		checks[i] = fmt.Sprintf("(' ' || coalesce(%s, '') || ' ') LIKE ('%% ' || %s::text || ' %%')",
			column, args.Add(strconv.FormatInt(id, 10)))
	}
	return "(" + strings.Join(checks, " OR ") + ")"
}

func (b *QueryBuilder) where(opts Options, args *Args) string {
	conditions := []string{b.BuildFilter(opts.DocumentType, args)}
	if terms := b.BuildTermFilter(opts.TermIDs, args); terms != "" {
		conditions = append(conditions, terms)
	}
	return strings.Join(conditions, " AND ")
}

// BuildSearchQuery returns the ranked, paginated id query. ok is false when
// the keywords are empty and nothing should be executed.
func (b *QueryBuilder) BuildSearchQuery(kw Keywords, opts Options) (query string, args []interface{}, ok bool, err error) {
	var a Args
	score, err := b.BuildScoreExpression(kw, false, &a)
	if err != nil || score == "" {
		return "", nil, false, err
	}
	where := b.where(opts, &a)

	orderBy := OrderColumn(opts.OrderBy)
	if orderBy != "score" {
		orderBy = pq.QuoteIdentifier(orderBy)
	}

	query = fmt.Sprintf(
		"SELECT %s, score FROM (SELECT %s, %s, %s, %s, %s AS score FROM %s WHERE %s) scored WHERE score > 0 ORDER BY %s %s LIMIT %s OFFSET %s",
		pq.QuoteIdentifier(index.ColumnDocumentID),
		pq.QuoteIdentifier(index.ColumnDocumentID),
		pq.QuoteIdentifier(index.ColumnDocumentType),
		pq.QuoteIdentifier(schema.FieldTitle),
		pq.QuoteIdentifier(index.ColumnDocumentDate),
		score,
		pq.QuoteIdentifier(b.table),
		where,
		orderBy, OrderDirection(opts.Order),
		a.Add(opts.PerPage), a.Add(opts.Offset),
	)
	return query, a.Values(), true, nil
}

// BuildCountQuery returns the per-type match count query
func (b *QueryBuilder) BuildCountQuery(kw Keywords) (query string, args []interface{}, ok bool, err error) {
	var a Args
	score, err := b.BuildScoreExpression(kw, true, &a)
	if err != nil || score == "" {
		return "", nil, false, err
	}
	where := b.where(Options{}, &a)

	documentType := pq.QuoteIdentifier(index.ColumnDocumentType)
	query = fmt.Sprintf(
		"SELECT %s, COUNT(*) FROM (SELECT %s, %s AS score FROM %s WHERE %s) scored WHERE score > 0 GROUP BY %s",
		documentType,
		documentType, score,
		pq.QuoteIdentifier(b.table),
		where,
		documentType,
	)
	return query, a.Values(), true, nil
}
