package search

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/sitesearch/pkg/content"
	"github.com/platinummonkey/sitesearch/pkg/observability"
	"github.com/platinummonkey/sitesearch/pkg/schema"
)

var searchTracer = otel.Tracer("sitesearch/search/service")

const (
	// DefaultPerPage is the page size when the caller gives none
	DefaultPerPage = 10
	// MaxPerPage caps a single page
	MaxPerPage = 1000
	// MaxOffset is the deepest row a page may start at
	MaxOffset = math.MaxInt32
	// DefaultImageSize is the featured image size suffix
	DefaultImageSize = "medium"

	// PhotoAttribute overrides the featured image when set on a document
	PhotoAttribute = "photo"

	dateLayout = "2006-01-02 15:04:05"
)

// Options control one search
type Options struct {
	PerPage      int
	Offset       int
	DocumentType string // empty or unknown searches every type
	OrderBy      string
	Order        string
	TermIDs      []int64
}

// Hit is one ranked match
type Hit struct {
	DocumentID int64
	Score      float64
}

// Result is the public projection of a matched document
type Result struct {
	Title         string `json:"post_title"`
	Excerpt       string `json:"search_excerpt"`
	Date          string `json:"post_date"`
	Type          string `json:"post_type"`
	Permalink     string `json:"permalink"`
	FeaturedImage string `json:"featured_image"`
	ID            int64  `json:"ID"`
}

// Response is the JSON search payload
type Response struct {
	Keyword          string         `json:"keyword"`
	Results          []Result       `json:"results"`
	ResultCounts     map[string]int `json:"result_counts"`
	TotalResults     int            `json:"total_results"`
	SelectedPostType string         `json:"selected_post_type"`
}

// ReadPool hands out the connection search reads run on
type ReadPool interface {
	Replica() *sql.DB
}

type singleDB struct {
	db *sql.DB
}

func (s singleDB) Replica() *sql.DB {
	return s.db
}

// SingleDB serves every read from db
func SingleDB(db *sql.DB) ReadPool {
	return singleDB{db: db}
}

// Service answers ranked keyword queries against the search table
type Service struct {
	pool      ReadPool
	contents  content.Store
	schema    schema.Provider
	builder   *QueryBuilder
	table     string
	perPage   int
	imageSize string
	logger    *observability.Logger
	recorder  observability.Recorder
}

// Option configures a Service
type Option func(*Service)

// WithTable sets the search table name
func WithTable(table string) Option {
	return func(s *Service) {
		if table != "" {
			s.table = table
		}
	}
}

// WithPerPage sets the default page size
func WithPerPage(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.perPage = n
		}
	}
}

// WithImageSize sets the featured image size suffix
func WithImageSize(size string) Option {
	return func(s *Service) {
		s.imageSize = size
	}
}

// WithLogger sets the logger
func WithLogger(logger *observability.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(recorder observability.Recorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.recorder = recorder
		}
	}
}

// NewService creates a search service. contents hydrates matched ids.
func NewService(pool ReadPool, contents content.Store, provider schema.Provider, opts ...Option) *Service {
	s := &Service{
		pool:      pool,
		contents:  contents,
		schema:    provider,
		perPage:   DefaultPerPage,
		imageSize: DefaultImageSize,
		logger:    observability.NopLogger(),
		recorder:  observability.NopRecorder(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.builder = NewQueryBuilder(provider, s.table)
	return s
}

// Validate reports schema problems that would break query building
func (s *Service) Validate() error {
	return s.builder.Validate()
}

// DefaultOptions returns the options a search starts from
func (s *Service) DefaultOptions() Options {
	return Options{
		PerPage: s.perPage,
		OrderBy: "score",
		Order:   "DESC",
	}
}

func (s *Service) withDefaults(opts Options) Options {
	merged := s.DefaultOptions()
	if opts.PerPage > 0 {
		merged.PerPage = opts.PerPage
	}
	if merged.PerPage > MaxPerPage {
		merged.PerPage = MaxPerPage
	}
	if opts.Offset > 0 {
		merged.Offset = opts.Offset
	}
	if opts.OrderBy != "" {
		merged.OrderBy = opts.OrderBy
	}
	if opts.Order != "" {
		merged.Order = opts.Order
	}
	merged.DocumentType = opts.DocumentType
	merged.TermIDs = opts.TermIDs
	return merged
}

// Search returns matching document ids in ranked order. Empty keywords
// yield no hits and no error.
func (s *Service) Search(ctx context.Context, keywords string, opts Options) ([]Hit, error) {
	return s.search(ctx, ParseKeywords(keywords), s.withDefaults(opts))
}

func (s *Service) search(ctx context.Context, kw Keywords, opts Options) (hits []Hit, err error) {
	ctx, span := searchTracer.Start(ctx, "Search",
		trace.WithAttributes(
			attribute.String("keywords", kw.Raw),
			attribute.String("document_type", opts.DocumentType),
			attribute.Int("per_page", opts.PerPage),
			attribute.Int("offset", opts.Offset),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		s.recorder.RecordSearch(ctx, "search", opts.DocumentType, time.Since(start), len(hits), err)
	}()

	query, args, ok, err := s.builder.BuildSearchQuery(kw, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to build query")
		return nil, err
	}
	if !ok {
		span.SetStatus(codes.Ok, "empty keywords")
		return []Hit{}, nil
	}

	rows, err := s.pool.Replica().QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to execute search")
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer rows.Close()

	hits = make([]Hit, 0, opts.PerPage)
	for rows.Next() {
		var hit Hit
		if err := rows.Scan(&hit.DocumentID, &hit.Score); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to scan hit")
			return nil, fmt.Errorf("failed to scan hit: %w", err)
		}
		hits = append(hits, hit)
	}
	if err = rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error iterating results")
		return nil, fmt.Errorf("error iterating results: %w", err)
	}

	span.SetAttributes(attribute.Int("result_count", len(hits)))
	span.SetStatus(codes.Ok, "search completed")
	return hits, nil
}

// Counts returns the number of matches per configured type. Every type is
// present, with zero when nothing matches.
func (s *Service) Counts(ctx context.Context, keywords string) (map[string]int, error) {
	return s.counts(ctx, ParseKeywords(keywords))
}

func (s *Service) counts(ctx context.Context, kw Keywords) (counts map[string]int, err error) {
	ctx, span := searchTracer.Start(ctx, "Counts",
		trace.WithAttributes(attribute.String("keywords", kw.Raw)),
	)
	defer span.End()

	start := time.Now()
	total := 0
	defer func() {
		s.recorder.RecordSearch(ctx, "count", "", time.Since(start), total, err)
	}()

	counts = make(map[string]int)
	for _, t := range s.schema.Types() {
		if t != schema.DefaultType {
			counts[t] = 0
		}
	}

	query, args, ok, err := s.builder.BuildCountQuery(kw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to build query")
		return nil, err
	}
	if !ok {
		return counts, nil
	}

	rows, err := s.pool.Replica().QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to execute count")
		return nil, fmt.Errorf("failed to execute count: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			docType string
			n       int
		)
		if err := rows.Scan(&docType, &n); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to scan count")
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[docType] = n
		total += n
	}
	if err = rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "error iterating counts")
		return nil, fmt.Errorf("error iterating counts: %w", err)
	}

	span.SetAttributes(attribute.Int("total_count", total))
	span.SetStatus(codes.Ok, "count completed")
	return counts, nil
}

// SearchJSON runs Search and Counts and hydrates the page of hits into
// public results
func (s *Service) SearchJSON(ctx context.Context, keywords string, opts Options) (*Response, error) {
	ctx, span := searchTracer.Start(ctx, "SearchJSON")
	defer span.End()

	kw := ParseKeywords(keywords)
	merged := s.withDefaults(opts)

	hits, err := s.search(ctx, kw, merged)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, err
	}

	counts, err := s.counts(ctx, kw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "count failed")
		return nil, err
	}

	results, err := s.hydrate(ctx, hits)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "hydration failed")
		return nil, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	return &Response{
		Keyword:          kw.Raw,
		Results:          results,
		ResultCounts:     counts,
		TotalResults:     total,
		SelectedPostType: opts.DocumentType,
	}, nil
}

func (s *Service) hydrate(ctx context.Context, hits []Hit) ([]Result, error) {
	results := make([]Result, 0, len(hits))
	if len(hits) == 0 {
		return results, nil
	}

	ids := make([]int64, len(hits))
	for i, hit := range hits {
		ids[i] = hit.DocumentID
	}

	docs, err := s.contents.GetDocumentsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	if len(docs) < len(ids) {
		s.logger.WithField("missing", len(ids)-len(docs)).Warn("Indexed documents missing from content store")
	}

	for _, doc := range docs {
		results = append(results, s.result(doc))
	}
	return results, nil
}

func (s *Service) result(doc *content.Document) Result {
	image := doc.FeaturedImage
	if photo, ok := doc.Attribute(PhotoAttribute); ok && photo != "" {
		image = photo
	}

	return Result{
		Title:         doc.Title,
		Excerpt:       doc.Excerpt,
		Date:          s.formatDate(doc),
		Type:          doc.Type,
		Permalink:     doc.Permalink,
		FeaturedImage: ImagePath(image, s.imageSize),
		ID:            doc.ID,
	}
}

func (s *Service) formatDate(doc *content.Document) string {
	if f, ok := s.contents.(content.HumanDateFormatter); ok {
		if human := f.HumanDate(doc); human != "" {
			return human
		}
	}
	if doc.Date.IsZero() {
		return ""
	}
	return doc.Date.Format(dateLayout)
}

// ImagePath returns the sized variant of an image by inserting "-size"
// before the extension. Empty sizes and "full" keep the original.
func ImagePath(image, size string) string {
	if image == "" || size == "" || size == "full" {
		return image
	}
	ext := path.Ext(image)
	return strings.TrimSuffix(image, ext) + "-" + size + ext
}
