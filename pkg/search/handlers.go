package search

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/sitesearch/pkg/async"
	"github.com/platinummonkey/sitesearch/pkg/httputil"
	"github.com/platinummonkey/sitesearch/pkg/index"
	"github.com/platinummonkey/sitesearch/pkg/observability"
)

// Query parameters of the results endpoint
const (
	ParamKeyword  = "sitewide-search-keyword"
	ParamPostType = "sitewide-search-posttype"
	ParamPerPage  = "sitewide-search-perpage"
	ParamPageNum  = "sitewide-search-pagenum"
	ParamOrderBy  = "sitewide-search-orderby"
	ParamOrder    = "sitewide-search-order"
	ParamTerms    = "sitewide-search-terms"
)

// Regenerator rebuilds the search table
type Regenerator interface {
	Regenerate(ctx context.Context, fromScratch bool) (index.RebuildReport, error)
}

// Handlers serves the search endpoint and the admin rebuild trigger
type Handlers struct {
	service        *Service
	regenerator    Regenerator
	logger         *observability.Logger
	rebuildTimeout time.Duration
	rebuilding     atomic.Bool
}

// NewHandlers creates the HTTP handlers; regenerator may be nil to disable
// the admin route
func NewHandlers(service *Service, regenerator Regenerator, logger *observability.Logger) *Handlers {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Handlers{
		service:        service,
		regenerator:    regenerator,
		logger:         logger,
		rebuildTimeout: 6 * time.Hour,
	}
}

// WithRebuildTimeout bounds background rebuilds
func (h *Handlers) WithRebuildTimeout(timeout time.Duration) *Handlers {
	if timeout > 0 {
		h.rebuildTimeout = timeout
	}
	return h
}

// RegisterRoutes registers search routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/sitewide-search-results", h.results).Methods(http.MethodGet)
	if h.regenerator != nil {
		router.HandleFunc("/admin/sitewide-search/regenerate", h.regenerate).Methods(http.MethodPost)
	}
}

// results handles GET /sitewide-search-results
func (h *Handlers) results(w http.ResponseWriter, r *http.Request) {
	opts, err := h.parseOptions(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	keyword := r.URL.Query().Get(ParamKeyword)
	resp, err := h.service.SearchJSON(r.Context(), keyword, opts)
	if err != nil {
		h.loggerFor(r).WithError(err).Error("Search failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// loggerFor prefers the request logger installed by the middleware and tags
// it with the request and trace ids
func (h *Handlers) loggerFor(r *http.Request) *observability.Logger {
	logger := h.logger
	if l, ok := r.Context().Value(observability.LoggerKey).(*observability.Logger); ok {
		logger = l
	}
	if id := observability.GetRequestID(r.Context()); id != "" {
		logger = logger.WithField("request_id", id)
	}
	return observability.UpdateLoggerWithTraceContext(r.Context(), logger)
}

// parseOptions maps the query string to search options. Pages are 1-based.
func (h *Handlers) parseOptions(r *http.Request) (Options, error) {
	perPage, err := httputil.ParseQueryInt(r, ParamPerPage, h.service.DefaultOptions().PerPage)
	if err != nil {
		return Options{}, err
	}
	if perPage <= 0 {
		perPage = h.service.DefaultOptions().PerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	page, err := httputil.ParseQueryInt(r, ParamPageNum, 1)
	if err != nil {
		return Options{}, err
	}
	if page < 1 {
		page = 1
	}
	if page-1 > MaxOffset/perPage {
		return Options{}, fmt.Errorf("page number out of range for query param %s: %d", ParamPageNum, page)
	}

	termIDs, err := httputil.ParseQueryInt64List(r, ParamTerms)
	if err != nil {
		return Options{}, err
	}

	return Options{
		PerPage:      perPage,
		Offset:       (page - 1) * perPage,
		DocumentType: r.URL.Query().Get(ParamPostType),
		OrderBy:      httputil.ParseQueryString(r, ParamOrderBy, "score"),
		Order:        httputil.ParseQueryString(r, ParamOrder, "desc"),
		TermIDs:      termIDs,
	}, nil
}

// regenerate handles POST /admin/sitewide-search/regenerate. The rebuild
// runs in the background; only one runs at a time.
func (h *Handlers) regenerate(w http.ResponseWriter, r *http.Request) {
	fromScratch, err := httputil.ParseQueryBool(r, "from_scratch", false)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err)
		return
	}

	if !h.StartRegenerate(context.WithoutCancel(r.Context()), h.loggerFor(r), fromScratch) {
		httputil.WriteErrorMessage(w, http.StatusConflict, "a rebuild is already running")
		return
	}

	httputil.WriteAccepted(w, map[string]interface{}{
		"status":       "started",
		"from_scratch": fromScratch,
	})
}

// StartRegenerate rebuilds the search table in the background and reports
// whether it started. It refuses while another rebuild is running.
func (h *Handlers) StartRegenerate(ctx context.Context, logger *observability.Logger, fromScratch bool) bool {
	if h.regenerator == nil || !h.rebuilding.CompareAndSwap(false, true) {
		return false
	}
	if logger == nil {
		logger = h.logger
	}
	logger = logger.WithField("from_scratch", fromScratch)

	async.SafeGo(ctx, logger, h.rebuildTimeout, "regenerate search table", func(ctx context.Context) error {
		defer h.rebuilding.Store(false)
		report, err := h.regenerator.Regenerate(ctx, fromScratch)
		logger.WithFields(map[string]interface{}{
			"indexed": report.Indexed,
			"deleted": report.Deleted,
			"skipped": report.Skipped,
			"failed":  report.Failed,
		}).Info("Regenerate finished")
		return err
	})
	return true
}
