// Package pagination drives discovery and fetching of all listing pages of
// a paginated JSON API. The first page yields the total page count (or the
// first continuation cursor); the rest are fetched either sequentially,
// threading an opaque cursor from page to page, or in parallel through a
// worker pool when the API supports direct page-number addressing. Output
// preserves page order and in-page order regardless of completion order.
package pagination

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/scraper-bots/jobnet-az/pkg/logging"
)

// Strategy selects how pages after the first are fetched.
type Strategy string

const (
	// StrategySequential fetches one page at a time, carrying the cursor
	// parameters each response hands back. Required for cursor-based APIs
	// where page N's request depends on page N-1's response.
	StrategySequential Strategy = "sequential"

	// StrategyParallel fans page-number requests out through a worker
	// pool. Only valid when pages are addressable independently.
	StrategyParallel Strategy = "parallel"
)

// Fetcher is the transport the paginator issues page requests through.
type Fetcher interface {
	GetJSON(ctx context.Context, rawURL string, params url.Values) (map[string]any, error)
}

// PaginationError reports a fatal discovery failure: without page 1 and its
// pagination fields no items can be located, so the run cannot proceed.
type PaginationError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *PaginationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pagination: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("pagination: %s", e.Reason)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PaginationError) Unwrap() error {
	return e.Err
}

// Config holds paginator configuration. Field names are API-specific dot
// paths into the response document, never hardcoded.
type Config struct {
	// ListURL is the listing endpoint.
	ListURL string

	// PageParam is the query parameter carrying the page number.
	PageParam string

	// ItemsField is the dot path to the page's item list.
	ItemsField string

	// TotalPagesField is the dot path to the total page count. Optional
	// for the sequential strategy, which can instead run until a page
	// comes back empty.
	TotalPagesField string

	// NextField is the dot path to the next-page URL (sequential only).
	NextField string

	// CursorParams are query parameters copied from the next-page URL
	// into the following request (the opaque "ignore" continuation
	// tokens some APIs require).
	CursorParams []string

	// Params are static query parameters sent with every page request.
	Params url.Values

	// Strategy picks sequential or parallel fetching.
	Strategy Strategy

	// MaxPages caps how many pages are fetched (0 = all).
	MaxPages int

	// Workers bounds the parallel strategy's fan-out.
	Workers int
}

// DefaultConfig returns a configuration for a plain page-number API.
func DefaultConfig(listURL string) Config {
	return Config{
		ListURL:      listURL,
		PageParam:    "page",
		ItemsField:   "items",
		NextField:    "next",
		CursorParams: []string{"ignore", "ignore_hash"},
		Strategy:     StrategySequential,
		Workers:      10,
	}
}

// Result is the outcome of fetching all pages.
type Result struct {
	// TotalPages is the discovered page count (0 when the API only
	// exposes a cursor and the count is unknown up front).
	TotalPages int

	// PagesFetched is how many pages actually returned items.
	PagesFetched int

	// Items are all item mappings in page order, in-page order preserved.
	Items []map[string]any
}

// Paginator discovers and fetches all listing pages.
type Paginator struct {
	fetcher Fetcher
	cfg     Config
	logger  zerolog.Logger
}

// New creates a paginator. Zero config fields fall back to defaults.
func New(fetcher Fetcher, cfg Config) *Paginator {
	def := DefaultConfig(cfg.ListURL)
	if cfg.PageParam == "" {
		cfg.PageParam = def.PageParam
	}
	if cfg.ItemsField == "" {
		cfg.ItemsField = def.ItemsField
	}
	if cfg.Strategy == "" {
		cfg.Strategy = def.Strategy
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.CursorParams == nil {
		cfg.CursorParams = def.CursorParams
	}
	return &Paginator{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logging.NewLogger("paginator"),
	}
}

// FetchAll fetches page 1, discovers the page count, and drives the
// configured strategy over the remaining pages.
func (p *Paginator) FetchAll(ctx context.Context) (Result, error) {
	start := time.Now()

	firstPage, err := p.fetchPage(ctx, 1, nil)
	if err != nil {
		return Result{}, &PaginationError{Reason: "failed to fetch first page", Err: err}
	}

	firstItems, ok := lookupItems(firstPage, p.cfg.ItemsField)
	if !ok {
		return Result{}, &PaginationError{
			Reason: fmt.Sprintf("items field %q absent from first page", p.cfg.ItemsField),
		}
	}

	totalPages := 0
	if p.cfg.TotalPagesField != "" {
		totalPages, ok = lookupInt(firstPage, p.cfg.TotalPagesField)
		if !ok {
			return Result{}, &PaginationError{
				Reason: fmt.Sprintf("total pages field %q absent from first page", p.cfg.TotalPagesField),
			}
		}
	} else if p.cfg.Strategy == StrategyParallel {
		return Result{}, &PaginationError{
			Reason: "parallel strategy requires a total pages field",
		}
	}

	lastPage := totalPages
	if p.cfg.MaxPages > 0 && (lastPage == 0 || p.cfg.MaxPages < lastPage) {
		lastPage = p.cfg.MaxPages
	}

	p.logger.Info().
		Int("total_pages", totalPages).
		Int("page_limit", lastPage).
		Int("first_page_items", len(firstItems)).
		Str("strategy", string(p.cfg.Strategy)).
		Msg("pagination discovered")

	result := Result{TotalPages: totalPages}
	if len(firstItems) == 0 {
		// Upstream reports pages but page 1 carries nothing: no more data.
		return result, nil
	}
	result.Items = append(result.Items, firstItems...)
	result.PagesFetched = 1

	if lastPage == 1 {
		return result, nil
	}

	switch p.cfg.Strategy {
	case StrategyParallel:
		err = p.fetchParallel(ctx, lastPage, &result)
	default:
		err = p.fetchSequential(ctx, firstPage, lastPage, &result)
	}
	if err != nil {
		return result, err
	}

	p.logger.Info().
		Int("pages_fetched", result.PagesFetched).
		Int("items", len(result.Items)).
		Dur("duration", time.Since(start)).
		Msg("pagination complete")

	return result, nil
}

// fetchSequential walks pages one at a time, carrying cursor parameters
// extracted from each response's next-page URL. An empty page or a missing
// next URL ends the walk; it is "no more data", not an error.
func (p *Paginator) fetchSequential(ctx context.Context, firstPage map[string]any, lastPage int, result *Result) error {
	cursor := p.cursorFrom(firstPage)

	for page := 2; lastPage == 0 || page <= lastPage; page++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		payload, err := p.fetchPage(ctx, page, cursor)
		if err != nil {
			p.logger.Warn().Int("page", page).Err(err).Msg("page fetch failed, stopping pagination")
			return nil
		}

		items, ok := lookupItems(payload, p.cfg.ItemsField)
		if !ok || len(items) == 0 {
			p.logger.Info().Int("page", page).Msg("empty page, no more data")
			return nil
		}

		result.Items = append(result.Items, items...)
		result.PagesFetched++
		p.logger.Debug().Int("page", page).Int("items", len(items)).Msg("page fetched")

		next := p.cursorFrom(payload)
		if next == nil && p.cfg.NextField != "" && lastPage == 0 {
			// Cursor API with no continuation: the listing is exhausted.
			return nil
		}
		if next != nil {
			cursor = next
		}
	}
	return nil
}

// cursorFrom extracts the configured cursor parameters from a response's
// next-page URL. Returns nil when the response carries no next URL.
func (p *Paginator) cursorFrom(payload map[string]any) url.Values {
	if p.cfg.NextField == "" || len(p.cfg.CursorParams) == 0 {
		return nil
	}
	next, ok := lookupString(payload, p.cfg.NextField)
	if !ok || next == "" {
		return nil
	}
	u, err := url.Parse(next)
	if err != nil {
		p.logger.Warn().Str("next", next).Err(err).Msg("unparseable next-page url")
		return nil
	}

	query := u.Query()
	cursor := url.Values{}
	for _, key := range p.cfg.CursorParams {
		if v := query.Get(key); v != "" {
			cursor.Set(key, v)
		}
	}
	if len(cursor) == 0 {
		return nil
	}
	return cursor
}

type pageResult struct {
	page  int
	items []map[string]any
}

// fetchParallel fans pages 2..lastPage out across a worker pool and
// reassembles results by page index, so output order is page order even
// when requests complete out of order. A failed page is logged and skipped;
// partial data beats aborting the run.
func (p *Paginator) fetchParallel(ctx context.Context, lastPage int, result *Result) error {
	pageQueue := make(chan int, lastPage)
	results := make(chan pageResult, lastPage)

	for page := 2; page <= lastPage; page++ {
		pageQueue <- page
	}
	close(pageQueue)

	var wg sync.WaitGroup
	workers := p.cfg.Workers
	if workers > lastPage-1 {
		workers = lastPage - 1
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for page := range pageQueue {
				if ctx.Err() != nil {
					return
				}
				payload, err := p.fetchPage(ctx, page, nil)
				if err != nil {
					p.logger.Warn().Int("page", page).Err(err).Msg("page fetch failed")
					continue
				}
				items, ok := lookupItems(payload, p.cfg.ItemsField)
				if !ok {
					p.logger.Warn().Int("page", page).Msg("items field absent, skipping page")
					continue
				}
				select {
				case results <- pageResult{page: page, items: items}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	byPage := make(map[int][]map[string]any)
	fetched := 0
	for res := range results {
		byPage[res.page] = res.items
		fetched++
		if fetched%25 == 0 {
			p.logger.Info().
				Int("fetched", fetched+1).
				Int("total", lastPage).
				Msg("pagination progress")
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	pages := make([]int, 0, len(byPage))
	for page := range byPage {
		pages = append(pages, page)
	}
	sort.Ints(pages)
	for _, page := range pages {
		result.Items = append(result.Items, byPage[page]...)
		result.PagesFetched++
	}
	return nil
}

// fetchPage issues a single listing-page request.
func (p *Paginator) fetchPage(ctx context.Context, page int, cursor url.Values) (map[string]any, error) {
	params := url.Values{}
	for key, values := range p.cfg.Params {
		for _, v := range values {
			params.Add(key, v)
		}
	}
	params.Set(p.cfg.PageParam, fmt.Sprintf("%d", page))
	for key, values := range cursor {
		for _, v := range values {
			params.Set(key, v)
		}
	}

	p.logger.Debug().Int("page", page).Msg("fetching listing page")
	return p.fetcher.GetJSON(ctx, p.cfg.ListURL, params)
}
