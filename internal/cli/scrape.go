package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scraper-bots/jobnet-az/internal/config"
	"github.com/scraper-bots/jobnet-az/pkg/cache"
	"github.com/scraper-bots/jobnet-az/pkg/client"
	"github.com/scraper-bots/jobnet-az/pkg/extract"
	"github.com/scraper-bots/jobnet-az/pkg/logging"
	"github.com/scraper-bots/jobnet-az/pkg/pagination"
	"github.com/scraper-bots/jobnet-az/pkg/scrape"
)

type scrapeFlags struct {
	baseURL     string
	maxPages    int
	concurrency int
	delay       time.Duration
	batchSize   int
	strategy    string
	extractor   string
	refs        []string
	outputDir   string
	formats     []string
}

func newScrapeCommand() *cobra.Command {
	flags := &scrapeFlags{}

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run a full listing-and-detail scrape",
		Long: `Discovers all listing pages, fetches each item's detail payload in
batches, and flushes the extracted records. With --ref the listing
phase is skipped and only the named items are fetched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.baseURL, "base-url", "", "API base URL (overrides config)")
	cmd.Flags().IntVar(&flags.maxPages, "max-pages", 0, "cap on listing pages (0 = all)")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "max in-flight requests")
	cmd.Flags().DurationVar(&flags.delay, "delay", 0, "fixed per-request throttle")
	cmd.Flags().IntVar(&flags.batchSize, "batch-size", 0, "detail-fetch batch size")
	cmd.Flags().StringVar(&flags.strategy, "strategy", "", "pagination strategy (sequential or parallel)")
	cmd.Flags().StringVar(&flags.extractor, "extractor", "", "payload layout (candidate or vacancy)")
	cmd.Flags().StringArrayVar(&flags.refs, "ref", nil, "scrape only this item reference (repeatable)")
	cmd.Flags().StringVar(&flags.outputDir, "output-dir", "", "directory for output files")
	cmd.Flags().StringSliceVar(&flags.formats, "format", nil, "output formats (json, csv)")

	return cmd
}

func runScrape(parent context.Context, flags *scrapeFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	logger, err := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty || pretty,
		File:   cfg.Log.File,
	})
	if err != nil {
		return err
	}

	// SIGINT/SIGTERM cancel the run; completed work is still flushed.
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := client.New(client.Config{
		UserAgent:      cfg.HTTP.UserAgent,
		MaxConcurrency: cfg.HTTP.MaxConcurrency,
		RequestDelay:   cfg.HTTP.RequestDelay,
		MaxAttempts:    cfg.HTTP.MaxAttempts,
		InitialBackoff: cfg.HTTP.InitialBackoff,
		MaxBackoff:     cfg.HTTP.MaxBackoff,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})

	var payloadCache scrape.Cache
	if cfg.Cache.Enabled {
		manager, err := cache.New(cache.Config{
			TTL:           cfg.Cache.TTL,
			MemorySize:    cfg.Cache.MemorySize,
			KeyPrefix:     cfg.Cache.KeyPrefix,
			RedisAddr:     cfg.Cache.RedisAddr,
			RedisPassword: cfg.Cache.RedisPassword,
			RedisDB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			return fmt.Errorf("init cache: %w", err)
		}
		defer manager.Close()
		payloadCache = manager
	}

	orchestrator := scrape.New(httpClient, extractorFor(cfg.Scrape.Extractor), payloadCache, scrape.Config{
		DetailURL:          cfg.DetailURL(),
		RefField:           cfg.API.RefField,
		IDField:            cfg.API.IDField,
		MergeSummaryFields: cfg.Scrape.MergeSummaryFields,
		BatchSize:          cfg.Scrape.BatchSize,
		BatchCooldown:      cfg.Scrape.BatchCooldown,
	})

	var stubs []scrape.ItemStub
	if len(flags.refs) > 0 {
		for _, ref := range flags.refs {
			stubs = append(stubs, scrape.ItemStub{Reference: ref, Summary: map[string]any{}})
		}
		logger.Info().Int("refs", len(stubs)).Msg("explicit reference mode, skipping listing")
	} else {
		paginator := pagination.New(httpClient, pagination.Config{
			ListURL:         cfg.ListURL(),
			PageParam:       cfg.API.PageParam,
			ItemsField:      cfg.API.ItemsField,
			TotalPagesField: cfg.API.TotalPagesField,
			NextField:       cfg.API.NextField,
			CursorParams:    cfg.API.CursorParams,
			Params:          staticParams(cfg.API.Params),
			Strategy:        pagination.Strategy(cfg.Scrape.Strategy),
			MaxPages:        cfg.Scrape.MaxPages,
			Workers:         cfg.HTTP.MaxConcurrency,
		})
		listing, err := paginator.FetchAll(ctx)
		if err != nil {
			var pe *pagination.PaginationError
			if errors.As(err, &pe) {
				return err
			}
			// Cancellation during pagination: nothing collected is worth
			// flushing unless some pages already succeeded.
			if len(listing.Items) == 0 {
				return err
			}
			logger.Warn().Err(err).Msg("pagination interrupted, continuing with collected pages")
		}
		stubs = orchestrator.StubsFromItems(listing.Items)
	}

	result := orchestrator.Run(ctx, stubs)
	return flushResult(cfg, logger, result)
}

func loadConfig(flags *scrapeFlags) (*config.Config, error) {
	if flags.baseURL != "" {
		os.Setenv("JOBNET_API_BASE_URL", flags.baseURL)
	}
	if logLevel != "" {
		os.Setenv("JOBNET_LOG_LEVEL", logLevel)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if flags.maxPages > 0 {
		cfg.Scrape.MaxPages = flags.maxPages
	}
	if flags.concurrency > 0 {
		cfg.HTTP.MaxConcurrency = flags.concurrency
	}
	if flags.delay > 0 {
		cfg.HTTP.RequestDelay = flags.delay
	}
	if flags.batchSize > 0 {
		cfg.Scrape.BatchSize = flags.batchSize
	}
	if flags.strategy != "" {
		cfg.Scrape.Strategy = flags.strategy
	}
	if flags.extractor != "" {
		cfg.Scrape.Extractor = flags.extractor
	}
	if flags.outputDir != "" {
		cfg.Output.Dir = flags.outputDir
	}
	if len(flags.formats) > 0 {
		cfg.Output.Formats = flags.formats
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func extractorFor(name string) scrape.Extractor {
	if name == "vacancy" {
		return extract.VacancyExtractor{}
	}
	return extract.CandidateExtractor{}
}

func staticParams(params map[string]string) url.Values {
	if len(params) == 0 {
		return nil
	}
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	return values
}
