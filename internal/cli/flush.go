package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/scraper-bots/jobnet-az/internal/config"
	"github.com/scraper-bots/jobnet-az/internal/store"
	"github.com/scraper-bots/jobnet-az/pkg/scrape"
	"github.com/scraper-bots/jobnet-az/pkg/sink"
)

// flushResult writes every sink the run is configured for. Per-item
// failures and partial runs still exit zero; only being unable to write any
// output at all is an error.
func flushResult(cfg *config.Config, logger zerolog.Logger, result scrape.Result) error {
	now := time.Now()
	partial := result.Summary.Partial

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	for _, format := range cfg.Output.Formats {
		path := sink.Filename(cfg.Output.Dir, cfg.Output.Prefix, format, partial, now)
		var err error
		switch format {
		case "json":
			err = sink.FlushJSON(path, result.Records)
		case "csv":
			err = sink.FlushCSV(path, result.Records)
		}
		if err != nil {
			return err
		}
		logger.Info().Str("path", path).Int("records", len(result.Records)).Msg("output written")
	}

	if result.Failures.Len() > 0 {
		path := sink.Filename(cfg.Output.Dir, cfg.Output.Prefix+"_failures", "json", partial, now)
		if err := sink.FlushFailures(path, result.Failures.Entries()); err != nil {
			logger.Warn().Err(err).Msg("failure log not written")
		} else {
			logger.Info().Str("path", path).Int("failures", result.Failures.Len()).Msg("failure log written")
		}
	}

	if cfg.Database.Enabled && len(result.Records) > 0 {
		// A fresh context: the store flush must survive the interrupt that
		// stopped the scrape.
		storeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		s, pool, err := store.New(storeCtx, cfg.Database.DSN, cfg.Database.Table)
		if err != nil {
			logger.Error().Err(err).Msg("database unavailable, records kept in files only")
		} else {
			defer pool.Close()
			if err := s.EnsureSchema(storeCtx); err != nil {
				logger.Error().Err(err).Msg("schema setup failed")
			} else {
				stored := sink.FlushStore(storeCtx, s, cfg.API.IDField, result.Records)
				logger.Info().
					Int("inserted", stored.Inserted).
					Int("updated", stored.Updated).
					Int("failed", stored.Failed).
					Msg("database flush complete")
			}
		}
	}

	summary := result.Summary
	logger.Info().
		Str("run_id", summary.RunID).
		Int64("discovered", summary.Discovered).
		Int64("succeeded", summary.Succeeded).
		Int64("failed", summary.Failed).
		Int64("skipped", summary.Skipped).
		Int64("canceled", summary.Canceled).
		Bool("partial", summary.Partial).
		Dur("duration", summary.Duration).
		Msg("run summary")

	return nil
}
