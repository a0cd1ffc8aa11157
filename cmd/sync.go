package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scholarsync/crawler/internal/config"
	"github.com/scholarsync/crawler/internal/crawl"
	"github.com/scholarsync/crawler/internal/fetcher"
	"github.com/scholarsync/crawler/internal/fetcher/headless"
	"github.com/scholarsync/crawler/internal/fetcher/static"
	"github.com/scholarsync/crawler/internal/logging"
	"github.com/scholarsync/crawler/internal/metrics"
	"github.com/scholarsync/crawler/internal/mirror"
	"github.com/scholarsync/crawler/internal/notice"
	"github.com/scholarsync/crawler/internal/syncer"
)

// newSyncCmd creates the 'sync' subcommand, the normal cron entry point.
func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync [saved-page.html]",
		Short: "Harvests pinned notices and reconciles the mirror database",
		Long: `Fetches the listing pages of the scholarship board, extracts every
pinned notice, and reconciles the set against the document database:
new notices are created, known ones updated in place, and mirrored
records no longer pinned at the source are retired.

An optional argument names a saved listing page to parse instead of
fetching anything, for offline runs and extraction debugging.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSyncCommand,
	}
	return cmd
}

func runSyncCommand(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if cfg.Mirror.Token == "" {
		return errors.New("mirror token not set (NOTION_TOKEN or SCHOLARSYNC_MIRROR_TOKEN)")
	}
	if cfg.Mirror.DatabaseID == "" {
		return errors.New("mirror database id not set (NOTION_DB_ID or SCHOLARSYNC_MIRROR_DATABASE_ID)")
	}

	logger, err := logging.New(cfg.Logging.Development, uuid.NewString())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	metrics.Init()
	if cfg.Metrics.ListenAddr != "" {
		metrics.Serve(cfg.Metrics.ListenAddr, logger)
	}

	logger.Info("sync starting",
		zap.String("source", cfg.Source.BaseURL+cfg.Source.ListPath),
		zap.String("board_id", cfg.Source.BoardID),
		zap.String("mode", cfg.Mode),
		zap.Bool("headless", cfg.Headless.Headless),
	)

	urls, err := notice.NewNormalizer(cfg.Source.BaseURL, cfg.Source.ListPath, cfg.Source.BoardID)
	if err != nil {
		return fmt.Errorf("source configuration: %w", err)
	}
	extractor := notice.NewExtractor(urls)

	var records []notice.Record
	savedPage := cfg.Source.HTMLPath
	if len(args) == 1 {
		savedPage = args[0]
	}
	if savedPage != "" {
		records, err = crawl.FromSavedPage(savedPage, extractor, logger)
		if err != nil {
			return fmt.Errorf("parse saved page: %w", err)
		}
		records = pinnedOnly(records)
	} else {
		f, mode, err := buildFetcher(cfg, urls, extractor, logger)
		if err != nil {
			return err
		}
		defer f.Close()

		harvester := crawl.New(f, mode, logger)
		records, err = harvester.Run(cmd.Context())
		if err != nil {
			return fmt.Errorf("harvest: %w", err)
		}
	}

	client := mirror.NewClient(mirror.Config{
		Token:             cfg.Mirror.Token,
		DatabaseID:        cfg.Mirror.DatabaseID,
		BaseURL:           cfg.Mirror.BaseURL,
		Timeout:           cfg.MirrorTimeout(),
		RequestsPerSecond: cfg.Mirror.RequestsPerSecond,
	}, logger)

	engine := syncer.New(client, syncer.DefaultFields(), logger)
	stats, err := engine.Reconcile(cmd.Context(), records)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	logger.Info("sync finished",
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
		zap.Int("retired", stats.Retired),
	)
	return nil
}

// buildFetcher selects the fetch path. Auto mode tries the browser
// first and falls back to plain HTTP when no browser can be launched.
func buildFetcher(cfg config.Config, urls *notice.Normalizer, extractor *notice.Extractor, logger *zap.Logger) (fetcher.ListFetcher, string, error) {
	headlessCfg := headless.Config{
		UserAgent:         cfg.Source.UserAgent,
		ExecPath:          resolveExecPath(cfg, logger),
		Headless:          cfg.Headless.Headless,
		NavigationTimeout: cfg.NavTimeout(),
		WaitTimeout:       cfg.WaitTimeout(),
		RowSelector:       cfg.Source.RowSelector,
	}
	staticCfg := static.Config{
		UserAgent: cfg.Source.UserAgent,
		Timeout:   cfg.HTTPTimeout(),
	}

	switch cfg.Mode {
	case config.ModeStatic:
		return static.New(staticCfg, urls, extractor, logger), config.ModeStatic, nil
	case config.ModeHeadless:
		f, err := headless.New(headlessCfg, urls, extractor, logger)
		if err != nil {
			return nil, "", fmt.Errorf("launch browser: %w", err)
		}
		return f, config.ModeHeadless, nil
	default:
		f, err := headless.New(headlessCfg, urls, extractor, logger)
		if err != nil {
			logger.Warn("browser launch failed; falling back to static fetching", zap.Error(err))
			return static.New(staticCfg, urls, extractor, logger), config.ModeStatic, nil
		}
		return f, config.ModeHeadless, nil
	}
}

// resolveExecPath honors an explicit executable path; otherwise the
// chromedp allocator locates a Chromium-family browser on its own.
func resolveExecPath(cfg config.Config, logger *zap.Logger) string {
	if cfg.Headless.ExecPath != "" {
		return cfg.Headless.ExecPath
	}
	browser := strings.ToLower(cfg.Headless.Browser)
	switch browser {
	case "", "chromium", "chrome":
	default:
		logger.Warn("only chromium-family browsers are supported; using system default",
			zap.String("requested", browser))
	}
	return ""
}

func pinnedOnly(records []notice.Record) []notice.Record {
	out := records[:0]
	for _, rec := range records {
		if rec.Pinned {
			out = append(out, rec)
		}
	}
	return out
}
