// Package crawl walks the paginated listing and assembles the run's
// record set. The loop is strictly ordered: pages in increasing order,
// pinned rows within a page in listing order, one detail resolution at
// a time — the browser-backed fetcher's session is exclusive.
package crawl

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/scholarsync/crawler/internal/fetcher"
	"github.com/scholarsync/crawler/internal/metrics"
	"github.com/scholarsync/crawler/internal/notice"
)

// Harvester collects the pinned records of the current run.
type Harvester struct {
	fetcher fetcher.ListFetcher
	mode    string
	logger  *zap.Logger
}

// New builds a Harvester. The mode label only feeds metrics and logs.
func New(f fetcher.ListFetcher, mode string, logger *zap.Logger) *Harvester {
	return &Harvester{fetcher: f, mode: mode, logger: logger}
}

// Run fetches listing pages until the termination condition and returns
// the deduplicated pinned record set. Pinned rows are cumulative across
// pages; the first page carrying a non-pinned row is the last one
// fetched, because the source lists all pinned entries ahead of the
// date-ordered feed. A page fetch failure stops pagination and keeps
// the records already extracted.
func (h *Harvester) Run(ctx context.Context) ([]notice.Record, error) {
	var records []notice.Record
	seen := make(map[string]struct{})

	for page := 1; ; page++ {
		rows, err := h.fetcher.FetchPage(ctx, page)
		if err != nil {
			h.logger.Warn("listing page fetch failed; stopping pagination",
				zap.Int("page", page), zap.Error(err))
			break
		}
		if len(rows) == 0 {
			h.logger.Info("empty listing page; end of data", zap.Int("page", page))
			break
		}
		metrics.ObserveListingPage(h.mode)

		hasRegular := false
		for _, row := range rows {
			if !row.Pinned {
				hasRegular = true
				break
			}
		}

		newPinned := 0
		for _, row := range rows {
			if !row.Pinned {
				continue
			}
			row = h.enrich(ctx, page, row)
			key := row.DedupKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			records = append(records, row)
			newPinned++
		}

		h.logger.Info("listing page processed",
			zap.Int("page", page),
			zap.Int("rows", len(rows)),
			zap.Int("new_pinned", newPinned),
		)
		if hasRegular {
			h.logger.Info("non-pinned row reached; all pinned rows seen", zap.Int("page", page))
			break
		}
	}

	metrics.ObserveRecords(len(records))
	return records, nil
}

// enrich routes a pinned row through detail resolution to obtain the
// authoritative written-at timestamp and canonical URL. Failures keep
// the listing values; they are advisory, never fatal.
func (h *Harvester) enrich(ctx context.Context, page int, rec notice.Record) notice.Record {
	ts, detailURL, err := h.fetcher.ResolveDetail(ctx, page, rec)
	if err != nil {
		h.logger.Warn("detail resolution failed",
			zap.String("title", rec.Title), zap.Error(err))
	}
	if ts != nil {
		rec.Date = ts
	}
	if detailURL != "" {
		rec.SourceURL = detailURL
	}
	return rec
}

// FromSavedPage parses a previously saved listing page instead of
// fetching, returning every parseable row with its original pin flag.
func FromSavedPage(path string, extractor *notice.Extractor, logger *zap.Logger) ([]notice.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	records, err := extractor.ExtractAll(string(data), "tr")
	if err != nil {
		return nil, err
	}
	logger.Info("parsed saved listing page", zap.String("path", path), zap.Int("records", len(records)))
	metrics.ObserveRecords(len(records))
	return records, nil
}
