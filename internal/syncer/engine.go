// Package syncer reconciles a freshly harvested record set against the
// mirror database: schema pre-flight, identity resolution, idempotent
// upserts, and retirement of records no longer pinned at the source.
package syncer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/scholarsync/crawler/internal/metrics"
	"github.com/scholarsync/crawler/internal/mirror"
	"github.com/scholarsync/crawler/internal/notice"
)

// ErrNoRecords aborts a run that extracted nothing: an empty pinned set
// is far more likely a fetch failure than a legitimate empty board, and
// acting on it would retire every mirrored record.
var ErrNoRecords = errors.New("no records extracted from source")

// pageIcon decorates created and updated documents.
var pageIcon = map[string]any{"type": "emoji", "emoji": "🌱"}

// Mirror is the document-database surface the engine needs. *mirror.Client
// satisfies it.
type Mirror interface {
	Database(ctx context.Context) (mirror.Database, error)
	UpdateDatabase(ctx context.Context, properties map[string]any) (mirror.Database, error)
	QueryPages(ctx context.Context, filter any) ([]mirror.Page, error)
	EachPinnedPage(ctx context.Context, pinnedField string, fn func(mirror.Page) error) error
	CreatePage(ctx context.Context, properties, icon map[string]any) error
	UpdatePage(ctx context.Context, pageID string, properties, icon map[string]any) error
}

// Fields names the mirror properties the engine reads and writes.
type Fields struct {
	Title  string
	Author string
	Date   string
	Pinned string
	URL    string
	Views  string
}

// DefaultFields returns the board's property names.
func DefaultFields() Fields {
	return Fields{
		Title:  "제목",
		Author: "작성자",
		Date:   "작성일",
		Pinned: "TOP",
		URL:    "URL",
		Views:  "조회수",
	}
}

// Stats summarizes one reconciliation run.
type Stats struct {
	Created int
	Updated int
	Skipped int
	Retired int
}

// Engine performs the reconciliation.
type Engine struct {
	mirror Mirror
	fields Fields
	logger *zap.Logger

	authorOptions []mirror.SelectOption
	hasViews      bool
}

// New builds an Engine.
func New(m Mirror, fields Fields, logger *zap.Logger) *Engine {
	return &Engine{mirror: m, fields: fields, logger: logger}
}

// Reconcile resolves every record against the mirror, creates or
// updates its document, and finally retires documents still marked
// pinned that this run did not observe. Schema violations and remote
// failures past the retry budget are fatal; ambiguous identities skip
// the record and continue.
func (e *Engine) Reconcile(ctx context.Context, records []notice.Record) (Stats, error) {
	var stats Stats
	if len(records) == 0 {
		return stats, ErrNoRecords
	}

	if err := e.preflight(ctx); err != nil {
		return stats, err
	}

	state := notice.NewRunState()
	for _, rec := range records {
		state.Observe(rec)
		if err := e.syncRecord(ctx, rec, &stats); err != nil {
			return stats, err
		}
	}

	retired, err := e.retire(ctx, state)
	stats.Retired = retired
	if err != nil {
		return stats, fmt.Errorf("retirement pass: %w", err)
	}

	e.logger.Info("reconciliation complete",
		zap.Int("records", len(records)),
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
		zap.Int("retired", stats.Retired),
	)
	return stats, nil
}

func (e *Engine) syncRecord(ctx context.Context, rec notice.Record, stats *Stats) error {
	label := rec.Title
	if rec.Date != nil {
		label = fmt.Sprintf("%s (%s)", rec.Title, notice.FormatTimestamp(*rec.Date))
	}

	if rec.Author != "" {
		if err := e.ensureAuthorOption(ctx, rec.Author); err != nil {
			return fmt.Errorf("extend author options: %w", err)
		}
	}

	pageID, ambiguous, err := e.resolveIdentity(ctx, rec)
	if err != nil {
		return err
	}
	if ambiguous {
		stats.Skipped++
		metrics.ObserveSyncOutcome(metrics.OutcomeSkipped)
		return nil
	}

	props := e.buildProperties(rec)
	if pageID != "" {
		if err := e.mirror.UpdatePage(ctx, pageID, props, pageIcon); err != nil {
			return fmt.Errorf("update %q: %w", rec.Title, err)
		}
		stats.Updated++
		metrics.ObserveSyncOutcome(metrics.OutcomeUpdated)
		e.logger.Info("record updated", zap.String("record", label))
		return nil
	}
	if err := e.mirror.CreatePage(ctx, props, pageIcon); err != nil {
		return fmt.Errorf("create %q: %w", rec.Title, err)
	}
	stats.Created++
	metrics.ObserveSyncOutcome(metrics.OutcomeCreated)
	e.logger.Info("record created", zap.String("record", label))
	return nil
}

// buildProperties assembles the write payload. Optional values that
// could not be determined this run are omitted, never written empty.
func (e *Engine) buildProperties(rec notice.Record) map[string]any {
	props := map[string]any{
		e.fields.Title: map[string]any{
			"title": []any{map[string]any{"text": map[string]any{"content": rec.Title}}},
		},
		e.fields.Pinned: map[string]any{"checkbox": rec.Pinned},
	}
	if rec.Date != nil {
		props[e.fields.Date] = map[string]any{
			"date": map[string]any{"start": notice.FormatTimestamp(*rec.Date)},
		}
	}
	if rec.Author != "" {
		props[e.fields.Author] = map[string]any{
			"select": map[string]any{"name": rec.Author},
		}
	}
	if e.hasViews && rec.Views != nil {
		props[e.fields.Views] = map[string]any{"number": float64(*rec.Views)}
	}
	if rec.SourceURL != "" {
		props[e.fields.URL] = map[string]any{"url": rec.SourceURL}
	}
	return props
}
