package syncer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/scholarsync/crawler/internal/notice"
)

// resolveIdentity finds the mirror document for a record. Lookups run in
// decreasing strictness: canonical URL, then title plus day-precision
// date, then title alone. The first lookup returning matches decides:
// exactly one match is the document, more than one is ambiguous and the
// record is skipped rather than guessed at. No matches anywhere means
// the record is new.
func (e *Engine) resolveIdentity(ctx context.Context, rec notice.Record) (pageID string, ambiguous bool, err error) {
	type lookup struct {
		name   string
		filter map[string]any
	}

	var lookups []lookup
	if rec.SourceURL != "" {
		lookups = append(lookups, lookup{"url", map[string]any{
			"property": e.fields.URL,
			"url":      map[string]any{"equals": rec.SourceURL},
		}})
	}
	if rec.Date != nil {
		lookups = append(lookups, lookup{"title+date", map[string]any{
			"and": []any{
				map[string]any{
					"property": e.fields.Title,
					"title":    map[string]any{"equals": rec.Title},
				},
				map[string]any{
					"property": e.fields.Date,
					"date":     map[string]any{"equals": notice.DayKey(*rec.Date)},
				},
			},
		}})
	}
	lookups = append(lookups, lookup{"title", map[string]any{
		"property": e.fields.Title,
		"title":    map[string]any{"equals": rec.Title},
	}})

	for _, l := range lookups {
		pages, err := e.mirror.QueryPages(ctx, l.filter)
		if err != nil {
			return "", false, fmt.Errorf("identity lookup by %s for %q: %w", l.name, rec.Title, err)
		}
		switch len(pages) {
		case 0:
			continue
		case 1:
			return pages[0].ID, false, nil
		default:
			e.logger.Warn("ambiguous identity; skipping record",
				zap.String("title", rec.Title),
				zap.String("lookup", l.name),
				zap.Int("matches", len(pages)),
			)
			return "", true, nil
		}
	}
	return "", false, nil
}
