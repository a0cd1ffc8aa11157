package syncer

import (
	"context"

	"go.uber.org/zap"

	"github.com/scholarsync/crawler/internal/metrics"
	"github.com/scholarsync/crawler/internal/mirror"
	"github.com/scholarsync/crawler/internal/notice"
)

// retire walks every mirror document still flagged pinned and clears
// the flag on those this run did not observe. A document survives on a
// canonical-URL match, or failing that on a title plus day-key match.
// Untitled documents are left untouched: without a title there is no
// identity to compare, and clearing blindly could damage hand-edited
// entries.
func (e *Engine) retire(ctx context.Context, state *notice.RunState) (int, error) {
	retired := 0
	err := e.mirror.EachPinnedPage(ctx, e.fields.Pinned, func(page mirror.Page) error {
		if url := page.URLValue(e.fields.URL); url != "" && state.HasURL(url) {
			return nil
		}

		title := page.TitleText(e.fields.Title)
		if title == "" {
			e.logger.Warn("pinned document without title; leaving untouched",
				zap.String("page_id", page.ID))
			return nil
		}

		day := notice.DayKeyFromISO(page.DateStart(e.fields.Date))
		if state.HasTitleDay(title, day) {
			return nil
		}

		props := map[string]any{
			e.fields.Pinned: map[string]any{"checkbox": false},
		}
		if err := e.mirror.UpdatePage(ctx, page.ID, props, nil); err != nil {
			return err
		}
		retired++
		metrics.ObserveSyncOutcome(metrics.OutcomeRetired)
		e.logger.Info("record retired", zap.String("title", title), zap.String("day", day))
		return nil
	})
	return retired, err
}
