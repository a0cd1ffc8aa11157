// Package headless implements the listing fetcher with a driven browser
// session via chromedp, for the client-rendered variant of the board.
package headless

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/scholarsync/crawler/internal/notice"
)

// DefaultRowSelector matches the board's client-rendered listing rows.
const DefaultRowSelector = "tr[data-v-6debbb14]"

// Config controls the browser session.
type Config struct {
	UserAgent         string
	ExecPath          string
	Headless          bool
	NavigationTimeout time.Duration
	WaitTimeout       time.Duration
	RowSelector       string
}

// Fetcher drives one exclusive browser tab for the whole run. Rows are
// extracted from the live DOM; pinned rows without an inline detail
// link are entered by simulated navigation and the session is always
// returned to the listing before the next row.
type Fetcher struct {
	cfg           Config
	urls          *notice.Normalizer
	extractor     *notice.Extractor
	logger        *zap.Logger
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	client        *http.Client
}

// New launches the browser and warms up a tab. Launch failure is
// returned to the caller, which may fall back to the static fetcher.
func New(cfg Config, urls *notice.Normalizer, extractor *notice.Extractor, logger *zap.Logger) (*Fetcher, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 30 * time.Second
	}
	if cfg.RowSelector == "" {
		cfg.RowSelector = DefaultRowSelector
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.WindowSize(1920, 1080),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx, network.Enable(), emulation.SetUserAgentOverride(cfg.UserAgent)); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("browser warmup: %w", err)
	}

	return &Fetcher{
		cfg:           cfg,
		urls:          urls,
		extractor:     extractor,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		client:        &http.Client{Timeout: cfg.NavigationTimeout},
	}, nil
}

// Close tears down the tab and the browser process.
func (f *Fetcher) Close() {
	f.browserCancel()
	f.allocCancel()
}

// FetchPage navigates the session to a listing page, waits for the row
// container, and extracts every row from the rendered DOM.
func (f *Fetcher) FetchPage(ctx context.Context, page int) ([]notice.Record, error) {
	listURL := f.urls.ListURL(page)
	runCtx, cancel := f.opContext(ctx, f.cfg.NavigationTimeout)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.Navigate(listURL),
		chromedp.WaitVisible(f.cfg.RowSelector, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("load listing page %d: %w", page, err)
	}

	fragments, err := f.rowFragments(runCtx)
	if err != nil {
		return nil, fmt.Errorf("extract listing rows: %w", err)
	}

	records := make([]notice.Record, 0, len(fragments))
	for i, fragment := range fragments {
		row, err := notice.ParseRow(fragment)
		if err != nil {
			f.logger.Debug("unparseable row fragment", zap.Int("page", page), zap.Int("row", i), zap.Error(err))
			continue
		}
		rec, ok := f.extractor.Extract(row)
		if !ok {
			continue
		}
		rec.RowIndex = i
		records = append(records, rec)
	}
	return records, nil
}

// ResolveDetail obtains the authoritative written-at timestamp for a
// pinned row. A resolved URL is tried with a plain request first, then
// by rendering; a row without a URL is entered by clicking it. All
// navigation paths converge back on the listing before returning.
func (f *Fetcher) ResolveDetail(ctx context.Context, page int, rec notice.Record) (*time.Time, string, error) {
	listURL := f.urls.ListURL(page)
	if rec.SourceURL != "" {
		if ts, ok := f.plainWrittenAt(ctx, rec.SourceURL); ok {
			return &ts, rec.SourceURL, nil
		}
		ts, ok, err := f.renderedWrittenAt(ctx, listURL, rec.SourceURL)
		if err != nil {
			return nil, rec.SourceURL, err
		}
		if ok {
			return &ts, rec.SourceURL, nil
		}
		return nil, rec.SourceURL, nil
	}
	return f.resolveByNavigation(ctx, listURL, rec.RowIndex)
}

// renderedWrittenAt loads the detail URL in the session, waits for a
// timestamp to appear in the rendered text, and returns to the listing
// whether or not anything was found.
func (f *Fetcher) renderedWrittenAt(ctx context.Context, listURL, detailURL string) (time.Time, bool, error) {
	runCtx, cancel := f.opContext(ctx, f.cfg.NavigationTimeout)
	defer cancel()

	if err := chromedp.Run(runCtx, chromedp.Navigate(detailURL)); err != nil {
		f.logger.Info("detail page load failed", zap.String("url", detailURL), zap.Error(err))
		return time.Time{}, false, f.returnToListing(ctx, listURL)
	}
	ts, ok := f.writtenAtFromRendered(runCtx)
	return ts, ok, f.returnToListing(ctx, listURL)
}

// resolveByNavigation handles rows with no detail link: derive one from
// a row identifier if possible, otherwise click the row and wait for
// the session URL to change into the detail shape.
func (f *Fetcher) resolveByNavigation(ctx context.Context, listURL string, rowIndex int) (*time.Time, string, error) {
	if id, err := f.rowDetailID(ctx, rowIndex); err == nil && id != "" {
		detailURL := f.urls.Normalize(f.urls.DetailURL(id))
		if ts, ok := f.plainWrittenAt(ctx, detailURL); ok {
			return &ts, detailURL, nil
		}
		ts, ok, err := f.renderedWrittenAt(ctx, listURL, detailURL)
		if err != nil {
			return nil, detailURL, err
		}
		if ok {
			return &ts, detailURL, nil
		}
		return nil, detailURL, nil
	}

	runCtx, cancel := f.opContext(ctx, f.cfg.NavigationTimeout)
	defer cancel()

	if err := f.clickRow(runCtx, rowIndex); err != nil {
		return nil, "", fmt.Errorf("click row %d: %w", rowIndex, err)
	}
	current, ok := f.awaitDetailURL(runCtx, listURL)
	if !ok {
		f.logger.Info("row navigation did not reach a detail page", zap.Int("row", rowIndex))
		return nil, "", f.returnToListing(ctx, listURL)
	}

	detailURL := f.urls.Normalize(current)
	if detailURL == "" {
		detailURL = current
	}
	if ts, ok := f.plainWrittenAt(ctx, detailURL); ok {
		return &ts, detailURL, f.returnToListing(ctx, listURL)
	}
	ts, found := f.writtenAtFromRendered(runCtx)
	retErr := f.returnToListing(ctx, listURL)
	if !found {
		return nil, detailURL, retErr
	}
	return &ts, detailURL, retErr
}

// returnToListing restores the session to the listing page: history
// back first, then a direct reload when the row container does not come
// back. Both paths must converge before the next row is processed.
func (f *Fetcher) returnToListing(ctx context.Context, listURL string) error {
	backCtx, cancel := f.opContext(ctx, f.cfg.WaitTimeout)
	err := chromedp.Run(backCtx,
		chromedp.NavigateBack(),
		chromedp.WaitVisible(f.cfg.RowSelector, chromedp.ByQuery),
	)
	cancel()
	if err == nil {
		return nil
	}

	reloadCtx, cancel := f.opContext(ctx, f.cfg.NavigationTimeout)
	defer cancel()
	err = chromedp.Run(reloadCtx,
		chromedp.Navigate(listURL),
		chromedp.WaitVisible(f.cfg.RowSelector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("restore listing session: %w", err)
	}
	return nil
}

// writtenAtFromRendered polls the rendered body text for a timestamp
// until the wait budget runs out, then falls back to the raw DOM markup.
func (f *Fetcher) writtenAtFromRendered(ctx context.Context) (time.Time, bool) {
	deadline := time.Now().Add(f.cfg.WaitTimeout)
	for {
		var text string
		if err := chromedp.Run(ctx, chromedp.Text("body", &text, chromedp.ByQuery)); err != nil {
			return time.Time{}, false
		}
		if notice.HasDateTime(text) {
			if ts, ok := notice.WrittenAtFromText(text); ok {
				return ts, true
			}
		}
		if time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return time.Time{}, false
		case <-time.After(500 * time.Millisecond):
		}
	}

	var text string
	if err := chromedp.Run(ctx, chromedp.Text("body", &text, chromedp.ByQuery)); err == nil {
		if ts, ok := notice.WrittenAtFromText(text); ok {
			return ts, true
		}
	}
	var markup string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &markup, chromedp.ByQuery)); err != nil {
		return time.Time{}, false
	}
	return notice.WrittenAtFromHTML(markup)
}

// awaitDetailURL waits for the session URL to change into the detail
// shape after a row click.
func (f *Fetcher) awaitDetailURL(ctx context.Context, listURL string) (string, bool) {
	deadline := time.Now().Add(f.cfg.WaitTimeout)
	for {
		var current string
		if err := chromedp.Run(ctx, chromedp.Location(&current)); err != nil {
			return "", false
		}
		if current != listURL && f.urls.IsDetailURL(current) {
			return current, true
		}
		if time.Now().After(deadline) {
			return "", false
		}
		select {
		case <-ctx.Done():
			return "", false
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func (f *Fetcher) clickRow(ctx context.Context, rowIndex int) error {
	js := fmt.Sprintf(
		`(() => { const r = document.querySelectorAll(%q)[%d]; if (!r) return false; r.scrollIntoView(); r.click(); return true; })()`,
		f.cfg.RowSelector, rowIndex,
	)
	var clicked bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &clicked)); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("row %d not present in listing", rowIndex)
	}
	return nil
}

// rowDetailID reads a numeric identifier from the row's data attributes
// in the live DOM.
func (f *Fetcher) rowDetailID(ctx context.Context, rowIndex int) (string, error) {
	runCtx, cancel := f.opContext(ctx, f.cfg.WaitTimeout)
	defer cancel()

	js := fmt.Sprintf(
		`(() => { const r = document.querySelectorAll(%q)[%d]; if (!r) return ""; for (const v of Object.values(r.dataset)) { if (/^\d+$/.test(v)) return v; } return ""; })()`,
		f.cfg.RowSelector, rowIndex,
	)
	var id string
	if err := chromedp.Run(runCtx, chromedp.Evaluate(js, &id)); err != nil {
		return "", err
	}
	return id, nil
}

func (f *Fetcher) rowFragments(ctx context.Context) ([]string, error) {
	js := fmt.Sprintf(`Array.from(document.querySelectorAll(%q)).map(r => r.outerHTML)`, f.cfg.RowSelector)
	var fragments []string
	if err := chromedp.Run(ctx, chromedp.Evaluate(js, &fragments)); err != nil {
		return nil, err
	}
	return fragments, nil
}

// plainWrittenAt tries the cheap path: a bare request for the detail
// page and a pattern search over the markup.
func (f *Fetcher) plainWrittenAt(ctx context.Context, detailURL string) (time.Time, bool) {
	if detailURL == "" {
		return time.Time{}, false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, detailURL, nil)
	if err != nil {
		return time.Time{}, false
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return time.Time{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return time.Time{}, false
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return time.Time{}, false
	}
	return notice.WrittenAtFromHTML(string(body))
}

// opContext derives a per-operation context from the browser session,
// bounded by a timeout and linked to the caller's cancellation.
func (f *Fetcher) opContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithTimeout(f.browserCtx, timeout)
	stop := forwardCancel(parent, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
