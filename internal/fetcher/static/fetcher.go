// Package static implements the listing fetcher over plain HTTP using
// the Colly collector. It needs no browser: the listing table is parsed
// straight out of the response markup.
package static

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/scholarsync/crawler/internal/notice"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher fetches listing and detail pages with a cloned Colly
// collector per request.
type Fetcher struct {
	cfg           Config
	urls          *notice.Normalizer
	extractor     *notice.Extractor
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, urls *notice.Normalizer, extractor *notice.Extractor, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	// colly v2.1.0's Async option ignores its argument and always enables
	// async mode; synchronous is the default, so pass no option.
	c := colly.NewCollector()
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		urls:          urls,
		extractor:     extractor,
		baseCollector: c,
		logger:        logger,
	}
}

// Close implements fetcher.ListFetcher; the static path holds no session.
func (f *Fetcher) Close() {}

// FetchPage loads one listing page and extracts its rows.
func (f *Fetcher) FetchPage(ctx context.Context, page int) ([]notice.Record, error) {
	body, err := f.get(ctx, f.urls.ListURL(page))
	if err != nil {
		return nil, fmt.Errorf("fetch listing page %d: %w", page, err)
	}
	return f.extractor.ExtractAll(string(body), "tr")
}

// ResolveDetail fetches the record's detail page and searches the markup
// for the written-at label. Records without a resolved URL keep their
// listing date; the static path cannot navigate into a row.
func (f *Fetcher) ResolveDetail(ctx context.Context, _ int, rec notice.Record) (*time.Time, string, error) {
	if rec.SourceURL == "" {
		return nil, "", nil
	}
	body, err := f.get(ctx, rec.SourceURL)
	if err != nil {
		return nil, rec.SourceURL, fmt.Errorf("fetch detail page: %w", err)
	}
	if ts, ok := notice.WrittenAtFromHTML(string(body)); ok {
		return &ts, rec.SourceURL, nil
	}
	return nil, rec.SourceURL, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("visit %s: %w", url, err)
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("response for %s: %w", url, fetchErr)
		}
		return body, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
