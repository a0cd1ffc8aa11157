// Package fetcher defines the listing capability shared by the static
// and browser-driven extraction backends. One implementation is chosen
// at run start and never mixed mid-run, so the reconciliation path is
// indifferent to how a record was obtained.
package fetcher

import (
	"context"
	"time"

	"github.com/scholarsync/crawler/internal/notice"
)

// ListFetcher produces listing rows page by page and resolves the
// authoritative written-at timestamp for individual rows.
type ListFetcher interface {
	// FetchPage returns the records extracted from one listing page.
	// An error means the page could not be loaded; callers treat it as
	// end of pagination, keeping records from earlier pages.
	FetchPage(ctx context.Context, page int) ([]notice.Record, error)

	// ResolveDetail fetches the record's detail page and returns the
	// authoritative written-at timestamp and the canonical detail URL.
	// Either return may be absent (nil / ""); an error is advisory and
	// never aborts the run.
	ResolveDetail(ctx context.Context, page int, rec notice.Record) (*time.Time, string, error)

	// Close releases any session resources held by the fetcher.
	Close()
}
