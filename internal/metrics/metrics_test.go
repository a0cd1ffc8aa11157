package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestObserversAreSafeBeforeInit(t *testing.T) {
	// Collectors are nil until Init; observing must not panic.
	ObserveListingPage("static")
	ObserveRecords(3)
	ObserveSyncOutcome(OutcomeCreated)
	ObserveRemoteRetry(429)
}

func TestInitAndScrape(t *testing.T) {
	Init()
	Init() // idempotent

	ObserveListingPage("headless")
	ObserveRecords(5)
	ObserveSyncOutcome(OutcomeRetired)
	ObserveRemoteRetry(503)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read scrape body: %v", err)
	}

	for _, name := range []string{
		"scholarsync_listing_pages_total",
		"scholarsync_records_total",
		"scholarsync_sync_outcomes_total",
		"scholarsync_remote_retries_total",
	} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("scrape output missing %s", name)
		}
	}
}
