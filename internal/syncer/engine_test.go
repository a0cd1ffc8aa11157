package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/scholarsync/crawler/internal/mirror"
	"github.com/scholarsync/crawler/internal/notice"
)

// fakeMirror is an in-memory Mirror with a canned schema and page set.
type fakeMirror struct {
	db    mirror.Database
	dbErr error

	// queryResults maps a JSON-encoded filter to its result set.
	queryResults map[string][]mirror.Page
	pinnedPages  []mirror.Page

	created        []map[string]any
	updated        map[string]map[string]any
	schemaPatches  []map[string]any
	updateDBResult *mirror.Database
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{
		db:           goodSchema(),
		queryResults: make(map[string][]mirror.Page),
		updated:      make(map[string]map[string]any),
	}
}

func goodSchema() mirror.Database {
	return mirror.Database{
		ID: "db-1",
		Properties: map[string]mirror.Property{
			"제목":  {Type: "title"},
			"작성자": {Type: "select", Select: &mirror.SelectOptions{Options: []mirror.SelectOption{{ID: "o1", Name: "장학팀", Color: "blue"}}}},
			"작성일": {Type: "date"},
			"TOP": {Type: "checkbox"},
			"URL": {Type: "url"},
			"조회수": {Type: "number"},
		},
	}
}

func (f *fakeMirror) Database(context.Context) (mirror.Database, error) {
	return f.db, f.dbErr
}

func (f *fakeMirror) UpdateDatabase(_ context.Context, properties map[string]any) (mirror.Database, error) {
	f.schemaPatches = append(f.schemaPatches, properties)
	if f.updateDBResult != nil {
		f.db = *f.updateDBResult
	}
	return f.db, nil
}

func (f *fakeMirror) QueryPages(_ context.Context, filter any) ([]mirror.Page, error) {
	key, err := json.Marshal(filter)
	if err != nil {
		return nil, err
	}
	return f.queryResults[string(key)], nil
}

func (f *fakeMirror) EachPinnedPage(_ context.Context, _ string, fn func(mirror.Page) error) error {
	for _, p := range f.pinnedPages {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeMirror) CreatePage(_ context.Context, properties, _ map[string]any) error {
	f.created = append(f.created, properties)
	return nil
}

func (f *fakeMirror) UpdatePage(_ context.Context, pageID string, properties, _ map[string]any) error {
	f.updated[pageID] = properties
	return nil
}

// setQueryResult registers pages for the given filter.
func (f *fakeMirror) setQueryResult(t *testing.T, filter map[string]any, pages ...mirror.Page) {
	t.Helper()
	key, err := json.Marshal(filter)
	require.NoError(t, err)
	f.queryResults[string(key)] = pages
}

func urlFilter(u string) map[string]any {
	return map[string]any{"property": "URL", "url": map[string]any{"equals": u}}
}

func titleFilter(title string) map[string]any {
	return map[string]any{"property": "제목", "title": map[string]any{"equals": title}}
}

func titleDateFilter(title, day string) map[string]any {
	return map[string]any{"and": []any{
		map[string]any{"property": "제목", "title": map[string]any{"equals": title}},
		map[string]any{"property": "작성일", "date": map[string]any{"equals": day}},
	}}
}

func pinnedPage(id, title, url, dateStart string) mirror.Page {
	checked := true
	props := map[string]mirror.PageProperty{
		"TOP": {Type: "checkbox", Checkbox: &checked},
	}
	if title != "" {
		props["제목"] = mirror.PageProperty{Type: "title", Title: []mirror.RichText{{PlainText: title}}}
	}
	if url != "" {
		u := url
		props["URL"] = mirror.PageProperty{Type: "url", URL: &u}
	}
	if dateStart != "" {
		props["작성일"] = mirror.PageProperty{Type: "date", Date: &mirror.DateValue{Start: dateStart}}
	}
	return mirror.Page{ID: id, Properties: props}
}

func testRecord(title, url string, day time.Time) notice.Record {
	return notice.Record{Title: title, Author: "장학팀", Date: &day, Pinned: true, SourceURL: url}
}

func newTestEngine(t *testing.T, m Mirror) *Engine {
	t.Helper()
	return New(m, DefaultFields(), zaptest.NewLogger(t))
}

func TestReconcileEmptyRunIsFatal(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, newFakeMirror())
	_, err := e.Reconcile(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoRecords)
}

func TestReconcileCreatesNewRecord(t *testing.T) {
	t.Parallel()

	f := newFakeMirror()
	e := newTestEngine(t, f)

	day := time.Date(2024, 3, 5, 9, 30, 0, 0, notice.KST)
	rec := testRecord("국가장학금", "https://x/ko/detail/1", day)

	stats, err := e.Reconcile(context.Background(), []notice.Record{rec})
	require.NoError(t, err)
	require.Equal(t, Stats{Created: 1}, stats)
	require.Len(t, f.created, 1)

	props := f.created[0]
	require.Contains(t, props, "제목")
	require.Equal(t, map[string]any{"checkbox": true}, props["TOP"])
	require.Equal(t, map[string]any{"url": "https://x/ko/detail/1"}, props["URL"])
	require.Equal(t, map[string]any{"date": map[string]any{"start": "2024-03-05T09:30:00+09:00"}}, props["작성일"])
}

func TestReconcileUpdatesByURL(t *testing.T) {
	t.Parallel()

	f := newFakeMirror()
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, notice.KST)
	rec := testRecord("국가장학금", "https://x/ko/detail/1", day)
	f.setQueryResult(t, urlFilter(rec.SourceURL), mirror.Page{ID: "p1"})

	e := newTestEngine(t, f)
	stats, err := e.Reconcile(context.Background(), []notice.Record{rec})
	require.NoError(t, err)
	require.Equal(t, Stats{Updated: 1}, stats)
	require.Contains(t, f.updated, "p1")
	require.Empty(t, f.created)
}

func TestReconcileFallsBackToTitleDate(t *testing.T) {
	t.Parallel()

	f := newFakeMirror()
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, notice.KST)
	rec := testRecord("국가장학금", "https://x/ko/detail/1", day)
	f.setQueryResult(t, titleDateFilter("국가장학금", "2024-03-05"), mirror.Page{ID: "p2"})

	e := newTestEngine(t, f)
	stats, err := e.Reconcile(context.Background(), []notice.Record{rec})
	require.NoError(t, err)
	require.Equal(t, Stats{Updated: 1}, stats)
	require.Contains(t, f.updated, "p2")
}

func TestReconcileAmbiguousTitleSkips(t *testing.T) {
	t.Parallel()

	f := newFakeMirror()
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, notice.KST)
	rec := testRecord("국가장학금", "", day)
	// No URL and no title+date match; the title-only lookup finds two.
	f.setQueryResult(t, titleFilter("국가장학금"), mirror.Page{ID: "p1"}, mirror.Page{ID: "p2"})

	e := newTestEngine(t, f)
	stats, err := e.Reconcile(context.Background(), []notice.Record{rec})
	require.NoError(t, err)
	require.Equal(t, Stats{Skipped: 1}, stats)
	require.Empty(t, f.created)
	require.Empty(t, f.updated)
}

func TestPreflightMissingRequiredPropertyFatal(t *testing.T) {
	t.Parallel()

	f := newFakeMirror()
	db := goodSchema()
	delete(db.Properties, "작성일")
	f.db = db

	e := newTestEngine(t, f)
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, notice.KST)
	_, err := e.Reconcile(context.Background(), []notice.Record{testRecord("A", "", day)})
	require.Error(t, err)
	require.Contains(t, err.Error(), "작성일")
}

func TestPreflightMistypedPropertyFatal(t *testing.T) {
	t.Parallel()

	f := newFakeMirror()
	db := goodSchema()
	db.Properties["TOP"] = mirror.Property{Type: "select"}
	f.db = db

	e := newTestEngine(t, f)
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, notice.KST)
	_, err := e.Reconcile(context.Background(), []notice.Record{testRecord("A", "", day)})
	require.Error(t, err)
	require.Contains(t, err.Error(), "TOP")
}

func TestPreflightAddsURLProperty(t *testing.T) {
	t.Parallel()

	f := newFakeMirror()
	db := goodSchema()
	delete(db.Properties, "URL")
	f.db = db
	fixed := goodSchema()
	f.updateDBResult = &fixed

	e := newTestEngine(t, f)
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, notice.KST)
	_, err := e.Reconcile(context.Background(), []notice.Record{testRecord("A", "", day)})
	require.NoError(t, err)
	require.NotEmpty(t, f.schemaPatches)
	require.Contains(t, f.schemaPatches[0], "URL")
}

func TestPreflightMistypedViewsSkipped(t *testing.T) {
	t.Parallel()

	f := newFakeMirror()
	db := goodSchema()
	db.Properties["조회수"] = mirror.Property{Type: "rich_text"}
	f.db = db

	e := newTestEngine(t, f)
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, notice.KST)
	rec := testRecord("A", "", day)
	views := 42
	rec.Views = &views

	_, err := e.Reconcile(context.Background(), []notice.Record{rec})
	require.NoError(t, err)
	require.Len(t, f.created, 1)
	require.NotContains(t, f.created[0], "조회수")
}

func TestReconcileAddsUnknownAuthorOption(t *testing.T) {
	t.Parallel()

	f := newFakeMirror()
	e := newTestEngine(t, f)

	day := time.Date(2024, 3, 5, 0, 0, 0, 0, notice.KST)
	rec := testRecord("A", "", day)
	rec.Author = "국제팀"

	_, err := e.Reconcile(context.Background(), []notice.Record{rec})
	require.NoError(t, err)
	require.Len(t, f.schemaPatches, 1)

	patch, ok := f.schemaPatches[0]["작성자"].(map[string]any)
	require.True(t, ok, fmt.Sprintf("unexpected patch shape: %#v", f.schemaPatches[0]))
	sel := patch["select"].(map[string]any)
	options := sel["options"].([]map[string]any)
	require.Len(t, options, 2)
	require.Equal(t, "장학팀", options[0]["name"])
	require.Equal(t, "국제팀", options[1]["name"])
}

func TestReconcileKnownAuthorNoSchemaPatch(t *testing.T) {
	t.Parallel()

	f := newFakeMirror()
	e := newTestEngine(t, f)

	day := time.Date(2024, 3, 5, 0, 0, 0, 0, notice.KST)
	_, err := e.Reconcile(context.Background(), []notice.Record{testRecord("A", "", day)})
	require.NoError(t, err)
	require.Empty(t, f.schemaPatches)
}

func TestRetire(t *testing.T) {
	t.Parallel()

	f := newFakeMirror()
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, notice.KST)
	rec := testRecord("살아있는 공지", "https://x/ko/detail/1", day)
	f.setQueryResult(t, urlFilter(rec.SourceURL), mirror.Page{ID: "p-alive"})

	f.pinnedPages = []mirror.Page{
		// Survives on URL match.
		pinnedPage("p-alive", "살아있는 공지", "https://x/ko/detail/1", "2024-03-05"),
		// Survives on title+day match despite a different URL.
		pinnedPage("p-title", "살아있는 공지", "https://x/ko/detail/other", "2024-03-05T10:00:00+09:00"),
		// Untitled documents are left untouched.
		pinnedPage("p-untitled", "", "", ""),
		// Gone from the source; retired.
		pinnedPage("p-stale", "지난 공지", "", "2024-01-01"),
	}

	e := newTestEngine(t, f)
	stats, err := e.Reconcile(context.Background(), []notice.Record{rec})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Retired)

	require.Contains(t, f.updated, "p-stale")
	require.Equal(t, map[string]any{"checkbox": false}, f.updated["p-stale"]["TOP"])
	require.NotContains(t, f.updated, "p-title")
	require.NotContains(t, f.updated, "p-untitled")
}
