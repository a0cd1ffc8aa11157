package mirror

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, baseURL string) (*Client, *[]time.Duration) {
	t.Helper()
	c := NewClient(Config{
		Token:             "secret-token",
		DatabaseID:        "db-1",
		BaseURL:           baseURL,
		RequestsPerSecond: 1000,
	}, zaptest.NewLogger(t))

	var sleeps []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return c, &sleeps
}

func TestDoSendsHeaders(t *testing.T) {
	t.Parallel()

	var gotAuth, gotVersion, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.Header.Get("Notion-Version")
		gotContentType = r.Header.Get("Content-Type")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	require.NoError(t, c.do(context.Background(), "GET", "/databases/db-1", nil, nil))
	require.Equal(t, "Bearer secret-token", gotAuth)
	require.Equal(t, "2022-06-28", gotVersion)
	require.Equal(t, "application/json", gotContentType)
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls <= 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "db-1"})
	}))
	defer srv.Close()

	c, sleeps := newTestClient(t, srv.URL)
	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, c.do(context.Background(), "GET", "/databases/db-1", nil, &out))
	require.Equal(t, 4, calls)
	require.Equal(t, "db-1", out.ID)

	// Exponential backoff without a server hint: 1s, 2s, 4s.
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, *sleeps)
}

func TestDoExhaustsRetryBudget(t *testing.T) {
	t.Parallel()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	err := c.do(context.Background(), "GET", "/databases/db-1", nil, nil)
	require.Error(t, err)
	require.Equal(t, 4, calls)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
}

func TestDoNonRetryableFailsImmediately(t *testing.T) {
	t.Parallel()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"bad filter"}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	err := c.do(context.Background(), "POST", "/databases/db-1/query", map[string]any{}, nil)
	require.Error(t, err)
	require.Equal(t, 1, calls)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
	require.Contains(t, apiErr.Body, "bad filter")
}

func TestDoHonorsRetryAfter(t *testing.T) {
	t.Parallel()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, sleeps := newTestClient(t, srv.URL)
	require.NoError(t, c.do(context.Background(), "GET", "/databases/db-1", nil, nil))
	require.Equal(t, []time.Duration{7 * time.Second}, *sleeps)
}

func TestNextBackoffCapped(t *testing.T) {
	t.Parallel()

	require.Equal(t, 2*time.Second, nextBackoff(time.Second))
	require.Equal(t, 8*time.Second, nextBackoff(4*time.Second))
	require.Equal(t, 8*time.Second, nextBackoff(8*time.Second))
}

func TestEachPinnedPageFollowsCursor(t *testing.T) {
	t.Parallel()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req queryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := queryResponse{Results: []Page{{ID: "p1"}}}
		if calls == 1 {
			require.Empty(t, req.StartCursor)
			resp.HasMore = true
			resp.NextCursor = "cur-2"
		} else {
			require.Equal(t, "cur-2", req.StartCursor)
			resp.Results = []Page{{ID: "p2"}}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	var ids []string
	err := c.EachPinnedPage(context.Background(), "TOP", func(p Page) error {
		ids = append(ids, p.ID)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"p1", "p2"}, ids)
	require.Equal(t, 2, calls)
}

func TestPageAccessors(t *testing.T) {
	t.Parallel()

	raw := `{
		"id": "p1",
		"properties": {
			"제목": {"type": "title", "title": [{"plain_text": "국가"}, {"plain_text": "장학금"}]},
			"작성일": {"type": "date", "date": {"start": "2024-03-05T09:30:00+09:00"}},
			"URL": {"type": "url", "url": "https://www.sogang.ac.kr/ko/detail/1"},
			"TOP": {"type": "checkbox", "checkbox": true}
		}
	}`
	var p Page
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	require.Equal(t, "국가장학금", p.TitleText("제목"))
	require.Equal(t, "2024-03-05T09:30:00+09:00", p.DateStart("작성일"))
	require.Equal(t, "https://www.sogang.ac.kr/ko/detail/1", p.URLValue("URL"))
	require.Equal(t, "", p.TitleText("없음"))
	require.Equal(t, "", p.DateStart("없음"))
	require.Equal(t, "", p.URLValue("없음"))
}
