package notice

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	digitsPattern   = regexp.MustCompile(`[^0-9]`)
	detailIDPattern = regexp.MustCompile(`/detail/(\d+)`)
)

// rowDetailIDAttrs are per-row data attributes that may carry the detail
// identifier when the row exposes no link.
var rowDetailIDAttrs = []string{
	"data-id",
	"data-no",
	"data-board-id",
	"data-article-id",
	"data-detail-id",
}

// Extractor turns raw listing rows into Records. It is a pure
// transformation; malformed rows are dropped, not reported.
type Extractor struct {
	urls *Normalizer
}

// NewExtractor builds an Extractor bound to a URL normalizer.
func NewExtractor(urls *Normalizer) *Extractor {
	return &Extractor{urls: urls}
}

// Extract converts one row selection into a Record. The second return
// value is false for rows that cannot become a record: fewer than five
// cells, an empty title, or an unparseable date or view count.
func (e *Extractor) Extract(row *goquery.Selection) (Record, bool) {
	cells := row.Find("td")
	if cells.Length() < 5 {
		return Record{}, false
	}
	texts := make([]string, 0, cells.Length())
	cells.Each(func(_ int, cell *goquery.Selection) {
		texts = append(texts, cleanText(cell.Text()))
	})

	title := texts[1]
	date, dateOK := ParseDateTime(texts[len(texts)-2])
	views, viewsOK := parseViews(texts[len(texts)-1])
	if title == "" || !dateOK || !viewsOK {
		return Record{}, false
	}

	return Record{
		Title:     title,
		Author:    texts[2],
		Date:      &date,
		Views:     &views,
		Pinned:    strings.EqualFold(strings.TrimSpace(texts[0]), PinMarker),
		SourceURL: e.detailURLFromRow(row),
	}, true
}

// ExtractAll parses a listing document and extracts every row matching
// the selector, assigning row indexes in document order.
func (e *Extractor) ExtractAll(markup, rowSelector string) ([]Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse listing markup: %w", err)
	}
	var records []Record
	doc.Find(rowSelector).Each(func(i int, row *goquery.Selection) {
		rec, ok := e.Extract(row)
		if !ok {
			return
		}
		rec.RowIndex = i
		records = append(records, rec)
	})
	return records, nil
}

// ParseRow parses a standalone <tr> fragment. The html package drops
// table rows that appear outside a table, so the fragment is wrapped
// before parsing.
func ParseRow(fragment string) (*goquery.Selection, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<table><tbody>" + fragment + "</tbody></table>"))
	if err != nil {
		return nil, fmt.Errorf("parse row fragment: %w", err)
	}
	row := doc.Find("tr").First()
	if row.Length() == 0 {
		return nil, fmt.Errorf("row fragment contains no tr element")
	}
	return row, nil
}

// detailURLFromRow returns the first row link whose canonical form is a
// detail URL. When no link qualifies it derives the URL from a row
// identifier: a known data attribute first, then a detail id embedded
// anywhere in the row markup.
func (e *Extractor) detailURLFromRow(row *goquery.Selection) string {
	found := ""
	row.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if candidate := e.urls.Normalize(href); candidate != "" && e.urls.IsDetailURL(candidate) {
			found = candidate
			return false
		}
		return true
	})
	if found != "" {
		return found
	}
	if id := DetailIDFromRow(row); id != "" {
		return e.urls.Normalize(e.urls.DetailURL(id))
	}
	return ""
}

// DetailIDFromRow returns the numeric detail identifier carried by the
// row, or "" when none is present.
func DetailIDFromRow(row *goquery.Selection) string {
	for _, attr := range rowDetailIDAttrs {
		if v, ok := row.Attr(attr); ok && isDigits(v) {
			return v
		}
	}
	markup, err := goquery.OuterHtml(row)
	if err != nil {
		return ""
	}
	if m := detailIDPattern.FindStringSubmatch(markup); m != nil {
		return m[1]
	}
	return ""
}

func parseViews(text string) (int, bool) {
	digits := digitsPattern.ReplaceAllString(text, "")
	if digits == "" {
		return 0, false
	}
	n := 0
	for _, c := range digits {
		n = n*10 + int(c-'0')
	}
	return n, true
}

func cleanText(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
