package notice

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Source defaults for the announcement board.
const (
	DefaultOrigin   = "https://www.sogang.ac.kr"
	DefaultListPath = "/ko/scholarship-notice"
	DefaultBoardID  = "141"

	// PinMarker is the first-cell token marking a sticky row.
	PinMarker = "TOP"
)

var detailPathPattern = regexp.MustCompile(`/detail/\d+`)

// listingParams are query parameters that only select a listing view.
// They are stripped during canonicalization so two links into the same
// detail page compare equal.
var listingParams = map[string]struct{}{
	"introPkId": {},
	"option":    {},
	"page":      {},
}

// placeholderHrefs are anchor targets that navigate nowhere.
var placeholderHrefs = map[string]struct{}{
	"#":                   {},
	"#/":                  {},
	"javascript:void(0)":  {},
	"javascript:void(0);": {},
}

var rejectedSchemes = []string{"javascript:", "mailto:", "tel:", "data:"}

// Normalizer canonicalizes detail-page links against the fixed source
// origin and builds the listing and detail endpoint URLs.
type Normalizer struct {
	origin   *url.URL
	listPath string
	boardID  string
}

// NewNormalizer builds a Normalizer. Empty arguments fall back to the
// source defaults.
func NewNormalizer(origin, listPath, boardID string) (*Normalizer, error) {
	if origin == "" {
		origin = DefaultOrigin
	}
	if listPath == "" {
		listPath = DefaultListPath
	}
	if boardID == "" {
		boardID = DefaultBoardID
	}
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse source origin: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("source origin %q must be absolute", origin)
	}
	return &Normalizer{origin: u, listPath: listPath, boardID: boardID}, nil
}

// Normalize canonicalizes a raw link. It returns "" for links that do
// not navigate anywhere useful: empty input, fragment placeholders, and
// non-navigational schemes. Protocol-relative and root-relative links
// resolve against the source origin. Listing-only query parameters are
// dropped and the rest re-encoded sorted by key, so Normalize is
// idempotent.
func (n *Normalizer) Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	lowered := strings.ToLower(raw)
	if _, ok := placeholderHrefs[lowered]; ok {
		return ""
	}
	for _, scheme := range rejectedSchemes {
		if strings.HasPrefix(lowered, scheme) {
			return ""
		}
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if u.Scheme == "" || u.Host == "" {
		if !strings.HasPrefix(raw, "/") {
			return ""
		}
		u = n.origin.ResolveReference(u)
	}

	q := u.Query()
	for key := range q {
		if _, drop := listingParams[key]; drop {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String()
}

// IsDetailURL reports whether the URL points at a detail page: either
// the path carries the detail shape or the query names the board.
func (n *Normalizer) IsDetailURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if detailPathPattern.MatchString(u.Path) {
		return true
	}
	return u.Query().Has("bbsConfigFk")
}

// DetailURL builds the canonical detail endpoint for a row identifier.
func (n *Normalizer) DetailURL(id string) string {
	return fmt.Sprintf("%s://%s/ko/detail/%s?bbsConfigFk=%s", n.origin.Scheme, n.origin.Host, id, n.boardID)
}

// ListURL builds the listing endpoint for a page number with the
// source's default filter options.
func (n *Normalizer) ListURL(page int) string {
	q := url.Values{}
	q.Set("introPkId", "All")
	q.Set("option", "TITLE")
	q.Set("page", strconv.Itoa(page))
	return fmt.Sprintf("%s://%s%s?%s", n.origin.Scheme, n.origin.Host, n.listPath, q.Encode())
}
