package mirror

import (
	"context"
	"strings"
)

// pinnedPageSize is the cursor page size for the retirement scan.
const pinnedPageSize = 100

// Page is one mirror document.
type Page struct {
	ID         string                  `json:"id"`
	Properties map[string]PageProperty `json:"properties"`
}

// PageProperty is one document field value. Only the variants the
// engine reads are modeled.
type PageProperty struct {
	Type     string        `json:"type"`
	Title    []RichText    `json:"title,omitempty"`
	Date     *DateValue    `json:"date,omitempty"`
	URL      *string       `json:"url,omitempty"`
	Checkbox *bool         `json:"checkbox,omitempty"`
	Select   *SelectOption `json:"select,omitempty"`
	Number   *float64      `json:"number,omitempty"`
}

// DateValue is a document date field's payload.
type DateValue struct {
	Start string `json:"start"`
}

// TitleText extracts the plain title text of the named field.
func (p Page) TitleText(field string) string {
	prop, ok := p.Properties[field]
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, part := range prop.Title {
		b.WriteString(part.PlainText)
	}
	return strings.TrimSpace(b.String())
}

// DateStart returns the named date field's start value, or "".
func (p Page) DateStart(field string) string {
	prop, ok := p.Properties[field]
	if !ok || prop.Date == nil {
		return ""
	}
	return prop.Date.Start
}

// URLValue returns the named URL field's value, or "".
func (p Page) URLValue(field string) string {
	prop, ok := p.Properties[field]
	if !ok || prop.URL == nil {
		return ""
	}
	return *prop.URL
}

type queryRequest struct {
	Filter      any    `json:"filter,omitempty"`
	PageSize    int    `json:"page_size,omitempty"`
	StartCursor string `json:"start_cursor,omitempty"`
}

type queryResponse struct {
	Results    []Page `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

// QueryPages runs one filtered query and returns the first result page.
// Identity lookups expect zero or one match, so a single page is enough.
func (c *Client) QueryPages(ctx context.Context, filter any) ([]Page, error) {
	var resp queryResponse
	err := c.do(ctx, "POST", "/databases/"+c.cfg.DatabaseID+"/query", queryRequest{Filter: filter}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// EachPinnedPage walks every document whose pinned checkbox is set,
// following the cursor until exhaustion.
func (c *Client) EachPinnedPage(ctx context.Context, pinnedField string, fn func(Page) error) error {
	req := queryRequest{
		Filter: map[string]any{
			"property": pinnedField,
			"checkbox": map[string]any{"equals": true},
		},
		PageSize: pinnedPageSize,
	}
	for {
		var resp queryResponse
		if err := c.do(ctx, "POST", "/databases/"+c.cfg.DatabaseID+"/query", req, &resp); err != nil {
			return err
		}
		for _, page := range resp.Results {
			if err := fn(page); err != nil {
				return err
			}
		}
		if !resp.HasMore {
			return nil
		}
		req.StartCursor = resp.NextCursor
	}
}

// CreatePage creates a document in the mirror database.
func (c *Client) CreatePage(ctx context.Context, properties, icon map[string]any) error {
	payload := map[string]any{
		"parent":     map[string]any{"database_id": c.cfg.DatabaseID},
		"properties": properties,
	}
	if icon != nil {
		payload["icon"] = icon
	}
	return c.do(ctx, "POST", "/pages", payload, nil)
}

// UpdatePage patches a document's properties in place.
func (c *Client) UpdatePage(ctx context.Context, pageID string, properties, icon map[string]any) error {
	payload := map[string]any{"properties": properties}
	if icon != nil {
		payload["icon"] = icon
	}
	return c.do(ctx, "PATCH", "/pages/"+pageID, payload, nil)
}
