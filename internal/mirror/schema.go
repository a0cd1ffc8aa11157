package mirror

import (
	"context"
	"strings"
)

// Database is the mirror database's schema view.
type Database struct {
	ID         string              `json:"id"`
	Title      []RichText          `json:"title"`
	Properties map[string]Property `json:"properties"`
}

// TitleText joins the database title fragments.
func (d Database) TitleText() string {
	var b strings.Builder
	for _, part := range d.Title {
		b.WriteString(part.PlainText)
	}
	return strings.TrimSpace(b.String())
}

// RichText is one rich-text fragment in API responses and payloads.
type RichText struct {
	PlainText string `json:"plain_text,omitempty"`
}

// Property describes one schema field.
type Property struct {
	ID          string         `json:"id,omitempty"`
	Type        string         `json:"type"`
	Select      *SelectOptions `json:"select,omitempty"`
	MultiSelect *SelectOptions `json:"multi_select,omitempty"`
	Status      *SelectOptions `json:"status,omitempty"`
	Relation    *Relation      `json:"relation,omitempty"`
	Rollup      *Rollup        `json:"rollup,omitempty"`
	Formula     *Formula       `json:"formula,omitempty"`
}

// SelectOptions holds a choice field's option list.
type SelectOptions struct {
	Options []SelectOption `json:"options"`
}

// SelectOption is one choice of a select-style field.
type SelectOption struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Relation describes a relation field's target.
type Relation struct {
	DatabaseID string `json:"database_id"`
}

// Rollup describes a rollup field's source properties.
type Rollup struct {
	RelationPropertyName string `json:"relation_property_name"`
	RollupPropertyName   string `json:"rollup_property_name"`
}

// Formula carries a formula field's expression.
type Formula struct {
	Expression string `json:"expression"`
}

// Database fetches the mirror database schema.
func (c *Client) Database(ctx context.Context) (Database, error) {
	var db Database
	err := c.do(ctx, "GET", "/databases/"+c.cfg.DatabaseID, nil, &db)
	return db, err
}

// UpdateDatabase patches schema properties, returning the refreshed
// schema. Used to add the URL field and to extend select options; the
// engine never removes or renames anything through it.
func (c *Client) UpdateDatabase(ctx context.Context, properties map[string]any) (Database, error) {
	var db Database
	err := c.do(ctx, "PATCH", "/databases/"+c.cfg.DatabaseID, map[string]any{"properties": properties}, &db)
	return db, err
}
