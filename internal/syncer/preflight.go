package syncer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/scholarsync/crawler/internal/mirror"
)

// preflight verifies the mirror schema before any write. The URL field
// is added when missing; every other required field must already exist
// with the right type. The views field is optional and only used when
// well typed.
func (e *Engine) preflight(ctx context.Context) error {
	db, err := e.mirror.Database(ctx)
	if err != nil {
		return fmt.Errorf("fetch mirror schema: %w", err)
	}

	if _, ok := db.Properties[e.fields.URL]; !ok {
		e.logger.Info("adding URL property to mirror schema", zap.String("property", e.fields.URL))
		db, err = e.mirror.UpdateDatabase(ctx, map[string]any{
			e.fields.URL: map[string]any{"url": map[string]any{}},
		})
		if err != nil {
			return fmt.Errorf("add URL property: %w", err)
		}
	}

	required := []struct {
		name, typ string
	}{
		{e.fields.Title, "title"},
		{e.fields.Author, "select"},
		{e.fields.Date, "date"},
		{e.fields.Pinned, "checkbox"},
		{e.fields.URL, "url"},
	}
	for _, req := range required {
		prop, ok := db.Properties[req.name]
		if !ok {
			return fmt.Errorf("mirror schema missing required property %q", req.name)
		}
		if prop.Type != req.typ {
			return fmt.Errorf("mirror property %q has type %q, want %q", req.name, prop.Type, req.typ)
		}
	}

	if prop, ok := db.Properties[e.fields.Views]; ok {
		if prop.Type == "number" {
			e.hasViews = true
		} else {
			e.logger.Warn("views property mistyped; skipping it",
				zap.String("property", e.fields.Views),
				zap.String("type", prop.Type),
			)
		}
	}

	e.cacheAuthorOptions(db)
	e.logger.Info("mirror schema verified",
		zap.String("database", db.TitleText()),
		zap.Int("author_options", len(e.authorOptions)),
		zap.Bool("views", e.hasViews),
	)
	return nil
}

func (e *Engine) cacheAuthorOptions(db mirror.Database) {
	prop, ok := db.Properties[e.fields.Author]
	if !ok || prop.Select == nil {
		e.authorOptions = nil
		return
	}
	e.authorOptions = prop.Select.Options
}

// ensureAuthorOption extends the author select field with a new option
// when the record's author is not yet among the choices. Existing
// options are resent untouched; the API rejects unknown option fields,
// so each is reduced to its stable attributes first.
func (e *Engine) ensureAuthorOption(ctx context.Context, author string) error {
	for _, opt := range e.authorOptions {
		if opt.Name == author {
			return nil
		}
	}

	options := make([]map[string]any, 0, len(e.authorOptions)+1)
	for _, opt := range e.authorOptions {
		entry := map[string]any{"name": opt.Name}
		if opt.ID != "" {
			entry["id"] = opt.ID
		}
		if opt.Color != "" {
			entry["color"] = opt.Color
		}
		options = append(options, entry)
	}
	options = append(options, map[string]any{"name": author})

	db, err := e.mirror.UpdateDatabase(ctx, map[string]any{
		e.fields.Author: map[string]any{
			"select": map[string]any{"options": options},
		},
	})
	if err != nil {
		return err
	}
	e.cacheAuthorOptions(db)
	e.logger.Info("author option added", zap.String("author", author))
	return nil
}
