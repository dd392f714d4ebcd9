// Package applier commits formatted properties onto a block: it applies the
// rule's tag, grows the tag schema and relabels the block with its title.
package applier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dtnitsch/linkmeta/models"
	"github.com/dtnitsch/linkmeta/pkg/host"
	"github.com/dtnitsch/linkmeta/pkg/schema"
)

// Result describes what Apply changed.
type Result struct {
	TagBlockID    string
	SchemaChanges []schema.Change
	// SchemaErr is set when the schema could not be synced. The tag
	// values were still applied.
	SchemaErr error
	Title     string
	// ContentErr is set when relabelling the block failed.
	ContentErr error
}

type Applier struct {
	store       host.BlockStore
	reconciler  *schema.Reconciler
	titleFormat string
	logger      *slog.Logger
}

// New returns an Applier. titleFormat is a fmt verb string with one %s,
// models.DefaultTitleFormat when empty.
func New(store host.BlockStore, reconciler *schema.Reconciler, titleFormat string, logger *slog.Logger) *Applier {
	if titleFormat == "" || !strings.Contains(titleFormat, "%s") {
		titleFormat = models.DefaultTitleFormat
	}
	if logger == nil {
		logger = slog.Default()
	}
	if reconciler == nil {
		reconciler = schema.NewReconciler(store, logger)
	}
	return &Applier{store: store, reconciler: reconciler, titleFormat: titleFormat, logger: logger}
}

// Apply inserts the tag, reconciles its schema and rewrites the block's
// content to the formatted title. Only a failed tag insert is returned as
// an error; schema and content failures are logged and reported in Result.
func (a *Applier) Apply(ctx context.Context, blockID string, rule models.Rule, props []models.Property) (*Result, error) {
	tagBlockID, err := a.store.InsertTag(ctx, blockID, rule.TagName, props)
	if err != nil {
		return nil, fmt.Errorf("failed to apply tag %s: %w", rule.TagName, err)
	}
	res := &Result{TagBlockID: tagBlockID}

	if tagBlockID != "" {
		res.SchemaChanges, res.SchemaErr = a.reconciler.Sync(ctx, rule.TagName, tagBlockID, props)
		if res.SchemaErr != nil {
			if !errors.Is(res.SchemaErr, models.ErrSchemaSync) {
				res.SchemaErr = fmt.Errorf("%w: %w", models.ErrSchemaSync, res.SchemaErr)
			}
			a.logger.Warn("tag schema left as-is", "tag", rule.TagName, "error", res.SchemaErr)
		}
	}

	title := TitleOf(props, rule.Title())
	if title == "" {
		return res, nil
	}
	res.Title = fmt.Sprintf(a.titleFormat, title)
	if err := a.store.SetBlockContent(ctx, blockID, models.TextContent(res.Title)); err != nil {
		res.ContentErr = err
		a.logger.Warn("failed to set block content", "block", blockID, "error", err)
	}
	return res, nil
}

// TitleOf returns the trimmed string value of the named property.
func TitleOf(props []models.Property, name string) string {
	p, ok := models.FindProperty(props, name)
	if !ok {
		return ""
	}
	s, ok := p.StringValue()
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
