// Package host declares the capabilities the extraction pipeline consumes
// from the note-taking application it runs inside.
package host

import (
	"context"
	"log/slog"

	"github.com/dtnitsch/linkmeta/models"
)

// BlockStore reads and writes blocks and tags.
type BlockStore interface {
	GetBlock(ctx context.Context, id string) (*models.Block, error)
	// SetBlockProperties replaces or adds the given properties on a block,
	// keyed by name. Used for tag schemas.
	SetBlockProperties(ctx context.Context, blockID string, props []models.Property) error
	// InsertTag applies the named tag to a block with the given values and
	// returns the id of the tag block owning the schema, or "" if none.
	InsertTag(ctx context.Context, blockID, tagName string, props []models.Property) (string, error)
	SetBlockContent(ctx context.Context, blockID string, content []models.InlineContent) error
}

// AssetStore persists binary assets and returns a durable reference.
type AssetStore interface {
	UploadAssetFromURL(ctx context.Context, url string) (string, error)
	UploadAssetFromBytes(ctx context.Context, mimeType string, data []byte) (string, error)
}

// Notifier shows a message to the user.
type Notifier interface {
	Notify(level models.NotifyLevel, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(level models.NotifyLevel, message string)

func (f NotifierFunc) Notify(level models.NotifyLevel, message string) { f(level, message) }

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(level models.NotifyLevel, message string) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch level {
	case models.NotifyError:
		logger.Error(message, "notify", string(level))
	case models.NotifyWarn:
		logger.Warn(message, "notify", string(level))
	default:
		logger.Info(message, "notify", string(level))
	}
}
