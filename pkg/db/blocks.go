package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/dtnitsch/linkmeta/models"
	"github.com/google/uuid"
)

// ErrBlockNotFound is returned when a block id does not exist.
var ErrBlockNotFound = errors.New("block not found")

// CreateBlock inserts a new block with the given content and returns its id.
func (db *DB) CreateBlock(ctx context.Context, content []models.InlineContent) (string, error) {
	encoded, err := encodeContent(content)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	if _, err := db.ExecContext(ctx, `INSERT INTO blocks (block_id, content) VALUES (?, ?)`, id, encoded); err != nil {
		return "", fmt.Errorf("failed to insert block: %w", err)
	}
	return id, nil
}

// GetBlock loads a block with its properties (in insertion order) and tags.
func (db *DB) GetBlock(ctx context.Context, id string) (*models.Block, error) {
	var content string
	err := db.QueryRowContext(ctx, `SELECT content FROM blocks WHERE block_id = ?`, id).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get block: %w", err)
	}

	block := &models.Block{ID: id}
	if err := json.Unmarshal([]byte(content), &block.Content); err != nil {
		return nil, fmt.Errorf("failed to decode content of block %s: %w", id, err)
	}

	if block.Properties, err = db.blockProperties(ctx, id); err != nil {
		return nil, err
	}
	if block.Tags, err = db.blockTags(ctx, id); err != nil {
		return nil, err
	}
	return block, nil
}

func (db *DB) blockProperties(ctx context.Context, id string) ([]models.Property, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name, type, value, type_args
		FROM block_properties
		WHERE block_id = ?
		ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query block properties: %w", err)
	}
	defer rows.Close()

	var props []models.Property
	for rows.Next() {
		var (
			p        models.Property
			typ      int
			value    sql.NullString
			typeArgs sql.NullString
		)
		if err := rows.Scan(&p.Name, &typ, &value, &typeArgs); err != nil {
			return nil, fmt.Errorf("failed to scan block property: %w", err)
		}
		p.Type = models.PropertyType(typ)
		if value.Valid {
			if err := json.Unmarshal([]byte(value.String), &p.Value); err != nil {
				return nil, fmt.Errorf("failed to decode property %s: %w", p.Name, err)
			}
		}
		if typeArgs.Valid {
			args := &models.TypeArgs{}
			if err := json.Unmarshal([]byte(typeArgs.String), args); err != nil {
				return nil, fmt.Errorf("failed to decode typeArgs of %s: %w", p.Name, err)
			}
			p.TypeArgs = args
		}
		props = append(props, p)
	}
	return props, rows.Err()
}

func (db *DB) blockTags(ctx context.Context, id string) ([]models.TagRef, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT bt.tag_block_id, t.name, bt.data
		FROM block_tags bt
		JOIN tags t ON t.tag_block_id = bt.tag_block_id
		WHERE bt.block_id = ?
		ORDER BY bt.applied_at, t.name
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query block tags: %w", err)
	}
	defer rows.Close()

	var tags []models.TagRef
	for rows.Next() {
		var ref models.TagRef
		var data string
		if err := rows.Scan(&ref.TagBlockID, &ref.Name, &data); err != nil {
			return nil, fmt.Errorf("failed to scan block tag: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &ref.Data); err != nil {
			return nil, fmt.Errorf("failed to decode data of tag %s: %w", ref.Name, err)
		}
		tags = append(tags, ref)
	}
	return tags, rows.Err()
}

// ListBlocks returns the most recently created blocks, without properties.
func (db *DB) ListBlocks(ctx context.Context, limit int) ([]models.Block, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT b.block_id, b.content
		FROM blocks b
		WHERE b.block_id NOT IN (SELECT tag_block_id FROM tags)
		ORDER BY b.created_at DESC, b.rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	defer rows.Close()

	var blocks []models.Block
	for rows.Next() {
		var b models.Block
		var content string
		if err := rows.Scan(&b.ID, &content); err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		if err := json.Unmarshal([]byte(content), &b.Content); err != nil {
			return nil, fmt.Errorf("failed to decode content of block %s: %w", b.ID, err)
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// SetBlockContent replaces a block's content.
func (db *DB) SetBlockContent(ctx context.Context, blockID string, content []models.InlineContent) error {
	encoded, err := encodeContent(content)
	if err != nil {
		return err
	}
	result, err := db.ExecContext(ctx, `
		UPDATE blocks SET content = ?, updated_at = CURRENT_TIMESTAMP WHERE block_id = ?
	`, encoded, blockID)
	if err != nil {
		return fmt.Errorf("failed to set block content: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrBlockNotFound, blockID)
	}
	return nil
}

// SetBlockProperties upserts props by name in one transaction. New names
// are appended after existing ones; existing names keep their position.
func (db *DB) SetBlockProperties(ctx context.Context, blockID string, props []models.Property) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireBlock(ctx, tx, blockID); err != nil {
			return err
		}

		for _, p := range props {
			value, typeArgs, err := encodeProperty(p)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO block_properties (block_id, name, position, type, value, type_args)
				VALUES (?, ?, COALESCE((SELECT MAX(position) + 1 FROM block_properties WHERE block_id = ?), 0), ?, ?, ?)
				ON CONFLICT(block_id, name) DO UPDATE SET
					type = excluded.type,
					value = excluded.value,
					type_args = excluded.type_args
			`, blockID, p.Name, blockID, int(p.Type), value, typeArgs)
			if err != nil {
				return fmt.Errorf("failed to set property %s: %w", p.Name, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `UPDATE blocks SET updated_at = CURRENT_TIMESTAMP WHERE block_id = ?`, blockID); err != nil {
			return fmt.Errorf("failed to touch block: %w", err)
		}
		return nil
	})
}

// InsertTag applies tagName to blockID with props as the tag's values,
// creating the tag block on first use. Re-applying a tag replaces its
// values. Returns the tag block id.
func (db *DB) InsertTag(ctx context.Context, blockID, tagName string, props []models.Property) (string, error) {
	if tagName == "" {
		return "", errors.New("tag name is required")
	}
	data, err := encodeProperties(props)
	if err != nil {
		return "", err
	}

	var tagBlockID string
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireBlock(ctx, tx, blockID); err != nil {
			return err
		}

		err := tx.QueryRowContext(ctx, `SELECT tag_block_id FROM tags WHERE name = ?`, tagName).Scan(&tagBlockID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			tagBlockID = uuid.NewString()
			content, err := encodeContent(models.TextContent(tagName))
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO blocks (block_id, content) VALUES (?, ?)`, tagBlockID, content); err != nil {
				return fmt.Errorf("failed to create tag block: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO tags (name, tag_block_id) VALUES (?, ?)`, tagName, tagBlockID); err != nil {
				return fmt.Errorf("failed to create tag: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to look up tag: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO block_tags (block_id, tag_block_id, data)
			VALUES (?, ?, ?)
			ON CONFLICT(block_id, tag_block_id) DO UPDATE SET data = excluded.data
		`, blockID, tagBlockID, data)
		if err != nil {
			return fmt.Errorf("failed to apply tag: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return tagBlockID, nil
}

// FindTag returns the tag block for tagName.
func (db *DB) FindTag(ctx context.Context, tagName string) (*models.Block, error) {
	var tagBlockID string
	err := db.QueryRowContext(ctx, `SELECT tag_block_id FROM tags WHERE name = ?`, tagName).Scan(&tagBlockID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: tag %s", ErrBlockNotFound, tagName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up tag: %w", err)
	}
	return db.GetBlock(ctx, tagBlockID)
}

func requireBlock(ctx context.Context, tx *sql.Tx, blockID string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM blocks WHERE block_id = ?`, blockID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrBlockNotFound, blockID)
	}
	if err != nil {
		return fmt.Errorf("failed to check block: %w", err)
	}
	return nil
}

func encodeContent(content []models.InlineContent) (string, error) {
	if content == nil {
		content = []models.InlineContent{}
	}
	data, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("failed to encode content: %w", err)
	}
	return string(data), nil
}

func encodeProperties(props []models.Property) (string, error) {
	if props == nil {
		props = []models.Property{}
	}
	data, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("failed to encode properties: %w", err)
	}
	return string(data), nil
}

// encodeProperty returns the JSON columns of p; a nil value and empty
// typeArgs are stored as NULL.
func encodeProperty(p models.Property) (value, typeArgs sql.NullString, err error) {
	if p.Value != nil {
		v := p.Value
		if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			v = nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return value, typeArgs, fmt.Errorf("failed to encode property %s: %w", p.Name, err)
		}
		value = sql.NullString{String: string(data), Valid: true}
	}
	if !p.TypeArgs.IsEmpty() {
		data, err := json.Marshal(p.TypeArgs)
		if err != nil {
			return value, typeArgs, fmt.Errorf("failed to encode typeArgs of %s: %w", p.Name, err)
		}
		typeArgs = sql.NullString{String: string(data), Valid: true}
	}
	return value, typeArgs, nil
}
