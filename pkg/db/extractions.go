package db

import (
	"context"
	"fmt"
	"time"
)

// Extraction is one recorded pipeline attempt.
type Extraction struct {
	ID            int64     `json:"id"`
	BlockID       string    `json:"blockId,omitempty"`
	URL           string    `json:"url"`
	RuleName      string    `json:"rule,omitempty"`
	Status        string    `json:"status"`
	Message       string    `json:"message,omitempty"`
	PropertyCount int       `json:"propertyCount"`
	ExtractedAt   time.Time `json:"extractedAt"`
}

// RecordExtraction stores the outcome of a pipeline attempt.
func (db *DB) RecordExtraction(ctx context.Context, e Extraction) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO extractions (block_id, url, rule_name, status, message, property_count)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.BlockID, e.URL, e.RuleName, e.Status, e.Message, e.PropertyCount)
	if err != nil {
		return fmt.Errorf("failed to record extraction: %w", err)
	}
	return nil
}

// ListExtractions returns the attempts for a block, newest first. An empty
// blockID lists attempts across all blocks.
func (db *DB) ListExtractions(ctx context.Context, blockID string, limit int) ([]Extraction, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT extraction_id, COALESCE(block_id, ''), COALESCE(url, ''), COALESCE(rule_name, ''),
		       status, COALESCE(message, ''), property_count, extracted_at
		FROM extractions`
	args := []any{}
	if blockID != "" {
		query += ` WHERE block_id = ?`
		args = append(args, blockID)
	}
	query += ` ORDER BY extraction_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query extractions: %w", err)
	}
	defer rows.Close()

	var out []Extraction
	for rows.Next() {
		var e Extraction
		if err := rows.Scan(&e.ID, &e.BlockID, &e.URL, &e.RuleName, &e.Status, &e.Message, &e.PropertyCount, &e.ExtractedAt); err != nil {
			return nil, fmt.Errorf("failed to scan extraction: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
