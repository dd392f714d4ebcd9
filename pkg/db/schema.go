package db

const schema = `
-- Performance and reliability settings
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;
PRAGMA temp_store = MEMORY;

-- Blocks: notes and tag blocks alike. content is a JSON array of inline fragments.
CREATE TABLE IF NOT EXISTS blocks (
    block_id TEXT PRIMARY KEY,
    content TEXT NOT NULL DEFAULT '[]',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_blocks_created ON blocks(created_at DESC);

-- Block properties: for a tag block this is the tag schema.
-- value and type_args are JSON; position keeps insertion order.
CREATE TABLE IF NOT EXISTS block_properties (
    block_id TEXT NOT NULL,
    name TEXT NOT NULL,
    position INTEGER NOT NULL,
    type INTEGER NOT NULL,
    value TEXT,
    type_args TEXT,
    FOREIGN KEY (block_id) REFERENCES blocks(block_id) ON DELETE CASCADE,
    PRIMARY KEY (block_id, name)
);

CREATE INDEX IF NOT EXISTS idx_block_properties_position ON block_properties(block_id, position);

-- Tags: tag name -> the block owning its schema
CREATE TABLE IF NOT EXISTS tags (
    name TEXT PRIMARY KEY,
    tag_block_id TEXT NOT NULL UNIQUE,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (tag_block_id) REFERENCES blocks(block_id) ON DELETE CASCADE
);

-- Block tags: tags applied to a block with the values set for them (JSON)
CREATE TABLE IF NOT EXISTS block_tags (
    block_id TEXT NOT NULL,
    tag_block_id TEXT NOT NULL,
    data TEXT NOT NULL DEFAULT '[]',
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (block_id) REFERENCES blocks(block_id) ON DELETE CASCADE,
    FOREIGN KEY (tag_block_id) REFERENCES blocks(block_id) ON DELETE CASCADE,
    PRIMARY KEY (block_id, tag_block_id)
);

CREATE INDEX IF NOT EXISTS idx_block_tags_tag ON block_tags(tag_block_id);

-- Extractions: every pipeline attempt tracked
CREATE TABLE IF NOT EXISTS extractions (
    extraction_id INTEGER PRIMARY KEY AUTOINCREMENT,
    block_id TEXT,
    url TEXT,
    rule_name TEXT,
    status TEXT NOT NULL,
    message TEXT,
    property_count INTEGER DEFAULT 0,
    extracted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_extractions_block ON extractions(block_id);
CREATE INDEX IF NOT EXISTS idx_extractions_time ON extractions(extracted_at);
`
