package store

// Table name constants, following the naming convention of
// erigon-lib/kv/tables.go: one named constant per table this package
// creates. The schema text and the queries in this module spell the table
// names as string literals; nothing references these constants.
const (
	tableBlocks    = "blocks"
	tableRootNodes = "root_nodes"
	tableInner     = "inner_nodes"
	tableLeaf      = "leaf_nodes"
	tableMetadata  = "metadata"
)

const schema = `
PRAGMA foreign_keys = ON;
PRAGMA recursive_triggers = ON;

CREATE TABLE IF NOT EXISTS blocks (
    id         BLOB PRIMARY KEY,
    nonce      BLOB NOT NULL,
    content    BLOB NOT NULL,
    auth_tag   BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS root_nodes (
    snapshot_id           INTEGER PRIMARY KEY AUTOINCREMENT,
    writer_id             BLOB NOT NULL,
    version_vector        BLOB NOT NULL,
    hash                  BLOB NOT NULL,
    signature             BLOB NOT NULL,
    is_complete           INTEGER NOT NULL DEFAULT 0,
    block_presence        INTEGER NOT NULL DEFAULT 0,
    block_presence_count  INTEGER NOT NULL DEFAULT 0,
    UNIQUE(writer_id, hash)
);

CREATE INDEX IF NOT EXISTS root_nodes_writer_idx ON root_nodes(writer_id, snapshot_id DESC);
CREATE INDEX IF NOT EXISTS root_nodes_hash_idx ON root_nodes(hash);

CREATE TABLE IF NOT EXISTS inner_nodes (
    parent_hash           BLOB NOT NULL,
    bucket                INTEGER NOT NULL,
    hash                  BLOB NOT NULL,
    is_complete           INTEGER NOT NULL DEFAULT 0,
    block_presence        INTEGER NOT NULL DEFAULT 0,
    block_presence_count  INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY(parent_hash, bucket)
);

CREATE INDEX IF NOT EXISTS inner_nodes_hash_idx ON inner_nodes(hash);

CREATE TABLE IF NOT EXISTS leaf_nodes (
    parent_hash   BLOB NOT NULL,
    locator_hash  BLOB NOT NULL,
    block_id      BLOB NOT NULL,
    is_missing    INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY(parent_hash, locator_hash)
);

CREATE TABLE IF NOT EXISTS metadata (
    key    TEXT PRIMARY KEY,
    value  BLOB NOT NULL
);

-- A root/inner node's children are identified by a hash match, not a
-- single-parent foreign key (the tree deduplicates identical subtrees), so
-- the cascade is a trigger rather than a declarative ON DELETE CASCADE: a
-- child row is only removed once nothing else still claims its hash.
CREATE TRIGGER IF NOT EXISTS root_nodes_cascade_delete
AFTER DELETE ON root_nodes
BEGIN
    DELETE FROM inner_nodes
     WHERE parent_hash = old.hash
       AND NOT EXISTS (SELECT 1 FROM root_nodes WHERE hash = old.hash)
       AND NOT EXISTS (SELECT 1 FROM inner_nodes WHERE hash = old.hash);

    DELETE FROM leaf_nodes
     WHERE parent_hash = old.hash
       AND NOT EXISTS (SELECT 1 FROM root_nodes WHERE hash = old.hash)
       AND NOT EXISTS (SELECT 1 FROM inner_nodes WHERE hash = old.hash);
END;

CREATE TRIGGER IF NOT EXISTS inner_nodes_cascade_delete
AFTER DELETE ON inner_nodes
BEGIN
    DELETE FROM inner_nodes
     WHERE parent_hash = old.hash
       AND NOT EXISTS (SELECT 1 FROM root_nodes WHERE hash = old.hash)
       AND NOT EXISTS (SELECT 1 FROM inner_nodes WHERE hash = old.hash);

    DELETE FROM leaf_nodes
     WHERE parent_hash = old.hash
       AND NOT EXISTS (SELECT 1 FROM root_nodes WHERE hash = old.hash)
       AND NOT EXISTS (SELECT 1 FROM inner_nodes WHERE hash = old.hash);
END;
`
