package store

// Schema is the DDL of the local wiki.
const Schema = `
CREATE TABLE IF NOT EXISTS pages (
    title         TEXT PRIMARY KEY,
    namespace     INTEGER NOT NULL DEFAULT 0,
    content_model TEXT NOT NULL DEFAULT 'wikitext',
    language      TEXT NOT NULL DEFAULT 'en',
    latest_rev    TEXT NOT NULL DEFAULT '',
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS revisions (
    id         TEXT PRIMARY KEY,
    title      TEXT NOT NULL,
    text       TEXT NOT NULL,
    summary    TEXT NOT NULL DEFAULT '',
    minor      INTEGER NOT NULL DEFAULT 0,
    tags       TEXT NOT NULL DEFAULT '[]',
    author     TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    FOREIGN KEY (title) REFERENCES pages(title) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_revisions_title ON revisions(title, created_at);
`
