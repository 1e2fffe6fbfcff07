package observability

// Schema holds the edit journal. One row per finished or abandoned edit
// session; page text itself lives in the wiki.
const Schema = `
CREATE TABLE IF NOT EXISTS edit_journal (
    entry_id     TEXT PRIMARY KEY,
    outcome      TEXT NOT NULL,
    page_title   TEXT NOT NULL,
    session_id   TEXT NOT NULL DEFAULT '',
    fragment_id  TEXT NOT NULL DEFAULT '',
    kind         TEXT NOT NULL DEFAULT '',
    section      INTEGER NOT NULL DEFAULT 0,
    actor        TEXT NOT NULL DEFAULT '',
    transport    TEXT NOT NULL DEFAULT '',
    trace_id     TEXT NOT NULL DEFAULT '',
    failure      TEXT NOT NULL DEFAULT '',
    recorded_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_edit_journal_outcome ON edit_journal(outcome, recorded_at DESC);
CREATE INDEX IF NOT EXISTS idx_edit_journal_page ON edit_journal(page_title, recorded_at DESC);
`
