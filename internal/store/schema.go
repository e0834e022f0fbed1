package store

// Schema contains SQL schema definitions for the document store
const Schema = `
-- Documents table, one row per (account, uid)
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    account_id TEXT NOT NULL,
    folder TEXT NOT NULL,
    uid INTEGER NOT NULL,
    message_id TEXT NOT NULL DEFAULT '',
    subject TEXT NOT NULL DEFAULT '',
    body_text TEXT NOT NULL DEFAULT '',
    body_html TEXT NOT NULL DEFAULT '',
    from_addr TEXT NOT NULL DEFAULT '',
    to_addrs TEXT NOT NULL DEFAULT '',
    date_unix INTEGER NOT NULL,
    ai_category TEXT NOT NULL,
    is_read INTEGER NOT NULL DEFAULT 0,
    flags TEXT NOT NULL DEFAULT '[]',
    indexed_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_documents_account_id ON documents(account_id);
CREATE INDEX IF NOT EXISTS idx_documents_folder ON documents(account_id, folder);
CREATE INDEX IF NOT EXISTS idx_documents_date ON documents(date_unix);
CREATE INDEX IF NOT EXISTS idx_documents_ai_category ON documents(ai_category);

-- Full-text search index
CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
    subject,
    from_addr,
    to_addrs,
    body_text,
    content='documents',
    content_rowid='rowid'
);

-- Triggers for FTS
CREATE TRIGGER IF NOT EXISTS documents_fts_insert AFTER INSERT ON documents BEGIN
    INSERT INTO documents_fts(rowid, subject, from_addr, to_addrs, body_text)
    VALUES (new.rowid, new.subject, new.from_addr, new.to_addrs, new.body_text);
END;

CREATE TRIGGER IF NOT EXISTS documents_fts_update AFTER UPDATE ON documents BEGIN
    INSERT INTO documents_fts(documents_fts, rowid, subject, from_addr, to_addrs, body_text)
    VALUES ('delete', old.rowid, old.subject, old.from_addr, old.to_addrs, old.body_text);
    INSERT INTO documents_fts(rowid, subject, from_addr, to_addrs, body_text)
    VALUES (new.rowid, new.subject, new.from_addr, new.to_addrs, new.body_text);
END;

CREATE TRIGGER IF NOT EXISTS documents_fts_delete AFTER DELETE ON documents BEGIN
    INSERT INTO documents_fts(documents_fts, rowid, subject, from_addr, to_addrs, body_text)
    VALUES ('delete', old.rowid, old.subject, old.from_addr, old.to_addrs, old.body_text);
END;
`
