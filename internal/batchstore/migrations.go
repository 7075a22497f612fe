package batchstore

const schema = `
CREATE TABLE IF NOT EXISTS batches (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    username TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'initial',
    message TEXT,
    block_on_errors BOOLEAN DEFAULT FALSE,
    combine_commands BOOLEAN DEFAULT FALSE,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_batches_status ON batches(status);
CREATE INDEX IF NOT EXISTS idx_batches_username ON batches(username);

CREATE TABLE IF NOT EXISTS commands (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    batch_id INTEGER NOT NULL REFERENCES batches(id),
    idx INTEGER NOT NULL,
    raw TEXT,
    operation TEXT,
    action TEXT,
    payload TEXT,
    status TEXT NOT NULL DEFAULT 'initial',
    error_kind TEXT,
    error_message TEXT,
    value_type_verified BOOLEAN DEFAULT FALSE,
    response TEXT,
    user_summary TEXT,
    UNIQUE(batch_id, idx)
);

CREATE INDEX IF NOT EXISTS idx_commands_batch_id ON commands(batch_id);
CREATE INDEX IF NOT EXISTS idx_commands_status ON commands(status);
`
