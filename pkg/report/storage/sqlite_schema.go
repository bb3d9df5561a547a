package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the capture database schema.
const Schema = `
-- Capture records table
CREATE TABLE IF NOT EXISTS captures (
    id TEXT PRIMARY KEY,
    request_id TEXT,
    timestamp_ns INTEGER NOT NULL,
    trace_id TEXT,
    span_id TEXT,

    -- Request
    method TEXT NOT NULL,
    url TEXT NOT NULL,
    route_path TEXT,
    client_ip TEXT,
    user_agent TEXT,
    request_headers TEXT,
    query TEXT,
    request_body TEXT,
    request_body_status TEXT NOT NULL,
    request_size INTEGER,

    -- Response
    response_status INTEGER,
    response_headers TEXT,
    response_body TEXT,
    response_body_status TEXT NOT NULL,
    response_size INTEGER,
    load_time_ms REAL,

    -- Errors and environment
    errors TEXT,
    error_count INTEGER NOT NULL DEFAULT 0,
    server TEXT,
    language TEXT
);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_captures_timestamp ON captures(timestamp_ns);
CREATE INDEX IF NOT EXISTS idx_captures_request_id ON captures(request_id);
CREATE INDEX IF NOT EXISTS idx_captures_route_path ON captures(route_path);
CREATE INDEX IF NOT EXISTS idx_captures_response_status ON captures(response_status);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

// selectColumns lists the columns read by scanRow, in order.
const selectColumns = `
    id, request_id, timestamp_ns, trace_id, span_id,
    method, url, route_path, client_ip, user_agent,
    request_headers, query, request_body, request_body_status, request_size,
    response_status, response_headers, response_body, response_body_status, response_size, load_time_ms,
    errors, server, language`
