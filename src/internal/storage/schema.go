package storage

const metadataTableDDL = `
CREATE TABLE IF NOT EXISTS _metadata (
	name        TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	row_count   INTEGER NOT NULL DEFAULT 0,
	byte_size   INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	date_from   TEXT,
	date_to     TEXT
)`

func eventsTableDDL(name string) string {
	return `CREATE TABLE "` + name + `" (
		distinct_id TEXT NOT NULL,
		event_name  TEXT NOT NULL,
		event_time  TEXT NOT NULL,
		insert_id   TEXT NOT NULL,
		properties  TEXT NOT NULL DEFAULT '{}'
	)`
}

func eventsIndexDDL(name string) string {
	return `CREATE INDEX "` + name + `_event_time_idx" ON "` + name + `" (event_time)`
}

func profilesTableDDL(name string) string {
	return `CREATE TABLE "` + name + `" (
		distinct_id TEXT PRIMARY KEY,
		properties  TEXT NOT NULL DEFAULT '{}',
		last_seen   TEXT
	)`
}
