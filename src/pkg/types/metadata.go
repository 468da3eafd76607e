package types

import "time"

// TableKind distinguishes the two ingestion table shapes the storage engine
// knows how to create.
type TableKind string

const (
	TableKindEvents   TableKind = "events"
	TableKindProfiles TableKind = "profiles"
)

// TableMetadata is one row of the `_metadata` system table.
type TableMetadata struct {
	Name      string
	Kind      TableKind
	RowCount  int64
	ByteSize  int64
	CreatedAt time.Time
	// From/To are only meaningful for TableKindEvents; both zero for profiles.
	From time.Time
	To   time.Time
}
