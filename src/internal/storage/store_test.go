package storage

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discohead/mixpanel-data/src/pkg/types"
)

func openTestStore(t *testing.T) *StorageEngine {
	t.Helper()
	s, err := Open("", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestColumnStats_PopulatesNumericDistributionForNumericColumn(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx, `CREATE TABLE scratch (amount REAL)`)
	require.NoError(t, err)
	for _, v := range []float64{1, 2, 3, 4, 100} {
		_, err := s.db.ExecContext(ctx, `INSERT INTO scratch (amount) VALUES (?)`, v)
		require.NoError(t, err)
	}

	stats, err := s.ColumnStats(ctx, "scratch", "amount")
	require.NoError(t, err)
	require.NotNil(t, stats.Numeric)
	assert.InDelta(t, 22.0, stats.Numeric.Mean, 0.001)
	assert.InDelta(t, 3.0, stats.Numeric.Median, 0.001)
	assert.InDelta(t, 100.0, stats.Numeric.Max, 0.001)
}

func TestColumnStats_OmitsNumericDistributionForTextColumn(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx, `CREATE TABLE scratch (label TEXT)`)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `INSERT INTO scratch (label) VALUES ('a'), ('b')`)
	require.NoError(t, err)

	stats, err := s.ColumnStats(ctx, "scratch", "label")
	require.NoError(t, err)
	assert.Nil(t, stats.Numeric)
}

func TestCreateTable_RejectsDuplicateWithoutReplace(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateTable(ctx, "events_a", types.TableKindEvents, false))
	err := s.CreateTable(ctx, "events_a", types.TableKindEvents, false)
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, types.TableExists, kind)
}

func TestCreateTable_ReplaceDropsExisting(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateTable(ctx, "events_a", types.TableKindEvents, false))
	require.NoError(t, s.AppendEvents(ctx, "events_a", []types.EventRecord{
		{EventName: "signup", EventTime: time.Now().UTC(), DistinctID: "u1", InsertID: "i1", Properties: types.Properties{}},
	}))
	require.NoError(t, s.CreateTable(ctx, "events_a", types.TableKindEvents, true))

	meta, err := s.TableMetadata(ctx, "events_a")
	require.NoError(t, err)
	assert.EqualValues(t, 0, meta.RowCount)
}

func TestAppendEvents_UpdatesRowCountAndDateRange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateTable(ctx, "events_a", types.TableKindEvents, false))

	day1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.AppendEvents(ctx, "events_a", []types.EventRecord{
		{EventName: "signup", EventTime: day1, DistinctID: "u1", InsertID: "i1", Properties: types.Properties{"plan": "pro"}},
		{EventName: "signup", EventTime: day2, DistinctID: "u2", InsertID: "i2", Properties: types.Properties{"plan": "free"}},
	}))

	meta, err := s.TableMetadata(ctx, "events_a")
	require.NoError(t, err)
	assert.EqualValues(t, 2, meta.RowCount)
	assert.True(t, meta.From.Equal(day1))
	assert.True(t, meta.To.Equal(day2))

	rows, err := s.Sample(ctx, "events_a", 10)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestAppendProfiles_UpsertsByDistinctID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateTable(ctx, "profiles_a", types.TableKindProfiles, false))

	require.NoError(t, s.AppendProfiles(ctx, "profiles_a", []types.ProfileRecord{
		{DistinctID: "u1", Properties: types.Properties{"plan": "free"}},
	}))
	require.NoError(t, s.AppendProfiles(ctx, "profiles_a", []types.ProfileRecord{
		{DistinctID: "u1", Properties: types.Properties{"plan": "pro"}},
	}))

	rows, err := s.Sample(ctx, "profiles_a", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestDropTable_RemovesMetadata(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateTable(ctx, "events_a", types.TableKindEvents, false))
	require.NoError(t, s.DropTable(ctx, "events_a"))

	_, err := s.TableMetadata(ctx, "events_a")
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, types.TableNotFound, kind)
}

func TestDropTable_MissingTableIsError(t *testing.T) {
	s := openTestStore(t)
	err := s.DropTable(context.Background(), "nope")
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, types.TableNotFound, kind)
}

func TestSchema_ReportsColumns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateTable(ctx, "events_a", types.TableKindEvents, false))

	cols, err := s.Schema(ctx, "events_a")
	require.NoError(t, err)
	var names []string
	for _, c := range cols {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "distinct_id")
	assert.Contains(t, names, "event_time")
	assert.Contains(t, names, "properties")
}

func TestJSONKeys_CollectsDistinctTopLevelKeys(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateTable(ctx, "events_a", types.TableKindEvents, false))
	require.NoError(t, s.AppendEvents(ctx, "events_a", []types.EventRecord{
		{EventName: "signup", EventTime: time.Now().UTC(), DistinctID: "u1", InsertID: "i1", Properties: types.Properties{"plan": "pro"}},
		{EventName: "signup", EventTime: time.Now().UTC(), DistinctID: "u2", InsertID: "i2", Properties: types.Properties{"referrer": "ads"}},
	}))

	keys, err := s.JSONKeys(ctx, "events_a", "properties")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"plan", "referrer"}, keys)
}

func TestCreateTable_RejectsUnsafeName(t *testing.T) {
	s := openTestStore(t)
	err := s.CreateTable(context.Background(), `events"; DROP TABLE _metadata; --`, types.TableKindEvents, false)
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, types.QueryError, kind)
}

func TestListTables_OrdersByName(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateTable(ctx, "b_table", types.TableKindEvents, false))
	require.NoError(t, s.CreateTable(ctx, "a_table", types.TableKindProfiles, false))

	tables, err := s.ListTables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "a_table", tables[0].Name)
	assert.Equal(t, "b_table", tables[1].Name)
}
