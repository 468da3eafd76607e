// Package workspace is the caller-facing facade: one Transport, one
// StorageEngine, and every LiveQueries/fetch/stream operation bound
// together behind credentials resolved once at construction. It is
// grounded in the teacher's Collector, which similarly owns one storage
// handle and one set of long-lived connections behind a single
// constructor (src/internal/collector/collector.go).
package workspace

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/discohead/mixpanel-data/src/internal/fetch"
	"github.com/discohead/mixpanel-data/src/internal/query"
	"github.com/discohead/mixpanel-data/src/internal/storage"
	"github.com/discohead/mixpanel-data/src/internal/streaming"
	"github.com/discohead/mixpanel-data/src/internal/transport"
	"github.com/discohead/mixpanel-data/src/pkg/types"
)

// Config supplies credentials and storage location when environment
// variables are absent. Region defaults to US when empty.
type Config struct {
	Account    string
	Secret     string
	Project    string
	Region     types.Region
	StorePath  string // empty selects an in-memory store
	Logger     zerolog.Logger
}

// Workspace is the single entry point a caller constructs: it owns one
// Transport and one StorageEngine for its entire lifetime.
type Workspace struct {
	*query.LiveQueries
	tr      *transport.Transport
	store   *storage.StorageEngine
	logger  zerolog.Logger
	closed  bool
}

// Open resolves credentials (environment variables take precedence over
// cfg) and constructs a Workspace. Closing it closes the Transport and the
// StorageEngine exactly once.
func Open(cfg Config) (*Workspace, error) {
	creds, err := resolveCredentials(cfg)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	tr := transport.New(creds, transport.WithLogger(logger))

	store, err := storage.Open(cfg.StorePath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening storage engine: %w", err)
	}

	return &Workspace{
		LiveQueries: query.New(tr),
		tr:          tr,
		store:       store,
		logger:      logger,
	}, nil
}

func resolveCredentials(cfg Config) (types.Credentials, error) {
	account := firstNonEmpty(os.Getenv("MP_USERNAME"), cfg.Account)
	secret := firstNonEmpty(os.Getenv("MP_SECRET"), cfg.Secret)
	project := firstNonEmpty(os.Getenv("MP_PROJECT_ID"), cfg.Project)
	region := types.Region(firstNonEmpty(os.Getenv("MP_REGION"), string(cfg.Region)))
	if region == "" {
		region = types.RegionUS
	}

	return types.NewCredentials(account, secret, project, region)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Close closes the Transport's idle connections and the StorageEngine,
// aggregating any errors from both. Safe to call more than once; only the
// first call has an effect.
func (w *Workspace) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return multierr.Combine(w.tr.Close(), w.store.Close())
}

// StreamEvents yields events lazily over [from, to] without writing to
// storage.
func (w *Workspace) StreamEvents(ctx context.Context, from, to string, filter streaming.EventFilter, raw bool) (*streaming.EventStream, error) {
	return streaming.StreamEvents(ctx, w.tr, from, to, filter, raw)
}

// StreamProfiles yields every profile lazily without writing to storage.
func (w *Workspace) StreamProfiles(ctx context.Context, where string, raw bool) (*streaming.ProfileStream, error) {
	return streaming.StreamProfiles(ctx, w.tr, where, raw)
}

// FetchEventsOptions configures one fetch_events call.
type FetchEventsOptions struct {
	From, To string
	Filter   streaming.EventFilter
	Replace  bool
	Parallel bool
	Workers  int
	OnProgress types.ProgressCallback
	BatchSize  int
}

// FetchEvents materializes [from, to] into table, sequentially or
// sharded-parallel depending on opts.Parallel.
func (w *Workspace) FetchEvents(ctx context.Context, table string, opts FetchEventsOptions) (types.FetchResult, types.ParallelFetchResult, error) {
	if opts.Parallel {
		result, err := fetch.ParallelFetchEvents(ctx, w.store, w.tr, table, opts.From, opts.To, opts.Filter, opts.Replace, opts.Workers, opts.OnProgress, w.logger)
		return types.FetchResult{}, result, err
	}

	stream, err := streaming.StreamEvents(ctx, w.tr, opts.From, opts.To, opts.Filter, false)
	if err != nil {
		return types.FetchResult{}, types.ParallelFetchResult{}, err
	}
	defer stream.Close()

	result, err := fetch.FetchEventsSequential(ctx, w.store, stream, table, opts.Replace, opts.BatchSize, w.logger)
	return result, types.ParallelFetchResult{}, err
}

// FetchProfilesOptions configures one fetch_profiles call.
type FetchProfilesOptions struct {
	Where      string
	Replace    bool
	Parallel   bool
	Workers    int
	OnProgress types.ProgressCallback
	BatchSize  int
}

// FetchProfiles materializes every profile into table, sequentially or
// sharded-parallel depending on opts.Parallel.
func (w *Workspace) FetchProfiles(ctx context.Context, table string, opts FetchProfilesOptions) (types.FetchResult, types.ParallelFetchResult, error) {
	if opts.Parallel {
		result, err := fetch.ParallelFetchProfiles(ctx, w.store, w.tr, table, opts.Where, opts.Replace, opts.Workers, opts.OnProgress, w.logger)
		return types.FetchResult{}, result, err
	}

	stream, err := streaming.StreamProfiles(ctx, w.tr, opts.Where, false)
	if err != nil {
		return types.FetchResult{}, types.ParallelFetchResult{}, err
	}
	defer stream.Close()

	result, err := fetch.FetchProfilesSequential(ctx, w.store, stream, table, opts.Replace, opts.BatchSize, w.logger)
	return result, types.ParallelFetchResult{}, err
}

// Storage passthroughs. These expose StorageEngine operations directly so
// callers need not reach into an internal package.

func (w *Workspace) Schema(ctx context.Context, table string) ([]storage.ColumnInfo, error) {
	return w.store.Schema(ctx, table)
}

func (w *Workspace) Sample(ctx context.Context, table string, n int) ([]map[string]interface{}, error) {
	return w.store.Sample(ctx, table, n)
}

func (w *Workspace) Summarize(ctx context.Context, table string) (map[string]storage.ColumnStats, error) {
	return w.store.Summarize(ctx, table)
}

func (w *Workspace) SQL(ctx context.Context, query string) ([]map[string]interface{}, error) {
	return w.store.SQL(ctx, query)
}

func (w *Workspace) SQLScalar(ctx context.Context, query string) (interface{}, error) {
	return w.store.SQLScalar(ctx, query)
}

func (w *Workspace) JSONKeys(ctx context.Context, table, column string) ([]string, error) {
	return w.store.JSONKeys(ctx, table, column)
}

func (w *Workspace) ColumnStats(ctx context.Context, table, column string) (storage.ColumnStats, error) {
	return w.store.ColumnStats(ctx, table, column)
}

func (w *Workspace) DropTable(ctx context.Context, name string) error {
	return w.store.DropTable(ctx, name)
}

func (w *Workspace) DropAll(ctx context.Context, kindFilter *types.TableKind) error {
	return w.store.DropAll(ctx, kindFilter)
}

func (w *Workspace) ListTables(ctx context.Context) ([]types.TableMetadata, error) {
	return w.store.ListTables(ctx)
}
