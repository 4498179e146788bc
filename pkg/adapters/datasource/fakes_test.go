package datasource

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// fakeDialect counts Open calls and can be told to fail.
type fakeDialect struct {
	opens   atomic.Int32
	delay   time.Duration
	mu      sync.Mutex
	failFor map[string]error
}

func (d *fakeDialect) Name() string                { return "fake" }
func (d *fakeDialect) DefaultPort() int            { return 4242 }
func (d *fakeDialect) MaintenanceDatabase() string { return "fake_admin" }
func (d *fakeDialect) SystemDatabases() []string   { return []string{"fake_admin"} }
func (d *fakeDialect) PythonURL(cfg ConnConfig) string {
	return "fake://" + cfg.Host + "/" + cfg.Database
}

func (d *fakeDialect) Open(ctx context.Context, cfg ConnConfig, opts PoolOptions) (Pool, error) {
	d.opens.Add(1)
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	d.mu.Lock()
	err := d.failFor[cfg.Database]
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &fakePool{cfg: cfg, opts: opts}, nil
}

func (d *fakeDialect) setFailure(database string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failFor == nil {
		d.failFor = make(map[string]error)
	}
	if err == nil {
		delete(d.failFor, database)
		return
	}
	d.failFor[database] = err
}

type fakePool struct {
	cfg    ConnConfig
	opts   PoolOptions
	closed atomic.Bool
}

var errFakeNotImplemented = errors.New("not implemented")

func (p *fakePool) Run(ctx context.Context, sql string) (*QueryResult, error) {
	return NewDataResult(nil, nil), nil
}
func (p *fakePool) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return 0, errFakeNotImplemented
}
func (p *fakePool) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return nil, errFakeNotImplemented
}
func (p *fakePool) QueryRow(ctx context.Context, query string, args ...any) Row { return nil }
func (p *fakePool) QuoteIdentifier(name string) string                         { return `"` + name + `"` }
func (p *fakePool) ListTables(ctx context.Context) ([]TableMetadata, error)    { return nil, nil }
func (p *fakePool) CountRows(ctx context.Context, table string) (int64, error) { return 0, nil }
func (p *fakePool) ListDatabases(ctx context.Context) ([]string, error)        { return nil, nil }
func (p *fakePool) DatabaseExists(ctx context.Context, name string) (bool, error) {
	return false, nil
}
func (p *fakePool) CreateDatabase(ctx context.Context, name string) error { return nil }
func (p *fakePool) DropDatabase(ctx context.Context, name string) error   { return nil }
func (p *fakePool) CloneInto(ctx context.Context, dst Pool) error         { return nil }
func (p *fakePool) Config() ConnConfig                                    { return p.cfg }
func (p *fakePool) Ping(ctx context.Context) error                        { return nil }
func (p *fakePool) Close() error {
	p.closed.Store(true)
	return nil
}

var testDialect = &fakeDialect{}

func init() {
	Register(DialectRegistration{
		Info:    DialectInfo{Name: "fake", DisplayName: "Fake", Schemes: []string{"fake", "fakedb"}},
		Dialect: testDialect,
	})
}
