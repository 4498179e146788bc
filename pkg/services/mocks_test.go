package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-notebook/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-notebook/pkg/models"
)

// eventLog records calls across fakes so tests can assert ordering.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type fakeDialect struct {
	name      string
	systemDBs []string
}

func (d fakeDialect) Name() string                { return d.name }
func (d fakeDialect) DefaultPort() int            { return 3306 }
func (d fakeDialect) MaintenanceDatabase() string { return "" }
func (d fakeDialect) SystemDatabases() []string   { return d.systemDBs }
func (d fakeDialect) Open(context.Context, datasource.ConnConfig, datasource.PoolOptions) (datasource.Pool, error) {
	return nil, errors.New("not supported")
}
func (d fakeDialect) PythonURL(cfg datasource.ConnConfig) string {
	return fmt.Sprintf("fake+driver://%s@%s:%d/%s", cfg.User, cfg.Host, cfg.Port, cfg.Database)
}

// fakePool is an in-memory datasource.Pool. Zero-valued funcs succeed.
type fakePool struct {
	name string
	log  *eventLog

	mu        sync.Mutex
	databases map[string]bool
	tables    []datasource.TableMetadata
	counts    map[string]int64
	scripts   []string
	execs     []string
	pings     int

	RunFunc       func(sql string) (*datasource.QueryResult, error)
	ExecFunc      func(query string, args []any) (int64, error)
	PingFunc      func(attempt int) error
	CloneIntoFunc func(dst datasource.Pool) error
	CreateErr     error
	DropErr       error
	ListErr       error
}

var _ datasource.Pool = (*fakePool)(nil)

func newFakePool(name string, log *eventLog) *fakePool {
	return &fakePool{name: name, log: log, databases: map[string]bool{}, counts: map[string]int64{}}
}

func (p *fakePool) Run(_ context.Context, sql string) (*datasource.QueryResult, error) {
	p.mu.Lock()
	p.scripts = append(p.scripts, sql)
	p.mu.Unlock()
	if p.RunFunc != nil {
		return p.RunFunc(sql)
	}
	return datasource.NewDataResult(nil, nil), nil
}

func (p *fakePool) Exec(_ context.Context, query string, args ...any) (int64, error) {
	p.mu.Lock()
	p.execs = append(p.execs, query)
	p.mu.Unlock()
	if p.ExecFunc != nil {
		return p.ExecFunc(query, args)
	}
	return 0, nil
}

func (p *fakePool) Query(context.Context, string, ...any) (datasource.Rows, error) {
	return nil, errors.New("not supported")
}

func (p *fakePool) QueryRow(context.Context, string, ...any) datasource.Row {
	return errRow{err: apperrors.ErrNotFound}
}

func (p *fakePool) QuoteIdentifier(name string) string { return "`" + name + "`" }

func (p *fakePool) ListTables(context.Context) ([]datasource.TableMetadata, error) {
	if p.ListErr != nil {
		return nil, p.ListErr
	}
	out := make([]datasource.TableMetadata, len(p.tables))
	copy(out, p.tables)
	return out, nil
}

func (p *fakePool) CountRows(_ context.Context, table string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.counts[table]
	if !ok {
		return 0, fmt.Errorf("table %s does not exist", table)
	}
	return n, nil
}

func (p *fakePool) ListDatabases(context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var names []string
	for name := range p.databases {
		names = append(names, name)
	}
	return names, nil
}

func (p *fakePool) DatabaseExists(_ context.Context, name string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.databases[name], nil
}

func (p *fakePool) CreateDatabase(_ context.Context, name string) error {
	if p.CreateErr != nil {
		return p.CreateErr
	}
	p.mu.Lock()
	p.databases[name] = true
	p.mu.Unlock()
	p.log.add("create %s", name)
	return nil
}

func (p *fakePool) DropDatabase(_ context.Context, name string) error {
	if p.DropErr != nil {
		return p.DropErr
	}
	p.mu.Lock()
	delete(p.databases, name)
	p.mu.Unlock()
	p.log.add("drop %s", name)
	return nil
}

func (p *fakePool) CloneInto(_ context.Context, dst datasource.Pool) error {
	p.log.add("clone %s", p.name)
	if p.CloneIntoFunc != nil {
		return p.CloneIntoFunc(dst)
	}
	return nil
}

func (p *fakePool) Config() datasource.ConnConfig {
	return datasource.ConnConfig{Dialect: "fake", Database: p.name}
}

func (p *fakePool) Ping(context.Context) error {
	p.mu.Lock()
	p.pings++
	attempt := p.pings
	p.mu.Unlock()
	if p.PingFunc != nil {
		return p.PingFunc(attempt)
	}
	return nil
}

func (p *fakePool) Close() error { return nil }

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

// fakePools is a datasource.PoolProvider that creates fakePools on demand.
type fakePools struct {
	mu      sync.Mutex
	log     *eventLog
	dialect fakeDialect
	admin   *fakePool
	pools   map[string]*fakePool
	getErr  map[string]error
	evicted []string

	// onNewPool configures each pool the first time it is handed out.
	onNewPool func(*fakePool)
}

var _ datasource.PoolProvider = (*fakePools)(nil)

func newFakePools(log *eventLog) *fakePools {
	return &fakePools{
		log:     log,
		dialect: fakeDialect{name: "mysql", systemDBs: []string{"mysql", "information_schema"}},
		admin:   newFakePool("@admin", log),
		pools:   map[string]*fakePool{},
		getErr:  map[string]error{},
	}
}

func (f *fakePools) pool(name string) *fakePool {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pools[name]
	if !ok {
		p = newFakePool(name, f.log)
		if f.onNewPool != nil {
			f.onNewPool(p)
		}
		f.pools[name] = p
	}
	return p
}

func (f *fakePools) Get(_ context.Context, identifier string) (datasource.Pool, error) {
	f.mu.Lock()
	err := f.getErr[identifier]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.pool(identifier), nil
}

func (f *fakePools) Admin(context.Context) (datasource.Pool, error) {
	return f.admin, nil
}

func (f *fakePools) Resolve(identifier string) (datasource.ConnConfig, datasource.Dialect, error) {
	if identifier == "" {
		return datasource.ConnConfig{}, nil, apperrors.ErrInvalidIdentifier
	}
	if datasource.IsURI(identifier) {
		cfg, err := datasource.ParseURI(identifier)
		return cfg, f.dialect, err
	}
	return datasource.ConnConfig{Dialect: "mysql", Host: "db", Port: 3306, User: "root", Database: identifier}, f.dialect, nil
}

func (f *fakePools) Evict(identifier string) {
	f.mu.Lock()
	f.evicted = append(f.evicted, identifier)
	delete(f.pools, identifier)
	f.mu.Unlock()
	f.log.add("evict %s", identifier)
}

type fakeNotebookRepo struct {
	mu        sync.Mutex
	notebooks map[string]*models.Notebook
	views     map[string]int
	CreateErr error
}

func newFakeNotebookRepo() *fakeNotebookRepo {
	return &fakeNotebookRepo{notebooks: map[string]*models.Notebook{}, views: map[string]int{}}
}

func (r *fakeNotebookRepo) Create(_ context.Context, nb *models.Notebook) error {
	if r.CreateErr != nil {
		return r.CreateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *nb
	r.notebooks[nb.ID] = &cp
	return nil
}

func (r *fakeNotebookRepo) Get(_ context.Context, id string) (*models.Notebook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	nb, ok := r.notebooks[id]
	if !ok {
		return nil, fmt.Errorf("notebook %s: %w", id, apperrors.ErrNotFound)
	}
	cp := *nb
	return &cp, nil
}

func (r *fakeNotebookRepo) List(context.Context) ([]*models.Notebook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Notebook, 0, len(r.notebooks))
	for _, nb := range r.notebooks {
		cp := *nb
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeNotebookRepo) UpdateSuggestions(_ context.Context, id string, suggestions []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	nb, ok := r.notebooks[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	nb.Suggestions = append([]string(nil), suggestions...)
	return nil
}

func (r *fakeNotebookRepo) IncrementViews(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if nb, ok := r.notebooks[id]; ok {
		nb.Views++
	}
	return nil
}

func (r *fakeNotebookRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.notebooks[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(r.notebooks, id)
	return nil
}

func (r *fakeNotebookRepo) put(nb *models.Notebook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notebooks[nb.ID] = nb
}

type fakeAppRepo struct {
	mu   sync.Mutex
	apps map[string]*models.App
}

func newFakeAppRepo() *fakeAppRepo { return &fakeAppRepo{apps: map[string]*models.App{}} }

func (r *fakeAppRepo) Create(_ context.Context, app *models.App) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apps[app.ID] = app
	return nil
}

func (r *fakeAppRepo) Get(_ context.Context, id string) (*models.App, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.apps[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return app, nil
}

func (r *fakeAppRepo) ListBySourceNotebook(_ context.Context, notebookID string) ([]*models.App, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.App
	for _, app := range r.apps {
		if app.SourceNotebookID == notebookID {
			out = append(out, app)
		}
	}
	return out, nil
}

func (r *fakeAppRepo) DeleteBySourceNotebook(_ context.Context, notebookID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, app := range r.apps {
		if app.SourceNotebookID == notebookID {
			ids = append(ids, id)
			delete(r.apps, id)
		}
	}
	return ids, nil
}

type fakeShareRepo struct {
	mu     sync.Mutex
	shares map[string]*models.Share
}

func newFakeShareRepo() *fakeShareRepo { return &fakeShareRepo{shares: map[string]*models.Share{}} }

func (r *fakeShareRepo) Create(_ context.Context, share *models.Share) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shares[share.ID] = share
	return nil
}

func (r *fakeShareRepo) Get(_ context.Context, id string) (*models.Share, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	share, ok := r.shares[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return share, nil
}

func (r *fakeShareRepo) DeleteByApps(_ context.Context, appIDs []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := map[string]bool{}
	for _, id := range appIDs {
		want[id] = true
	}
	var n int64
	for id, share := range r.shares {
		if want[share.AppID] {
			delete(r.shares, id)
			n++
		}
	}
	return n, nil
}

type fakeSettingsRepo struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeSettingsRepo() *fakeSettingsRepo { return &fakeSettingsRepo{values: map[string]string{}} }

func (r *fakeSettingsRepo) Get(_ context.Context, key string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.values[key]
	return v, ok, nil
}

func (r *fakeSettingsRepo) Set(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
	return nil
}

type fakeSeedRepo struct {
	mu     sync.Mutex
	loaded map[string]bool
}

func newFakeSeedRepo() *fakeSeedRepo { return &fakeSeedRepo{loaded: map[string]bool{}} }

func (r *fakeSeedRepo) IsLoaded(_ context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loaded[name], nil
}

func (r *fakeSeedRepo) MarkLoaded(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded[name] = true
	return nil
}

// countPrefix counts entries starting with prefix.
func countPrefix(items []string, prefix string) int {
	n := 0
	for _, s := range items {
		if strings.HasPrefix(s, prefix) {
			n++
		}
	}
	return n
}
