package testhelpers

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource/mysql"
	_ "github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/ekaya-notebook/pkg/database"
	"github.com/ekaya-inc/ekaya-notebook/pkg/models"
)

// Container images used by integration tests.
const (
	MySQLImage    = "mysql:8.0"
	PostgresImage = "postgres:16-alpine"

	testPassword = "test_password"
)

// TestServer is a database server running in a container.
type TestServer struct {
	Container testcontainers.Container
	Server    datasource.ConnConfig
}

type serverOnce struct {
	once   sync.Once
	server *TestServer
	err    error
}

var servers = map[string]*serverOnce{
	"mysql":    {},
	"postgres": {},
}

// GetTestServer returns a shared container for dialect ("mysql" or
// "postgres"). The container is created once and reused across all tests
// in the run.
func GetTestServer(t *testing.T, dialect string) *TestServer {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	s, ok := servers[dialect]
	if !ok {
		t.Fatalf("no test container for dialect %q", dialect)
	}
	s.once.Do(func() {
		s.server, s.err = setupServer(dialect)
	})
	if s.err != nil {
		t.Fatalf("Failed to setup %s test server: %v", dialect, s.err)
	}
	return s.server
}

func setupServer(dialect string) (*TestServer, error) {
	ctx := context.Background()

	var req testcontainers.ContainerRequest
	var port, user string
	switch dialect {
	case "mysql":
		port, user = "3306", "root"
		req = testcontainers.ContainerRequest{
			Image:        MySQLImage,
			ExposedPorts: []string{"3306/tcp"},
			Env:          map[string]string{"MYSQL_ROOT_PASSWORD": testPassword},
			WaitingFor: wait.ForLog("port: 3306  MySQL Community Server").
				WithStartupTimeout(120 * time.Second),
		}
	case "postgres":
		port, user = "5432", "postgres"
		req = testcontainers.ContainerRequest{
			Image:        PostgresImage,
			ExposedPorts: []string{"5432/tcp"},
			Env:          map[string]string{"POSTGRES_PASSWORD": testPassword},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		}
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}
	portNum, err := strconv.Atoi(mapped.Port())
	if err != nil {
		return nil, fmt.Errorf("invalid mapped port %q: %w", mapped.Port(), err)
	}

	server := datasource.ConnConfig{
		Dialect:  dialect,
		Host:     host,
		Port:     portNum,
		User:     user,
		Password: testPassword,
	}
	if dialect == "postgres" {
		server.Params = map[string]string{"sslmode": "disable"}
	}

	return &TestServer{Container: container, Server: server}, nil
}

// NewRegistry returns a pool registry for the server that is closed when
// the test ends. The server is pinged with retry before returning.
func (s *TestServer) NewRegistry(t *testing.T) *datasource.PoolRegistry {
	t.Helper()

	registry, err := datasource.NewPoolRegistry(datasource.PoolRegistryConfig{
		Server:  s.Server,
		Options: datasource.PoolOptions{MaxConns: 5, ConnectTimeoutSeconds: 5},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create pool registry: %v", err)
	}
	t.Cleanup(func() { _ = registry.Close() })

	ctx := context.Background()
	var lastErr error
	for i := 0; i < 20; i++ {
		var admin datasource.Pool
		if admin, lastErr = registry.Admin(ctx); lastErr == nil {
			if lastErr = admin.Ping(ctx); lastErr == nil {
				return registry
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("test server not reachable: %v", lastErr)
	return nil
}

// CreateTestDatabase creates a uniquely named database and drops it when the
// test ends.
func CreateTestDatabase(t *testing.T, registry *datasource.PoolRegistry) string {
	t.Helper()
	ctx := context.Background()

	admin, err := registry.Admin(ctx)
	if err != nil {
		t.Fatalf("failed to open admin pool: %v", err)
	}

	name := "test_" + models.NewID()
	if err := admin.CreateDatabase(ctx, name); err != nil {
		t.Fatalf("failed to create database %s: %v", name, err)
	}
	t.Cleanup(func() {
		registry.Evict(name)
		_ = admin.DropDatabase(context.Background(), name)
	})
	return name
}

// CreateSystemDatabase creates a test database with the system migrations applied.
func CreateSystemDatabase(t *testing.T, registry *datasource.PoolRegistry) string {
	t.Helper()
	ctx := context.Background()

	name := CreateTestDatabase(t, registry)
	pool, err := registry.Get(ctx, name)
	if err != nil {
		t.Fatalf("failed to open system database: %v", err)
	}
	target, ok := pool.(database.Migratable)
	if !ok {
		t.Fatalf("pool of dialect %s does not support migrations", registry.Dialect().Name())
	}
	if err := database.RunMigrations(ctx, target, registry.Dialect().Name(), zap.NewNop()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return name
}

// Dialects lists the dialects integration tests run against.
var Dialects = []string{"mysql", "postgres"}
