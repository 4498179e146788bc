package postgres

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
)

const defaultPort = 5432

// buildConnectionString builds a PostgreSQL URL. Credentials and the database
// name go through net/url so characters such as @, /, # and ? survive parsing.
func buildConnectionString(cfg datasource.ConnConfig, opts datasource.PoolOptions) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(portOrDefault(cfg.Port))),
		Path:   "/" + cfg.Database,
	}

	q := url.Values{}
	for k, v := range cfg.Params {
		q.Set(k, v)
	}
	if opts.ConnectTimeoutSeconds > 0 && q.Get("connect_timeout") == "" {
		q.Set("connect_timeout", strconv.Itoa(opts.ConnectTimeoutSeconds))
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// buildPythonURL renders a SQLAlchemy URL for psycopg2.
func buildPythonURL(cfg datasource.ConnConfig) string {
	u := url.URL{
		Scheme: "postgresql+psycopg2",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(portOrDefault(cfg.Port))),
		Path:   "/" + cfg.Database,
	}
	if cfg.Password == "" {
		u.User = url.User(cfg.User)
	}
	if sslMode := cfg.Params["sslmode"]; sslMode != "" {
		u.RawQuery = url.Values{"sslmode": {sslMode}}.Encode()
	}
	return u.String()
}

func portOrDefault(port int) int {
	if port == 0 {
		return defaultPort
	}
	return port
}

// quoteIdentifier safely quotes a SQL identifier.
func quoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// quoteLiteral quotes a string literal for statements that take no parameters
// (COMMENT ON).
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
