package mysql

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	driver "github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
)

const defaultPort = 3306

// ignoredParams are URI parameters meaningful to other dialects only.
var ignoredParams = map[string]bool{
	"sslmode": true,
}

// buildDSN renders a go-sql-driver DSN. Passwords need no escaping in this
// format because the driver splits on the last '@'. User SQL is split and
// sent statement by statement, so the pool DSN keeps multiStatements off.
func buildDSN(cfg datasource.ConnConfig, opts datasource.PoolOptions) string {
	return driverConfig(cfg, opts).FormatDSN()
}

// buildMigrationDSN is buildDSN with multiStatements on. golang-migrate sends
// each migration file as a single Exec.
func buildMigrationDSN(cfg datasource.ConnConfig, opts datasource.PoolOptions) string {
	dc := driverConfig(cfg, opts)
	dc.MultiStatements = true
	return dc.FormatDSN()
}

func driverConfig(cfg datasource.ConnConfig, opts datasource.PoolOptions) *driver.Config {
	dc := driver.NewConfig()
	dc.User = cfg.User
	dc.Passwd = cfg.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(portOrDefault(cfg.Port)))
	dc.DBName = cfg.Database
	dc.ParseTime = true
	dc.MultiStatements = false
	if opts.ConnectTimeoutSeconds > 0 {
		dc.Timeout = time.Duration(opts.ConnectTimeoutSeconds) * time.Second
	}

	for k, v := range cfg.Params {
		if ignoredParams[k] {
			continue
		}
		if dc.Params == nil {
			dc.Params = make(map[string]string)
		}
		dc.Params[k] = v
	}

	return dc
}

// buildPythonURL renders a SQLAlchemy URL for PyMySQL.
func buildPythonURL(cfg datasource.ConnConfig) string {
	u := url.URL{
		Scheme:   "mysql+pymysql",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(portOrDefault(cfg.Port))),
		Path:     "/" + cfg.Database,
		RawQuery: "charset=utf8mb4",
	}
	if cfg.Password == "" {
		u.User = url.User(cfg.User)
	}
	return u.String()
}

func portOrDefault(port int) int {
	if port == 0 {
		return defaultPort
	}
	return port
}

// quoteIdentifier quotes a MySQL identifier with backticks.
func quoteIdentifier(name string) string {
	return "`" + escapeBackticks(name) + "`"
}

func escapeBackticks(name string) string {
	out := make([]byte, 0, len(name)+2)
	for i := 0; i < len(name); i++ {
		if name[i] == '`' {
			out = append(out, '`')
		}
		out = append(out, name[i])
	}
	return string(out)
}

func qualified(database, table string) string {
	return fmt.Sprintf("%s.%s", quoteIdentifier(database), quoteIdentifier(table))
}
