package datasource

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-notebook/pkg/apperrors"
)

// ConnConfig holds everything needed to open a pool on one database.
type ConnConfig struct {
	Dialect  string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	// Params are extra driver parameters, e.g. sslmode.
	Params map[string]string
	// External is true when the database was identified by a URI and is
	// therefore never owned by this process.
	External bool
}

// WithDatabase returns a copy of c pointing at another database on the same server.
func (c ConnConfig) WithDatabase(name string) ConnConfig {
	out := c
	out.Database = name
	out.Params = make(map[string]string, len(c.Params))
	for k, v := range c.Params {
		out.Params[k] = v
	}
	return out
}

// ServerKey identifies the server and login, ignoring the database.
func (c ConnConfig) ServerKey() string {
	return fmt.Sprintf("%s://%s@%s:%d", c.Dialect, c.User, c.Host, c.Port)
}

// SortedParams returns Params as sorted key=value pairs.
func (c ConnConfig) SortedParams() []string {
	pairs := make([]string, 0, len(c.Params))
	for k, v := range c.Params {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return pairs
}

// IsURI reports whether a database identifier is a full connection URI
// rather than a bare name on the configured server.
func IsURI(identifier string) bool {
	return strings.Contains(identifier, "://")
}

// ParseURI parses a connection URI. The scheme selects the dialect; user and
// password are percent-decoded; a missing port falls back to the dialect default.
func ParseURI(raw string) (ConnConfig, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ConnConfig{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidIdentifier, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return ConnConfig{}, fmt.Errorf("%w: missing scheme or host", apperrors.ErrInvalidIdentifier)
	}

	dialect, err := DialectForScheme(u.Scheme)
	if err != nil {
		return ConnConfig{}, err
	}

	cfg := ConnConfig{
		Dialect:  dialect.Name(),
		Host:     u.Hostname(),
		Port:     dialect.DefaultPort(),
		Database: strings.TrimPrefix(u.Path, "/"),
		Params:   make(map[string]string),
		External: true,
	}

	if portStr := u.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return ConnConfig{}, fmt.Errorf("%w: invalid port %q", apperrors.ErrInvalidIdentifier, portStr)
		}
		cfg.Port = port
	}

	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}

	for key, values := range u.Query() {
		if len(values) > 0 {
			cfg.Params[key] = values[len(values)-1]
		}
	}

	return cfg, nil
}

var databaseNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// IsValidDatabaseName reports whether name is safe to create as an owned database.
func IsValidDatabaseName(name string) bool {
	return databaseNamePattern.MatchString(name)
}
