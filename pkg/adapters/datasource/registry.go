package datasource

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ekaya-inc/ekaya-notebook/pkg/apperrors"
)

// DialectInfo describes a registered dialect.
type DialectInfo struct {
	Name        string   `json:"name"`         // "mysql", "postgres"
	DisplayName string   `json:"display_name"` // "MySQL", "PostgreSQL"
	Schemes     []string `json:"schemes"`      // URI schemes that select this dialect
}

// DialectRegistration pairs a dialect with its metadata.
type DialectRegistration struct {
	Info    DialectInfo
	Dialect Dialect
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]DialectRegistration)
	schemes    = make(map[string]string) // scheme -> dialect name
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg DialectRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Name] = reg
	for _, scheme := range reg.Info.Schemes {
		schemes[strings.ToLower(scheme)] = reg.Info.Name
	}
}

// GetDialect returns the dialect registered under name.
func GetDialect(name string) (Dialect, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[name]; ok {
		return reg.Dialect, nil
	}
	return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownDialect, name)
}

// DialectForScheme returns the dialect selected by a URI scheme.
func DialectForScheme(scheme string) (Dialect, error) {
	registryMu.RLock()
	name, ok := schemes[strings.ToLower(scheme)]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: scheme %q", apperrors.ErrUnknownDialect, scheme)
	}
	return GetDialect(name)
}

// RegisteredDialects returns info for all registered dialects, sorted by name.
func RegisteredDialects() []DialectInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DialectInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// IsRegistered checks if a dialect is available.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}
