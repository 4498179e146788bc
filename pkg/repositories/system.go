package repositories

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
)

// systemDB resolves the system database pool on every call, so repositories
// can be built before the database exists.
type systemDB struct {
	pools    datasource.PoolProvider
	database string
}

func (s systemDB) pool(ctx context.Context) (datasource.Pool, error) {
	pool, err := s.pools.Get(ctx, s.database)
	if err != nil {
		return nil, fmt.Errorf("failed to open system database: %w", err)
	}
	return pool, nil
}

// dialect returns the dialect name of the system database.
func (s systemDB) dialect() (string, error) {
	_, d, err := s.pools.Resolve(s.database)
	if err != nil {
		return "", err
	}
	return d.Name(), nil
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}
