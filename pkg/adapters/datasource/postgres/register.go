package postgres

import (
	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.DialectRegistration{
		Info: datasource.DialectInfo{
			Name:        "postgres",
			DisplayName: "PostgreSQL",
			Schemes:     []string{"postgres", "postgresql"},
		},
		Dialect: Dialect{},
	})
}
