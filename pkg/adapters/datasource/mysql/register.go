package mysql

import (
	"github.com/ekaya-inc/ekaya-notebook/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.DialectRegistration{
		Info: datasource.DialectInfo{
			Name:        "mysql",
			DisplayName: "MySQL",
			Schemes:     []string{"mysql", "mariadb"},
		},
		Dialect: Dialect{},
	})
}
