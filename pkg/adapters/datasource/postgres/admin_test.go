package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildCreateTable(t *testing.T) {
	table := cloneTable{
		Name: "orders",
		Columns: []cloneColumn{
			{Name: "id", Type: "integer", NotNull: true, Default: "nextval('orders_id_seq'::regclass)"},
			{Name: "code", Type: "bigint", NotNull: true, Identity: "a"},
			{Name: "status", Type: "text", NotNull: true, Default: "'new'::text"},
			{Name: "qty", Type: "integer"},
			{Name: "price", Type: "numeric(10,2)"},
			{Name: "total", Type: "numeric", Default: "((qty)::numeric * price)", Generated: "s"},
		},
		Constraints: []cloneConstraint{
			{Name: "orders_pkey", Definition: "PRIMARY KEY (id)"},
		},
	}

	expected := "CREATE TABLE \"orders\" (\n" +
		"  \"id\" serial NOT NULL,\n" +
		"  \"code\" bigint NOT NULL GENERATED ALWAYS AS IDENTITY,\n" +
		"  \"status\" text NOT NULL DEFAULT 'new'::text,\n" +
		"  \"qty\" integer,\n" +
		"  \"price\" numeric(10,2),\n" +
		"  \"total\" numeric GENERATED ALWAYS AS (((qty)::numeric * price)) STORED,\n" +
		"  CONSTRAINT \"orders_pkey\" PRIMARY KEY (id)\n" +
		")"
	assert.Equal(t, expected, buildCreateTable(table))

	assert.Equal(t, []string{"id", "code", "status", "qty", "price"}, table.copyColumns())
	assert.Equal(t, []string{"id", "code"}, table.sequenceColumns())
}

func TestSerialType(t *testing.T) {
	assert.Equal(t, "smallserial", serialType("smallint"))
	assert.Equal(t, "serial", serialType("integer"))
	assert.Equal(t, "bigserial", serialType("bigint"))
	assert.Equal(t, "numeric", serialType("numeric"))
}

func TestBuildComments(t *testing.T) {
	table := cloneTable{
		Name: "users",
		Columns: []cloneColumn{
			{Name: "id", Type: "integer"},
			{Name: "email", Type: "text", Comment: "user's login"},
		},
	}

	assert.Equal(t,
		[]string{`COMMENT ON COLUMN "users"."email" IS 'user''s login'`},
		buildComments(table))
}

func TestBuildSetval(t *testing.T) {
	assert.Equal(t,
		`SELECT setval(pg_get_serial_sequence('"orders"', 'id'), COALESCE(MAX("id"), 1), MAX("id") IS NOT NULL) FROM "orders"`,
		buildSetval("orders", "id"))
}
