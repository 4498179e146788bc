package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "single statement without semicolon",
			input:    "SELECT 1",
			expected: []string{"SELECT 1"},
		},
		{
			name:     "single statement with trailing semicolon",
			input:    "SELECT 1;  \n",
			expected: []string{"SELECT 1"},
		},
		{
			name:     "two statements",
			input:    "SELECT 1; SELECT 2",
			expected: []string{"SELECT 1", "SELECT 2"},
		},
		{
			name:     "semicolon inside single quotes",
			input:    "INSERT INTO t VALUES ('a;b'); SELECT 1",
			expected: []string{"INSERT INTO t VALUES ('a;b')", "SELECT 1"},
		},
		{
			name:     "escaped quote inside string",
			input:    `SELECT 'it\'s; fine'; SELECT 2`,
			expected: []string{`SELECT 'it\'s; fine'`, "SELECT 2"},
		},
		{
			name:     "doubled quote inside string",
			input:    "SELECT 'it''s; fine'; SELECT 2",
			expected: []string{"SELECT 'it''s; fine'", "SELECT 2"},
		},
		{
			name:     "semicolon inside double quotes",
			input:    `SELECT "a;b"`,
			expected: []string{`SELECT "a;b"`},
		},
		{
			name:     "semicolon inside backtick identifier",
			input:    "SELECT `odd;name` FROM t; SELECT 2",
			expected: []string{"SELECT `odd;name` FROM t", "SELECT 2"},
		},
		{
			name:     "semicolon inside line comment",
			input:    "SELECT 1 -- trailing; comment\n; SELECT 2",
			expected: []string{"SELECT 1 -- trailing; comment", "SELECT 2"},
		},
		{
			name:     "semicolon inside hash comment",
			input:    "SELECT 1 # note; here\n; SELECT 2",
			expected: []string{"SELECT 1 # note; here", "SELECT 2"},
		},
		{
			name:     "semicolon inside block comment",
			input:    "SELECT /* a; b */ 1; SELECT 2",
			expected: []string{"SELECT /* a; b */ 1", "SELECT 2"},
		},
		{
			name:     "comment only piece is dropped",
			input:    "SELECT 1; -- done",
			expected: []string{"SELECT 1"},
		},
		{
			name:     "executable comment is kept",
			input:    "/*!40101 SET NAMES utf8mb4 */; SELECT 1",
			expected: []string{"/*!40101 SET NAMES utf8mb4 */", "SELECT 1"},
		},
		{
			name:     "double dash without space is an operator",
			input:    "SELECT 5--1; SELECT 2",
			expected: []string{"SELECT 5--1", "SELECT 2"},
		},
		{
			name:     "empty pieces are dropped",
			input:    ";;SELECT 1;;",
			expected: []string{"SELECT 1"},
		},
		{
			name:     "empty script",
			input:    "   ",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitStatements(tt.input))
		})
	}
}

func TestFirstKeyword(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"select 1", "SELECT"},
		{"  \n\tUPDATE t SET a = 1", "UPDATE"},
		{"-- comment\nSELECT 1", "SELECT"},
		{"# comment\nshow tables", "SHOW"},
		{"/* block */ DELETE FROM t", "DELETE"},
		{"((SELECT 1) UNION (SELECT 2))", "SELECT"},
		{"-- only a comment", ""},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FirstKeyword(tt.input), "input %q", tt.input)
	}
}

func TestReturnsRows(t *testing.T) {
	rowStatements := []string{
		"SELECT 1",
		"show databases",
		"DESCRIBE sales",
		"EXPLAIN SELECT * FROM t",
		"WITH x AS (SELECT 1) SELECT * FROM x",
		"(SELECT 1)",
		"INSERT INTO t (v) VALUES (1) RETURNING id",
		"delete from t where id = 1 returning *",
		"REPLACE INTO t VALUES (1)\nRETURNING id, v",
	}
	for _, stmt := range rowStatements {
		assert.True(t, ReturnsRows(stmt), "expected rows for %q", stmt)
	}

	statusStatements := []string{
		"UPDATE t SET v = 1 WHERE id = 1",
		"INSERT INTO t VALUES (1)",
		"CREATE TABLE t (id INT)",
		"SET @a = 1",
		"DROP TABLE t",
		"INSERT INTO t (note) VALUES ('RETURNING')",
		"UPDATE t SET returning_id = 2",
		"DELETE FROM t -- RETURNING id",
		"INSERT INTO `returning` VALUES (1)",
	}
	for _, stmt := range statusStatements {
		assert.False(t, ReturnsRows(stmt), "expected status for %q", stmt)
	}
}

func TestChangesSession(t *testing.T) {
	tests := []struct {
		name       string
		statements []string
		expected   bool
	}{
		{"nothing", nil, false},
		{"plain select", []string{"SELECT * FROM t"}, false},
		{"plain dml", []string{"UPDATE t SET v = 1"}, false},
		{"use", []string{"USE other"}, true},
		{"set variable", []string{"SET @a = 1"}, true},
		{"set search_path", []string{"set search_path to audit"}, true},
		{"begin", []string{"BEGIN"}, true},
		{"start transaction", []string{"START TRANSACTION"}, true},
		{"temporary table", []string{"CREATE TEMPORARY TABLE scratch (id INT)"}, true},
		{"temp table", []string{"create temp table scratch (id int)"}, true},
		{"regular table", []string{"CREATE TABLE t (id INT)"}, false},
		{"any script", []string{"SELECT 1", "SELECT 2"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ChangesSession(tt.statements))
		})
	}
}
