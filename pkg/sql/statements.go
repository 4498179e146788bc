// Package sql provides lexical helpers for user SQL: statement splitting,
// statement classification and injection fingerprinting.
package sql

import (
	"strings"
)

// SplitStatements splits a script into individual statements using MySQL
// lexical rules. Semicolons inside single quotes, double quotes, backtick
// identifiers and comments (--, #, /* */) do not terminate a statement.
// Backslash escapes and doubled quotes are honored inside string literals.
//
// Statements are returned trimmed and without their terminating semicolon.
// Pieces that contain only whitespace or comments are dropped, except MySQL
// executable comments (/*! ... */) which count as content.
func SplitStatements(script string) []string {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
		stateBacktick
		stateLineComment
		stateBlockComment
	)

	var statements []string
	state := stateNormal
	start := 0
	hasContent := false

	flush := func(end int) {
		if hasContent {
			statements = append(statements, strings.TrimSpace(script[start:end]))
		}
		hasContent = false
	}

	for i := 0; i < len(script); i++ {
		c := script[i]
		switch state {
		case stateNormal:
			switch {
			case c == ';':
				flush(i)
				start = i + 1
			case c == '\'':
				state = stateSingleQuote
				hasContent = true
			case c == '"':
				state = stateDoubleQuote
				hasContent = true
			case c == '`':
				state = stateBacktick
				hasContent = true
			case c == '#':
				state = stateLineComment
			case c == '-' && i+1 < len(script) && script[i+1] == '-' && (i+2 == len(script) || isSpace(script[i+2])):
				state = stateLineComment
				i++
			case c == '/' && i+1 < len(script) && script[i+1] == '*':
				state = stateBlockComment
				if i+2 < len(script) && script[i+2] == '!' {
					hasContent = true
				}
				i++
			case !isSpace(c):
				hasContent = true
			}
		case stateSingleQuote, stateDoubleQuote:
			quote := byte('\'')
			if state == stateDoubleQuote {
				quote = '"'
			}
			if c == '\\' {
				i++
				continue
			}
			if c == quote {
				if i+1 < len(script) && script[i+1] == quote {
					i++
					continue
				}
				state = stateNormal
			}
		case stateBacktick:
			if c == '`' {
				if i+1 < len(script) && script[i+1] == '`' {
					i++
					continue
				}
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
			}
		case stateBlockComment:
			if c == '*' && i+1 < len(script) && script[i+1] == '/' {
				state = stateNormal
				i++
			}
		}
	}
	flush(len(script))

	return statements
}

// rowReturningKeywords are the leading keywords of MySQL statements that
// produce a result set.
var rowReturningKeywords = map[string]bool{
	"SELECT":   true,
	"SHOW":     true,
	"DESCRIBE": true,
	"DESC":     true,
	"EXPLAIN":  true,
	"WITH":     true,
	"VALUES":   true,
	"TABLE":    true,
	"CALL":     true,
	"HANDLER":  true,
	"CHECK":    true,
	"CHECKSUM": true,
	"ANALYZE":  true,
	"OPTIMIZE": true,
	"REPAIR":   true,
}

// returningKeywords lead DML that produces a result set when it carries a
// RETURNING clause (MariaDB 10.5+).
var returningKeywords = map[string]bool{
	"INSERT":  true,
	"REPLACE": true,
	"DELETE":  true,
	"UPDATE":  true,
}

// ReturnsRows reports whether a single statement is expected to produce a
// result set, judged by its leading keyword and, for DML, a RETURNING clause.
func ReturnsRows(statement string) bool {
	keyword := FirstKeyword(statement)
	if rowReturningKeywords[keyword] {
		return true
	}
	return returningKeywords[keyword] && containsWord(statement, "RETURNING")
}

// containsWord reports whether word appears as a bare token outside string
// literals, quoted identifiers and comments. The match is case-insensitive.
func containsWord(statement, word string) bool {
	for i := 0; i < len(statement); {
		c := statement[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			i = skipQuoted(statement, i)
		case c == '#' || (c == '-' && strings.HasPrefix(statement[i:], "--")):
			idx := strings.IndexByte(statement[i:], '\n')
			if idx < 0 {
				return false
			}
			i += idx + 1
		case c == '/' && strings.HasPrefix(statement[i:], "/*"):
			idx := strings.Index(statement[i+2:], "*/")
			if idx < 0 {
				return false
			}
			i += idx + 4
		case isWordChar(c):
			end := i
			for end < len(statement) && isWordChar(statement[end]) {
				end++
			}
			if strings.EqualFold(statement[i:end], word) {
				return true
			}
			i = end
		default:
			i++
		}
	}
	return false
}

// skipQuoted returns the index just past the quoted run opening at start.
func skipQuoted(s string, start int) int {
	quote := s[start]
	for i := start + 1; i < len(s); i++ {
		switch {
		case s[i] == '\\' && quote != '`':
			i++
		case s[i] == quote:
			if i+1 < len(s) && s[i+1] == quote {
				i++
				continue
			}
			return i + 1
		}
	}
	return len(s)
}

// sessionKeywords lead statements that change connection state which would
// otherwise outlive the request on a pooled connection.
var sessionKeywords = map[string]bool{
	"USE":       true,
	"SET":       true,
	"RESET":     true,
	"BEGIN":     true,
	"START":     true,
	"LOCK":      true,
	"PREPARE":   true,
	"DECLARE":   true,
	"LISTEN":    true,
	"SAVEPOINT": true,
}

// ChangesSession reports whether running statements may leave session state
// such as the default database or an open transaction on the connection. Any
// script of more than one statement counts, as does a single statement led by
// a session keyword or creating a temporary table.
func ChangesSession(statements []string) bool {
	if len(statements) > 1 {
		return true
	}
	if len(statements) == 0 {
		return false
	}
	stmt := statements[0]
	keyword := FirstKeyword(stmt)
	if sessionKeywords[keyword] {
		return true
	}
	if keyword == "CREATE" {
		fields := strings.Fields(strings.ToUpper(stmt))
		return len(fields) > 1 && (fields[1] == "TEMPORARY" || fields[1] == "TEMP")
	}
	return false
}

// FirstKeyword returns the uppercased leading keyword of a statement,
// skipping whitespace, comments and opening parentheses.
func FirstKeyword(statement string) string {
	s := statement
	for {
		s = strings.TrimLeft(s, " \t\r\n(")
		switch {
		case strings.HasPrefix(s, "--"), strings.HasPrefix(s, "#"):
			idx := strings.IndexByte(s, '\n')
			if idx < 0 {
				return ""
			}
			s = s[idx+1:]
		case strings.HasPrefix(s, "/*") && !strings.HasPrefix(s, "/*!"):
			idx := strings.Index(s, "*/")
			if idx < 0 {
				return ""
			}
			s = s[idx+2:]
		default:
			end := 0
			for end < len(s) && isWordChar(s[end]) {
				end++
			}
			return strings.ToUpper(s[:end])
		}
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isWordChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
