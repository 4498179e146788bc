package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NotebookDatabasePrefix prefixes the physical database of every owned notebook.
const NotebookDatabasePrefix = "nb_"

// Notebook is a registry row in the system database. DBName is either a bare
// database name on the configured server or an external connection URI.
type Notebook struct {
	ID          string   `json:"id"`
	DBName      string   `json:"dbName"`
	Topic       string   `json:"topic"`
	Icon        string   `json:"icon"`
	Suggestions []string `json:"suggestions"`
	CreatedAt   int64    `json:"createdAt"` // unix milliseconds
	Views       int      `json:"views"`
	IsOwner     bool     `json:"isOwner"`
}

// NewID returns a time-ordered random id as 32 lowercase hex characters.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return strings.ReplaceAll(id.String(), "-", "")
}

// NotebookDatabaseName is the physical database name for an owned notebook.
func NotebookDatabaseName(id string) string {
	return NotebookDatabasePrefix + id
}

// NowMillis returns the current time in unix milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
