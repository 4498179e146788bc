package datasource

import (
	"bytes"
	"encoding/json"
	"errors"
)

// SystemTablePrefix marks tables that introspection never reports.
const SystemTablePrefix = "__"

// UnknownRowCount is reported until rows are counted by an explicit refresh.
const UnknownRowCount int64 = -1

// TableMetadata describes one base table of a notebook database.
type TableMetadata struct {
	ID        string   `json:"id"`
	TableName string   `json:"tableName"`
	Columns   []Column `json:"columns"`
	RowCount  int64    `json:"rowCount"`
}

// Column describes one table column in physical order. Type is the
// dialect-native type name, uppercased.
type Column struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Comment string `json:"comment"`
}

// ResultKind tells a data result from a synthetic status result.
type ResultKind int

const (
	ResultKindData ResultKind = iota
	ResultKindStatus
)

// QueryResult is the canonical output of Run. Rows and Columns are never nil.
type QueryResult struct {
	Rows    []Record   `json:"rows"`
	Columns []string   `json:"columns"`
	Kind    ResultKind `json:"-"`
}

// NewDataResult builds a data result. Columns fall back to the first row's
// keys when the driver reported none.
func NewDataResult(columns []string, rows []Record) *QueryResult {
	if len(columns) == 0 && len(rows) > 0 {
		columns = append([]string(nil), rows[0].Keys()...)
	}
	if columns == nil {
		columns = []string{}
	}
	if rows == nil {
		rows = []Record{}
	}
	return &QueryResult{Rows: rows, Columns: columns, Kind: ResultKindData}
}

// NewStatusResult builds the single synthetic row reported for statements
// that return no result set.
func NewStatusResult(columns []string, values []any) *QueryResult {
	return &QueryResult{
		Rows:    []Record{NewRecord(columns, values)},
		Columns: append([]string(nil), columns...),
		Kind:    ResultKindStatus,
	}
}

// Record is one result row. Keys keep column order when serialized.
// A column name that repeats keeps its first position and its last value.
type Record struct {
	keys   []string
	values map[string]any
}

// NewRecord pairs names with values positionally.
func NewRecord(names []string, values []any) Record {
	r := Record{
		keys:   make([]string, 0, len(names)),
		values: make(map[string]any, len(names)),
	}
	for i, name := range names {
		var v any
		if i < len(values) {
			v = values[i]
		}
		r.Set(name, v)
	}
	return r
}

// Set assigns a value, appending the key when it is new.
func (r *Record) Set(name string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[name]; !ok {
		r.keys = append(r.keys, name)
	}
	r.values[name] = value
}

// Get returns the value stored under name.
func (r Record) Get(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Keys returns the column names in order.
func (r Record) Keys() []string {
	return r.keys
}

// Len returns the number of distinct keys.
func (r Record) Len() int {
	return len(r.keys)
}

// Map returns a copy of the record as a plain map.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.values))
	for k, v := range r.values {
		m[k] = v
	}
	return m
}

// MarshalJSON writes the record as an object with keys in column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object, keeping the key order of the input.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("record: expected JSON object")
	}

	*r = Record{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return err
		}
		r.Set(key, v)
	}
	_, err = dec.Token()
	return err
}
