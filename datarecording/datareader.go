package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
)

// QueryParams encapsulates the parameters of a read query.
type QueryParams struct {
	// Where holds the WHERE clause without the "WHERE" keyword, e.g.
	// "Time > ? AND StreamID = ?".
	Where string

	// Args holds the arguments for the placeholders in Where.
	Args []any

	// Limit is the maximum number of records to return. 0 means no limit.
	Limit int

	// Offset is the number of records to skip.
	Offset int

	// OrderBy specifies sorting, without the "ORDER BY" keywords.
	OrderBy string
}

// DataReader reads back records written by a DataRecorder.
type DataReader interface {
	// MapTable establishes the mapping between a database table and a Go
	// struct type. The mapping is required before querying a table.
	MapTable(tableName string, sampleEntry any)

	// ListTables returns the names of all mapped tables.
	ListTables() []string

	// Query reads records from a table.
	Query(ctx context.Context, tableName string, params QueryParams) (
		results []any,
		totalCount int,
		err error,
	)

	// Close closes the reader.
	Close() error
}

type sqliteReader struct {
	db *sql.DB

	typeMap map[string]reflect.Type
}

// NewReader creates a DataReader over an existing SQLite database file.
func NewReader(dbFilename string) DataReader {
	db, err := sql.Open("sqlite3", dbFilename)
	if err != nil {
		panic(err)
	}

	return &sqliteReader{
		db:      db,
		typeMap: make(map[string]reflect.Type),
	}
}

// NewReaderWithDB creates a DataReader over an already open database.
func NewReaderWithDB(db *sql.DB) DataReader {
	return &sqliteReader{
		db:      db,
		typeMap: make(map[string]reflect.Type),
	}
}

func (r *sqliteReader) MapTable(tableName string, sampleEntry any) {
	t := reflect.TypeOf(sampleEntry)
	if t.Kind() != reflect.Struct {
		panic("sample entry must be a struct")
	}

	r.typeMap[tableName] = t
}

func (r *sqliteReader) ListTables() []string {
	tables := make([]string, 0, len(r.typeMap))
	for name := range r.typeMap {
		tables = append(tables, name)
	}

	return tables
}

func (r *sqliteReader) Query(
	ctx context.Context,
	tableName string,
	params QueryParams,
) ([]any, int, error) {
	entryType, mapped := r.typeMap[tableName]
	if !mapped {
		return nil, 0, fmt.Errorf("table %s is not mapped", tableName)
	}

	totalCount, err := r.countRows(ctx, tableName, params)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(
		ctx, buildSelectQuery(tableName, params), params.Args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	results := []any{}
	for rows.Next() {
		entry, err := scanEntry(rows, entryType)
		if err != nil {
			return nil, 0, err
		}

		results = append(results, entry)
	}

	return results, totalCount, rows.Err()
}

func (r *sqliteReader) Close() error {
	return r.db.Close()
}

func (r *sqliteReader) countRows(
	ctx context.Context,
	tableName string,
	params QueryParams,
) (int, error) {
	query := "SELECT COUNT(*) FROM " + tableName
	if params.Where != "" {
		query += " WHERE " + params.Where
	}

	count := 0
	err := r.db.QueryRowContext(ctx, query, params.Args...).Scan(&count)

	return count, err
}

func buildSelectQuery(tableName string, params QueryParams) string {
	query := "SELECT * FROM " + tableName

	if params.Where != "" {
		query += " WHERE " + params.Where
	}

	if params.OrderBy != "" {
		query += " ORDER BY " + params.OrderBy
	}

	if params.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", params.Limit)
	}

	if params.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", params.Offset)
	}

	return query
}

func scanEntry(rows *sql.Rows, entryType reflect.Type) (any, error) {
	entryPtr := reflect.New(entryType)
	entry := entryPtr.Elem()

	fields := make([]any, entryType.NumField())
	for i := range fields {
		fields[i] = entry.Field(i).Addr().Interface()
	}

	if err := rows.Scan(fields...); err != nil {
		return nil, err
	}

	return entry.Interface(), nil
}
