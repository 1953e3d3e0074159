package database

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
)

// memDriver is a database/sql driver that keeps alert_events rows in memory.
// Rows are stored in the column order the INSERT binds them.
type memDriver struct {
	mu     sync.Mutex
	tables map[string]*memTable
}

type memTable struct {
	mu      sync.Mutex
	rows    [][]driver.Value
}

var alertLogDriver = &memDriver{tables: make(map[string]*memTable)}

func init() {
	sql.Register("alertlog-mem", alertLogDriver)
}

func (d *memDriver) Open(name string) (driver.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tbl, ok := d.tables[name]
	if !ok {
		tbl = &memTable{}
		d.tables[name] = tbl
	}
	return &memConn{table: tbl}, nil
}

type memConn struct {
	table *memTable
}

func (c *memConn) Prepare(query string) (driver.Stmt, error) {
	return &memStmt{table: c.table, query: query}, nil
}

func (c *memConn) Close() error { return nil }

func (c *memConn) Begin() (driver.Tx, error) {
	return nil, errors.New("transactions not supported")
}

type memStmt struct {
	table *memTable
	query string
}

func (s *memStmt) Close() error  { return nil }
func (s *memStmt) NumInput() int { return -1 }

func (s *memStmt) Exec(args []driver.Value) (driver.Result, error) {
	s.table.mu.Lock()
	defer s.table.mu.Unlock()

	if !strings.HasPrefix(strings.TrimSpace(s.query), "INSERT") {
		return driver.ResultNoRows, nil
	}
	id := int64(len(s.table.rows) + 1)
	row := append([]driver.Value{id}, args...)
	s.table.rows = append(s.table.rows, row)
	return memResult(id), nil
}

// Query returns the stored rows newest first, honouring a single LIMIT argument
func (s *memStmt) Query(args []driver.Value) (driver.Rows, error) {
	s.table.mu.Lock()
	defer s.table.mu.Unlock()

	limit := len(s.table.rows)
	if len(args) == 1 {
		if l, ok := args[0].(int64); ok && int(l) < limit {
			limit = int(l)
		}
	}

	out := make([][]driver.Value, 0, limit)
	for i := len(s.table.rows) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.table.rows[i])
	}
	return &memRows{rows: out}, nil
}

type memResult int64

func (r memResult) LastInsertId() (int64, error) { return int64(r), nil }
func (r memResult) RowsAffected() (int64, error) { return 1, nil }

type memRows struct {
	rows [][]driver.Value
	pos  int
}

func (r *memRows) Columns() []string {
	return []string{"id", "timestamp", "from_state", "to_state", "predicted_co2",
		"threshold", "horizon_minutes", "notified", "notify_error"}
}

func (r *memRows) Close() error { return nil }

func (r *memRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}

// newMemDB returns a DB backed by a fresh in-memory table with the schema applied
func newMemDB(t *testing.T) (*DB, *memTable) {
	t.Helper()
	conn, err := sql.Open("alertlog-mem", t.Name())
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	db := &DB{conn: conn}
	t.Cleanup(func() { db.Close() })

	if err := db.initSchema(); err != nil {
		t.Fatalf("initSchema() error = %v", err)
	}

	alertLogDriver.mu.Lock()
	tbl := alertLogDriver.tables[t.Name()]
	alertLogDriver.mu.Unlock()

	// repeated runs of the same test reuse the table
	tbl.mu.Lock()
	tbl.rows = nil
	tbl.mu.Unlock()
	return db, tbl
}
