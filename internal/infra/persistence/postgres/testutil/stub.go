// Package testutil provides a database/sql driver that fakes the postgres
// state table, for store tests that cannot reach a server.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"
)

// ErrInjected is returned by every operation whose failure flag is set.
var ErrInjected = errors.New("injected failure")

// StubConn holds the fake state table and the statements it has seen.
type StubConn struct {
	Statements []string
	State      map[string][]byte

	FailPing   bool
	FailBegin  bool
	FailCreate bool
	FailUpsert bool
	FailSelect bool
	FailCommit bool
	RowsErr    error
}

var stubSeq atomic.Int64

// NewStubDB returns a sql.DB whose only connection is the returned StubConn.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{State: make(map[string][]byte)}
	name := fmt.Sprintf("fridgeshare-stub-%d", stubSeq.Add(1))
	sql.Register(name, stubDriver{conn: conn})
	db, err := sql.Open(name, "")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// Upserts counts the state upserts executed so far.
func (c *StubConn) Upserts() int {
	n := 0
	for _, stmt := range c.Statements {
		if kindOf(stmt) == "INSERT" {
			n++
		}
	}
	return n
}

type stubDriver struct{ conn *StubConn }

func (d stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func (c *StubConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("stub: prepared statements unsupported")
}

func (c *StubConn) Close() error { return nil }

func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, ErrInjected
	}
	return stubTx{conn: c}, nil
}

func (c *StubConn) Ping(context.Context) error {
	if c.FailPing {
		return ErrInjected
	}
	return nil
}

func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Statements = append(c.Statements, query)
	switch kindOf(query) {
	case "CREATE":
		if c.FailCreate {
			return nil, ErrInjected
		}
		return driver.RowsAffected(0), nil
	case "INSERT":
		if c.FailUpsert {
			return nil, ErrInjected
		}
		if len(args) != 2 {
			return nil, fmt.Errorf("stub: upsert wants 2 args, got %d", len(args))
		}
		bucket, _ := args[0].Value.(string)
		payload, _ := args[1].Value.([]byte)
		c.State[bucket] = append([]byte(nil), payload...)
		return driver.RowsAffected(1), nil
	default:
		return nil, fmt.Errorf("stub: unsupported statement %q", query)
	}
}

func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.Statements = append(c.Statements, query)
	if kindOf(query) != "SELECT" {
		return nil, fmt.Errorf("stub: unsupported query %q", query)
	}
	if c.FailSelect {
		return nil, ErrInjected
	}
	buckets := make([]string, 0, len(c.State))
	for bucket := range c.State {
		buckets = append(buckets, bucket)
	}
	sort.Strings(buckets)
	rows := &stubRows{err: c.RowsErr}
	for _, bucket := range buckets {
		rows.values = append(rows.values, []driver.Value{bucket, c.State[bucket]})
	}
	return rows, nil
}

func kindOf(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

type stubTx struct{ conn *StubConn }

func (t stubTx) Commit() error {
	if t.conn.FailCommit {
		return ErrInjected
	}
	return nil
}

func (stubTx) Rollback() error { return nil }

type stubRows struct {
	values [][]driver.Value
	next   int
	err    error
}

func (r *stubRows) Columns() []string { return []string{"bucket", "payload"} }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.next >= len(r.values) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.values[r.next])
	r.next++
	return nil
}
