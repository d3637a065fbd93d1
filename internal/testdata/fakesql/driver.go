// Package fakesql is an in-memory database/sql driver that records statements and
// transaction boundaries. It never returns rows.
package fakesql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"

	"github.com/jmoiron/sqlx"
)

type Exec struct {
	Query string
	Args  []driver.Value
}

// Recorder captures what the code under test sent to the database.
type Recorder struct {
	mu        sync.Mutex
	execs     []Exec
	begins    []driver.TxOptions
	commits   int
	rollbacks int

	// ExecErr, when set, decides the error returned for each statement.
	ExecErr func(query string, args []driver.Value) error
}

// Open returns a sqlx handle backed by the recorder, using the postgres bind style.
func Open(rec *Recorder) *sqlx.DB {
	return sqlx.NewDb(sql.OpenDB(connector{rec: rec}), "postgres")
}

func (r *Recorder) Execs() []Exec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Exec(nil), r.execs...)
}

func (r *Recorder) Begins() []driver.TxOptions {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]driver.TxOptions(nil), r.begins...)
}

func (r *Recorder) Commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commits
}

func (r *Recorder) Rollbacks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rollbacks
}

type connector struct {
	rec *Recorder
}

func (c connector) Connect(context.Context) (driver.Conn, error) {
	return &conn{rec: c.rec}, nil
}

func (c connector) Driver() driver.Driver {
	return fakeDriver{}
}

type fakeDriver struct{}

func (fakeDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("fakesql: use Open")
}

type conn struct {
	rec *Recorder
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return &stmt{rec: c.rec, query: query}, nil
}

func (c *conn) Close() error {
	return nil
}

func (c *conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *conn) BeginTx(_ context.Context, opts driver.TxOptions) (driver.Tx, error) {
	c.rec.mu.Lock()
	c.rec.begins = append(c.rec.begins, opts)
	c.rec.mu.Unlock()
	return &tx{rec: c.rec}, nil
}

type tx struct {
	rec *Recorder
}

func (t *tx) Commit() error {
	t.rec.mu.Lock()
	t.rec.commits++
	t.rec.mu.Unlock()
	return nil
}

func (t *tx) Rollback() error {
	t.rec.mu.Lock()
	t.rec.rollbacks++
	t.rec.mu.Unlock()
	return nil
}

type stmt struct {
	rec   *Recorder
	query string
}

func (s *stmt) Close() error {
	return nil
}

func (s *stmt) NumInput() int {
	return -1
}

func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	s.rec.mu.Lock()
	s.rec.execs = append(s.rec.execs, Exec{Query: s.query, Args: args})
	check := s.rec.ExecErr
	s.rec.mu.Unlock()

	if check != nil {
		if err := check(s.query, args); err != nil {
			return nil, err
		}
	}
	return driver.RowsAffected(1), nil
}

func (s *stmt) Query([]driver.Value) (driver.Rows, error) {
	return nil, errors.New("fakesql: queries are not supported")
}
