package postgres_test

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// rowStub implements pgx.Row with a caller-supplied scan function.
type rowStub struct{ scan func(dest ...any) error }

func (r rowStub) Scan(dest ...any) error { return r.scan(dest...) }

func errRow(err error) rowStub {
	return rowStub{scan: func(...any) error { return err }}
}

// rowsStub implements pgx.Rows over an in-memory slice of scan functions, one
// per row, so tests can drive multi-row Query results without a live database.
type rowsStub struct {
	scans []func(dest ...any) error
	idx   int
	err   error
}

func (r *rowsStub) Close()                                       {}
func (r *rowsStub) Err() error                                    { return r.err }
func (r *rowsStub) CommandTag() pgconn.CommandTag                 { return pgconn.CommandTag{} }
func (r *rowsStub) FieldDescriptions() []pgconn.FieldDescription  { return nil }
func (r *rowsStub) Next() bool                                    { return r.idx < len(r.scans) }
func (r *rowsStub) Scan(dest ...any) error {
	f := r.scans[r.idx]
	r.idx++
	return f(dest...)
}
func (r *rowsStub) Values() ([]any, error)       { return nil, errors.New("not implemented") }
func (r *rowsStub) RawValues() [][]byte          { return nil }
func (r *rowsStub) Conn() *pgx.Conn              { return nil }

// poolStub implements postgres.PgxPool for tests exercising repository query
// construction and error propagation without a live database connection.
type poolStub struct {
	execTag pgconn.CommandTag
	execErr error

	row rowStub

	rows    *rowsStub
	rowsErr error

	txErr error
}

func (p *poolStub) Exec(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	return p.execTag, p.execErr
}

func (p *poolStub) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	if p.row.scan == nil {
		return errRow(errors.New("no row configured"))
	}
	return p.row
}

func (p *poolStub) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	if p.rowsErr != nil {
		return nil, p.rowsErr
	}
	if p.rows == nil {
		return &rowsStub{}, nil
	}
	return p.rows, nil
}

func (p *poolStub) BeginTx(_ context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	return nil, p.txErr
}
