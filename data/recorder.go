package data

import (
	"context"
	"database/sql"
	"sync"
)

// Statement is one recorded call.
type Statement struct {
	SQL  string
	Args []any
}

// Recorder is an Executor that keeps every statement it forwards to Next.
type Recorder struct {
	Next Executor

	mu         sync.Mutex
	statements []Statement
}

// NewRecorder wraps next.
func NewRecorder(next Executor) *Recorder {
	return &Recorder{Next: next}
}

func (r *Recorder) record(query string, args []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statements = append(r.statements, Statement{SQL: query, Args: args})
}

func (r *Recorder) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	r.record(query, args)
	return r.Next.ExecContext(ctx, query, args...)
}

func (r *Recorder) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	r.record(query, args)
	return r.Next.QueryRowContext(ctx, query, args...)
}

func (r *Recorder) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	r.record(query, args)
	return r.Next.QueryContext(ctx, query, args...)
}

// Statements returns a copy of everything recorded so far.
func (r *Recorder) Statements() []Statement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Statement(nil), r.statements...)
}

// Reset forgets the recorded statements.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statements = nil
}
