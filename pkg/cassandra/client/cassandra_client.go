package client

import (
	"context"
)

// Session is the narrow surface this package exposes over the Cassandra
// driver. Statement preparation, connection pooling, consistency level and
// retry policy all live behind the driver; callers only build parameter-bound
// statements and execute or iterate them.
type Session interface {
	// Query binds positional values to a CQL statement. The driver prepares
	// and caches the statement on first use.
	Query(stmt string, values ...interface{}) Query
	Close()
}

type Query interface {
	// WithContext attaches a context governing cancellation of the execution.
	WithContext(ctx context.Context) Query
	// Exec executes a statement that returns no rows.
	Exec() error
	// Iter executes a select and returns an iterator over its rows.
	Iter() Iter
}

type Iter interface {
	// Scan copies the next row into dest, returning false once exhausted.
	Scan(dest ...interface{}) bool
	// Close drains the iterator and returns any error seen during paging.
	Close() error
}
