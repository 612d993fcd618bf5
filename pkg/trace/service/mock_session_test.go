package service

import (
	"context"
	"reflect"
	"sync"

	"github.com/tracelet/spanstore/pkg/cassandra/client"
)

type executedStatement struct {
	stmt   string
	values []interface{}
}

// mockSession records every executed statement and serves canned rows per
// select statement.
type mockSession struct {
	mu       sync.Mutex
	executed []executedStatement
	rows     map[string][][]interface{}
	execErrs map[string]error
}

func newMockSession() *mockSession {
	return &mockSession{
		rows:     make(map[string][][]interface{}),
		execErrs: make(map[string]error),
	}
}

func (ms *mockSession) Query(stmt string, values ...interface{}) client.Query {
	return &mockQuery{session: ms, stmt: stmt, values: values, ctx: context.Background()}
}

func (ms *mockSession) Close() {}

func (ms *mockSession) record(stmt string, values []interface{}) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.executed = append(ms.executed, executedStatement{stmt: stmt, values: values})
}

func (ms *mockSession) executedWith(stmt string) []executedStatement {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	var matching []executedStatement
	for _, executed := range ms.executed {
		if executed.stmt == stmt {
			matching = append(matching, executed)
		}
	}
	return matching
}

func (ms *mockSession) countExecuted(stmt string) int {
	return len(ms.executedWith(stmt))
}

type mockQuery struct {
	session *mockSession
	stmt    string
	values  []interface{}
	ctx     context.Context
}

func (mq *mockQuery) WithContext(ctx context.Context) client.Query {
	return &mockQuery{session: mq.session, stmt: mq.stmt, values: mq.values, ctx: ctx}
}

// Exec honors the attached context the way the driver does: a cancelled
// context fails the execution without the write being issued.
func (mq *mockQuery) Exec() error {
	if err := mq.ctx.Err(); err != nil {
		return err
	}
	mq.session.record(mq.stmt, mq.values)
	mq.session.mu.Lock()
	defer mq.session.mu.Unlock()
	return mq.session.execErrs[mq.stmt]
}

func (mq *mockQuery) Iter() client.Iter {
	if err := mq.ctx.Err(); err != nil {
		return &mockIter{err: err}
	}
	mq.session.record(mq.stmt, mq.values)
	mq.session.mu.Lock()
	defer mq.session.mu.Unlock()
	return &mockIter{rows: mq.session.rows[mq.stmt], err: mq.session.execErrs[mq.stmt]}
}

type mockIter struct {
	rows [][]interface{}
	next int
	err  error
}

func (mi *mockIter) Scan(dest ...interface{}) bool {
	if mi.err != nil || mi.next >= len(mi.rows) {
		return false
	}
	row := mi.rows[mi.next]
	mi.next++
	for i, value := range row {
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(value))
	}
	return true
}

func (mi *mockIter) Close() error { return mi.err }
