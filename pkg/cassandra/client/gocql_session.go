package client

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
)

// GocqlSession adapts a *gocql.Session to the Session interface.
type GocqlSession struct {
	session *gocql.Session
}

// NewGocqlSession connects to the given hosts and keyspace with quorum
// consistency, the profile used by every statement in this store.
func NewGocqlSession(hosts []string, keyspace string, connectTimeout time.Duration) (*GocqlSession, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.ConnectTimeout = connectTimeout
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("error creating cassandra session: %w", err)
	}
	return &GocqlSession{session: session}, nil
}

func WrapGocqlSession(session *gocql.Session) *GocqlSession {
	return &GocqlSession{session: session}
}

func (gs *GocqlSession) Query(stmt string, values ...interface{}) Query {
	return gocqlQuery{query: gs.session.Query(stmt, values...)}
}

func (gs *GocqlSession) Close() {
	gs.session.Close()
}

type gocqlQuery struct {
	query *gocql.Query
}

func (gq gocqlQuery) WithContext(ctx context.Context) Query {
	return gocqlQuery{query: gq.query.WithContext(ctx)}
}

func (gq gocqlQuery) Exec() error {
	return gq.query.Exec()
}

func (gq gocqlQuery) Iter() Iter {
	return gocqlIter{iter: gq.query.Iter()}
}

type gocqlIter struct {
	iter *gocql.Iter
}

func (gi gocqlIter) Scan(dest ...interface{}) bool {
	return gi.iter.Scan(dest...)
}

func (gi gocqlIter) Close() error {
	return gi.iter.Close()
}
